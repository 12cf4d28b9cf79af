package precision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound(t *testing.T) {
	assert.Equal(t, 29925.0, Round(29925.004, 2))
	assert.Equal(t, 0.004, Round(0.0039999999, 3))
	assert.Equal(t, 1.01, Round(1.005, 2))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0.004", Format(0.004, 3))
	assert.Equal(t, "30040.00", Format(30040, 2))
}
