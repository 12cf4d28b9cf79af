package strategy

import "testing"

func TestSentimentAllows(t *testing.T) {
	cases := []struct {
		value int
		want  bool
	}{
		{10, true},
		{25, true},
		{40, true},
		{48, false},
		{50, false},
		{52, false},
		{53, true},
		{75, true},
		{90, true},
	}
	for _, c := range cases {
		got, reason := SentimentAllows(c.value)
		if got != c.want {
			t.Errorf("SentimentAllows(%d) = %v (%s), want %v", c.value, got, reason, c.want)
		}
	}
}
