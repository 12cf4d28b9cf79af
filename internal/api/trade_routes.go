package api

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/kjannette/microtrend-backend/internal/models"
)

// parseTradeMode extracts the ?mode= query parameter.
// Returns a *bool: nil = all, true = paper, false = live.
func parseTradeMode(r *http.Request) (*bool, error) {
	v := r.URL.Query().Get("mode")
	switch v {
	case "", "all":
		return nil, nil
	case "paper":
		b := true
		return &b, nil
	case "live":
		b := false
		return &b, nil
	default:
		return nil, fmt.Errorf("invalid mode %q, expected paper|live|all", v)
	}
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100)

	mode, err := parseTradeMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trades, err := s.engine.RecentTrades(r.Context(), limit)
	if err != nil {
		s.log.Error("fetch trades", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch trades")
		return
	}

	if mode != nil {
		filtered := make([]models.ClosedTrade, 0, len(trades))
		for _, t := range trades {
			if t.IsPaper == *mode {
				filtered = append(filtered, t)
			}
		}
		trades = filtered
	}
	if trades == nil {
		trades = []models.ClosedTrade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleRejections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Rejections())
}
