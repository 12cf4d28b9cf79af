package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kjannette/microtrend-backend/internal/bot"
)

type statusResponse struct {
	Running bool `json:"running"`
	bot.Status
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Running: s.svc.Running(), Status: s.engine.Status()})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	symbol, ok := normalizeSymbol(r.PathValue("symbol"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid symbol, expected e.g. BTCUSDT")
		return
	}

	a, err := s.engine.Analyze(r.Context(), symbol)
	if err != nil {
		s.log.Warn("market analysis failed", zap.String("symbol", symbol), zap.Error(err))
		if errors.Is(err, bot.ErrMarketData) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Scan(r.Context()))
}
