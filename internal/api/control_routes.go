package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kjannette/microtrend-backend/internal/bot"
	"github.com/kjannette/microtrend-backend/internal/scheduler"
)

const maxBodyBytes = 1 << 16

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var in bot.Settings
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	st, err := s.engine.UpdateSettings(in)
	switch {
	case errors.Is(err, bot.ErrNoTrader), errors.Is(err, bot.ErrOpenPositions):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Running: s.svc.Running(), Status: st})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.SetMode(r.PathValue("mode")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": r.PathValue("mode")})
}

func (s *Server) handlePaperReset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ResetPaper())
}

type runningResponse struct {
	Running bool `json:"running"`
	Changed bool `json:"changed"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	changed := s.svc.Start()
	writeJSON(w, http.StatusOK, runningResponse{Running: s.svc.Running(), Changed: changed})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	was := s.svc.Running()
	s.svc.Stop()
	writeJSON(w, http.StatusOK, runningResponse{Running: s.svc.Running(), Changed: was})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.CheckNow(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrPanic):
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	case errors.Is(err, bot.ErrMarketData):
		writeError(w, http.StatusBadGateway, err.Error())
		return
	case err != nil:
		s.log.Error("manual cycle failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}
