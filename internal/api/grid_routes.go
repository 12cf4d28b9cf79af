package api

import (
	"net/http"
)

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Grid())
}
