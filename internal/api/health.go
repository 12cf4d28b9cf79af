package api

import (
	"context"
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Running   bool              `json:"running"`
	Services  map[string]string `json:"services"`
}

// handleHealth always answers 200 and reports each dependency separately.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	services := map[string]string{"store": status(s.engine.Ping(ctx))}
	for name, check := range s.checks {
		services[name] = status(check(ctx))
	}

	overall := "ok"
	for _, st := range services {
		if st != "connected" {
			overall = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Running:   s.svc.Running(),
		Services:  services,
	})
}

func status(err error) string {
	if err != nil {
		return "disconnected"
	}
	return "connected"
}
