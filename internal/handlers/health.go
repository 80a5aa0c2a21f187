package handlers

import (
	"net/http"
)

// HealthResponse represents the health check response structure.
type HealthResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Instance    string `json:"instance"`
	Connections int    `json:"connections"`
}

// ConnectionCounter reports the number of live realtime connections.
type ConnectionCounter interface {
	ConnectionCount() int
}

// HealthCheck handles GET /health
// Returns the server's health status for monitoring and load balancer checks.
func HealthCheck(instanceID string, counter ConnectionCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:      "ok",
			Message:     "swapchat backend is running",
			Instance:    instanceID,
			Connections: counter.ConnectionCount(),
		})
	}
}
