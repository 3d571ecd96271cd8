package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bij27/hohm.studio/internal/database"
	"github.com/bij27/hohm.studio/internal/models"
	"github.com/bij27/hohm.studio/internal/services"
)

var startTime = time.Now()

// Health handles GET /api/health.
func Health(rooms *RoomHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enableCORS(w)
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		dbOK := false
		if database.DB != nil {
			dbOK = database.DB.PingContext(r.Context()) == nil
		}

		metrics := services.GetMetrics()
		status := models.HealthStatus{
			Status:        "healthy",
			Database:      dbOK,
			ActiveClients: int(metrics.GetWebSocketConnections()),
			ActiveRooms:   rooms.Count(),
			Uptime:        time.Since(startTime).Round(time.Second),
			Version:       "1.0",
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	}
}

// MetricsHandler handles GET /api/metrics.
func MetricsHandler(rooms *RoomHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enableCORS(w)
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		m := services.GetMetrics()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"total_frames":      m.GetTotalFrames(),
			"total_errors":      m.GetTotalErrors(),
			"total_alerts":      m.GetTotalAlerts(),
			"snapshot_drops":    m.GetSnapshotDrops(),
			"active_clients":    m.GetWebSocketConnections(),
			"active_rooms":      rooms.Count(),
			"ws":                m.GetWebSocketMetrics(),
			"system_uptime_sec": int(time.Since(startTime).Seconds()),
			"timestamp":         time.Now().Format(time.RFC3339),
		})
	}
}
