package core

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HealthStatus represents the health state of the replay sensor
type HealthStatus struct {
	Status           string  `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds    int64   `json:"uptime_seconds"`
	SourceConnected  bool    `json:"source_connected"`
	MQTTConnected    bool    `json:"mqtt_connected"`
	BufferSeconds    float64 `json:"buffer_seconds"`
	BufferFrames     int     `json:"buffer_frames"`
	RetentionSeconds int     `json:"retention_seconds"`
	Exporting        bool    `json:"exporting"`
	FramesIngested   uint64  `json:"frames_ingested"`
	FramesDropped    uint64  `json:"frames_dropped"`
}

// Marshal encodes the health status as JSON.
func (h HealthStatus) Marshal() ([]byte, error) {
	return json.Marshal(h)
}

// HealthCheck returns the current health status of the service
func (r *Recorder) HealthCheck() HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := HealthStatus{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(r.started).Seconds()),
	}

	if r.source != nil && r.isRunning {
		status.SourceConnected = true
	}
	if r.emitter != nil && r.emitter.IsConnected() {
		status.MQTTConnected = true
	}
	if r.buffer != nil {
		status.BufferSeconds = r.buffer.Seconds()
		status.BufferFrames = r.buffer.Len()
		status.RetentionSeconds = r.buffer.Retention()
	}
	if r.exporter != nil {
		status.Exporting = r.exporter.Exporting()
	}
	if r.driver != nil {
		stats := r.driver.Stats()
		status.FramesIngested = stats.FramesIn
		status.FramesDropped = stats.FramesBad
	}

	if !r.isRunning {
		status.Status = "unhealthy"
	} else if !status.SourceConnected || !status.MQTTConnected {
		status.Status = "degraded"
	}

	return status
}

// LivenessHandler handles /health (process is alive)
func (r *Recorder) LivenessHandler(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": int64(time.Since(r.started).Seconds()),
	})
}

// ReadinessHandler handles /readiness (service can capture and export)
func (r *Recorder) ReadinessHandler(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := r.HealthCheck()

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}

// StartHealthServer starts the HTTP health check server on the given port.
// Non-blocking.
func (r *Recorder) StartHealthServer(port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", r.LivenessHandler)
	mux.HandleFunc("/readiness", r.ReadinessHandler)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting health check server",
		"port", port,
		"endpoints", []string{"/health", "/readiness"},
	)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health check server failed", "error", err)
		}
	}()

	return nil
}
