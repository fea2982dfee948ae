package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills in defaults.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}
	if cfg.HealthPort == "" {
		cfg.HealthPort = "8080"
	}

	// Capture defaults mirror the original deployment: Full HD frames,
	// 15 s retention adjustable 5-30 s.
	if cfg.Capture.Resolution == "" {
		cfg.Capture.Resolution = "1080p"
	}
	switch cfg.Capture.Resolution {
	case "512p", "720p", "1080p":
	default:
		return fmt.Errorf("capture.resolution must be one of 512p, 720p, 1080p, got %q", cfg.Capture.Resolution)
	}
	if cfg.Capture.FPS <= 0 {
		cfg.Capture.FPS = 30
	}
	if cfg.Capture.RetentionMin <= 0 {
		cfg.Capture.RetentionMin = 5
	}
	if cfg.Capture.RetentionMax <= 0 {
		cfg.Capture.RetentionMax = 30
	}
	if cfg.Capture.RetentionMax < cfg.Capture.RetentionMin {
		return fmt.Errorf("capture.retention_max (%d) below retention_min (%d)",
			cfg.Capture.RetentionMax, cfg.Capture.RetentionMin)
	}
	if cfg.Capture.RetentionSeconds == 0 {
		cfg.Capture.RetentionSeconds = 15
	}
	if cfg.Capture.RetentionSeconds < cfg.Capture.RetentionMin ||
		cfg.Capture.RetentionSeconds > cfg.Capture.RetentionMax {
		return fmt.Errorf("capture.retention_seconds (%d) outside bounds [%d, %d]",
			cfg.Capture.RetentionSeconds, cfg.Capture.RetentionMin, cfg.Capture.RetentionMax)
	}

	if cfg.Preview.Width <= 0 {
		cfg.Preview.Width = 1280
	}
	if cfg.Preview.Height <= 0 {
		cfg.Preview.Height = 720
	}
	if cfg.Preview.IntervalMS <= 0 {
		cfg.Preview.IntervalMS = 33
	}
	if cfg.Preview.StatusIntervalMS <= 0 {
		cfg.Preview.StatusIntervalMS = 100
	}

	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "clips"
	}
	if cfg.Output.JPEGQuality <= 0 {
		cfg.Output.JPEGQuality = 80
	}
	if cfg.Output.JPEGQuality > 100 {
		return fmt.Errorf("output.jpeg_quality must be 1-100, got %d", cfg.Output.JPEGQuality)
	}

	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if cfg.MQTT.Topics.Control == "" {
		cfg.MQTT.Topics.Control = fmt.Sprintf("replay/control/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Status == "" {
		cfg.MQTT.Topics.Status = fmt.Sprintf("replay/status/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Preview == "" {
		cfg.MQTT.Topics.Preview = fmt.Sprintf("replay/preview/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Health == "" {
		cfg.MQTT.Topics.Health = fmt.Sprintf("replay/health/%s", cfg.InstanceID)
	}
	if cfg.MQTT.QoS == nil {
		cfg.MQTT.QoS = map[string]byte{
			"control": 1,
			"status":  1,
			"preview": 0,
			"health":  0,
		}
	}

	return nil
}

// ValidateRetention checks a runtime retention-change request against the
// configured bounds.
func (c *Config) ValidateRetention(seconds int) error {
	if seconds < c.Capture.RetentionMin || seconds > c.Capture.RetentionMax {
		return fmt.Errorf("retention %ds outside bounds [%ds, %ds]",
			seconds, c.Capture.RetentionMin, c.Capture.RetentionMax)
	}
	return nil
}
