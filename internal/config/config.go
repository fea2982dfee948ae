// Package config loads and validates the replay-sensor YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete replay-sensor configuration
type Config struct {
	InstanceID       string        `yaml:"instance_id"`
	ShutdownTimeoutS int           `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Camera           CameraConfig  `yaml:"camera"`
	Capture          CaptureConfig `yaml:"capture"`
	Preview          PreviewConfig `yaml:"preview"`
	Output           OutputConfig  `yaml:"output"`
	MQTT             MQTTConfig    `yaml:"mqtt"`
	HealthPort       string        `yaml:"health_port"` // HTTP health server port (default: 8080)
}

// CameraConfig selects the frame source. Device wins when both are set;
// with neither set a synthetic mock source is used.
type CameraConfig struct {
	Device  string `yaml:"device"`   // V4L2 device node, e.g. /dev/video0
	RTSPURL string `yaml:"rtsp_url"` // rtsp:// stream URL
}

// CaptureConfig contains buffer and normalization settings
type CaptureConfig struct {
	Resolution       string `yaml:"resolution"`        // 512p, 720p, 1080p
	FPS              int    `yaml:"fps"`               // assumed rate for rtsp/mock sources
	RetentionSeconds int    `yaml:"retention_seconds"` // initial retention window
	RetentionMin     int    `yaml:"retention_min"`     // operator-adjustable lower bound
	RetentionMax     int    `yaml:"retention_max"`     // operator-adjustable upper bound
}

// PreviewConfig contains live-preview and status emission settings
type PreviewConfig struct {
	Width            int `yaml:"width"`
	Height           int `yaml:"height"`
	IntervalMS       int `yaml:"interval_ms"`        // preview throttle (default 33)
	StatusIntervalMS int `yaml:"status_interval_ms"` // buffer-status throttle (default 100)
}

// OutputConfig contains clip output settings
type OutputConfig struct {
	Dir         string `yaml:"dir"`          // created at startup if absent
	JPEGQuality int    `yaml:"jpeg_quality"` // per-frame quality in the AVI (default 80)
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Control string `yaml:"control"`
	Status  string `yaml:"status"`
	Preview string `yaml:"preview"`
	Health  string `yaml:"health"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Dimensions returns the pixel size for a named resolution.
func Dimensions(resolution string) (width, height int) {
	switch resolution {
	case "512p":
		return 910, 512
	case "720p":
		return 1280, 720
	case "1080p":
		return 1920, 1080
	default:
		return 1920, 1080
	}
}
