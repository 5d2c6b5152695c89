package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

// Config represents the application configuration
type Config struct {
	Camera      CameraConfig      `toml:"camera" json:"camera"`
	Server      ServerConfig      `toml:"server" json:"server"`
	NATS        NATSConfig        `toml:"nats" json:"nats"`
	RTP         RTPConfig         `toml:"rtp" json:"rtp"`
	Calibration CalibrationConfig `toml:"calibration" json:"calibration"`
}

// CameraConfig holds capture and encoding settings. Out-of-range values are
// replaced by their defaults at load time, never rejected.
type CameraConfig struct {
	Width      int  `toml:"width" json:"width"`
	Height     int  `toml:"height" json:"height"`
	Quality    int  `toml:"quality" json:"quality"`
	Framerate  int  `toml:"framerate" json:"framerate"`
	Monochrome bool `toml:"monochrome" json:"monochrome"`
	Bitrate    int  `toml:"bitrate" json:"bitrate"`
	HFlip      bool `toml:"hflip" json:"hflip"`
	VFlip      bool `toml:"vflip" json:"vflip"`
	// Simulate runs the pipeline against the in-memory runtime instead of
	// the camera hardware.
	Simulate bool `toml:"simulate" json:"simulate"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	WebPort int    `toml:"web_port" json:"web_port"`
	BindIP  string `toml:"bind_ip" json:"bind_ip"`
}

// NATSConfig holds frame publishing settings
type NATSConfig struct {
	Enabled       bool   `toml:"enabled" json:"enabled"`
	URL           string `toml:"url" json:"url"`
	SubjectPrefix string `toml:"subject_prefix" json:"subject_prefix"`
}

// RTPConfig holds MJPEG-RTP output settings
type RTPConfig struct {
	Enabled  bool   `toml:"enabled" json:"enabled"`
	DestHost string `toml:"dest_host" json:"dest_host"`
	DestPort int    `toml:"dest_port" json:"dest_port"`
	MTU      int    `toml:"mtu" json:"mtu"`
	SSRC     uint32 `toml:"ssrc" json:"ssrc"`
}

// CalibrationConfig locates the camera calibration file
type CalibrationConfig struct {
	Path        string `toml:"path" json:"path"`
	FramePrefix string `toml:"frame_prefix" json:"frame_prefix"`
}

// Camera configuration bounds and defaults.
const (
	MaxWidth   = 1920
	MaxHeight  = 1080
	MaxQuality = 100
	// MaxFramerate is the fastest mode the sensor supports.
	MaxFramerate = 90
	MaxBitrate   = 25_000_000

	DefaultWidth     = 640
	DefaultHeight    = 480
	DefaultQuality   = 70
	DefaultFramerate = 30
	DefaultBitrate   = MaxBitrate
)

// LoadConfig loads configuration from a TOML file, falling back to defaults
// when the file is absent. Out-of-range camera values are replaced by their
// defaults with a warning.
func LoadConfig(configPath string, logger *zap.Logger) (*Config, error) {
	config := defaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		logger.Info("Config loaded from file", zap.String("path", configPath))
	} else {
		logger.Info("Config file not found, using defaults", zap.String("path", configPath))
	}

	config.validate(logger)
	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		Camera: CameraConfig{
			Width:     DefaultWidth,
			Height:    DefaultHeight,
			Quality:   DefaultQuality,
			Framerate: DefaultFramerate,
			Bitrate:   DefaultBitrate,
		},
		Server: ServerConfig{
			WebPort: 8080,
			BindIP:  "0.0.0.0",
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "camera",
		},
		RTP: RTPConfig{
			Enabled:  false,
			DestHost: "127.0.0.1",
			DestPort: 5000,
			MTU:      1400,
			SSRC:     0x12345678,
		},
		Calibration: CalibrationConfig{
			Path: "calibrations/camera.yaml",
		},
	}
}

// validate replaces out-of-range camera values with their defaults.
func (c *Config) validate(logger *zap.Logger) {
	cam := &c.Camera
	cam.Width = fallbackRange(logger, "width", cam.Width, 1, MaxWidth, DefaultWidth)
	cam.Height = fallbackRange(logger, "height", cam.Height, 1, MaxHeight, DefaultHeight)
	cam.Quality = fallbackRange(logger, "quality", cam.Quality, 1, MaxQuality, DefaultQuality)
	cam.Framerate = fallbackRange(logger, "framerate", cam.Framerate, 1, MaxFramerate, DefaultFramerate)
	cam.Bitrate = fallbackRange(logger, "bitrate", cam.Bitrate, 1, MaxBitrate, DefaultBitrate)
}

func fallbackRange(logger *zap.Logger, name string, value, min, max, def int) int {
	if value >= min && value <= max {
		return value
	}
	logger.Warn("Config value out of range, using default",
		zap.String("option", name),
		zap.Int("value", value),
		zap.Int("min", min),
		zap.Int("max", max),
		zap.Int("default", def))
	return def
}

// SaveConfig saves the current configuration to a file
func SaveConfig(config *Config, configPath string) error {
	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
