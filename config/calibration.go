package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Calibration is a camera calibration record in the conventional
// camera-info YAML layout.
type Calibration struct {
	ImageWidth             int    `yaml:"image_width"`
	ImageHeight            int    `yaml:"image_height"`
	CameraName             string `yaml:"camera_name"`
	DistortionModel        string `yaml:"distortion_model"`
	CameraMatrix           Matrix `yaml:"camera_matrix"`
	DistortionCoefficients Matrix `yaml:"distortion_coefficients"`
	RectificationMatrix    Matrix `yaml:"rectification_matrix"`
	ProjectionMatrix       Matrix `yaml:"projection_matrix"`
}

// Matrix is a row-major matrix as stored in calibration files.
type Matrix struct {
	Rows int       `yaml:"rows"`
	Cols int       `yaml:"cols"`
	Data []float64 `yaml:"data"`
}

// LoadCalibration reads a calibration YAML file. A missing file is reported
// as an error; the caller decides whether an uncalibrated camera is fatal.
func LoadCalibration(path string, logger *zap.Logger) (*Calibration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file: %w", err)
	}

	var cal Calibration
	if err := yaml.Unmarshal(raw, &cal); err != nil {
		return nil, fmt.Errorf("failed to parse calibration file: %w", err)
	}

	if err := cal.check(); err != nil {
		return nil, fmt.Errorf("invalid calibration file %s: %w", path, err)
	}

	logger.Info("Camera calibration loaded",
		zap.String("path", path),
		zap.String("camera", cal.CameraName),
		zap.Int("width", cal.ImageWidth),
		zap.Int("height", cal.ImageHeight))
	return &cal, nil
}

func (c *Calibration) check() error {
	for _, m := range []struct {
		name string
		m    Matrix
	}{
		{"camera_matrix", c.CameraMatrix},
		{"rectification_matrix", c.RectificationMatrix},
		{"projection_matrix", c.ProjectionMatrix},
	} {
		if len(m.m.Data) != m.m.Rows*m.m.Cols {
			return fmt.Errorf("%s: %d values for %dx%d", m.name, len(m.m.Data), m.m.Rows, m.m.Cols)
		}
	}
	return nil
}
