package camera

import (
	"time"

	"pi-camera-node/config"
)

// Pixel format names used on published raw frames.
const (
	PixelFormatMono8 = "mono8"
	PixelFormatRGB8  = "rgb8"
)

// RawFrame is one complete uncompressed image as delivered by the camera.
type RawFrame struct {
	Seq         uint64    `json:"seq"`
	Timestamp   time.Time `json:"timestamp"`
	FrameID     string    `json:"frame_id"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	PixelFormat string    `json:"pixel_format"`
	// Step is the byte stride of one image row.
	Step   int    `json:"step"`
	Pixels []byte `json:"pixels"`
}

// CompressedFrame is one complete encoded image.
type CompressedFrame struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	FrameID   string    `json:"frame_id"`
	Format    string    `json:"format"`
	Data      []byte    `json:"data"`
}

// Info is the camera metadata record re-published alongside every frame,
// with Seq and Timestamp matching the frame it accompanies.
type Info struct {
	Seq             uint64    `json:"seq"`
	Timestamp       time.Time `json:"timestamp"`
	FrameID         string    `json:"frame_id"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	DistortionModel string    `json:"distortion_model"`
	D               []float64 `json:"d"`
	K               []float64 `json:"k"`
	R               []float64 `json:"r"`
	P               []float64 `json:"p"`
}

// InfoFromCalibration builds the metadata template stamped onto every
// published frame. A nil calibration yields an uncalibrated record.
func InfoFromCalibration(cal *config.Calibration, framePrefix string) Info {
	info := Info{FrameID: framePrefix + "/camera"}
	if cal == nil {
		return info
	}
	info.Width = cal.ImageWidth
	info.Height = cal.ImageHeight
	info.DistortionModel = cal.DistortionModel
	info.D = cal.DistortionCoefficients.Data
	info.K = cal.CameraMatrix.Data
	info.R = cal.RectificationMatrix.Data
	info.P = cal.ProjectionMatrix.Data
	return info
}

// FrameSink receives completed frames and their metadata. Implementations
// must not block: they are called from the runtime's callback context.
type FrameSink interface {
	PublishRaw(frame RawFrame) error
	PublishCompressed(frame CompressedFrame) error
	PublishInfo(info Info) error
}
