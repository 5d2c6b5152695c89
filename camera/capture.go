package camera

import (
	"fmt"

	"go.uber.org/zap"

	"pi-camera-node/config"
	"pi-camera-node/mmal"
)

// The video output needs at least this many buffers to avoid starving
// downstream consumers.
const minOutputBuffers = 3

// newCaptureComponent creates and enables the camera component: sensor
// configuration first, then the video and still port formats. On any
// failure the partially created component is destroyed before the error is
// returned.
func newCaptureComponent(rt mmal.Runtime, cfg config.CameraConfig, logger *zap.Logger) (*mmal.Component, error) {
	cam, err := rt.CreateComponent(mmal.ComponentCamera)
	if err != nil {
		return nil, fmt.Errorf("%w: camera: %v", ErrComponentCreate, err)
	}

	ok := false
	defer func() {
		if !ok {
			cam.Destroy()
		}
	}()

	if cam.NumOutputs() < mmal.CameraCapturePort+1 {
		return nil, fmt.Errorf("%w: camera has %d output ports, want %d",
			ErrComponentCreate, cam.NumOutputs(), mmal.CameraCapturePort+1)
	}

	video := cam.Output(mmal.CameraVideoPort)
	still := cam.Output(mmal.CameraCapturePort)

	// Sensor configuration must land before any port format is committed.
	sensorCfg := mmal.CameraConfig{
		MaxStillsWidth:             cfg.Width,
		MaxStillsHeight:            cfg.Height,
		MaxPreviewWidth:            cfg.Width,
		MaxPreviewHeight:           cfg.Height,
		NumPreviewFrames:           minOutputBuffers,
		StillsCircularBufferHeight: 0,
		Timestamp:                  mmal.TimestampModeResetSTC,
	}
	if err := cam.Control().SetParameter(mmal.ParamCameraConfig, sensorCfg); err != nil {
		return nil, fmt.Errorf("%w: sensor configuration rejected: %v", ErrComponentCreate, err)
	}

	// Video port format follows the color mode.
	f := video.Format
	if cfg.Monochrome {
		f.Encoding = mmal.EncodingI420
		f.EncodingVariant = mmal.EncodingI420
	} else {
		f.Encoding = mmal.EncodingRGB24
		f.EncodingVariant = mmal.EncodingRGB24
	}
	f.Video.Width = cfg.Width
	f.Video.Height = cfg.Height
	f.Video.Crop = mmal.Rect{Width: cfg.Width, Height: cfg.Height}
	f.Video.FrameRate = mmal.Rational{Num: cfg.Framerate, Den: 1}

	if err := video.CommitFormat(); err != nil {
		return nil, fmt.Errorf("%w: camera video port: %v", ErrFormatCommit, err)
	}
	video.BufferCount = video.BufferCountRecommended
	if video.BufferCount < minOutputBuffers {
		video.BufferCount = minOutputBuffers
	}

	// The still port is configured only to satisfy the camera's port shape;
	// it is never connected or streamed.
	f = still.Format
	f.Encoding = mmal.EncodingOpaque
	f.EncodingVariant = mmal.EncodingI420
	f.Video.Width = cfg.Width
	f.Video.Height = cfg.Height
	f.Video.Crop = mmal.Rect{Width: cfg.Width, Height: cfg.Height}
	f.Video.FrameRate = mmal.Rational{Num: 1, Den: 1}

	if err := still.CommitFormat(); err != nil {
		return nil, fmt.Errorf("%w: camera still port: %v", ErrFormatCommit, err)
	}

	still.BufferCount = still.BufferCountRecommended
	if still.BufferCount < minOutputBuffers {
		still.BufferCount = minOutputBuffers
	}

	if err := cam.Enable(); err != nil {
		return nil, fmt.Errorf("%w: camera enable: %v", ErrComponentCreate, err)
	}

	applyMirror(video, still, cfg, logger)

	logger.Info("Camera component created",
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height),
		zap.Int("framerate", cfg.Framerate),
		zap.Bool("monochrome", cfg.Monochrome))

	ok = true
	return cam, nil
}

// applyMirror pushes the flip configuration to the sensor outputs. Flip is
// cosmetic; a refusal is logged, not fatal.
func applyMirror(video, still *mmal.Port, cfg config.CameraConfig, logger *zap.Logger) {
	mode := mmal.MirrorNone
	switch {
	case cfg.HFlip && cfg.VFlip:
		mode = mmal.MirrorBoth
	case cfg.HFlip:
		mode = mmal.MirrorHorizontal
	case cfg.VFlip:
		mode = mmal.MirrorVertical
	}
	if mode == mmal.MirrorNone {
		return
	}
	for _, p := range []*mmal.Port{video, still} {
		if err := p.SetParameter(mmal.ParamMirror, mode); err != nil {
			logger.Warn("Failed to set mirror mode", zap.String("port", p.Name()), zap.Error(err))
		}
	}
}
