package mmal

// ParamID identifies a runtime parameter set on a port.
type ParamID uint32

// Parameters used by the camera pipeline.
const (
	// ParamCameraConfig carries the sensor configuration block (CameraConfig).
	ParamCameraConfig ParamID = iota + 1
	// ParamCapture starts/stops frame capture on the camera video port (bool).
	ParamCapture
	// ParamVideoBitrate sets the encoder target bitrate (uint32).
	ParamVideoBitrate
	// ParamJPEGQFactor sets the JPEG quantization factor (uint32).
	ParamJPEGQFactor
	// ParamMirror sets the sensor flip mode (MirrorMode).
	ParamMirror
)

// TimestampMode selects how the runtime stamps delivered buffers.
type TimestampMode int

// Timestamp modes.
const (
	TimestampModeZero TimestampMode = iota
	TimestampModeRawSTC
	TimestampModeResetSTC
)

// MirrorMode selects sensor image flipping.
type MirrorMode int

// Mirror modes.
const (
	MirrorNone MirrorMode = iota
	MirrorHorizontal
	MirrorVertical
	MirrorBoth
)

// CameraConfig is the sensor configuration block pushed to the camera
// component's control port before any port format is committed.
type CameraConfig struct {
	MaxStillsWidth             int
	MaxStillsHeight            int
	StillsYUV422               bool
	OneShotStills              bool
	MaxPreviewWidth            int
	MaxPreviewHeight           int
	NumPreviewFrames           int
	StillsCircularBufferHeight int
	FastPreviewResume          bool
	Timestamp                  TimestampMode
}
