package camera

import (
	"fmt"

	"go.uber.org/zap"

	"pi-camera-node/config"
	"pi-camera-node/mmal"
)

// encoderOutputBufferSize is the payload capacity allocated for each encoder
// output buffer. JPEG frames larger than this arrive split across several
// buffers and are reassembled by the output callback.
const encoderOutputBufferSize = 256 << 10

// newEncoderComponent creates the JPEG encoder, enables it and allocates its
// output buffer pool. A pool allocation failure is soft: the component comes
// back usable with a nil pool and the caller decides whether frames can flow.
func newEncoderComponent(rt mmal.Runtime, cfg config.CameraConfig, logger *zap.Logger) (*mmal.Component, *mmal.Pool, error) {
	enc, err := rt.CreateComponent(mmal.ComponentVideoEncoder)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encoder: %v", ErrComponentCreate, err)
	}

	ok := false
	defer func() {
		if !ok {
			enc.Destroy()
		}
	}()

	in := enc.Input(0)
	out := enc.Output(0)

	// The output inherits the input geometry; only the encoding and the
	// bitrate change.
	out.Format.CopyFrom(in.Format)
	out.Format.Encoding = mmal.EncodingJPEG
	out.Format.EncodingVariant = mmal.EncodingJPEG
	out.Format.Bitrate = cfg.Bitrate

	out.BufferSize = encoderOutputBufferSize
	if out.BufferSize < out.BufferSizeMin {
		out.BufferSize = out.BufferSizeMin
	}
	out.BufferCount = out.BufferCountRecommended
	if out.BufferCount < out.BufferCountMin {
		out.BufferCount = out.BufferCountMin
	}

	if err := out.CommitFormat(); err != nil {
		return nil, nil, fmt.Errorf("%w: encoder output port: %v", ErrFormatCommit, err)
	}

	if err := out.SetUint32Parameter(mmal.ParamVideoBitrate, uint32(cfg.Bitrate)); err != nil {
		return nil, nil, fmt.Errorf("%w: encoder bitrate: %v", ErrComponentCreate, err)
	}
	// The quantization factor is advisory on some firmware revisions.
	if err := out.SetUint32Parameter(mmal.ParamJPEGQFactor, uint32(cfg.Quality)); err != nil {
		logger.Debug("Encoder ignored JPEG quality factor",
			zap.Int("quality", cfg.Quality), zap.Error(err))
	}

	if err := enc.Enable(); err != nil {
		return nil, nil, fmt.Errorf("%w: encoder enable: %v", ErrComponentCreate, err)
	}

	pool, err := out.CreatePool(out.BufferCount, out.BufferSize)
	if err != nil {
		logger.Error("Failed to allocate encoder output pool",
			zap.Int("count", out.BufferCount), zap.Int("size", out.BufferSize), zap.Error(err))
		pool = nil
	}

	logger.Info("Encoder component created",
		zap.Int("quality", cfg.Quality),
		zap.Int("bitrate", cfg.Bitrate),
		zap.Int("buffers", out.BufferCount),
		zap.Int("buffer_size", out.BufferSize))

	ok = true
	return enc, pool, nil
}
