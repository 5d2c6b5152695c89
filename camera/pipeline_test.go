package camera

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pi-camera-node/config"
	"pi-camera-node/mmal"
)

// memorySink records everything published to it.
type memorySink struct {
	mu    sync.Mutex
	raw   []RawFrame
	comp  []CompressedFrame
	infos []Info

	rawErr error
}

func (s *memorySink) PublishRaw(f RawFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rawErr != nil {
		return s.rawErr
	}
	s.raw = append(s.raw, f)
	return nil
}

func (s *memorySink) PublishCompressed(f CompressedFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comp = append(s.comp, f)
	return nil
}

func (s *memorySink) PublishInfo(i Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos = append(s.infos, i)
	return nil
}

func (s *memorySink) rawFrames() []RawFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RawFrame(nil), s.raw...)
}

func (s *memorySink) compFrames() []CompressedFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CompressedFrame(nil), s.comp...)
}

func (s *memorySink) infoRecords() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Info(nil), s.infos...)
}

func testCameraConfig() config.CameraConfig {
	return config.CameraConfig{
		Width:     4,
		Height:    4,
		Quality:   70,
		Framerate: 30,
		Bitrate:   config.DefaultBitrate,
	}
}

func newTestPipeline(t *testing.T, rt *mmal.SimRuntime) (*Pipeline, *memorySink) {
	t.Helper()
	sink := &memorySink{}
	info := Info{FrameID: "test/camera"}
	pl := NewPipeline(rt, testCameraConfig(), info, sink, nil, zaptest.NewLogger(t))
	return pl, sink
}

func rawPayload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestInitializeWiresGraph(t *testing.T) {
	rt := mmal.NewSimRuntime()
	pl, _ := newTestPipeline(t, rt)

	require.NoError(t, pl.Initialize())
	assert.Equal(t, StateWired, pl.State())
	assert.Equal(t, 3, rt.LiveComponents())
	assert.Equal(t, 2, rt.LiveConnections())
	assert.Equal(t, 2, rt.LivePools())

	// Initialize again is a no-op.
	require.NoError(t, pl.Initialize())
	assert.Equal(t, 3, rt.LiveComponents())

	pl.Stop()
	assert.Equal(t, StateStopped, pl.State())
	assert.Equal(t, 0, rt.LiveComponents())
	assert.Equal(t, 0, rt.LiveConnections())
	assert.Equal(t, 0, rt.LivePools())
}

func TestStopTwiceIsNoop(t *testing.T) {
	rt := mmal.NewSimRuntime()
	pl, _ := newTestPipeline(t, rt)

	pl.Stop() // never started
	assert.Equal(t, StateUninitialized, pl.State())

	require.NoError(t, pl.Start())
	pl.Stop()
	pl.Stop()
	assert.Equal(t, StateStopped, pl.State())
	assert.Equal(t, 0, rt.LiveComponents())
}

func TestStartBeginsCapture(t *testing.T) {
	rt := mmal.NewSimRuntime()
	pl, _ := newTestPipeline(t, rt)

	require.NoError(t, pl.Start())
	assert.Equal(t, StateRunning, pl.State())
	assert.True(t, pl.Running())
	assert.True(t, pl.CapturePort().Capturing())

	// Priming hands every pool buffer to its port.
	assert.Equal(t, 3, rt.Pending(pl.RawPort()))
	assert.Equal(t, 1, rt.Pending(pl.EncodedPort()))

	// Start again is a no-op.
	require.NoError(t, pl.Start())

	pl.Stop()
	assert.False(t, pl.Running())
}

func TestRawFrameDelivery(t *testing.T) {
	rt := mmal.NewSimRuntime()
	pl, sink := newTestPipeline(t, rt)
	require.NoError(t, pl.Start())
	defer pl.Stop()

	payload := rawPayload(48) // 4x4 RGB
	ts := time.Now()
	require.NoError(t, rt.Deliver(pl.RawPort(), payload, mmal.FlagFrameEnd, ts))
	require.NoError(t, rt.Deliver(pl.RawPort(), payload, mmal.FlagFrameEnd, ts.Add(33*time.Millisecond)))

	frames := sink.rawFrames()
	require.Len(t, frames, 2)
	assert.Equal(t, uint64(0), frames[0].Seq)
	assert.Equal(t, uint64(1), frames[1].Seq)
	assert.Equal(t, 4, frames[0].Width)
	assert.Equal(t, 4, frames[0].Height)
	assert.Equal(t, PixelFormatRGB8, frames[0].PixelFormat)
	assert.Equal(t, 12, frames[0].Step)
	assert.Equal(t, payload, frames[0].Pixels)
	assert.Equal(t, ts, frames[0].Timestamp)
	assert.Equal(t, "test/camera", frames[0].FrameID)

	// Each frame carries a matching info record.
	infos := sink.infoRecords()
	require.Len(t, infos, 2)
	assert.Equal(t, frames[0].Seq, infos[0].Seq)
	assert.Equal(t, frames[0].Timestamp, infos[0].Timestamp)

	raw, _ := pl.FrameCounts()
	assert.Equal(t, uint64(2), raw)
}

func TestMonochromeFrameGeometry(t *testing.T) {
	rt := mmal.NewSimRuntime()
	sink := &memorySink{}
	cfg := testCameraConfig()
	cfg.Monochrome = true
	pl := NewPipeline(rt, cfg, Info{FrameID: "test/camera"}, sink, nil, zaptest.NewLogger(t))
	require.NoError(t, pl.Start())
	defer pl.Stop()

	// I420 delivers luma plus chroma; only the luma plane is published.
	require.NoError(t, rt.Deliver(pl.RawPort(), rawPayload(24), mmal.FlagFrameEnd, time.Now()))

	frames := sink.rawFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, PixelFormatMono8, frames[0].PixelFormat)
	assert.Equal(t, 4, frames[0].Step)
	assert.Len(t, frames[0].Pixels, 16)
}

func TestCompressedFrameAssembly(t *testing.T) {
	rt := mmal.NewSimRuntime()
	pl, sink := newTestPipeline(t, rt)
	require.NoError(t, pl.Start())
	defer pl.Stop()

	jpegPort := pl.EncodedPort()
	chunks := [][]byte{
		{0xFF, 0xD8, 1, 2},
		{3, 4, 5},
		{6, 7, 0xFF, 0xD9},
	}
	ts := time.Now()
	for i, c := range chunks {
		flags := mmal.BufferFlag(0)
		if i == len(chunks)-1 {
			flags = mmal.FlagFrameEnd
		}
		require.NoError(t, rt.Deliver(jpegPort, c, flags, ts))
	}

	frames := sink.compFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, uint64(0), frames[0].Seq)
	assert.Equal(t, "jpeg", frames[0].Format)
	assert.Equal(t, bytes.Join(chunks, nil), frames[0].Data)

	// The next frame continues the sequence.
	require.NoError(t, rt.Deliver(jpegPort, []byte{0xFF, 0xD8, 0xFF, 0xD9}, mmal.FlagFrameEnd, ts))
	frames = sink.compFrames()
	require.Len(t, frames, 2)
	assert.Equal(t, uint64(1), frames[1].Seq)

	_, jpeg := pl.FrameCounts()
	assert.Equal(t, uint64(2), jpeg)
}

func TestTransmissionFailureClosesFrame(t *testing.T) {
	rt := mmal.NewSimRuntime()
	pl, sink := newTestPipeline(t, rt)
	require.NoError(t, pl.Start())
	defer pl.Stop()

	// A transmission failure ends the frame like a frame-end flag: the
	// bytes assembled so far are stamped and published anyway.
	jpegPort := pl.EncodedPort()
	ts := time.Now()
	require.NoError(t, rt.Deliver(jpegPort, []byte{0xFF, 0xD8, 1}, 0, ts))
	require.NoError(t, rt.Deliver(jpegPort, []byte{2, 3}, mmal.FlagTransmissionFailed, ts))

	frames := sink.compFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, uint64(0), frames[0].Seq)
	assert.Equal(t, []byte{0xFF, 0xD8, 1, 2, 3}, frames[0].Data)

	infos := sink.infoRecords()
	require.Len(t, infos, 1)
	assert.Equal(t, uint64(0), infos[0].Seq)

	// The failed frame consumed a sequence number.
	require.NoError(t, rt.Deliver(jpegPort, []byte{0xFF, 0xD8, 0xFF, 0xD9}, mmal.FlagFrameEnd, ts))
	frames = sink.compFrames()
	require.Len(t, frames, 2)
	assert.Equal(t, uint64(1), frames[1].Seq)

	// The next frame starts clean: no failed bytes leak into it.
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xD9}, frames[1].Data)
}

func TestSequenceResetsAcrossRestart(t *testing.T) {
	rt := mmal.NewSimRuntime()
	pl, sink := newTestPipeline(t, rt)

	require.NoError(t, pl.Start())
	require.NoError(t, rt.Deliver(pl.RawPort(), rawPayload(48), mmal.FlagFrameEnd, time.Now()))
	pl.Stop()

	require.NoError(t, pl.Start())
	require.NoError(t, rt.Deliver(pl.RawPort(), rawPayload(48), mmal.FlagFrameEnd, time.Now()))
	pl.Stop()

	frames := sink.rawFrames()
	require.Len(t, frames, 2)
	assert.Equal(t, uint64(0), frames[0].Seq)
	assert.Equal(t, uint64(0), frames[1].Seq, "restart should reset the sequence")
}

func TestSpuriousCallbackIsDiscarded(t *testing.T) {
	rt := mmal.NewSimRuntime()
	pl, sink := newTestPipeline(t, rt)
	require.NoError(t, pl.Initialize())
	defer pl.Stop()

	// The port is enabled but capture has not started: a buffer arriving now
	// must be released and nothing published.
	rawPort := pl.RawPort()
	pool, err := rawPort.CreatePool(1, 64)
	require.NoError(t, err)
	require.NoError(t, rawPort.Send(pool.Queue().Get()))
	require.NoError(t, rt.Deliver(rawPort, rawPayload(48), mmal.FlagFrameEnd, time.Now()))

	assert.Empty(t, sink.rawFrames())
	assert.Equal(t, 1, pool.Queue().Len(), "spurious buffer must be released")
}

func TestPublishErrorDoesNotStallCirculation(t *testing.T) {
	rt := mmal.NewSimRuntime()
	pl, sink := newTestPipeline(t, rt)
	sink.rawErr = errors.New("sink down")
	require.NoError(t, pl.Start())
	defer pl.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, rt.Deliver(pl.RawPort(), rawPayload(48), mmal.FlagFrameEnd, time.Now()))
	}
	assert.Empty(t, sink.rawFrames())
	// Buffers keep circulating despite the failing sink.
	assert.Equal(t, 3, rt.Pending(pl.RawPort()))
}

func TestInitializeRollsBackOnCameraFailure(t *testing.T) {
	rt := mmal.NewSimRuntime()
	rt.CreateErr = map[string]error{mmal.ComponentCamera: errors.New("no sensor")}
	pl, _ := newTestPipeline(t, rt)

	err := pl.Initialize()
	require.ErrorIs(t, err, ErrComponentCreate)
	assert.Equal(t, StateUninitialized, pl.State())
	assert.Equal(t, 0, rt.LiveComponents())
}

func TestInitializeRollsBackOnEncoderFailure(t *testing.T) {
	rt := mmal.NewSimRuntime()
	rt.CreateErr = map[string]error{mmal.ComponentVideoEncoder: errors.New("busy")}
	pl, _ := newTestPipeline(t, rt)

	require.ErrorIs(t, pl.Initialize(), ErrComponentCreate)
	assert.Equal(t, 0, rt.LiveComponents())
	assert.Equal(t, 0, rt.LiveConnections())
	assert.Equal(t, 0, rt.LivePools())
}

func TestInitializeRollsBackOnConnectionFailure(t *testing.T) {
	rt := mmal.NewSimRuntime()
	rt.ConnectionEnableErr = func(*mmal.Connection) error {
		return errors.New("tunnel refused")
	}
	pl, _ := newTestPipeline(t, rt)

	require.ErrorIs(t, pl.Initialize(), ErrConnection)
	assert.Equal(t, StateUninitialized, pl.State())
	assert.Equal(t, 0, rt.LiveComponents())
	assert.Equal(t, 0, rt.LiveConnections())
	assert.Equal(t, 0, rt.LivePools())
}

func TestEncoderPoolFailureIsSoft(t *testing.T) {
	rt := mmal.NewSimRuntime()
	rt.PoolErr = func(p *mmal.Port) error {
		if p.Component().Name() == mmal.ComponentVideoEncoder {
			return errors.New("out of memory")
		}
		return nil
	}
	pl, sink := newTestPipeline(t, rt)

	require.NoError(t, pl.Start())
	defer pl.Stop()

	// JPEG is gone but the raw stream still flows.
	assert.Equal(t, 0, rt.Pending(pl.EncodedPort()))
	require.NoError(t, rt.Deliver(pl.RawPort(), rawPayload(48), mmal.FlagFrameEnd, time.Now()))
	assert.Len(t, sink.rawFrames(), 1)
}

func TestRawPoolFailureIsSoft(t *testing.T) {
	rt := mmal.NewSimRuntime()
	rt.PoolErr = func(p *mmal.Port) error {
		if p.Component().Name() == mmal.ComponentVideoSplitter {
			return errors.New("out of memory")
		}
		return nil
	}
	pl, sink := newTestPipeline(t, rt)

	require.NoError(t, pl.Start())
	defer pl.Stop()

	require.NoError(t, rt.Deliver(pl.EncodedPort(), []byte{0xFF, 0xD8, 0xFF, 0xD9}, mmal.FlagFrameEnd, time.Now()))
	assert.Len(t, sink.compFrames(), 1)
	assert.Empty(t, sink.rawFrames())
}

func TestCameraParametersApplied(t *testing.T) {
	rt := mmal.NewSimRuntime()
	sink := &memorySink{}
	cfg := testCameraConfig()
	cfg.HFlip = true
	cfg.VFlip = true
	pl := NewPipeline(rt, cfg, Info{}, sink, nil, zaptest.NewLogger(t))
	require.NoError(t, pl.Initialize())
	defer pl.Stop()

	video := pl.CapturePort()
	assert.Equal(t, mmal.MirrorBoth, rt.Param(video, mmal.ParamMirror))
	assert.Equal(t, uint32(config.DefaultBitrate), rt.Param(pl.EncodedPort(), mmal.ParamVideoBitrate))
	assert.Equal(t, uint32(70), rt.Param(pl.EncodedPort(), mmal.ParamJPEGQFactor))

	cam := video.Component()
	sensorCfg, ok := rt.Param(cam.Control(), mmal.ParamCameraConfig).(mmal.CameraConfig)
	require.True(t, ok, "sensor config should be set on the control port")
	assert.Equal(t, 4, sensorCfg.MaxStillsWidth)
	assert.Equal(t, mmal.TimestampModeResetSTC, sensorCfg.Timestamp)
}

func TestEncoderOutputGeometry(t *testing.T) {
	rt := mmal.NewSimRuntime()
	pl, _ := newTestPipeline(t, rt)
	require.NoError(t, pl.Initialize())
	defer pl.Stop()

	out := pl.EncodedPort()
	assert.Equal(t, mmal.EncodingJPEG, out.Format.Encoding)
	assert.Equal(t, 256<<10, out.BufferSize)
	assert.Equal(t, 1, out.BufferCount, "encoder advertises a single output buffer")
}
