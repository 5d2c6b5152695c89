package camera

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pi-camera-node/mmal"
)

func newRawContext(t *testing.T, pool *mmal.Pool, sink FrameSink) *portContext {
	t.Helper()
	running := &atomic.Bool{}
	running.Store(true)
	return &portContext{
		kind:        streamRaw,
		running:     running,
		pool:        pool,
		sink:        sink,
		logger:      zaptest.NewLogger(t),
		width:       4,
		height:      4,
		pixelFormat: PixelFormatRGB8,
		step:        12,
	}
}

func newCompressedContext(t *testing.T, pool *mmal.Pool, sink FrameSink) *portContext {
	t.Helper()
	running := &atomic.Bool{}
	running.Store(true)
	return &portContext{
		kind:    streamCompressed,
		running: running,
		pool:    pool,
		sink:    sink,
		logger:  zaptest.NewLogger(t),
	}
}

func TestDisabledPortSkipsRecycle(t *testing.T) {
	rt := mmal.NewSimRuntime()
	cam, err := rt.CreateComponent(mmal.ComponentCamera)
	require.NoError(t, err)
	p := cam.Output(mmal.CameraVideoPort)
	p.Format.Encoding = mmal.EncodingRGB24
	p.Format.Video.Width = 4
	p.Format.Video.Height = 4
	require.NoError(t, p.CommitFormat())

	pool, err := p.CreatePool(2, 64)
	require.NoError(t, err)

	sink := &memorySink{}
	pc := newRawContext(t, pool, sink)
	require.NoError(t, p.Enable(pc.handle))

	b := pool.Queue().Get()
	require.NoError(t, b.Fill(rawPayload(48), mmal.FlagFrameEnd, time.Now()))

	// The port goes away before the buffer is handled, as happens when stop
	// races a delivery.
	p.Disable()
	pc.handle(p, b)

	assert.Len(t, sink.rawFrames(), 1, "the frame in hand is still published")
	assert.Equal(t, 2, pool.Queue().Len(), "buffer released, not re-sent")
	assert.Equal(t, 0, rt.Pending(p))
}

func TestZeroPTSFallsBackToWallClock(t *testing.T) {
	rt := mmal.NewSimRuntime()
	cam, err := rt.CreateComponent(mmal.ComponentCamera)
	require.NoError(t, err)
	p := cam.Output(mmal.CameraVideoPort)
	p.Format.Encoding = mmal.EncodingRGB24
	p.Format.Video.Width = 4
	p.Format.Video.Height = 4
	require.NoError(t, p.CommitFormat())

	pool, err := p.CreatePool(1, 64)
	require.NoError(t, err)

	sink := &memorySink{}
	pc := newRawContext(t, pool, sink)
	require.NoError(t, p.Enable(pc.handle))

	before := time.Now()
	b := pool.Queue().Get()
	require.NoError(t, b.Fill(rawPayload(48), mmal.FlagFrameEnd, time.Time{}))
	pc.handle(p, b)

	frames := sink.rawFrames()
	require.Len(t, frames, 1)
	assert.False(t, frames[0].Timestamp.Before(before), "zero PTS should be stamped with wall-clock time")
}

func TestEmptyRawBufferPublishesNothing(t *testing.T) {
	rt := mmal.NewSimRuntime()
	cam, err := rt.CreateComponent(mmal.ComponentCamera)
	require.NoError(t, err)
	p := cam.Output(mmal.CameraVideoPort)
	p.Format.Encoding = mmal.EncodingRGB24
	p.Format.Video.Width = 4
	p.Format.Video.Height = 4
	require.NoError(t, p.CommitFormat())

	pool, err := p.CreatePool(1, 64)
	require.NoError(t, err)

	sink := &memorySink{}
	pc := newRawContext(t, pool, sink)
	require.NoError(t, p.Enable(pc.handle))

	b := pool.Queue().Get()
	require.NoError(t, b.Fill(nil, mmal.FlagFrameEnd, time.Now()))
	pc.handle(p, b)

	assert.Empty(t, sink.rawFrames())
	assert.Equal(t, uint64(0), pc.frameCount())
}

func TestEmptyFrameBoundaryPublishesNothing(t *testing.T) {
	rt := mmal.NewSimRuntime()
	cam, err := rt.CreateComponent(mmal.ComponentCamera)
	require.NoError(t, err)
	p := cam.Output(mmal.CameraVideoPort)
	p.Format.Encoding = mmal.EncodingJPEG
	require.NoError(t, p.CommitFormat())

	pool, err := p.CreatePool(1, 64)
	require.NoError(t, err)

	sink := &memorySink{}
	pc := newCompressedContext(t, pool, sink)
	require.NoError(t, p.Enable(pc.handle))

	// A frame boundary with no bytes accumulated behind it closes nothing
	// and consumes no sequence number.
	b := pool.Queue().Get()
	require.NoError(t, b.Fill(nil, mmal.FlagFrameEnd, time.Now()))
	pc.handle(p, b)

	assert.Empty(t, sink.compFrames())
	assert.Empty(t, sink.infoRecords())
	assert.Equal(t, uint64(0), pc.frameCount())
}
