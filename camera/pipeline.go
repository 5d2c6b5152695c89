package camera

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pi-camera-node/config"
	"pi-camera-node/mmal"
)

// State is the pipeline lifecycle phase.
type State int

// Pipeline states.
const (
	// StateUninitialized means no hardware resources exist yet.
	StateUninitialized State = iota
	// StateWired means the component graph exists but capture is off.
	StateWired
	// StateRunning means buffers are flowing.
	StateRunning
	// StateStopped means the graph has been torn down after running.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWired:
		return "wired"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Splitter output assignments.
const (
	splitterRawOutput     = 0
	splitterEncoderOutput = 1
)

// Pipeline owns the capture graph: camera -> splitter -> encoder, with the
// splitter's first output feeding the raw stream and its second output
// tunnelled into the JPEG encoder.
//
// All lifecycle methods are driven from a single control goroutine guarded by
// mu. The callbacks run on runtime-owned contexts and share only the running
// flag, the pool queues and the frame counters with the control side.
type Pipeline struct {
	session string
	cfg     config.CameraConfig
	rt      mmal.Runtime
	sink    FrameSink
	metrics *Metrics
	logger  *zap.Logger
	info    Info

	mu      sync.Mutex
	state   State
	running atomic.Bool

	camera   *mmal.Component
	splitter *mmal.Component
	encoder  *mmal.Component

	camToSplit *mmal.Connection
	splitToEnc *mmal.Connection

	rawPool  *mmal.Pool
	jpegPool *mmal.Pool

	rawCtx  *portContext
	jpegCtx *portContext
}

// NewPipeline builds an idle pipeline. No hardware resources are touched
// until Initialize or Start.
func NewPipeline(rt mmal.Runtime, cfg config.CameraConfig, info Info, sink FrameSink, metrics *Metrics, logger *zap.Logger) *Pipeline {
	session := uuid.New().String()
	return &Pipeline{
		session: session,
		cfg:     cfg,
		rt:      rt,
		sink:    sink,
		metrics: metrics,
		info:    info,
		logger:  logger.With(zap.String("session", session)),
	}
}

// Session returns the unique id stamped on this pipeline's log records.
func (pl *Pipeline) Session() string { return pl.session }

// State returns the current lifecycle phase.
func (pl *Pipeline) State() State {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.state
}

// Running reports whether capture is active.
func (pl *Pipeline) Running() bool {
	return pl.running.Load()
}

// FrameCounts returns the raw and compressed frame counters for the current
// run. Both are zero outside a run.
func (pl *Pipeline) FrameCounts() (raw, jpeg uint64) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.rawCtx != nil {
		raw = pl.rawCtx.frameCount()
	}
	if pl.jpegCtx != nil {
		jpeg = pl.jpegCtx.frameCount()
	}
	return raw, jpeg
}

// Initialize creates the component graph: camera, splitter and encoder, the
// two tunnelled connections, the output pools and the port callbacks. On any
// fatal error everything created so far is unwound and the pipeline returns
// to its uninitialized state.
func (pl *Pipeline) Initialize() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.initializeLocked()
}

func (pl *Pipeline) initializeLocked() error {
	if pl.state == StateWired || pl.state == StateRunning {
		return nil
	}

	pl.logger.Info("Initializing camera pipeline")

	cam, err := newCaptureComponent(pl.rt, pl.cfg, pl.logger)
	if err != nil {
		return err
	}
	video := cam.Output(mmal.CameraVideoPort)

	spl, err := newSplitterComponent(pl.rt, video, pl.logger)
	if err != nil {
		cam.Destroy()
		return err
	}

	enc, jpegPool, err := newEncoderComponent(pl.rt, pl.cfg, pl.logger)
	if err != nil {
		spl.Destroy()
		cam.Destroy()
		return err
	}

	unwind := func() {
		disconnect(pl.splitToEnc)
		disconnect(pl.camToSplit)
		pl.splitToEnc = nil
		pl.camToSplit = nil
		destroyPool(jpegPool)
		destroyPool(pl.rawPool)
		pl.rawPool = nil
		enc.Destroy()
		spl.Destroy()
		cam.Destroy()
		pl.state = StateUninitialized
	}

	pl.camToSplit, err = connectPorts(video, spl.Input(0))
	if err != nil {
		unwind()
		return err
	}
	pl.splitToEnc, err = connectPorts(spl.Output(splitterEncoderOutput), enc.Input(0))
	if err != nil {
		unwind()
		return err
	}

	rawPort := spl.Output(splitterRawOutput)
	pl.rawPool, err = createPortPool(rawPort)
	if err != nil {
		// The raw stream degrades to nothing; JPEG still flows.
		pl.logger.Error("Raw stream disabled", zap.Error(err))
		pl.rawPool = nil
	}

	pixelFormat, step := PixelFormatRGB8, pl.cfg.Width*3
	if pl.cfg.Monochrome {
		pixelFormat, step = PixelFormatMono8, pl.cfg.Width
	}

	if pl.rawPool != nil {
		pl.rawCtx = &portContext{
			kind:        streamRaw,
			running:     &pl.running,
			pool:        pl.rawPool,
			sink:        pl.sink,
			metrics:     pl.metrics,
			logger:      pl.logger.With(zap.String("stream", StreamRaw)),
			width:       pl.cfg.Width,
			height:      pl.cfg.Height,
			pixelFormat: pixelFormat,
			step:        step,
			info:        pl.info,
		}
		if err := rawPort.Enable(pl.rawCtx.handle); err != nil {
			unwind()
			return fmt.Errorf("%w: raw output enable: %v", ErrComponentCreate, err)
		}
	}

	if jpegPool != nil {
		pl.jpegPool = jpegPool
		pl.jpegCtx = &portContext{
			kind:    streamCompressed,
			running: &pl.running,
			pool:    pl.jpegPool,
			sink:    pl.sink,
			metrics: pl.metrics,
			logger:  pl.logger.With(zap.String("stream", StreamJPEG)),
			width:   pl.cfg.Width,
			height:  pl.cfg.Height,
			info:    pl.info,
		}
		if err := enc.Output(0).Enable(pl.jpegCtx.handle); err != nil {
			unwind()
			return fmt.Errorf("%w: encoder output enable: %v", ErrComponentCreate, err)
		}
	} else {
		pl.logger.Error("JPEG stream disabled, no encoder pool")
	}

	pl.camera = cam
	pl.splitter = spl
	pl.encoder = enc
	pl.state = StateWired

	pl.logger.Info("Camera pipeline wired")
	return nil
}

// Start begins frame capture, initializing the graph first if needed. The
// frame counters restart from zero on every call.
func (pl *Pipeline) Start() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.state == StateRunning {
		return nil
	}
	if err := pl.initializeLocked(); err != nil {
		return err
	}

	if pl.rawCtx != nil {
		pl.rawCtx.reset()
	}
	if pl.jpegCtx != nil {
		pl.jpegCtx.reset()
	}
	pl.running.Store(true)

	video := pl.camera.Output(mmal.CameraVideoPort)
	if err := video.SetBoolParameter(mmal.ParamCapture, true); err != nil {
		pl.running.Store(false)
		return fmt.Errorf("%w: start capture: %v", ErrComponentCreate, err)
	}

	rawSent := 0
	if pl.rawCtx != nil {
		rawSent = primePort(pl.splitter.Output(splitterRawOutput), pl.rawPool, pl.rawCtx.logger)
	}
	jpegSent := 0
	if pl.jpegCtx != nil {
		jpegSent = primePort(pl.encoder.Output(0), pl.jpegPool, pl.jpegCtx.logger)
	}

	pl.state = StateRunning
	pl.logger.Info("Camera capture started",
		zap.Int("raw_buffers", rawSent),
		zap.Int("jpeg_buffers", jpegSent))
	return nil
}

// Stop is the single teardown path, used both for an orderly stop and for
// signal-driven shutdown. It stops capture, disables every port, destroys
// the connections, the pools and the components, in that order. Calling it
// when nothing is running is a no-op.
func (pl *Pipeline) Stop() {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.state != StateWired && pl.state != StateRunning {
		return
	}

	pl.logger.Info("Stopping camera pipeline")
	pl.running.Store(false)

	if pl.camera != nil {
		video := pl.camera.Output(mmal.CameraVideoPort)
		if err := video.SetBoolParameter(mmal.ParamCapture, false); err != nil {
			pl.logger.Warn("Failed to stop capture", zap.Error(err))
		}
	}

	// Application-facing ports first, so no callback fires mid-teardown.
	if pl.splitter != nil {
		pl.splitter.Output(splitterRawOutput).Disable()
	}
	if pl.encoder != nil {
		pl.encoder.Output(0).Disable()
	}
	if pl.camera != nil {
		pl.camera.Output(mmal.CameraCapturePort).Disable()
	}

	disconnect(pl.splitToEnc)
	disconnect(pl.camToSplit)
	pl.splitToEnc = nil
	pl.camToSplit = nil

	for _, c := range []*mmal.Component{pl.encoder, pl.splitter, pl.camera} {
		if c == nil {
			continue
		}
		if err := c.Disable(); err != nil {
			pl.logger.Warn("Component disable failed", zap.String("component", c.Name()), zap.Error(err))
		}
	}

	destroyPool(pl.jpegPool)
	destroyPool(pl.rawPool)
	pl.jpegPool = nil
	pl.rawPool = nil

	for _, c := range []*mmal.Component{pl.encoder, pl.splitter, pl.camera} {
		if c == nil {
			continue
		}
		if err := c.Destroy(); err != nil {
			pl.logger.Warn("Component destroy failed", zap.String("component", c.Name()), zap.Error(err))
		}
	}
	pl.encoder = nil
	pl.splitter = nil
	pl.camera = nil
	pl.rawCtx = nil
	pl.jpegCtx = nil

	pl.state = StateStopped
	pl.logger.Info("Camera pipeline stopped")
}

// CapturePort returns the camera's video output port, or nil before
// Initialize. Exposed for the simulated frame source.
func (pl *Pipeline) CapturePort() *mmal.Port {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.camera == nil {
		return nil
	}
	return pl.camera.Output(mmal.CameraVideoPort)
}

// RawPort returns the splitter output feeding the raw stream, or nil.
func (pl *Pipeline) RawPort() *mmal.Port {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.splitter == nil {
		return nil
	}
	return pl.splitter.Output(splitterRawOutput)
}

// EncodedPort returns the encoder output feeding the JPEG stream, or nil.
func (pl *Pipeline) EncodedPort() *mmal.Port {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.encoder == nil {
		return nil
	}
	return pl.encoder.Output(0)
}
