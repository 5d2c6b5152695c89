package mmal

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// GeneratorConfig controls the synthetic frame source.
type GeneratorConfig struct {
	Width      int
	Height     int
	Monochrome bool
	FrameRate  int
	// JPEGChunks is the number of buffers each compressed frame is split
	// across, mimicking how the hardware encoder delivers large frames.
	JPEGChunks int
}

// Generator feeds a SimRuntime with synthetic frames so the node can run
// off-target. Raw frames go to one port, chunked JPEG frames to another;
// delivery happens on the generator's own goroutine, standing in for the
// runtime's callback context.
type Generator struct {
	rt      *SimRuntime
	cfg     GeneratorConfig
	raw     *Port
	jpeg    *Port
	capture *Port
	logger  *zap.Logger

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewGenerator creates a generator delivering to rawPort and jpegPort.
// Frames flow only while capture has been started on capturePort.
func NewGenerator(rt *SimRuntime, cfg GeneratorConfig, rawPort, jpegPort, capturePort *Port, logger *zap.Logger) *Generator {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.JPEGChunks <= 0 {
		cfg.JPEGChunks = 3
	}
	return &Generator{
		rt:      rt,
		cfg:     cfg,
		raw:     rawPort,
		jpeg:    jpegPort,
		capture: capturePort,
		logger:  logger,
	}
}

// Start launches the delivery loop.
func (g *Generator) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return
	}
	g.running = true
	g.stop = make(chan struct{})
	g.done = make(chan struct{})
	go g.loop(g.stop, g.done)
	g.logger.Info("Frame generator started",
		zap.Int("width", g.cfg.Width),
		zap.Int("height", g.cfg.Height),
		zap.Int("framerate", g.cfg.FrameRate),
		zap.Bool("monochrome", g.cfg.Monochrome))
}

// Stop halts the delivery loop and waits for it to exit.
func (g *Generator) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	stop, done := g.stop, g.done
	g.mu.Unlock()
	close(stop)
	<-done
	g.logger.Info("Frame generator stopped")
}

func (g *Generator) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Second / time.Duration(g.cfg.FrameRate))
	defer ticker.Stop()

	var frame uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !g.capture.Capturing() {
				continue
			}
			g.deliverRaw(frame)
			g.deliverJPEG(frame)
			frame++
		}
	}
}

func (g *Generator) deliverRaw(frame uint64) {
	now := time.Now()
	payload := g.rawFrame(frame)
	if err := g.rt.Deliver(g.raw, payload, FlagFrameEnd, now); err != nil {
		g.logger.Debug("Raw delivery skipped", zap.Error(err))
	}
}

func (g *Generator) deliverJPEG(frame uint64) {
	now := time.Now()
	payload := g.jpegFrame(frame)
	chunk := (len(payload) + g.cfg.JPEGChunks - 1) / g.cfg.JPEGChunks
	for off := 0; off < len(payload); off += chunk {
		end := off + chunk
		var flags BufferFlag
		if end >= len(payload) {
			end = len(payload)
			flags = FlagFrameEnd
		}
		if err := g.rt.Deliver(g.jpeg, payload[off:end], flags, now); err != nil {
			g.logger.Debug("JPEG delivery skipped", zap.Error(err))
			return
		}
	}
}

// rawFrame renders a moving gradient so consecutive frames differ.
func (g *Generator) rawFrame(frame uint64) []byte {
	w, h := g.cfg.Width, g.cfg.Height
	bpp := 3
	if g.cfg.Monochrome {
		bpp = 1
	}
	buf := make([]byte, w*h*bpp)
	shift := byte(frame)
	for y := 0; y < h; y++ {
		row := buf[y*w*bpp : (y+1)*w*bpp]
		for x := 0; x < w; x++ {
			v := byte(x) + byte(y) + shift
			if g.cfg.Monochrome {
				row[x] = v
			} else {
				row[x*3] = v
				row[x*3+1] = v ^ 0x55
				row[x*3+2] = shift
			}
		}
	}
	return buf
}

// jpegFrame produces a well-formed-enough JPEG payload: SOI marker, filler
// scan data, EOI marker. Downstream consumers only inspect the markers.
func (g *Generator) jpegFrame(frame uint64) []byte {
	body := 2048 + int(frame%7)*512
	buf := make([]byte, 0, body+4)
	buf = append(buf, 0xFF, 0xD8)
	for i := 0; i < body; i++ {
		buf = append(buf, byte(i)^byte(frame))
	}
	buf = append(buf, 0xFF, 0xD9)
	return buf
}
