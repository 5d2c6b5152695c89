package camera

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pi-camera-node/mmal"
)

// streamKind distinguishes the two output callbacks.
type streamKind int

const (
	streamRaw streamKind = iota
	streamCompressed
)

func (k streamKind) label() string {
	if k == streamRaw {
		return StreamRaw
	}
	return StreamJPEG
}

// portContext is the per-port state shared between the control path and the
// runtime's callback context. The callback reads running, publishes through
// sink and recirculates buffers via pool; everything else is set once before
// the port is enabled.
type portContext struct {
	kind    streamKind
	running *atomic.Bool
	pool    *mmal.Pool
	sink    FrameSink
	metrics *Metrics
	logger  *zap.Logger

	width       int
	height      int
	pixelFormat string
	step        int
	info        Info

	frame uint64

	// assembly accumulates compressed frame fragments across callbacks
	// until a frame-end flag closes the frame. Only the callback touches
	// it, and callbacks are serialized per port.
	assembly []byte
}

// reset clears per-run state before a capture starts.
func (pc *portContext) reset() {
	atomic.StoreUint64(&pc.frame, 0)
	pc.assembly = nil
}

// frameCount returns the number of frames published since the last reset.
func (pc *portContext) frameCount() uint64 {
	return atomic.LoadUint64(&pc.frame)
}

// handle is the port buffer callback. It consumes the payload, releases the
// buffer back to the pool and hands the port a fresh one so the circulation
// never drains.
func (pc *portContext) handle(port *mmal.Port, buf *mmal.Buffer) {
	if !pc.running.Load() {
		// Buffers can arrive between capture stop and port disable.
		pc.metrics.spuriousCallback()
		buf.Release()
		return
	}

	pc.consume(buf)
	buf.Release()
	pc.recycle(port)
	pc.metrics.poolDepth(pc.kind.label(), pc.pool.Queue().Len())
}

func (pc *portContext) consume(buf *mmal.Buffer) {
	buf.Lock()
	defer buf.Unlock()

	switch pc.kind {
	case streamRaw:
		if buf.Length == 0 {
			return
		}
		pc.publishRaw(buf)
	case streamCompressed:
		if buf.Length > 0 {
			pc.assembly = append(pc.assembly, buf.Data()...)
		}
		// A transmission failure closes the current frame the same way a
		// frame-end does; the error is logged but the frame is still
		// stamped and published.
		failed := buf.Flags&mmal.FlagTransmissionFailed != 0
		if failed {
			pc.logger.Error("Encoder reported transmission failure",
				zap.Int("bytes", len(pc.assembly)))
			pc.metrics.callbackError(StreamJPEG)
		}
		if !failed && buf.Flags&mmal.FlagFrameEnd == 0 {
			return
		}
		pc.publishCompressed(buf)
		pc.assembly = nil
	}
}

func (pc *portContext) publishRaw(buf *mmal.Buffer) {
	seq := atomic.AddUint64(&pc.frame, 1) - 1
	ts := stamp(buf.PTS)
	pixels := buf.Data()
	// In planar formats the buffer can carry chroma planes past the image;
	// the published frame is exactly step*height bytes.
	if n := pc.step * pc.height; n > 0 && len(pixels) > n {
		pixels = pixels[:n]
	}
	frame := RawFrame{
		Seq:         seq,
		Timestamp:   ts,
		FrameID:     pc.info.FrameID,
		Width:       pc.width,
		Height:      pc.height,
		PixelFormat: pc.pixelFormat,
		Step:        pc.step,
		Pixels:      append([]byte(nil), pixels...),
	}
	if err := pc.sink.PublishRaw(frame); err != nil {
		pc.logger.Error("Failed to publish raw frame", zap.Uint64("seq", seq), zap.Error(err))
		pc.metrics.callbackError(StreamRaw)
		return
	}
	pc.publishInfo(seq, ts, StreamRaw)
	pc.metrics.framePublished(StreamRaw)
}

func (pc *portContext) publishCompressed(buf *mmal.Buffer) {
	// A boundary with no accumulated bytes carries no frame to hand over;
	// it is skipped without consuming a sequence number.
	if len(pc.assembly) == 0 {
		pc.logger.Debug("Frame boundary with empty payload, skipping")
		return
	}
	seq := atomic.AddUint64(&pc.frame, 1) - 1
	ts := stamp(buf.PTS)
	frame := CompressedFrame{
		Seq:       seq,
		Timestamp: ts,
		FrameID:   pc.info.FrameID,
		Format:    "jpeg",
		Data:      append([]byte(nil), pc.assembly...),
	}
	if err := pc.sink.PublishCompressed(frame); err != nil {
		pc.logger.Error("Failed to publish compressed frame", zap.Uint64("seq", seq), zap.Error(err))
		pc.metrics.callbackError(StreamJPEG)
		return
	}
	pc.publishInfo(seq, ts, StreamJPEG)
	pc.metrics.framePublished(StreamJPEG)
}

func (pc *portContext) publishInfo(seq uint64, ts time.Time, stream string) {
	info := pc.info
	info.Seq = seq
	info.Timestamp = ts
	if err := pc.sink.PublishInfo(info); err != nil {
		pc.logger.Error("Failed to publish camera info", zap.Uint64("seq", seq), zap.Error(err))
		pc.metrics.callbackError(stream)
	}
}

// recycle pulls a fresh buffer off the pool queue and hands it back to the
// port. When the port has been disabled there is nothing to feed; a send
// failure returns the buffer to the queue and the slot retries on the next
// callback.
func (pc *portContext) recycle(port *mmal.Port) {
	if !port.Enabled() {
		return
	}
	next := pc.pool.Queue().Get()
	if next == nil {
		pc.logger.Warn("Pool queue empty, cannot recycle buffer",
			zap.String("port", port.Name()))
		pc.metrics.bufferSendFailure(pc.kind.label())
		return
	}
	if err := port.Send(next); err != nil {
		pc.logger.Error("Failed to return buffer to port",
			zap.String("port", port.Name()),
			zap.Error(fmt.Errorf("%w: %v", ErrBufferSend, err)))
		pc.metrics.bufferSendFailure(pc.kind.label())
		next.Release()
	}
}

// stamp converts a runtime PTS to a wall-clock timestamp, falling back to
// time.Now when the runtime delivered none.
func stamp(pts time.Time) time.Time {
	if pts.IsZero() {
		return time.Now()
	}
	return pts
}
