package mjpeg

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pi-camera-node/camera"
	"pi-camera-node/config"
)

// streamerQueueDepth bounds the frame backlog; beyond it frames are dropped
// rather than stalling the capture callback.
const streamerQueueDepth = 10

// Streamer sends JPEG frames to a fixed UDP destination as RTP. It
// implements camera.FrameSink: compressed frames are queued for the sender
// goroutine, raw frames and camera info are ignored.
type Streamer struct {
	cfg    config.RTPConfig
	width  int
	height int
	logger *zap.Logger

	conn       *net.UDPConn
	destAddr   *net.UDPAddr
	packetizer *Packetizer
	epoch      time.Time

	frames chan camera.CompressedFrame
	wg     sync.WaitGroup

	// pubMu serializes publishers against Stop closing the frame channel.
	pubMu      sync.RWMutex
	running    atomic.Bool
	dropped    uint64
	sendErrors uint64
}

// NewStreamer creates an idle streamer for the configured destination.
// Width and height describe the JPEG frames and travel in every RTP packet.
func NewStreamer(cfg config.RTPConfig, width, height int, logger *zap.Logger) *Streamer {
	if cfg.MTU <= 0 {
		cfg.MTU = DefaultMTU
	}
	return &Streamer{
		cfg:        cfg,
		width:      width,
		height:     height,
		logger:     logger,
		packetizer: NewPacketizer(cfg.SSRC, cfg.MTU),
		frames:     make(chan camera.CompressedFrame, streamerQueueDepth),
	}
}

// Start opens the UDP socket and launches the sender goroutine.
func (s *Streamer) Start() error {
	if s.running.Load() {
		return fmt.Errorf("streamer already running")
	}

	destAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.cfg.DestHost, s.cfg.DestPort))
	if err != nil {
		return fmt.Errorf("failed to resolve RTP destination: %w", err)
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return fmt.Errorf("failed to open RTP socket: %w", err)
	}
	if err := conn.SetWriteBuffer(1 << 20); err != nil {
		s.logger.Warn("Failed to grow UDP write buffer", zap.Error(err))
	}

	s.destAddr = destAddr
	s.conn = conn
	s.epoch = time.Now()

	s.pubMu.Lock()
	s.frames = make(chan camera.CompressedFrame, streamerQueueDepth)
	s.pubMu.Unlock()
	s.running.Store(true)

	s.wg.Add(1)
	go s.sendLoop()

	s.logger.Info("MJPEG-RTP streamer started",
		zap.String("dest", destAddr.String()),
		zap.Int("mtu", s.cfg.MTU),
		zap.Uint32("ssrc", s.cfg.SSRC))
	return nil
}

// Stop drains the sender and closes the socket. Safe to call when not
// running.
func (s *Streamer) Stop() {
	if !s.running.Swap(false) {
		return
	}
	s.pubMu.Lock()
	close(s.frames)
	s.pubMu.Unlock()
	s.wg.Wait()
	s.conn.Close()

	stats := s.packetizer.Stats()
	s.logger.Info("MJPEG-RTP streamer stopped",
		zap.Uint64("frames_sent", stats.FramesSent),
		zap.Uint64("frames_dropped", atomic.LoadUint64(&s.dropped)),
		zap.Uint64("send_errors", atomic.LoadUint64(&s.sendErrors)))
}

// PublishCompressed queues one JPEG frame for transmission. When the queue
// is full the frame is dropped so the capture path never blocks.
func (s *Streamer) PublishCompressed(frame camera.CompressedFrame) error {
	s.pubMu.RLock()
	defer s.pubMu.RUnlock()
	if !s.running.Load() {
		return nil
	}
	select {
	case s.frames <- frame:
		return nil
	default:
		atomic.AddUint64(&s.dropped, 1)
		return nil
	}
}

// PublishRaw discards raw frames; RTP carries JPEG only.
func (s *Streamer) PublishRaw(camera.RawFrame) error { return nil }

// PublishInfo discards camera metadata.
func (s *Streamer) PublishInfo(camera.Info) error { return nil }

// Dropped returns the number of frames dropped due to backlog.
func (s *Streamer) Dropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

// PacketizerStats returns the packetizer counters.
func (s *Streamer) PacketizerStats() Stats {
	return s.packetizer.Stats()
}

func (s *Streamer) sendLoop() {
	defer s.wg.Done()
	for frame := range s.frames {
		ts := TimestampFor(frame.Timestamp, s.epoch)
		packets, err := s.packetizer.Packetize(frame.Data, s.width, s.height, ts)
		if err != nil {
			atomic.AddUint64(&s.sendErrors, 1)
			s.logger.Error("Failed to packetize frame", zap.Uint64("seq", frame.Seq), zap.Error(err))
			continue
		}
		for _, pkt := range packets {
			if _, err := s.conn.WriteToUDP(pkt, s.destAddr); err != nil {
				atomic.AddUint64(&s.sendErrors, 1)
				s.logger.Error("Failed to send RTP packet", zap.Error(err))
				break
			}
		}
	}
}
