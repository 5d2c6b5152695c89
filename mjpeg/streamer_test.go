package mjpeg

import (
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"pi-camera-node/camera"
	"pi-camera-node/config"
)

func TestStreamerSendsFrames(t *testing.T) {
	recv, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer recv.Close()
	port := recv.LocalAddr().(*net.UDPAddr).Port

	s := NewStreamer(config.RTPConfig{
		DestHost: "127.0.0.1",
		DestPort: port,
		MTU:      1400,
		SSRC:     42,
	}, 640, 480, zaptest.NewLogger(t))

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	frame := camera.CompressedFrame{
		Seq:       0,
		Timestamp: time.Now(),
		Format:    "jpeg",
		Data:      testJPEG(256),
	}
	if err := s.PublishCompressed(frame); err != nil {
		t.Fatal(err)
	}

	recv.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2048)
	n, err := recv.Read(buf)
	if err != nil {
		t.Fatalf("no RTP packet received: %v", err)
	}
	if n < rtpHeaderSize+jpegHeaderSize {
		t.Fatalf("packet too short: %d bytes", n)
	}
	if buf[0]>>6 != 2 {
		t.Error("wrong RTP version")
	}
	if buf[1]&0x7F != PayloadTypeJPEG {
		t.Errorf("wrong payload type %d", buf[1]&0x7F)
	}
}

func TestStreamerDropsWhenBacklogged(t *testing.T) {
	// Not started: publishing is a silent no-op.
	s := NewStreamer(config.RTPConfig{DestHost: "127.0.0.1", DestPort: 1}, 64, 64, zaptest.NewLogger(t))
	if err := s.PublishCompressed(camera.CompressedFrame{Data: testJPEG(16)}); err != nil {
		t.Fatal(err)
	}
	if s.Dropped() != 0 {
		t.Fatal("stopped streamer should not count drops")
	}

	// Raw frames and info are not streamed.
	if err := s.PublishRaw(camera.RawFrame{}); err != nil {
		t.Fatal(err)
	}
	if err := s.PublishInfo(camera.Info{}); err != nil {
		t.Fatal(err)
	}
}

func TestStreamerStopIdempotent(t *testing.T) {
	s := NewStreamer(config.RTPConfig{DestHost: "127.0.0.1", DestPort: 1}, 64, 64, zaptest.NewLogger(t))
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	s.Stop()
}

func TestStreamerStopDuringPublish(t *testing.T) {
	s := NewStreamer(config.RTPConfig{DestHost: "127.0.0.1", DestPort: 1}, 64, 64, zaptest.NewLogger(t))
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	// Hammer the publish path while Stop closes the frame channel; a
	// publisher slipping past the running check must not hit the closed
	// channel.
	done := make(chan struct{})
	var wg sync.WaitGroup
	frame := camera.CompressedFrame{Data: testJPEG(16)}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					if err := s.PublishCompressed(frame); err != nil {
						t.Error(err)
						return
					}
				}
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	s.Stop()
	close(done)
	wg.Wait()
}

func TestStreamerRestart(t *testing.T) {
	s := NewStreamer(config.RTPConfig{DestHost: "127.0.0.1", DestPort: 1}, 64, 64, zaptest.NewLogger(t))
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	s.Stop()

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.PublishCompressed(camera.CompressedFrame{Data: testJPEG(16)}); err != nil {
		t.Fatal(err)
	}
	s.Stop()
}

func TestStreamerDoubleStartFails(t *testing.T) {
	s := NewStreamer(config.RTPConfig{DestHost: "127.0.0.1", DestPort: 1}, 64, 64, zaptest.NewLogger(t))
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	if err := s.Start(); err == nil {
		t.Fatal("second start should fail")
	}
}
