// Package publish delivers completed camera frames to external consumers.
package publish

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"pi-camera-node/camera"
)

// Subject suffixes appended to the configured prefix.
const (
	subjectRaw        = "image_raw"
	subjectCompressed = "image_compressed"
	subjectInfo       = "camera_info"
)

// NATSPublisher publishes frames as JSON envelopes on a NATS connection. It
// implements camera.FrameSink; nats.Publish only enqueues to the client's
// flush buffer, so the callback path never blocks on the network.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

// NewNATSPublisher connects to the NATS server at url and publishes under
// prefix ("camera" yields camera.image_raw and friends).
func NewNATSPublisher(url, prefix string, logger *zap.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("pi-camera-node"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	logger.Info("NATS publisher connected",
		zap.String("url", conn.ConnectedUrl()),
		zap.String("prefix", prefix))
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}, nil
}

// PublishRaw sends one uncompressed frame.
func (p *NATSPublisher) PublishRaw(frame camera.RawFrame) error {
	return p.publish(subjectRaw, frame)
}

// PublishCompressed sends one encoded frame.
func (p *NATSPublisher) PublishCompressed(frame camera.CompressedFrame) error {
	return p.publish(subjectCompressed, frame)
}

// PublishInfo sends the calibration metadata that accompanies a frame.
func (p *NATSPublisher) PublishInfo(info camera.Info) error {
	return p.publish(subjectInfo, info)
}

func (p *NATSPublisher) publish(suffix string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", suffix, err)
	}
	subject := p.prefix + "." + suffix
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("NATS drain failed", zap.Error(err))
		p.conn.Close()
	}
}
