package web

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pi-camera-node/camera"
)

// clientQueueDepth bounds each client's frame backlog. A client that cannot
// keep up is dropped rather than backing up the capture path.
const clientQueueDepth = 4

// PreviewHub broadcasts JPEG frames to websocket clients. It implements
// camera.FrameSink: compressed frames fan out to all connected clients, raw
// frames and camera info are ignored.
type PreviewHub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*previewClient]struct{}
	closed  bool
}

type previewClient struct {
	conn   *websocket.Conn
	frames chan []byte
}

// NewPreviewHub creates an empty hub.
func NewPreviewHub(logger *zap.Logger) *PreviewHub {
	return &PreviewHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The control API is already wide open via CORS.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*previewClient]struct{}),
	}
}

// HandleWS upgrades the request and serves frames until the client leaves.
func (h *PreviewHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &previewClient{conn: conn, frames: make(chan []byte, clientQueueDepth)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Preview client connected",
		zap.String("remote_addr", r.RemoteAddr), zap.Int("clients", n))

	go h.writeLoop(c)
	h.readLoop(c, r.RemoteAddr)
}

// readLoop consumes control frames until the connection dies, then detaches
// the client.
func (h *PreviewHub) readLoop(c *previewClient, remote string) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.logger.Info("Preview client disconnected", zap.String("remote_addr", remote))
			return
		}
	}
}

func (h *PreviewHub) writeLoop(c *previewClient) {
	for frame := range c.frames {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			h.drop(c)
			return
		}
	}
	c.conn.Close()
}

func (h *PreviewHub) drop(c *previewClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.frames)
}

// ClientCount returns the number of connected preview clients.
func (h *PreviewHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// PublishCompressed fans one JPEG frame out to every client. Clients whose
// queue is full miss the frame.
func (h *PreviewHub) PublishCompressed(frame camera.CompressedFrame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.frames <- frame.Data:
		default:
		}
	}
	return nil
}

// PublishRaw discards raw frames; the preview is JPEG only.
func (h *PreviewHub) PublishRaw(camera.RawFrame) error { return nil }

// PublishInfo discards camera metadata.
func (h *PreviewHub) PublishInfo(camera.Info) error { return nil }

// Close disconnects all clients and refuses new ones.
func (h *PreviewHub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*previewClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*previewClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		close(c.frames)
	}
}
