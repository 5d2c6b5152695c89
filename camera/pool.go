package camera

import (
	"fmt"

	"go.uber.org/zap"

	"pi-camera-node/mmal"
)

// createPortPool allocates a pool sized to the port's negotiated geometry.
func createPortPool(port *mmal.Port) (*mmal.Pool, error) {
	pool, err := port.CreatePool(port.BufferCount, port.BufferSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (%d x %d bytes): %v",
			ErrPoolCreate, port.Name(), port.BufferCount, port.BufferSize, err)
	}
	return pool, nil
}

// primePort drains the pool queue and hands every buffer to the port so the
// runtime has something to fill. Buffers the port refuses go straight back to
// the queue; the stream runs on whatever made it through.
func primePort(port *mmal.Port, pool *mmal.Pool, logger *zap.Logger) int {
	if pool == nil {
		return 0
	}
	sent := 0
	n := pool.Queue().Len()
	for i := 0; i < n; i++ {
		b := pool.Queue().Get()
		if b == nil {
			break
		}
		if err := port.Send(b); err != nil {
			logger.Error("Failed to prime buffer",
				zap.String("port", port.Name()),
				zap.Error(fmt.Errorf("%w: %v", ErrBufferSend, err)))
			b.Release()
			continue
		}
		sent++
	}
	return sent
}

// destroyPool releases a pool. Safe on nil.
func destroyPool(pool *mmal.Pool) {
	if pool == nil {
		return
	}
	pool.Destroy()
}
