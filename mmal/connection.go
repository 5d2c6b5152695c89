package mmal

import (
	"fmt"
	"sync"
)

// ConnectionFlag selects how a connection moves buffers between its ports.
type ConnectionFlag uint32

// Connection flags.
const (
	// ConnTunnelled keeps all buffer traffic inside the runtime, with no
	// application-visible copies.
	ConnTunnelled ConnectionFlag = 1 << iota
	// ConnAllocationOnInput lets the downstream input port own the buffers.
	ConnAllocationOnInput
)

// Connection is a link between exactly one upstream output port and one
// downstream input port.
type Connection struct {
	out   *Port
	in    *Port
	flags ConnectionFlag
	rt    backend

	mu        sync.Mutex
	enabled   bool
	destroyed bool
}

// Connect creates a connection between out and in. Both ports must belong to
// the same runtime and carry compatible committed formats.
func Connect(out, in *Port, flags ConnectionFlag) (*Connection, error) {
	if out == nil || in == nil {
		return nil, fmt.Errorf("connect: nil port")
	}
	if out.Direction() != DirOutput || in.Direction() != DirInput {
		return nil, fmt.Errorf("connect: %s -> %s is not output to input", out.Name(), in.Name())
	}
	return out.rt.connect(out, in, flags)
}

// Out returns the upstream output port.
func (c *Connection) Out() *Port { return c.out }

// In returns the downstream input port.
func (c *Connection) In() *Port { return c.in }

// Enabled reports whether the connection is forwarding buffers.
func (c *Connection) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Enable starts buffer forwarding and enables both endpoint ports.
func (c *Connection) Enable() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return fmt.Errorf("connection %s->%s: destroyed", c.out.Name(), c.in.Name())
	}
	if c.enabled {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	if err := c.rt.connectionEnable(c); err != nil {
		return err
	}
	c.mu.Lock()
	c.enabled = true
	c.mu.Unlock()
	c.out.setEnabledByConnection(true)
	c.in.setEnabledByConnection(true)
	return nil
}

// Disable stops buffer forwarding. Disabling an already-disabled connection
// is a no-op.
func (c *Connection) Disable() {
	c.mu.Lock()
	if !c.enabled || c.destroyed {
		c.mu.Unlock()
		return
	}
	c.enabled = false
	c.mu.Unlock()
	c.rt.connectionDisable(c)
	c.out.setEnabledByConnection(false)
	c.in.setEnabledByConnection(false)
}

// Destroy disables the connection if needed and releases it. Destroying
// twice is a no-op.
func (c *Connection) Destroy() {
	c.Disable()
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	c.mu.Unlock()
	c.rt.connectionDestroy(c)
}
