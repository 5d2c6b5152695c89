package mmal

import (
	"fmt"
	"sync"
)

// Well-known VideoCore component names.
const (
	ComponentCamera        = "vc.ril.camera"
	ComponentVideoSplitter = "vc.ril.video_splitter"
	ComponentVideoEncoder  = "vc.ril.video_encode"
)

// Camera output port indices.
const (
	CameraPreviewPort = 0
	CameraVideoPort   = 1
	CameraCapturePort = 2
)

// Runtime creates hardware components. SimRuntime implements it in-memory;
// a VideoCore-backed runtime implements it against the real firmware.
type Runtime interface {
	CreateComponent(name string) (*Component, error)
}

// backend is the runtime side of the port/component/connection protocol.
type backend interface {
	commitFormat(p *Port) error
	portEnable(p *Port) error
	portDisable(p *Port)
	send(p *Port, b *Buffer) error
	setParameter(p *Port, id ParamID, value interface{}) error
	createPool(p *Port, count, size int) (*Pool, error)
	connect(out, in *Port, flags ConnectionFlag) (*Connection, error)
	connectionEnable(c *Connection) error
	connectionDisable(c *Connection)
	connectionDestroy(c *Connection)
	componentEnable(c *Component) error
	componentDisable(c *Component) error
	componentDestroy(c *Component) error
}

// Component is a named hardware processing stage with a control port and
// zero or more input and output ports.
type Component struct {
	name    string
	rt      backend
	control *Port
	inputs  []*Port
	outputs []*Port

	mu        sync.Mutex
	enabled   bool
	destroyed bool
}

// Name returns the component name it was created under.
func (c *Component) Name() string { return c.name }

// Control returns the control port.
func (c *Component) Control() *Port { return c.control }

// NumInputs returns the number of input ports.
func (c *Component) NumInputs() int { return len(c.inputs) }

// NumOutputs returns the number of output ports.
func (c *Component) NumOutputs() int { return len(c.outputs) }

// Input returns input port i.
func (c *Component) Input(i int) *Port { return c.inputs[i] }

// Output returns output port i.
func (c *Component) Output(i int) *Port { return c.outputs[i] }

// Enabled reports whether the component is enabled.
func (c *Component) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Enable activates the component. Port formats must be committed first.
func (c *Component) Enable() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return fmt.Errorf("component %s: destroyed", c.name)
	}
	if c.enabled {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	if err := c.rt.componentEnable(c); err != nil {
		return err
	}
	c.mu.Lock()
	c.enabled = true
	c.mu.Unlock()
	return nil
}

// Disable deactivates the component. Disabling twice is a no-op.
func (c *Component) Disable() error {
	c.mu.Lock()
	if !c.enabled || c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.enabled = false
	c.mu.Unlock()
	return c.rt.componentDisable(c)
}

// Destroy disables the component if needed, disables all its ports and
// releases the component. Destroying twice is a no-op.
func (c *Component) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	wasEnabled := c.enabled
	c.enabled = false
	c.mu.Unlock()

	for _, p := range c.outputs {
		p.Disable()
	}
	for _, p := range c.inputs {
		p.Disable()
	}
	if wasEnabled {
		if err := c.rt.componentDisable(c); err != nil {
			return err
		}
	}
	return c.rt.componentDestroy(c)
}
