package mmal

import (
	"fmt"
	"sync"
)

// Direction tells input from output ports.
type Direction int

// Port directions.
const (
	DirControl Direction = iota
	DirInput
	DirOutput
)

// BufferCallback is invoked by the runtime, on a runtime-owned execution
// context, whenever a buffer handed to the port comes back filled. The
// runtime serializes invocations per port: a new buffer is not delivered
// until the previous callback has returned.
type BufferCallback func(port *Port, buf *Buffer)

// Port is a typed endpoint of a component. Buffer geometry fields follow
// the runtime's negotiation protocol: the application reads the recommended
// and minimum values populated at format commit and writes the actual
// BufferCount/BufferSize it wants before enabling the port.
type Port struct {
	name  string
	comp  *Component
	dir   Direction
	index int
	rt    backend

	// Format is mutated in place and takes effect on CommitFormat.
	Format *Format

	BufferCount            int
	BufferSize             int
	BufferCountRecommended int
	BufferCountMin         int
	BufferSizeRecommended  int
	BufferSizeMin          int

	mu        sync.Mutex
	enabled   bool
	committed bool
	handler   BufferCallback
	conn      *Connection
	capturing bool

	// pending holds buffers the application has sent to the port and the
	// runtime has not yet returned.
	pending *Queue
}

func newPort(name string, comp *Component, dir Direction, index int, rt backend) *Port {
	return &Port{
		name:    name,
		comp:    comp,
		dir:     dir,
		index:   index,
		rt:      rt,
		Format:  &Format{},
		pending: NewQueue(),
	}
}

// Name returns the runtime name of the port.
func (p *Port) Name() string { return p.name }

// Component returns the owning component.
func (p *Port) Component() *Component { return p.comp }

// Direction returns the port direction.
func (p *Port) Direction() Direction { return p.dir }

// Enabled reports whether the port is currently enabled, either directly or
// through a tunnelled connection.
func (p *Port) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Committed reports whether the current format has been committed.
func (p *Port) Committed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.committed
}

// CommitFormat negotiates the current Format with the runtime. On success
// the runtime refreshes the recommended/minimum buffer geometry.
func (p *Port) CommitFormat() error {
	if err := p.rt.commitFormat(p); err != nil {
		return err
	}
	p.mu.Lock()
	p.committed = true
	p.mu.Unlock()
	return nil
}

// Enable registers the buffer callback and enables the port. Ports feeding a
// tunnelled connection are enabled by the connection instead.
func (p *Port) Enable(cb BufferCallback) error {
	if cb == nil {
		return fmt.Errorf("port %s: enable requires a callback", p.name)
	}
	p.mu.Lock()
	if p.enabled {
		p.mu.Unlock()
		return fmt.Errorf("port %s: already enabled", p.name)
	}
	p.handler = cb
	p.mu.Unlock()
	if err := p.rt.portEnable(p); err != nil {
		p.mu.Lock()
		p.handler = nil
		p.mu.Unlock()
		return err
	}
	p.mu.Lock()
	p.enabled = true
	p.mu.Unlock()
	return nil
}

// Disable disables the port. Disabling an already-disabled port is a no-op.
// Buffers still pending at the runtime are returned to their pools.
func (p *Port) Disable() {
	p.mu.Lock()
	if !p.enabled {
		p.mu.Unlock()
		return
	}
	p.enabled = false
	p.handler = nil
	p.mu.Unlock()
	p.rt.portDisable(p)
	for b := p.pending.Get(); b != nil; b = p.pending.Get() {
		b.Release()
	}
}

// Send hands an empty buffer to the runtime so it can be filled. The port
// must be enabled.
func (p *Port) Send(b *Buffer) error {
	if b == nil {
		return fmt.Errorf("port %s: nil buffer", p.name)
	}
	if !p.Enabled() {
		return fmt.Errorf("port %s: not enabled", p.name)
	}
	if err := p.rt.send(p, b); err != nil {
		return err
	}
	p.pending.Put(b)
	return nil
}

// CreatePool allocates a pool of count buffers of size bytes bound to this
// port.
func (p *Port) CreatePool(count, size int) (*Pool, error) {
	return p.rt.createPool(p, count, size)
}

// SetParameter sets a structured runtime parameter on the port.
func (p *Port) SetParameter(id ParamID, value interface{}) error {
	return p.rt.setParameter(p, id, value)
}

// SetBoolParameter sets a boolean runtime parameter on the port.
func (p *Port) SetBoolParameter(id ParamID, value bool) error {
	return p.rt.setParameter(p, id, value)
}

// SetUint32Parameter sets a numeric runtime parameter on the port.
func (p *Port) SetUint32Parameter(id ParamID, value uint32) error {
	return p.rt.setParameter(p, id, value)
}

// Capturing reports whether frame capture has been started on the port via
// ParamCapture.
func (p *Port) Capturing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capturing
}

func (p *Port) setEnabledByConnection(enabled bool) {
	p.mu.Lock()
	p.enabled = enabled
	p.mu.Unlock()
}

func (p *Port) callback() BufferCallback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler
}
