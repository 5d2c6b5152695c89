package mmal

import (
	"fmt"
	"sync"
	"time"
)

// Default buffer geometry the simulated runtime advertises before a format
// commit refines it.
const (
	simBufferCountRecommended = 3
	simBufferCountMin         = 1
	simBufferSizeRecommended  = 80 * 1024
	simBufferSizeMin          = 4 * 1024
)

// SimRuntime is a complete in-memory Runtime. It tracks every live
// component, connection and pool (so tests can assert teardown leaves
// nothing behind), applies the same negotiation rules the firmware does,
// and lets a caller deliver filled buffers to enabled ports.
//
// The fault-injection hooks are read by the runtime on each operation; set
// them before exercising the code under test.
type SimRuntime struct {
	mu          sync.Mutex
	components  map[*Component]struct{}
	connections map[*Connection]struct{}
	pools       map[*Pool]struct{}
	params      map[*Port]map[ParamID]interface{}

	// Fault injection hooks.
	CreateErr           map[string]error
	CommitErr           func(*Port) error
	EnableComponentErr  func(*Component) error
	ConnectionEnableErr func(*Connection) error
	SendErr             func(*Port, *Buffer) error
	PoolErr             func(*Port) error
	ParamErr            func(*Port, ParamID) error
}

// NewSimRuntime returns an empty simulated runtime.
func NewSimRuntime() *SimRuntime {
	return &SimRuntime{
		components:  make(map[*Component]struct{}),
		connections: make(map[*Connection]struct{}),
		pools:       make(map[*Pool]struct{}),
		params:      make(map[*Port]map[ParamID]interface{}),
	}
}

// CreateComponent builds a component with the port shape of the named
// VideoCore component.
func (rt *SimRuntime) CreateComponent(name string) (*Component, error) {
	if err := rt.CreateErr[name]; err != nil {
		return nil, err
	}

	var inputs, outputs int
	switch name {
	case ComponentCamera:
		inputs, outputs = 0, 3
	case ComponentVideoSplitter:
		inputs, outputs = 1, 4
	case ComponentVideoEncoder:
		inputs, outputs = 1, 1
	default:
		return nil, fmt.Errorf("unknown component %q", name)
	}

	c := &Component{name: name, rt: rt}
	c.control = newPort(fmt.Sprintf("%s:ctrl", name), c, DirControl, 0, rt)
	for i := 0; i < inputs; i++ {
		p := newPort(fmt.Sprintf("%s:in:%d", name, i), c, DirInput, i, rt)
		rt.seedGeometry(p)
		c.inputs = append(c.inputs, p)
	}
	for i := 0; i < outputs; i++ {
		p := newPort(fmt.Sprintf("%s:out:%d", name, i), c, DirOutput, i, rt)
		rt.seedGeometry(p)
		c.outputs = append(c.outputs, p)
	}

	rt.mu.Lock()
	rt.components[c] = struct{}{}
	rt.mu.Unlock()
	return c, nil
}

func (rt *SimRuntime) seedGeometry(p *Port) {
	p.BufferCountRecommended = simBufferCountRecommended
	p.BufferCountMin = simBufferCountMin
	p.BufferSizeRecommended = simBufferSizeRecommended
	p.BufferSizeMin = simBufferSizeMin
	if p.comp.name == ComponentVideoEncoder && p.dir == DirOutput {
		// The hardware encoder advertises a single output buffer.
		p.BufferCountRecommended = 1
	}
}

// LiveComponents returns the number of components not yet destroyed.
func (rt *SimRuntime) LiveComponents() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.components)
}

// LiveConnections returns the number of connections not yet destroyed.
func (rt *SimRuntime) LiveConnections() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.connections)
}

// LivePools returns the number of pools not yet destroyed.
func (rt *SimRuntime) LivePools() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.pools)
}

// Param returns the last value set for id on port p, or nil.
func (rt *SimRuntime) Param(p *Port, id ParamID) interface{} {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.params[p][id]
}

// Pending returns the number of buffers sent to p and not yet delivered.
func (rt *SimRuntime) Pending(p *Port) int {
	return p.pending.Len()
}

// Deliver fills the oldest buffer pending on p and invokes the port's
// callback with it, on the caller's goroutine. It fails when the port is
// disabled, has no callback, or has no buffer to fill.
func (rt *SimRuntime) Deliver(p *Port, payload []byte, flags BufferFlag, pts time.Time) error {
	cb := p.callback()
	if !p.Enabled() || cb == nil {
		return fmt.Errorf("port %s: not accepting deliveries", p.Name())
	}
	b := p.pending.Get()
	if b == nil {
		return fmt.Errorf("port %s: starved, no buffer to fill", p.Name())
	}
	if err := b.Fill(payload, flags, pts); err != nil {
		b.Release()
		return err
	}
	cb(p, b)
	return nil
}

// --- backend ---

func (rt *SimRuntime) commitFormat(p *Port) error {
	if rt.CommitErr != nil {
		if err := rt.CommitErr(p); err != nil {
			return err
		}
	}
	f := p.Format
	if f.Encoding == EncodingNone {
		return fmt.Errorf("port %s: no encoding set", p.Name())
	}
	if f.Encoding != EncodingOpaque && f.Encoding != EncodingJPEG {
		if f.Video.Width <= 0 || f.Video.Height <= 0 {
			return fmt.Errorf("port %s: invalid frame size %dx%d", p.Name(), f.Video.Width, f.Video.Height)
		}
	}
	if n := f.FrameBytes(); n > 0 {
		p.BufferSizeRecommended = n
	}
	return nil
}

func (rt *SimRuntime) portEnable(p *Port) error {
	if !p.Committed() && p.Direction() != DirControl {
		return fmt.Errorf("port %s: format not committed", p.Name())
	}
	return nil
}

func (rt *SimRuntime) portDisable(*Port) {}

func (rt *SimRuntime) send(p *Port, b *Buffer) error {
	if rt.SendErr != nil {
		if err := rt.SendErr(p, b); err != nil {
			return err
		}
	}
	return nil
}

func (rt *SimRuntime) setParameter(p *Port, id ParamID, value interface{}) error {
	if rt.ParamErr != nil {
		if err := rt.ParamErr(p, id); err != nil {
			return err
		}
	}
	if id == ParamCapture {
		on, ok := value.(bool)
		if !ok {
			return fmt.Errorf("port %s: ParamCapture wants bool, got %T", p.Name(), value)
		}
		p.mu.Lock()
		p.capturing = on
		p.mu.Unlock()
	}
	rt.mu.Lock()
	if rt.params[p] == nil {
		rt.params[p] = make(map[ParamID]interface{})
	}
	rt.params[p][id] = value
	rt.mu.Unlock()
	return nil
}

func (rt *SimRuntime) createPool(p *Port, count, size int) (*Pool, error) {
	if rt.PoolErr != nil {
		if err := rt.PoolErr(p); err != nil {
			return nil, err
		}
	}
	pool, err := newPool(count, size, func(pl *Pool) {
		rt.mu.Lock()
		delete(rt.pools, pl)
		rt.mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	rt.pools[pool] = struct{}{}
	rt.mu.Unlock()
	return pool, nil
}

func (rt *SimRuntime) connect(out, in *Port, flags ConnectionFlag) (*Connection, error) {
	if !out.Committed() {
		return nil, fmt.Errorf("connect: upstream %s format not committed", out.Name())
	}
	// Tunnelled connections propagate the upstream format downstream, the
	// way the firmware negotiates them.
	if flags&ConnTunnelled != 0 {
		in.Format.CopyFrom(out.Format)
		in.mu.Lock()
		in.committed = true
		in.mu.Unlock()
	} else if in.Format.Encoding != out.Format.Encoding {
		return nil, fmt.Errorf("connect: %s(%s) and %s(%s) formats differ",
			out.Name(), out.Format.Encoding, in.Name(), in.Format.Encoding)
	}
	c := &Connection{out: out, in: in, flags: flags, rt: rt}
	out.mu.Lock()
	out.conn = c
	out.mu.Unlock()
	in.mu.Lock()
	in.conn = c
	in.mu.Unlock()
	rt.mu.Lock()
	rt.connections[c] = struct{}{}
	rt.mu.Unlock()
	return c, nil
}

func (rt *SimRuntime) connectionEnable(c *Connection) error {
	if rt.ConnectionEnableErr != nil {
		if err := rt.ConnectionEnableErr(c); err != nil {
			return err
		}
	}
	return nil
}

func (rt *SimRuntime) connectionDisable(*Connection) {}

func (rt *SimRuntime) connectionDestroy(c *Connection) {
	rt.mu.Lock()
	delete(rt.connections, c)
	rt.mu.Unlock()
}

func (rt *SimRuntime) componentEnable(c *Component) error {
	if rt.EnableComponentErr != nil {
		if err := rt.EnableComponentErr(c); err != nil {
			return err
		}
	}
	return nil
}

func (rt *SimRuntime) componentDisable(*Component) error {
	return nil
}

func (rt *SimRuntime) componentDestroy(c *Component) error {
	rt.mu.Lock()
	delete(rt.components, c)
	for _, p := range append(c.inputs, c.outputs...) {
		delete(rt.params, p)
	}
	delete(rt.params, c.control)
	rt.mu.Unlock()
	return nil
}
