package camera

import (
	"fmt"

	"pi-camera-node/mmal"
)

// connectPorts tunnels out into in and enables the connection. Tunnelled
// connections keep the buffer traffic inside the runtime; the downstream
// input port owns the allocation.
func connectPorts(out, in *mmal.Port) (*mmal.Connection, error) {
	conn, err := mmal.Connect(out, in, mmal.ConnTunnelled|mmal.ConnAllocationOnInput)
	if err != nil {
		return nil, fmt.Errorf("%w: %s -> %s: %v", ErrConnection, out.Name(), in.Name(), err)
	}
	if err := conn.Enable(); err != nil {
		conn.Destroy()
		return nil, fmt.Errorf("%w: enable %s -> %s: %v", ErrConnection, out.Name(), in.Name(), err)
	}
	return conn, nil
}

// disconnect tears down a connection. Safe on nil and on connections already
// destroyed.
func disconnect(conn *mmal.Connection) {
	if conn == nil {
		return
	}
	conn.Destroy()
}
