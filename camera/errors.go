package camera

import "errors"

// Pipeline error taxonomy. Fatal errors abort Initialize and unwind all
// partial state; soft errors are logged and degrade capability only.
var (
	// ErrComponentCreate means the runtime refused to create or enable a
	// component. Fatal to Initialize.
	ErrComponentCreate = errors.New("component create failed")
	// ErrFormatCommit means a port rejected a negotiated format. Fatal to
	// the owning component's creation.
	ErrFormatCommit = errors.New("format commit failed")
	// ErrConnection means a tunnelled connection could not be enabled.
	// Fatal to Initialize.
	ErrConnection = errors.New("connection failed")
	// ErrPoolCreate means a buffer pool could not be allocated. Soft: the
	// affected stream cannot flow until a pool exists.
	ErrPoolCreate = errors.New("pool create failed")
	// ErrBufferSend means a buffer could not be handed to a port. Soft and
	// per-occurrence: the slot stalls until the next successful recycle.
	ErrBufferSend = errors.New("buffer send failed")
)
