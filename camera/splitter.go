package camera

import (
	"fmt"

	"go.uber.org/zap"

	"pi-camera-node/mmal"
)

// newSplitterComponent creates the splitter that fans the camera's video
// output into independent streams. The source port's committed format is
// replicated onto the input and every output; the first output that rejects
// it aborts creation and destroys the partially built component.
func newSplitterComponent(rt mmal.Runtime, source *mmal.Port, logger *zap.Logger) (*mmal.Component, error) {
	spl, err := rt.CreateComponent(mmal.ComponentVideoSplitter)
	if err != nil {
		return nil, fmt.Errorf("%w: splitter: %v", ErrComponentCreate, err)
	}

	ok := false
	defer func() {
		if !ok {
			spl.Destroy()
		}
	}()

	in := spl.Input(0)
	in.Format.CopyFrom(source.Format)
	in.BufferCount = minOutputBuffers
	if err := in.CommitFormat(); err != nil {
		return nil, fmt.Errorf("%w: splitter input port: %v", ErrFormatCommit, err)
	}

	for i := 0; i < spl.NumOutputs(); i++ {
		out := spl.Output(i)
		out.BufferCount = minOutputBuffers
		out.Format.CopyFrom(in.Format)
		if err := out.CommitFormat(); err != nil {
			return nil, fmt.Errorf("%w: splitter output port %d: %v", ErrFormatCommit, i, err)
		}
		out.BufferSize = out.BufferSizeRecommended
		if out.BufferSize < out.BufferSizeMin {
			out.BufferSize = out.BufferSizeMin
		}
	}

	logger.Info("Splitter component created", zap.Int("outputs", spl.NumOutputs()))

	ok = true
	return spl, nil
}
