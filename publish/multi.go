package publish

import (
	"errors"

	"pi-camera-node/camera"
)

// MultiSink fans every frame out to each wrapped sink. Errors from individual
// sinks are joined so one slow or broken consumer does not hide the others.
type MultiSink struct {
	sinks []camera.FrameSink
}

// NewMultiSink wraps sinks, skipping nils.
func NewMultiSink(sinks ...camera.FrameSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of wrapped sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }

// PublishRaw forwards the frame to every sink.
func (m *MultiSink) PublishRaw(frame camera.RawFrame) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.PublishRaw(frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishCompressed forwards the frame to every sink.
func (m *MultiSink) PublishCompressed(frame camera.CompressedFrame) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.PublishCompressed(frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishInfo forwards the metadata to every sink.
func (m *MultiSink) PublishInfo(info camera.Info) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.PublishInfo(info); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
