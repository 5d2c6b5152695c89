// Package mmal models the VideoCore multimedia component runtime that drives
// the camera hardware: components with typed ports, negotiated formats,
// fixed-capacity buffer pools and zero-copy tunnelled connections.
//
// The package exposes the Runtime interface the pipeline is built against
// and ships SimRuntime, a complete in-memory implementation used by the test
// suite and by the --simulate mode of the node. A real VideoCore-backed
// runtime plugs in behind the same interface.
package mmal
