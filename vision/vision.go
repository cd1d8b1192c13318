// Package vision defines the message-producer contract for the
// computer-vision plugin. Per spec §1 the CV plugin is an out-of-scope
// external collaborator ("interfaces only") that supplies object
// detections and tracked regions; this package is the thin
// bus.CameraObjectDetection/bus.CameraRegionTracking-producing interface
// the controller consumes, not a vision algorithm implementation.
package vision

import "github.com/skyline-rigging/flyer-controller/bus"

// Source produces camera detection/tracking messages from an external
// vision pipeline.
type Source interface {
	Poll() (msg bus.Message, ok bool)
	Close() error
}

// NoOp is the stand-in Source used when no CV plugin is connected.
type NoOp struct{}

func (NoOp) Poll() (bus.Message, bool) { return nil, false }
func (NoOp) Close() error              { return nil }
