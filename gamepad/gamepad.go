// Package gamepad defines the message-producer contract for the
// gamepad input source. Per spec §1 the gamepad device itself is an
// out-of-scope external collaborator ("interfaces only"); this package
// is deliberately a thin interface plus a no-op default, not a device
// driver. Exhaustive grep of the retrieved example pack for
// gamepad/joystick/gilrs library usage found only incidental
// error-message string matches in unrelated files, confirming there is
// no library in the pack to ground a real poller on.
package gamepad

import "github.com/skyline-rigging/flyer-controller/bus"

// Source polls a physical input device and produces bus.Command values.
// A real implementation would wrap a platform gamepad library and run
// its own poll loop, sending onto the bus the way
// original_source/src/interface/gamepad.rs's axis/button mapping does.
type Source interface {
	// Poll returns the next command to apply, or ok=false if nothing is
	// pending.
	Poll() (cmd bus.Command, ok bool)
	Close() error
}

// NoOp is the stand-in Source used when no gamepad hardware is present,
// so the controller can run stand-alone.
type NoOp struct{}

func (NoOp) Poll() (bus.Command, bool) { return nil, false }
func (NoOp) Close() error              { return nil }
