// Package node implements the controller-bound UDP transport (spec
// §4.5): one-byte message-type-prefixed datagrams to/from the flyer and
// winch nodes, fixed-layout binary encoding matching firmware's struct
// layout bit-for-bit. Grounded on MiFaceDEV's pkg/miface/sender.go for
// the UDP-socket-plus-encoding/binary shape, and on
// original_source/src/message.rs for the exact WinchStatus/WinchCommand/
// FlyerSensors field layouts.
package node

// MessageType is the one-byte prefix on every datagram (spec §4.5 table).
type MessageType uint8

const (
	MessageGimbal       MessageType = 0x01
	MessageFlyerSensors MessageType = 0x02
	MessageWinchStatus  MessageType = 0x03
	MessageWinchCommand MessageType = 0x04
	MessageLEDs         MessageType = 0x05
	MessageLoopback     MessageType = 0x20
)
