// Package fygimbal implements the gimbal sub-protocol (spec §4.6):
// byte-framed, CRC-checked packets in two framing variants (Normal,
// Bootloader) and the value read/write scheduler. The controller builds
// and sends one batch per control tick; a UDP receive or timeout does not
// itself trigger a batch. Grounded on
// original_source/src/fygimbal/{framing,protocol,poller}.rs.
package fygimbal

// Target identifies which of the gimbal's three axis boards (or the
// host) a packet addresses.
type Target uint8

const (
	TargetYaw         Target = 0
	TargetRoll        Target = 1
	TargetPitch       Target = 2 // also named IMU_ADJACENT
	TargetHost        Target = 3
	TargetIMUAdjacent        = TargetPitch
)

// Command bytes (exhaustive for the core, per spec §4.6).
const (
	CommandMotorPower         uint8 = 0x03
	CommandGetValue           uint8 = 0x06
	CommandSetAccelCorrection uint8 = 0x07
	CommandSetValue           uint8 = 0x08
)

// NumAxes and NumValues bound the value scheduler's address space
// (grounded on original_source/src/fygimbal/protocol.rs).
const (
	NumAxes   = 3
	NumValues = 128
)

// ValueIndexControlRate is the value-table slot the controller tick
// writes the combined endstop-limited tracking rate to, once per axis
// board (spec §4.4: "Send as a two-axis value write CONTROL_RATE
// through the gimbal sub-protocol"). The original source's protocol.rs
// table reserves a single named slot for this; the core of this
// specification does not enumerate the full value table, so this index
// is this implementation's own placement, consistent with the
// accelerometer-offset slots already occupying 16-18.
const ValueIndexControlRate = 20

// imuAdjacentAttitudeCorrectionIndices are the value indices that must be
// routed through SET_ACCEL_CORRECTION instead of plain SET_VALUE when the
// target is IMU_ADJACENT (spec §4.6: "a hard correctness requirement").
// Grounded on protocol.rs's pack::set_value special-casing.
var imuAdjacentAttitudeCorrectionIndices = map[int]bool{
	// accelerometer offset slots (x, y, z)
	16: true,
	17: true,
	18: true,
}

// EncodeSetValue builds the correct write packet for (index, target,
// value): the ordinary SET_VALUE command, except for IMU_ADJACENT
// attitude-correction slots, which must use SET_ACCEL_CORRECTION with a
// different axis-ordering byte so firmware updates its internal
// floating-point mirror. Getting this wrong silently desyncs the
// firmware's attitude correction state, hence "hard correctness
// requirement" in spec §4.6.
func EncodeSetValue(index int, target Target, value int16) Packet {
	if target == TargetIMUAdjacent && imuAdjacentAttitudeCorrectionIndices[index] {
		return Packet{
			Target:  target,
			Command: CommandSetAccelCorrection,
			Payload: []byte{byte(index), byte(value), byte(value >> 8)},
		}
	}
	return Packet{
		Target:  target,
		Command: CommandSetValue,
		Payload: []byte{byte(index), byte(value), byte(value >> 8)},
	}
}

// EncodeGetValue builds a read-request packet for (index, target).
func EncodeGetValue(index int, target Target) Packet {
	return Packet{
		Target:  target,
		Command: CommandGetValue,
		Payload: []byte{byte(index)},
	}
}

// DecodeValue extracts (index, value) from a GET_VALUE response payload.
func DecodeValue(payload []byte) (index int, value int16, ok bool) {
	if len(payload) < 3 {
		return 0, 0, false
	}
	return int(payload[0]), int16(uint16(payload[1]) | uint16(payload[2])<<8), true
}
