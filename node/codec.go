package node

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/skyline-rigging/flyer-controller/bus"
	"github.com/skyline-rigging/flyer-controller/winch"
)

// wireWinchStatus is the fixed, little-endian, firmware-matching layout
// for a WinchStatus datagram body (spec §3, §6: "Bit-exact struct
// layouts... implementers must preserve field order and sizes and
// little-endian byte order"). The embedded Command* fields are the
// last WinchCommand firmware received, echoed back verbatim (spec §3's
// "last command echo", original_source/src/message.rs's
// WinchStatus.command) — the controller's own mech-status classifier
// keys off the sensor readings directly rather than this echo (see
// winch.classify), but the echo is still required on the wire so a
// stale or corrupt outbound command is observable in telemetry.
type wireWinchStatus struct {
	CommandCounter          uint16
	TickCounter             uint16
	_                       uint16
	CommandPosition         int32
	CommandForceFilterParam float32
	CommandForceNegMin      float32
	CommandForcePosMax      float32
	CommandForceLockoutBelow float32
	CommandForceLockoutAbove float32
	CommandPIDGainP         float32
	CommandPIDGainI         float32
	CommandPIDGainD         float32
	CommandPIDFilterP       float32
	CommandPIDDecayI        float32
	CommandPIDFilterD       float32
	CommandDeadbandPosition int32
	CommandDeadbandVelocity float32
	ForceFiltered   float32
	ForceRaw        float32
	Position        int32
	VelocityInstant float32
	PWMP            float32
	PWMI            float32
	PWMD            float32
	PWMTotal        float32
	PWMQuantized    int16
	PWMEnabled      uint16
	PositionErr     float32
	PosErrFilt      float32
	PosErrInt       float32
	VelErrInst      float32
	VelErrFilt      float32
}

func DecodeWinchStatus(winchID int, data []byte) (bus.WinchStatus, error) {
	var w wireWinchStatus
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &w); err != nil {
		return bus.WinchStatus{}, fmt.Errorf("node: decode winch status: %w", err)
	}
	return bus.WinchStatus{
		WinchID:        winchID,
		CommandCounter: w.CommandCounter,
		TickCounter:    w.TickCounter,
		Command: bus.WinchCommandEcho{
			Position:          w.CommandPosition,
			ForceFilterParam:  w.CommandForceFilterParam,
			ForceNegMotionMin: w.CommandForceNegMin,
			ForcePosMotionMax: w.CommandForcePosMax,
			ForceLockoutBelow: w.CommandForceLockoutBelow,
			ForceLockoutAbove: w.CommandForceLockoutAbove,
			PIDGainP:          w.CommandPIDGainP,
			PIDGainI:          w.CommandPIDGainI,
			PIDGainD:          w.CommandPIDGainD,
			PIDFilterP:        w.CommandPIDFilterP,
			PIDDecayI:         w.CommandPIDDecayI,
			PIDFilterD:        w.CommandPIDFilterD,
			DeadbandPosition:  w.CommandDeadbandPosition,
			DeadbandVelocity:  w.CommandDeadbandVelocity,
		},
		Sensors: bus.SensorStatus{
			ForceFiltered:   w.ForceFiltered,
			ForceRaw:        w.ForceRaw,
			Position:        w.Position,
			VelocityInstant: w.VelocityInstant,
		},
		Motor: bus.MotorStatus{
			PWMP:         w.PWMP,
			PWMI:         w.PWMI,
			PWMD:         w.PWMD,
			PWMTotal:     w.PWMTotal,
			PWMQuantized: w.PWMQuantized,
			PWMEnabled:   w.PWMEnabled != 0,
			PositionErr:  w.PositionErr,
			PosErrFilt:   w.PosErrFilt,
			PosErrInt:    w.PosErrInt,
			VelErrInst:   w.VelErrInst,
			VelErrFilt:   w.VelErrFilt,
		},
	}, nil
}

// wireWinchCommand is the fixed layout for an outbound WinchCommand
// (spec §3), mirroring original_source/src/message.rs's WinchCommand
// (ForceCommand + PIDGains + WinchDeadband) field for field.
type wireWinchCommand struct {
	Position          int32
	ForceFilterParam  float32
	ForceNegMotionMin float32
	ForcePosMotionMax float32
	ForceLockoutBelow float32
	ForceLockoutAbove float32
	PIDGainP          float32
	PIDGainI          float32
	PIDGainD          float32
	PIDFilterP        float32
	PIDDecayI         float32
	PIDFilterD        float32
	DeadbandPosition  int32
	DeadbandVelocity  float32
	PWMHz             float32
	PWMBias           float32
	PWMMinimum        float32
}

// EncodeWinchCommand serializes a winch.Command into its fixed wire
// layout.
func EncodeWinchCommand(cmd winch.Command) ([]byte, error) {
	w := wireWinchCommand{
		Position:          cmd.Position,
		ForceFilterParam:  float32(cmd.ForceFilterParam),
		ForceNegMotionMin: float32(cmd.ForceLimitNeg),
		ForcePosMotionMax: float32(cmd.ForceLimitPos),
		ForceLockoutBelow: float32(cmd.ForceLockoutBelow),
		ForceLockoutAbove: float32(cmd.ForceLockoutAbove),
		PIDGainP:          float32(cmd.PIDGainP),
		PIDGainI:          float32(cmd.PIDGainI),
		PIDGainD:          float32(cmd.PIDGainD),
		PIDFilterP:        float32(cmd.PIDFilterP),
		PIDDecayI:         float32(cmd.PIDDecayI),
		PIDFilterD:        float32(cmd.PIDFilterD),
		DeadbandPosition:  cmd.DeadbandPosition,
		DeadbandVelocity:  float32(cmd.DeadbandVelocity),
		PWMHz:             float32(cmd.PWMHz),
		PWMBias:           float32(cmd.PWMBias),
		PWMMinimum:        float32(cmd.PWMMinimum),
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &w); err != nil {
		return nil, fmt.Errorf("node: encode winch command: %w", err)
	}
	return buf.Bytes(), nil
}

// wireFlyerSensors is the fixed layout for a FlyerSensors datagram body.
type wireFlyerSensors struct {
	XBandRangeM   float32
	LidarRangeM   float32
	AnalogInputs  [4]uint16
	IMUQuatWXYZ   [4]float32
	IMUAngularVel [3]float32
}

func DecodeFlyerSensors(data []byte) (bus.FlyerSensors, error) {
	var w wireFlyerSensors
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &w); err != nil {
		return bus.FlyerSensors{}, fmt.Errorf("node: decode flyer sensors: %w", err)
	}
	return bus.FlyerSensors{
		XBandRangeM:   w.XBandRangeM,
		LidarRangeM:   w.LidarRangeM,
		AnalogInputs:  w.AnalogInputs,
		IMUQuatWXYZ:   w.IMUQuatWXYZ,
		IMUAngularVel: w.IMUAngularVel,
	}, nil
}
