package node

import (
	"testing"

	"github.com/skyline-rigging/flyer-controller/winch"
)

func TestEncodeWinchCommandProducesBytes(t *testing.T) {
	data, err := EncodeWinchCommand(winch.Command{
		Position:          1234,
		ForceFilterParam:  0.2,
		ForceLimitNeg:     -5,
		ForceLimitPos:     5,
		ForceLockoutBelow: -10,
		ForceLockoutAbove: 10,
		PIDGainP:          0.1,
		PIDGainI:          0.2,
		PIDGainD:          0.3,
		PIDFilterP:        1,
		PIDDecayI:         1,
		PIDFilterD:        1,
		DeadbandPosition:  10,
		DeadbandVelocity:  0.05,
		PWMHz:             200,
		PWMBias:           1,
		PWMMinimum:        0.1,
	})
	if err != nil {
		t.Fatalf("EncodeWinchCommand() error = %v", err)
	}
	if len(data) == 0 {
		t.Fatal("EncodeWinchCommand() returned no bytes")
	}
}

func TestDecodeWinchStatusRejectsShortPayload(t *testing.T) {
	_, err := DecodeWinchStatus(0, []byte{1, 2, 3})
	if err == nil {
		t.Fatal("DecodeWinchStatus() on a truncated payload should return an error, not panic")
	}
}
