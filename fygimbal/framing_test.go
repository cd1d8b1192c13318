package fygimbal

import (
	"bytes"
	"testing"
)

func TestBootloaderEncodeMatchesVector(t *testing.T) {
	p := Packet{Framing: FramingBootloader, Target: 0, Command: 1, Payload: nil}
	got := Encode(p)
	want := []byte{0x55, 0xAA, 0x00, 0x01, 0x00, 0x00, 0xF0, 0xB3}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode() = % X, want % X", got, want)
	}
}

func TestBootloaderRoundTrip(t *testing.T) {
	want := []byte{0x55, 0xAA, 0x00, 0x01, 0x00, 0x00, 0xF0, 0xB3}
	r := &Receiver{}
	got := r.Feed(want)
	if len(got) != 1 {
		t.Fatalf("Feed() returned %d packets, want 1", len(got))
	}
	if got[0].Target != 0 || got[0].Command != 1 || len(got[0].Payload) != 0 {
		t.Fatalf("Feed() = %+v, want target=0 command=1 empty payload", got[0])
	}
}

func TestBadCRCYieldsNoPacket(t *testing.T) {
	bad := []byte{0x55, 0xAA, 0x00, 0x01, 0x00, 0x00, 0xF0, 0xB4} // flipped CRC byte
	r := &Receiver{}
	got := r.Feed(bad)
	if len(got) != 0 {
		t.Fatalf("Feed() = %+v, want no packets from bad CRC", got)
	}
}

func TestResyncDropsGarbageOneByteAtATime(t *testing.T) {
	good := Encode(Packet{Framing: FramingNormal, Target: TargetYaw, Command: CommandGetValue, Payload: []byte{5}})
	garbage := append([]byte{0xDE, 0xAD, 0xBE, 0xEF}, good...)
	r := &Receiver{}
	got := r.Feed(garbage)
	if len(got) != 1 {
		t.Fatalf("Feed() returned %d packets after garbage prefix, want 1", len(got))
	}
	if got[0].Command != CommandGetValue {
		t.Fatalf("Feed() = %+v, want the GET_VALUE packet after resync", got[0])
	}
}

func TestPartialFeedBuffersTail(t *testing.T) {
	good := Encode(Packet{Framing: FramingNormal, Target: TargetYaw, Command: CommandGetValue, Payload: []byte{5}})
	r := &Receiver{}
	if got := r.Feed(good[:3]); len(got) != 0 {
		t.Fatalf("Feed() of a partial frame returned %d packets, want 0", len(got))
	}
	got := r.Feed(good[3:])
	if len(got) != 1 {
		t.Fatalf("Feed() of the remaining bytes returned %d packets, want 1", len(got))
	}
}

func TestSetValueRoutesIMUAdjacentAttitudeCorrection(t *testing.T) {
	p := EncodeSetValue(16, TargetIMUAdjacent, 100)
	if p.Command != CommandSetAccelCorrection {
		t.Fatalf("EncodeSetValue() for IMU_ADJACENT attitude slot used command 0x%02X, want SET_ACCEL_CORRECTION (0x%02X)", p.Command, CommandSetAccelCorrection)
	}
}

func TestSetValueOrdinaryAddressUsesPlainSetValue(t *testing.T) {
	p := EncodeSetValue(5, TargetYaw, 100)
	if p.Command != CommandSetValue {
		t.Fatalf("EncodeSetValue() for an ordinary address used command 0x%02X, want SET_VALUE (0x%02X)", p.Command, CommandSetValue)
	}
}
