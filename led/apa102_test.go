package led

import "testing"

func TestEncodeAPA102RedForcedNonzero(t *testing.T) {
	wire := EncodeAPA102(Pixel{R: 0, G: 1, B: 0})
	header, g, b, r := wire[0], wire[1], wire[2], wire[3]
	if r == 0 {
		t.Fatalf("red byte = 0 with green nonzero, want forced >= 1 (header=%#x g=%d b=%d)", header, g, b)
	}
	if g == 0 {
		t.Fatalf("green byte = 0, want 255 for full green input")
	}
}

func TestEncodeAPA102BlackStaysBlack(t *testing.T) {
	wire := EncodeAPA102(Pixel{R: 0, G: 0, B: 0})
	_, g, b, r := wire[0], wire[1], wire[2], wire[3]
	if r != 0 || g != 0 || b != 0 {
		t.Fatalf("wire = %v, want all-zero color bytes for black", wire)
	}
}

func TestEncodeAPA102HeaderBrightness(t *testing.T) {
	wire := EncodeAPA102(Pixel{R: 1, G: 0, B: 0})
	header := wire[0]
	if header&0xE0 != 0xE0 {
		t.Fatalf("header = %#x, want top 3 bits set (0xE0 marker)", header)
	}
	level := header &^ 0xE0
	if level < 1 || level > 31 {
		t.Fatalf("header brightness level = %d, want in [1,31]", level)
	}
}
