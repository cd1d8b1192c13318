package fygimbal

import (
	"encoding/binary"

	"github.com/sigurn/crc16"
)

// Framing selects which of the two wire variants a Packet uses (spec
// §4.6).
type Framing int

const (
	FramingNormal Framing = iota
	FramingBootloader
)

var (
	normalMarker     = [2]byte{0xA5, 0x5A}
	bootloaderMarker = [2]byte{0x55, 0xAA}
)

var (
	xmodemTable      = crc16.MakeTable(crc16.CRC16_XMODEM)
	ccittFalseTable  = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)
)

// Packet is one parsed gimbal sub-protocol frame, independent of which
// wire framing produced it.
type Packet struct {
	Framing Framing
	Target  Target
	Command uint8
	Payload []byte
}

// Encode serializes p to its wire bytes: header marker, target, command,
// length (1 byte for Normal, 2 bytes LE for Bootloader), payload, then a
// little-endian CRC16 over target..payload (XMODEM for Normal,
// CCITT-FALSE for Bootloader).
func Encode(p Packet) []byte {
	var buf []byte
	var marker [2]byte
	var table *crc16.Table

	switch p.Framing {
	case FramingBootloader:
		marker = bootloaderMarker
		table = ccittFalseTable
		buf = make([]byte, 0, 2+1+1+2+len(p.Payload)+2)
		buf = append(buf, marker[0], marker[1])
		buf = append(buf, uint8(p.Target), p.Command)
		lenBytes := make([]byte, 2)
		binary.LittleEndian.PutUint16(lenBytes, uint16(len(p.Payload)))
		buf = append(buf, lenBytes...)
	default:
		marker = normalMarker
		table = xmodemTable
		buf = make([]byte, 0, 2+1+1+1+len(p.Payload)+2)
		buf = append(buf, marker[0], marker[1])
		buf = append(buf, uint8(p.Target), p.Command, uint8(len(p.Payload)))
	}

	buf = append(buf, p.Payload...)

	crcStart := 2 // CRC covers target..payload, i.e. everything after the marker.
	crc := crc16.Checksum(buf[crcStart:], table)
	crcBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(crcBytes, crc)
	buf = append(buf, crcBytes...)
	return buf
}

// Receiver incrementally parses a byte stream into Packets, resyncing on
// the framing marker and dropping bad-CRC frames, per spec §4.6's
// "Parser contract": never panics, emits well-formed packets in order,
// preserves a partial tail across Feed calls.
type Receiver struct {
	buf []byte
}

// Feed appends newly received bytes and returns every complete,
// CRC-valid packet that can now be extracted. Malformed leading bytes
// are discarded one at a time (spec §8 property 5: "consumes at least
// one byte of garbage per invocation over time").
func (r *Receiver) Feed(data []byte) []Packet {
	r.buf = append(r.buf, data...)

	var out []Packet
	for {
		p, consumed, ok := tryParseOne(r.buf)
		if consumed == 0 {
			break
		}
		r.buf = r.buf[consumed:]
		if ok {
			out = append(out, p)
		}
	}
	return out
}

// tryParseOne attempts to extract one packet from the front of buf.
// consumed == 0 means "not enough bytes yet, wait for more"; consumed > 0
// with ok == false means "a frame's worth of bytes was consumed but
// failed its CRC, or a leading byte was garbage — discard and try
// again".
func tryParseOne(buf []byte) (p Packet, consumed int, ok bool) {
	if len(buf) < 2 {
		return Packet{}, 0, false
	}

	switch {
	case buf[0] == normalMarker[0] && buf[1] == normalMarker[1]:
		return parseFixed(buf, FramingNormal)
	case buf[0] == bootloaderMarker[0] && buf[1] == bootloaderMarker[1]:
		return parseFixed(buf, FramingBootloader)
	default:
		// Not a recognized marker at the front; drop one byte and
		// resync.
		return Packet{}, 1, false
	}
}

func parseFixed(buf []byte, framing Framing) (p Packet, consumed int, ok bool) {
	var headerLen, lenFieldSize int
	var table *crc16.Table
	switch framing {
	case FramingBootloader:
		headerLen = 2 + 1 + 1 + 2
		lenFieldSize = 2
		table = ccittFalseTable
	default:
		headerLen = 2 + 1 + 1 + 1
		lenFieldSize = 1
		table = xmodemTable
	}

	if len(buf) < headerLen {
		return Packet{}, 0, false
	}

	target := Target(buf[2])
	command := buf[3]

	var payloadLen int
	if lenFieldSize == 2 {
		payloadLen = int(binary.LittleEndian.Uint16(buf[4:6]))
	} else {
		payloadLen = int(buf[4])
	}

	total := headerLen + payloadLen + 2
	if len(buf) < total {
		return Packet{}, 0, false
	}

	payload := append([]byte(nil), buf[headerLen:headerLen+payloadLen]...)
	gotCRC := binary.LittleEndian.Uint16(buf[headerLen+payloadLen : total])
	wantCRC := crc16.Checksum(buf[2:headerLen+payloadLen], table)

	if gotCRC != wantCRC {
		// Bad CRC: discard the whole malformed frame, not just one
		// byte, so the parser makes progress without endlessly
		// re-trying the same marker.
		return Packet{}, total, false
	}

	return Packet{Framing: framing, Target: target, Command: command, Payload: payload}, total, true
}
