package wire

// Framing identifies which of the two on-wire framings (spec.md §3) a
// packet was read with, or should be written with.
type Framing int

const (
	// FramingBinary: two fixed sync bytes, a type byte, a length byte,
	// then that many payload bytes. No per-packet checksum.
	FramingBinary Framing = iota
	// FramingASCII: a printable line, hex-encoded type+payload, an
	// optional checksum field, terminated by a configurable EOL.
	FramingASCII
)

func (f Framing) String() string {
	if f == FramingASCII {
		return "ascii"
	}
	return "binary"
}

// BinarySync is the two-byte sync sequence that marks a binary frame.
var BinarySync = [2]byte{0xE0, 0x01}

// AsciiSync is the leading character of an ASCII frame.
const AsciiSync = '$'

// AsciiChecksumDelim separates the hex payload from the optional trailing
// checksum field in an ASCII frame.
const AsciiChecksumDelim = '*'

// maxBinaryPayload is imposed by the single length byte the binary framing
// uses (spec.md §4.A: "a length byte"): the wire cannot express a payload
// longer than this regardless of configuration.
const maxBinaryPayload = 0xFF

// Packet is a single framed DMTP message: a header byte identifying the
// protocol family, a type byte (the within-family opcode) and a payload.
type Packet struct {
	Header  byte
	Type    byte
	Payload []byte
	Framing Framing
}

// NewPacket builds a reply/request packet that will be encoded using the
// given framing.
func NewPacket(header, typ byte, payload []byte, framing Framing) *Packet {
	return &Packet{Header: header, Type: typ, Payload: payload, Framing: framing}
}

// Cursor returns a fresh payload reader positioned at the start of the
// packet's payload.
func (p *Packet) Cursor() *Cursor {
	return NewCursor(p.Payload)
}
