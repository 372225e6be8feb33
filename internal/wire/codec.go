// Package wire implements the DMTP frame codec (component A): framing
// detection and delimiting, ASCII<->binary encode/decode, checksum math,
// and a typed payload cursor. It knows nothing about packet semantics
// (component B) or sessions (component D); it only turns bytes into
// Packets and back.
package wire

import (
	"bufio"
	"io"
	"time"
)

// ByteSource is the minimal transport the codec needs to read a frame. A
// *net.Conn satisfies it directly; the listener's ClientSocket (component
// F) wraps a UDP datagram in an implementation with a no-op deadline.
type ByteSource interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// Config governs framing limits shared by every session on a listener.
type Config struct {
	// MaxPayloadLen bounds the payload length the codec accepts before
	// reporting LengthBad. The binary framing's single length byte
	// additionally caps payload at 255 bytes regardless of this value.
	MaxPayloadLen int

	// AsciiEOL terminates an ASCII line. Devices may send a stray CR
	// before it; the codec strips it unconditionally.
	AsciiEOL string

	// AcceptedHeaders are the recognised protocol-family marker bytes. A
	// binary frame's second sync byte, or an ASCII frame's sync
	// character, must be a member of this set. A nil/empty set accepts
	// DefaultHeader as a binary frame's second sync byte and AsciiSync as
	// an ASCII frame's sync character.
	AcceptedHeaders map[byte]bool
}

// DefaultConfig returns the codec defaults: 2048-byte payload cap (binary
// payloads are further capped at 255 bytes by their length byte), "\r\n"
// EOL.
func DefaultConfig() Config {
	return Config{
		MaxPayloadLen: 2048,
		AsciiEOL:      "\r\n",
	}
}

func (c Config) acceptsHeader(h byte) bool {
	if len(c.AcceptedHeaders) == 0 {
		return h == DefaultHeader
	}
	return c.AcceptedHeaders[h]
}

// DefaultHeader is the protocol-family marker used when a listener does
// not configure an explicit accepted-header set.
const DefaultHeader = 0x01

// Reader decodes one frame at a time from a ByteSource, applying idle and
// packet deadlines as it goes (spec.md §4.F). A Reader is not safe for
// concurrent use; it belongs to exactly one session.
type Reader struct {
	src    ByteSource
	br     *bufio.Reader
	cfg    Config
	closed bool
}

// NewReader wraps src for frame-at-a-time reading.
func NewReader(src ByteSource, cfg Config) *Reader {
	return &Reader{src: src, br: bufio.NewReader(src), cfg: cfg}
}

// ReadFrame blocks until a full frame has been read, honouring idleDeadline
// (max gap between successive bytes) and packetDeadline (max time from the
// first byte of the frame to the last). Both are wall-clock instants, not
// durations: the caller re-arms them per read. For a UDP ByteSource,
// ReadFrame returns ErrEndOfStream once the datagram's bytes are exhausted
// rather than blocking.
func (r *Reader) ReadFrame(idleDeadline, packetDeadline time.Time) (*Packet, error) {
	if err := r.armDeadline(idleDeadline, packetDeadline); err != nil {
		return nil, err
	}

	sync, err := r.br.Peek(1)
	if err != nil {
		return nil, translateReadErr(err)
	}

	switch sync[0] {
	case BinarySync[0]:
		return r.readBinary(idleDeadline, packetDeadline)
	default:
		return r.readAscii(idleDeadline, packetDeadline)
	}
}

func (r *Reader) armDeadline(idle, packet time.Time) error {
	d := idle
	if packet.Before(d) && !packet.IsZero() {
		d = packet
	}
	return r.src.SetReadDeadline(d)
}

func translateReadErr(err error) error {
	if err == io.EOF {
		return ErrEndOfStream
	}
	if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		return ErrTimeout
	}
	return newFrameError(HeaderBad, err)
}

// Encode serialises a packet back into wire bytes using its own Framing.
func Encode(p *Packet, cfg Config) ([]byte, error) {
	if p.Framing == FramingASCII {
		return encodeAscii(p, cfg)
	}
	return encodeBinary(p)
}
