package wire

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// readAscii consumes a printable line: sync char, hex(type), hex(payload),
// an optional "*"+hex(checksum), terminated by cfg.AsciiEOL (default
// "\n"). A stray CR anywhere in the line is ignored, matching devices that
// send "\r\n" regardless of the configured EOL.
func (r *Reader) readAscii(idleDeadline, packetDeadline time.Time) (*Packet, error) {
	eol := r.cfg.AsciiEOL
	if eol == "" {
		eol = "\n"
	}
	terminator := eol[len(eol)-1]

	var line []byte
	for {
		if err := r.armDeadline(idleDeadline, packetDeadline); err != nil {
			return nil, err
		}
		b, err := r.br.ReadByte()
		if err != nil {
			return nil, translateReadErr(err)
		}
		if b == '\r' {
			continue // ignore char
		}
		if b == terminator {
			break
		}
		line = append(line, b)
		if len(line) > 2*r.effectiveMaxAsciiLen()+32 {
			return nil, newFrameError(LengthBad, nil)
		}
	}

	if len(line) < 3 {
		return nil, newFrameError(HeaderBad, nil)
	}

	sync := line[0]
	if len(r.cfg.AcceptedHeaders) == 0 {
		if sync != AsciiSync {
			return nil, newFrameError(HeaderBad, nil)
		}
	} else if !r.cfg.acceptsHeader(sync) {
		return nil, newFrameError(HeaderBad, nil)
	}

	body := line[1:]
	checksumIdx := -1
	for i, c := range body {
		if c == AsciiChecksumDelim {
			checksumIdx = i
			break
		}
	}

	hexPart := body
	var checksumTok []byte
	if checksumIdx >= 0 {
		hexPart = body[:checksumIdx]
		checksumTok = body[checksumIdx+1:]
	}

	if len(hexPart) < 2 {
		return nil, newFrameError(TypeBad, nil)
	}
	if len(hexPart)%2 != 0 {
		return nil, newFrameError(EncodingErr, nil)
	}

	decoded, err := decodeStrictHex(hexPart)
	if err != nil {
		return nil, newFrameError(EncodingErr, err)
	}

	typ := decoded[0]
	payload := decoded[1:]

	max := r.cfg.MaxPayloadLen
	if max <= 0 {
		max = 2048
	}
	if len(payload) > max {
		return nil, newFrameError(LengthBad, nil)
	}

	if checksumIdx >= 0 {
		want, err := decodeStrictHex(checksumTok)
		if err != nil || len(want) != 1 {
			return nil, newFrameError(EncodingErr, err)
		}
		got := xorChecksum(append([]byte{sync}, hexPart...))
		if got != want[0] {
			return nil, newFrameError(ChecksumErr, nil)
		}
	}

	return &Packet{Header: sync, Type: typ, Payload: payload, Framing: FramingASCII}, nil
}

func (r *Reader) effectiveMaxAsciiLen() int {
	if r.cfg.MaxPayloadLen <= 0 {
		return 2048
	}
	return r.cfg.MaxPayloadLen
}

// decodeStrictHex decodes b as case-insensitive hex, rejecting any
// non-hex-digit byte with an error (spec.md §4.A: "a strict hex-digit
// consumer; non-hex mid-field -> ENCODING_ERR").
func decodeStrictHex(b []byte) ([]byte, error) {
	for _, c := range b {
		if !isHexDigit(c) {
			return nil, strconv.ErrSyntax
		}
	}
	out := make([]byte, hex.DecodedLen(len(b)))
	if _, err := hex.Decode(out, []byte(strings.ToLower(string(b)))); err != nil {
		return nil, err
	}
	return out, nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// xorChecksum is a reducing XOR initialised to zero over b.
func xorChecksum(b []byte) byte {
	var x byte
	for _, c := range b {
		x ^= c
	}
	return x
}

// VerifyChecksum independently re-derives and checks an already-decoded
// ASCII frame's checksum, for callers that constructed a Packet themselves
// (e.g. tests exercising invariant #2 of spec.md §8) rather than through
// Reader.ReadFrame.
func VerifyChecksum(header, typ byte, payload []byte, checksum byte) bool {
	hexPart := append([]byte{}, hex.EncodeToString([]byte{typ})...)
	hexPart = append(hexPart, hex.EncodeToString(payload)...)
	return xorChecksum(append([]byte{header}, hexPart...)) == checksum
}

func encodeAscii(p *Packet, cfg Config) ([]byte, error) {
	max := cfg.MaxPayloadLen
	if max <= 0 {
		max = 2048
	}
	if len(p.Payload) > max {
		return nil, newFrameError(LengthBad, nil)
	}

	hexPart := hex.EncodeToString([]byte{p.Type}) + hex.EncodeToString(p.Payload)
	checksum := xorChecksum(append([]byte{p.Header}, hexPart...))

	eol := cfg.AsciiEOL
	if eol == "" {
		eol = "\r\n"
	}

	var b strings.Builder
	b.WriteByte(p.Header)
	b.WriteString(hexPart)
	b.WriteByte(AsciiChecksumDelim)
	b.WriteString(hex.EncodeToString([]byte{checksum}))
	b.WriteString(eol)
	return []byte(b.String()), nil
}
