package wire

import (
	"io"
	"time"
)

// readBinary consumes a [sync0 sync1 type length payload...] frame. The
// leading byte was already peeked by ReadFrame.
func (r *Reader) readBinary(idleDeadline, packetDeadline time.Time) (*Packet, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(r.br, hdr[:1]); err != nil {
		return nil, translateReadErr(err)
	}
	if hdr[0] != BinarySync[0] {
		return nil, newFrameError(HeaderBad, nil)
	}

	if err := r.armDeadline(idleDeadline, packetDeadline); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r.br, hdr[1:2]); err != nil {
		return nil, translateReadErr(err)
	}
	if !r.cfg.acceptsHeader(hdr[1]) {
		return nil, newFrameError(HeaderBad, nil)
	}

	if err := r.armDeadline(idleDeadline, packetDeadline); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r.br, hdr[2:3]); err != nil {
		return nil, translateReadErr(err)
	}
	typ := hdr[2]

	if err := r.armDeadline(idleDeadline, packetDeadline); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r.br, hdr[3:4]); err != nil {
		return nil, translateReadErr(err)
	}
	length := int(hdr[3])

	max := r.cfg.MaxPayloadLen
	if max <= 0 || max > maxBinaryPayload {
		max = maxBinaryPayload
	}
	if length > max {
		return nil, newFrameError(LengthBad, nil)
	}

	payload := make([]byte, length)
	if length > 0 {
		if err := r.armDeadline(idleDeadline, packetDeadline); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r.br, payload); err != nil {
			return nil, newFrameError(PayloadBad, err)
		}
	}

	return &Packet{Header: hdr[1], Type: typ, Payload: payload, Framing: FramingBinary}, nil
}

func encodeBinary(p *Packet) ([]byte, error) {
	if len(p.Payload) > maxBinaryPayload {
		return nil, newFrameError(LengthBad, nil)
	}
	out := make([]byte, 0, 4+len(p.Payload))
	out = append(out, BinarySync[0], p.Header, p.Type, byte(len(p.Payload)))
	out = append(out, p.Payload...)
	return out, nil
}
