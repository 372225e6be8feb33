package session

import (
	"github.com/opendmtp/dmtp-backend/internal/dmtp"
	"github.com/opendmtp/dmtp-backend/internal/metrics"
	"github.com/opendmtp/dmtp-backend/internal/wire"
)

// writePacket encodes and sends one reply, mirroring the header and
// framing of whatever the device last sent (spec.md §4.A: the reply
// framing always matches the request's).
func (s *Session) writePacket(typ byte, payload []byte) error {
	pkt := wire.NewPacket(s.header, typ, payload, s.framing)
	out, err := wire.Encode(pkt, s.codecCfg)
	if err != nil {
		return err
	}
	_, err = s.sock.Write(out)
	return err
}

func (s *Session) writeAck(seq uint32) error {
	ack := dmtp.AckPacket{Seq: seq}
	return s.writePacket(dmtp.OpAck, ack.EncodePayload())
}

// writeNack sends a nack and records it in the nacks_total metric. It
// never itself decides whether the session should terminate; callers
// consult code.Fatal() for that.
func (s *Session) writeNack(code dmtp.NackCode, offType byte, seq uint32, hasSeq bool) error {
	n := dmtp.NackPacket{
		Code:      code,
		OffHeader: s.header,
		OffType:   offType,
		HasSeq:    hasSeq,
		Seq:       seq,
	}
	metrics.NacksTotal.WithLabelValues(code.String()).Inc()
	return s.writePacket(dmtp.OpNack, n.EncodePayload())
}
