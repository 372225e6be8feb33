package session

import (
	"errors"

	"github.com/opendmtp/dmtp-backend/internal/dmtp"
	"github.com/opendmtp/dmtp-backend/internal/event"
	"github.com/opendmtp/dmtp-backend/internal/metrics"
	"github.com/opendmtp/dmtp-backend/internal/template"
	"github.com/opendmtp/dmtp-backend/internal/wire"
	"github.com/opendmtp/dmtp-backend/pkg/schema"
)

// pendingEvent is one decoded-but-not-yet-persisted event record,
// buffered until its block's checksum validates (spec.md §4.D: "a failed
// block checksum discards the in-flight block's not-yet-persisted
// events").
type pendingEvent struct {
	rec    schema.EventRecord
	seq    uint32
	hasSeq bool
	typ    byte
}

// block accumulates one event block's state between end-of-block markers:
// the running checksum over received event-packet payloads, and the
// decoded records waiting on that checksum.
type block struct {
	checksum  uint32
	records   []pendingEvent
	excessive bool
	failures  int
}

func (b *block) reset() {
	b.checksum = 0
	b.records = nil
	b.excessive = false
}

// foldChecksum folds payload into the running block checksum. The exact
// algorithm is left to the device specification by spec.md §9; this
// implementation shifts the running 32-bit value left by one, XORs in the
// byte, and XORs in the bit shifted out at the top. This differs from the
// ASCII per-frame checksum, which is a plain XOR of the bytes.
func (b *block) foldChecksum(payload []byte) {
	for _, x := range payload {
		b.checksum = (b.checksum << 1) ^ uint32(x) ^ (b.checksum >> 31)
	}
}

// activeLoop implements the ACTIVE state: read frames until TERMINATE, a
// fatal error, or the session/idle/packet timeout ends the connection.
func (s *Session) activeLoop() error {
	for {
		if s.sessionExpired() {
			return nil
		}

		idle, packet := s.deadlines()
		pkt, err := s.reader.ReadFrame(idle, packet)
		if err != nil {
			fatal, retErr := s.handleReadErrActive(err)
			if fatal {
				return retErr
			}
			continue
		}
		s.header = pkt.Header
		s.framing = pkt.Framing

		meta := dmtp.Lookup(pkt.Type)
		switch meta.Kind {
		case dmtp.KindTerminate:
			return nil

		case dmtp.KindKeepAlive:
			continue

		case dmtp.KindTemplateDefine:
			s.handleTemplateDefine(pkt)

		case dmtp.KindEndOfBlock16:
			if fatal := s.handleEndOfBlock(pkt, true); fatal {
				return nil
			}

		case dmtp.KindEndOfBlock32:
			if fatal := s.handleEndOfBlock(pkt, false); fatal {
				return nil
			}

		case dmtp.KindUniqueID, dmtp.KindAccountID, dmtp.KindDeviceID, dmtp.KindAck, dmtp.KindNack:
			s.writeNack(dmtp.Protocol, pkt.Type, 0, false)
			return nil

		case dmtp.KindStandardEvent:
			// Lookup classifies every non-control opcode below the control
			// block as a standard event; the actual standard/custom split is
			// opcode-range based and happens inside handleEvent.
			s.block.foldChecksum(pkt.Payload)
			s.handleEvent(pkt)

		default:
			s.writeNack(dmtp.PacketType, pkt.Type, 0, false)
			return nil
		}
	}
}

// handleReadErrActive maps a ReadFrame failure seen during ACTIVE onto
// (fatal, error): fatal means the session must end now.
func (s *Session) handleReadErrActive(err error) (bool, error) {
	switch {
	case errors.Is(err, wire.ErrEndOfStream):
		return true, nil
	case errors.Is(err, wire.ErrTimeout):
		if s.cfg.TerminateOnTimeout || s.sessionExpired() {
			return true, nil
		}
		return false, nil
	default:
		var fe *wire.FrameError
		if errors.As(err, &fe) {
			code := dmtp.FromFrameError(fe)
			s.writeNack(code, 0, 0, false)
			if code.Fatal() {
				return true, nil
			}
			return false, nil
		}
		return true, err
	}
}

// handleTemplateDefine validates and stores a custom template definition
// (spec.md §4.C), independent of whatever block is currently open.
func (s *Session) handleTemplateDefine(pkt *wire.Packet) {
	if !s.cfg.CustomTemplatesEnabled || !s.device.SupportsCustomTypes {
		s.writeNack(dmtp.FormatNotSupported, pkt.Type, 0, false)
		return
	}

	t, err := template.DecodeDefine(s.accountID, s.deviceID, pkt.Payload)
	if err != nil {
		s.writeNack(dmtp.FormatDefInvalid, pkt.Type, 0, false)
		return
	}

	if err := s.templates.Define(t); err != nil {
		s.writeNack(dmtp.FormatDefInvalid, pkt.Type, 0, false)
		return
	}

	s.writeAck(0)
}

// handleEvent decodes one event packet against its template (standard or
// custom, per maxStandardOpcode) and queues the resulting records against
// the open block. Nothing is persisted here: persistence happens at
// end-of-block, in receive order, once the block checksum validates.
func (s *Session) handleEvent(pkt *wire.Packet) {
	var tmpl schema.Template
	if pkt.Type < maxStandardOpcode {
		tmpl = event.StandardTemplate(pkt.Type)
	} else {
		if !s.cfg.CustomTemplatesEnabled || !s.device.SupportsCustomTypes {
			s.writeNack(dmtp.FormatNotSupported, pkt.Type, 0, false)
			return
		}
		t, err := s.templates.Lookup(s.accountID, s.deviceID, pkt.Type)
		if err != nil {
			if errors.Is(err, template.ErrNotRecognized) {
				metrics.TemplateCacheMisses.Inc()
				s.writeNack(dmtp.FormatNotRecognized, pkt.Type, 0, false)
				return
			}
			s.writeNack(dmtp.EventError, pkt.Type, 0, false)
			return
		}
		metrics.TemplateCacheHits.Inc()
		tmpl = t
	}

	records, err := template.Apply(tmpl, pkt.Payload)
	if err != nil {
		s.writeNack(dmtp.EventError, pkt.Type, 0, false)
		return
	}

	for _, rec := range records {
		seq, hasSeq := event.Sequence(rec)
		ev := event.Assemble(s.accountID, s.deviceID, rec)
		s.block.records = append(s.block.records, pendingEvent{rec: ev, seq: seq, hasSeq: hasSeq, typ: pkt.Type})
	}
}

// handleEndOfBlock validates the block checksum, flushes or discards the
// buffered records accordingly, acks, and emits any deferred
// EXCESSIVE_EVENTS nack after the ack (spec.md §9: "EXCESSIVE_EVENTS is
// emitted after the block's ack, not interleaved with it"). Returns true
// if the session must terminate (the block-checksum retry budget was
// exhausted).
func (s *Session) handleEndOfBlock(pkt *wire.Packet, width16 bool) bool {
	var eob dmtp.EndOfBlock
	var err error
	if width16 {
		eob, err = dmtp.DecodeEndOfBlock16(pkt.Payload)
	} else {
		eob, err = dmtp.DecodeEndOfBlock32(pkt.Payload)
	}
	if err != nil {
		s.writeNack(dmtp.PacketPayload, pkt.Type, 0, false)
		return true
	}

	computed := s.block.checksum
	if eob.Width16 {
		computed &= 0xFFFF
	}

	if computed != eob.Checksum {
		s.block.failures++
		s.writeNack(dmtp.BlockChecksum, pkt.Type, 0, false)
		s.block.reset()
		return s.block.failures > s.cfg.MaxBlockChecksumRetries
	}
	s.block.failures = 0

	var highest uint32
	var haveHighest bool
	excessive := false

	for _, pe := range s.block.records {
		if !s.limiter.AllowEvent(s.accountID, s.deviceID) {
			metrics.RateLimitRejectedTotal.WithLabelValues("event").Inc()
			excessive = true
			continue
		}

		result, err := s.events.Insert(pe.rec)
		if err != nil {
			result = schema.ResultError
		}

		switch result {
		case schema.ResultOK:
			metrics.EventsInsertedTotal.Inc()
			if pe.hasSeq {
				highest, haveHighest = pe.seq, true
			}
			s.feed.Publish(pe.rec)
			if s.lineTap != nil {
				s.lineTap.Write(pe.rec)
			}
			if s.archiver != nil {
				if err := s.archiver.Append(pe.rec); err != nil {
					s.writeNack(dmtp.EventError, pe.typ, pe.seq, pe.hasSeq)
				}
			}
		case schema.ResultDuplicate:
			metrics.EventsDuplicateTotal.Inc()
			if pe.hasSeq {
				highest, haveHighest = pe.seq, true
			}
			if s.cfg.DuplicateEventsNack {
				s.writeNack(dmtp.DuplicateEvent, pe.typ, pe.seq, pe.hasSeq)
			}
		case schema.ResultExcessive:
			excessive = true
		default:
			s.writeNack(dmtp.EventError, pe.typ, pe.seq, pe.hasSeq)
		}
	}

	s.writeAck(highest)
	if excessive {
		s.writeNack(dmtp.ExcessiveEvents, pkt.Type, highest, haveHighest)
	}

	s.block.reset()
	return false
}
