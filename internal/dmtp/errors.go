package dmtp

import (
	"fmt"

	"github.com/opendmtp/dmtp-backend/internal/wire"
)

// NackCode is the fixed 16-bit on-wire error taxonomy (spec.md §7). Values
// are authoritative and MUST NOT be renumbered.
type NackCode uint16

const (
	IDInvalid            NackCode = 0xF011
	AccountInvalid       NackCode = 0xF021
	AccountInactive      NackCode = 0xF022
	AccountError         NackCode = 0xF023
	DeviceInvalid        NackCode = 0xF031
	DeviceInactive       NackCode = 0xF032
	DeviceError          NackCode = 0xF033
	ExcessiveConnections NackCode = 0xF041

	PacketHeader   NackCode = 0xF111
	PacketType     NackCode = 0xF112
	PacketLength   NackCode = 0xF113
	PacketPayload  NackCode = 0xF114
	PacketEncoding NackCode = 0xF115
	PacketChecksum NackCode = 0xF116

	BlockChecksum NackCode = 0xF311
	Protocol      NackCode = 0xF312

	FormatDefInvalid    NackCode = 0xF411
	FormatNotSupported  NackCode = 0xF421
	FormatNotRecognized NackCode = 0xF422
	ExcessiveEvents     NackCode = 0xF431
	DuplicateEvent      NackCode = 0xF432
	EventError          NackCode = 0xF441
)

func (c NackCode) String() string {
	switch c {
	case IDInvalid:
		return "ID_INVALID"
	case AccountInvalid:
		return "ACCOUNT_INVALID"
	case AccountInactive:
		return "ACCOUNT_INACTIVE"
	case AccountError:
		return "ACCOUNT_ERROR"
	case DeviceInvalid:
		return "DEVICE_INVALID"
	case DeviceInactive:
		return "DEVICE_INACTIVE"
	case DeviceError:
		return "DEVICE_ERROR"
	case ExcessiveConnections:
		return "EXCESSIVE_CONNECTIONS"
	case PacketHeader:
		return "PACKET_HEADER"
	case PacketType:
		return "PACKET_TYPE"
	case PacketLength:
		return "PACKET_LENGTH"
	case PacketPayload:
		return "PACKET_PAYLOAD"
	case PacketEncoding:
		return "PACKET_ENCODING"
	case PacketChecksum:
		return "PACKET_CHECKSUM"
	case BlockChecksum:
		return "BLOCK_CHECKSUM"
	case Protocol:
		return "PROTOCOL"
	case FormatDefInvalid:
		return "FORMAT_DEF_INVALID"
	case FormatNotSupported:
		return "FORMAT_NOT_SUPPORTED"
	case FormatNotRecognized:
		return "FORMAT_NOT_RECOGNIZED"
	case ExcessiveEvents:
		return "EXCESSIVE_EVENTS"
	case DuplicateEvent:
		return "DUPLICATE_EVENT"
	case EventError:
		return "EVENT_ERROR"
	default:
		return fmt.Sprintf("NackCode(0x%04X)", uint16(c))
	}
}

// Fatal reports whether a nack code's propagation policy (spec.md §7)
// terminates the session once emitted. BlockChecksum is handled specially
// by the session state machine (tolerated up to a small retry budget
// before it becomes fatal), so it is not included here.
func (c NackCode) Fatal() bool {
	switch c {
	case IDInvalid, AccountInvalid, AccountInactive, AccountError,
		DeviceInvalid, DeviceInactive, DeviceError, ExcessiveConnections,
		Protocol, PacketHeader, PacketType, PacketLength, PacketPayload:
		return true
	default:
		return false
	}
}

// FromFrameError maps a wire-level framing failure onto its nack code.
func FromFrameError(fe *wire.FrameError) NackCode {
	switch fe.Code {
	case wire.HeaderBad:
		return PacketHeader
	case wire.TypeBad:
		return PacketType
	case wire.LengthBad:
		return PacketLength
	case wire.PayloadBad:
		return PacketPayload
	case wire.EncodingErr:
		return PacketEncoding
	case wire.ChecksumErr:
		return PacketChecksum
	default:
		return Protocol
	}
}

// NackPacket is the decoded payload of a server-emitted nack: the error
// code, the offending header/type the device sent, and (for event-class
// errors) the event sequence number it was processing.
type NackPacket struct {
	Code       NackCode
	OffHeader  byte
	OffType    byte
	HasSeq     bool
	Seq        uint32
}

// EncodePayload serialises a nack's payload: 2-byte code, header, type,
// and an optional 4-byte sequence number.
func (n NackPacket) EncodePayload() []byte {
	out := make([]byte, 0, 8)
	out = append(out, byte(n.Code>>8), byte(n.Code))
	out = append(out, n.OffHeader, n.OffType)
	if n.HasSeq {
		out = append(out, byte(n.Seq>>24), byte(n.Seq>>16), byte(n.Seq>>8), byte(n.Seq))
	}
	return out
}
