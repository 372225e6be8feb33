package dmtp

import "github.com/opendmtp/dmtp-backend/internal/wire"

// AckPacket carries the highest event sequence number the server has
// accepted for the block being acknowledged.
type AckPacket struct {
	Seq uint32
}

func (a AckPacket) EncodePayload() []byte {
	return []byte{byte(a.Seq >> 24), byte(a.Seq >> 16), byte(a.Seq >> 8), byte(a.Seq)}
}

// EndOfBlock is the decoded form of either end-of-block variant. Width is
// 16 or 32 bits depending on which opcode carried it; spec.md §9 leaves the
// choice of opcode-to-width mapping to the device specification, so the
// session decides width purely from which of OpEndOfBlock16/32 it saw.
type EndOfBlock struct {
	Checksum uint32
	Width16  bool
}

// DecodeEndOfBlock16 reads a 2-byte block checksum.
func DecodeEndOfBlock16(payload []byte) (EndOfBlock, error) {
	c := wire.NewCursor(payload)
	v, err := c.U16()
	if err != nil {
		return EndOfBlock{}, err
	}
	return EndOfBlock{Checksum: uint32(v), Width16: true}, nil
}

// DecodeEndOfBlock32 reads a 4-byte block checksum.
func DecodeEndOfBlock32(payload []byte) (EndOfBlock, error) {
	c := wire.NewCursor(payload)
	v, err := c.U32()
	if err != nil {
		return EndOfBlock{}, err
	}
	return EndOfBlock{Checksum: v, Width16: false}, nil
}

// IdentPacket is the decoded form of a unique-id/account-id/device-id
// packet: a length-prefixed string for account/device ids, a big-endian
// u64 for the unique-id form.
type IdentPacket struct {
	Kind     Kind
	UniqueID uint64
	Text     string
}

// DecodeUniqueID reads an 8-byte big-endian device unique identifier.
func DecodeUniqueID(payload []byte) (IdentPacket, error) {
	c := wire.NewCursor(payload)
	v, err := c.U64()
	if err != nil {
		return IdentPacket{}, err
	}
	return IdentPacket{Kind: KindUniqueID, UniqueID: v}, nil
}

// DecodeIdentText reads a length-prefixed account-id or device-id string.
func DecodeIdentText(kind Kind, payload []byte) (IdentPacket, error) {
	c := wire.NewCursor(payload)
	b, err := c.LengthPrefixed()
	if err != nil {
		return IdentPacket{}, err
	}
	return IdentPacket{Kind: kind, Text: string(b)}, nil
}
