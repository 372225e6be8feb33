package template

import (
	"github.com/opendmtp/dmtp-backend/internal/wire"
	"github.com/opendmtp/dmtp-backend/pkg/schema"
)

// DecodeDefine parses a template-definition packet's payload: packet_type
// (1 byte), a repeatLast flag byte, a field count, then that many field
// descriptors of (type code, flags, index, length) — one byte each, flags
// bit 0 set for hiRes. This layout is this implementation's own choice
// (spec.md leaves the wire encoding of the definition packet itself
// unspecified, only the validated tuple it carries); it mirrors the
// compactness of the rest of the binary framing rather than inventing a
// longer one.
func DecodeDefine(accountID, deviceID string, payload []byte) (schema.Template, error) {
	cur := wire.NewCursor(payload)

	packetType, err := cur.U8()
	if err != nil {
		return schema.Template{}, ErrDefInvalid
	}
	repeatByte, err := cur.U8()
	if err != nil {
		return schema.Template{}, ErrDefInvalid
	}
	fieldCount, err := cur.U8()
	if err != nil {
		return schema.Template{}, ErrDefInvalid
	}

	fields := make([]schema.FieldDef, 0, fieldCount)
	for i := 0; i < int(fieldCount); i++ {
		typeCode, err := cur.U8()
		if err != nil {
			return schema.Template{}, ErrDefInvalid
		}
		flags, err := cur.U8()
		if err != nil {
			return schema.Template{}, ErrDefInvalid
		}
		index, err := cur.U8()
		if err != nil {
			return schema.Template{}, ErrDefInvalid
		}
		length, err := cur.U8()
		if err != nil {
			return schema.Template{}, ErrDefInvalid
		}
		fields = append(fields, schema.FieldDef{
			Type:   schema.FieldType(typeCode),
			HiRes:  flags&0x01 != 0,
			Index:  int(index),
			Length: int(length),
		})
	}

	return schema.Template{
		AccountID:  accountID,
		DeviceID:   deviceID,
		PacketType: packetType,
		RepeatLast: repeatByte != 0,
		Fields:     fields,
	}, nil
}

// EncodeDefine is DecodeDefine's inverse, used by devices (and tests) to
// build a definition packet payload.
func EncodeDefine(t schema.Template) []byte {
	out := make([]byte, 0, 3+len(t.Fields)*4)
	out = append(out, t.PacketType)
	if t.RepeatLast {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = append(out, byte(len(t.Fields)))
	for _, f := range t.Fields {
		var flags byte
		if f.HiRes {
			flags |= 0x01
		}
		out = append(out, byte(f.Type), flags, byte(f.Index), byte(f.Length))
	}
	return out
}
