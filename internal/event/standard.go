// Package event implements the event assembler (component E): promoting a
// template-decoded field map into the canonical EventRecord the store
// interfaces persist.
package event

import "github.com/opendmtp/dmtp-backend/pkg/schema"

// StandardTemplate returns the fixed payload layout the protocol
// specification assigns to a standard (non-custom) event packet type. All
// standard types share one layout in this implementation: timestamp,
// status, latitude, longitude, speed, heading, altitude — the common
// "point report" fields every OpenDMTP-class tracker emits, widened to the
// unscaled integer/float widths the event assembler expects. A device
// wanting a narrower wire layout must declare a custom template instead.
func StandardTemplate(packetType uint8) schema.Template {
	return schema.Template{
		PacketType: packetType,
		RepeatLast: false,
		Fields:     FieldDefs(),
	}
}

// FieldDefs is the field list StandardTemplate builds from; exported so
// tests can compare against it.
func FieldDefs() []schema.FieldDef {
	return []schema.FieldDef{
		{Type: schema.FieldTimestamp, Length: 4},
		{Type: schema.FieldStatus, Length: 4},
		{Type: schema.FieldLatitude, Length: 4},
		{Type: schema.FieldLongitude, Length: 4},
		{Type: schema.FieldSpeed, Length: 2},
		{Type: schema.FieldHeading, Length: 2},
		{Type: schema.FieldAltitude, Length: 2},
	}
}
