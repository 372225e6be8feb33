// Package schema holds the data-transfer types shared by every layer of
// the DMTP back office: the wire codec, the session state machine, the
// store interfaces and their implementations.
package schema

import "fmt"

// Result is the outcome vocabulary the store interfaces (§6) use to report
// back to the session state machine without leaking backend-specific
// errors onto the wire.
type Result int

const (
	ResultOK Result = iota
	ResultNotFound
	ResultDuplicate
	ResultExcessive
	ResultError
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultNotFound:
		return "NOT_FOUND"
	case ResultDuplicate:
		return "DUPLICATE"
	case ResultExcessive:
		return "EXCESSIVE"
	case ResultError:
		return "ERROR"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Account is the back-office record a device's identification resolves to.
type Account struct {
	AccountID    string
	IsActive     bool
	ContactEmail string
	NotifyEmail  string
}

// Device is the per-(account,device) record that gates authentication,
// connection/event rate limiting and the custom-template feature flag.
type Device struct {
	AccountID           string
	DeviceID            string
	UniqueID            uint64
	IsActive            bool
	SupportsCustomTypes bool

	// ConnectionRateLimit bounds connection attempts per ConnectionRateWindow.
	// Zero means unlimited.
	ConnectionRateLimit  int
	ConnectionRateWindow int // seconds

	// EventRateLimit bounds inserted events per EventRateWindow. Zero means
	// unlimited.
	EventRateLimit  int
	EventRateWindow int // seconds
}

// FieldType identifies a semantic field within an event packet's payload.
// Only the recognised types below (see IsRecognised) may appear in a
// device-declared template; each is resolved to a slot in EventRecord by
// the event assembler (component E).
type FieldType uint8

const (
	FieldTimestamp FieldType = 0
	FieldStatus    FieldType = 1
	FieldLatitude  FieldType = 2
	FieldLongitude FieldType = 3
	FieldSpeed     FieldType = 4
	FieldHeading   FieldType = 5
	FieldAltitude  FieldType = 6
	FieldDistance  FieldType = 7
	FieldTopSpeed  FieldType = 8
	FieldGeofence1 FieldType = 9
	FieldGeofence2 FieldType = 10
	FieldSequence  FieldType = 11
	FieldDataSrc   FieldType = 12
	FieldRawData   FieldType = 13
)

// fieldNames gives the display name of each recognised field type; a type
// is recognised exactly when it has an entry here.
var fieldNames = map[FieldType]string{
	FieldTimestamp: "timestamp",
	FieldStatus:    "statusCode",
	FieldLatitude:  "latitude",
	FieldLongitude: "longitude",
	FieldSpeed:     "speedKph",
	FieldHeading:   "headingDeg",
	FieldAltitude:  "altitudeMeters",
	FieldDistance:  "distanceKm",
	FieldTopSpeed:  "topSpeedKph",
	FieldGeofence1: "geofenceId1",
	FieldGeofence2: "geofenceId2",
	FieldSequence:  "sequence",
	FieldDataSrc:   "dataSource",
	FieldRawData:   "rawData",
}

func (f FieldType) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return fmt.Sprintf("field(%d)", uint8(f))
}

// IsRecognised reports whether the core knows how to decode/coerce a field
// of this type. Custom templates may only reference recognised types
// (spec.md §4.C).
func (f FieldType) IsRecognised() bool {
	_, ok := fieldNames[f]
	return ok
}

// FieldDef is one element of a device-declared Template (spec.md §3).
type FieldDef struct {
	Type   FieldType
	HiRes  bool
	Index  int
	Length int // bytes on the wire
}

// Template is a device-declared layout for one custom event packet type.
type Template struct {
	AccountID  string
	DeviceID   string
	PacketType uint8
	RepeatLast bool
	Fields     []FieldDef
}

// TotalLength returns the sum of field lengths, used to validate against
// the configured max payload length (spec.md §3 invariant).
func (t Template) TotalLength() int {
	n := 0
	for _, f := range t.Fields {
		n += f.Length
	}
	return n
}

// EventRecord is the canonical, persistence-ready event produced by the
// event assembler (component E).
type EventRecord struct {
	Account   string
	Device    string
	Timestamp int64 // seconds since epoch, UTC
	Status    uint32
	DataSrc   string

	Latitude  float64
	Longitude float64
	SpeedKph  float64
	HeadingDeg float64
	AltitudeM  float64
	DistanceKm float64
	TopSpeedKph float64

	GeofenceID [2]uint32

	RawData []byte
}

// Key returns the EventRecord's natural key, used by stores to detect
// duplicates (spec.md §3: "Keys are (account, device, timestamp,
// statusCode); duplicates are reported rather than replaced.").
func (e EventRecord) Key() string {
	return fmt.Sprintf("%s/%s/%d/%d", e.Account, e.Device, e.Timestamp, e.Status)
}
