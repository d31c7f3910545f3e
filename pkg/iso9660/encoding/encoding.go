package encoding

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"time"
)

// MarshalBothByteOrders32 converts a uint32 value into an 8-byte field that
// encodes the value in both little‑endian and big‑endian orders.
// The resulting byte order is: (yz, wx, uv, st, st, uv, wx, yz),
// where (st uv wx yz) is the hexadecimal representation of the value.
func MarshalBothByteOrders32(val uint32) []byte {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], val)
	binary.BigEndian.PutUint32(data[4:8], val)
	return data
}

// UnmarshalUint32LSBMSB converts an 8-byte field encoded in both little‑
// and big‑endian orders back to a uint32 value. It verifies that both halves
// are equal. If they are not, it returns an error.
func UnmarshalUint32LSBMSB(data []byte) (uint32, error) {
	if len(data) < 8 {
		return 0, fmt.Errorf("both-byte order field requires 8 bytes, got %d", len(data))
	}
	little := binary.LittleEndian.Uint32(data[0:4])
	big := binary.BigEndian.Uint32(data[4:8])
	if little != big {
		return 0, fmt.Errorf("mismatched both-byte orders: little-endian value %d != big-endian value %d", little, big)
	}
	return little, nil
}

// MarshalBothByteOrders16 converts a uint16 value into a 4-byte field that
// encodes the value in both little‑endian and big‑endian orders.
// For example, for the value 0x1234, it returns [0x34, 0x12, 0x12, 0x34].
func MarshalBothByteOrders16(val uint16) []byte {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint16(data[0:2], val)
	binary.BigEndian.PutUint16(data[2:4], val)
	return data
}

// UnmarshalUint16LSBMSB converts a 4-byte field encoded in both little‑
// and big‑endian orders back to a uint16 value. It verifies that both halves
// match; if they do not, it returns an error.
func UnmarshalUint16LSBMSB(data []byte) (uint16, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("both-byte order field requires 4 bytes, got %d", len(data))
	}
	little := binary.LittleEndian.Uint16(data[0:2])
	big := binary.BigEndian.Uint16(data[2:4])
	if little != big {
		return 0, fmt.Errorf("mismatched both-byte orders: little-endian value %d != big-endian value %d", little, big)
	}
	return little, nil
}

// LongDateTime is the 17-byte long-format date/time of ISO9660 8.4.26.1: 16
// ASCII digits (YYYYMMDDhhmmsscc) followed by the time zone offset in
// 15-minute intervals as a signed byte.
//
// The digits are carried as a string rather than a time.Time so that a value
// read from an existing volume (or a catalog file) round-trips byte for byte,
// including the all-'0' "unspecified" form.
type LongDateTime struct {
	// Digits holds exactly 16 ASCII digits: YYYYMMDDhhmmsscc.
	Digits string
	// GMTOffset is the offset from GMT in 15-minute intervals.
	GMTOffset int8
}

// longDateTimeSpec matches the catalog/textual form of a long-format
// timestamp: "YYYY-MM-DD hh:mm:ss.cc offset".
var longDateTimeSpec = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})\s+(\d{2}):(\d{2}):(\d{2})\.(\d{2})\s+(-?\d+)$`)

// UnspecifiedLongDateTime returns the "unspecified" value: sixteen ASCII '0'
// digits with a zero GMT offset.
func UnspecifiedLongDateTime() LongDateTime {
	return LongDateTime{Digits: "0000000000000000", GMTOffset: 0}
}

// ParseLongDateTime parses a textual "YYYY-MM-DD hh:mm:ss.cc offset"
// specification into a LongDateTime.
func ParseLongDateTime(s string) (LongDateTime, error) {
	m := longDateTimeSpec.FindStringSubmatch(s)
	if m == nil {
		return LongDateTime{}, fmt.Errorf("'%s' is not a valid date/time specification", s)
	}

	var gmtOff int
	if _, err := fmt.Sscanf(m[8], "%d", &gmtOff); err != nil {
		return LongDateTime{}, fmt.Errorf("'%s' is not a valid GMT offset specification", m[8])
	}
	if gmtOff < -48 || gmtOff > 52 {
		return LongDateTime{}, fmt.Errorf("GMT offset %d is outside the valid range -48..52", gmtOff)
	}

	return LongDateTime{
		Digits:    m[1] + m[2] + m[3] + m[4] + m[5] + m[6] + m[7],
		GMTOffset: int8(gmtOff),
	}, nil
}

// IsUnspecified reports whether the value is the all-'0' unspecified form.
func (l LongDateTime) IsUnspecified() bool {
	for i := 0; i < len(l.Digits); i++ {
		if l.Digits[i] != '0' {
			return false
		}
	}
	return l.GMTOffset == 0
}

// String formats the value in the textual form used by catalog files.
func (l LongDateTime) String() string {
	d := l.Digits
	return fmt.Sprintf("%s-%s-%s %s:%s:%s.%s %d",
		d[0:4], d[4:6], d[6:8], d[8:10], d[10:12], d[12:14], d[14:16], l.GMTOffset)
}

// Marshal converts the value into its 17-byte on-disk representation.
func (l LongDateTime) Marshal() ([17]byte, error) {
	var out [17]byte
	if len(l.Digits) != 16 {
		return out, fmt.Errorf("long date/time must hold 16 digits, got %d", len(l.Digits))
	}
	for i := 0; i < 16; i++ {
		if l.Digits[i] < '0' || l.Digits[i] > '9' {
			return out, fmt.Errorf("long date/time digit %d is not an ASCII digit: %q", i, l.Digits[i])
		}
	}
	copy(out[:16], l.Digits)
	out[16] = byte(l.GMTOffset)
	return out, nil
}

// UnmarshalLongDateTime decodes a 17-byte long-format field. Fields recorded
// as all spaces (seen on some mastered discs) are normalized to the
// unspecified form.
func UnmarshalLongDateTime(b []byte) (LongDateTime, error) {
	if len(b) < 17 {
		return LongDateTime{}, fmt.Errorf("long date/time field requires 17 bytes, got %d", len(b))
	}
	digits := make([]byte, 16)
	for i := 0; i < 16; i++ {
		c := b[i]
		switch {
		case c >= '0' && c <= '9':
			digits[i] = c
		case c == ' ' || c == 0:
			digits[i] = '0'
		default:
			return LongDateTime{}, fmt.Errorf("long date/time byte %d is not an ASCII digit: 0x%02X", i, c)
		}
	}
	return LongDateTime{Digits: string(digits), GMTOffset: int8(b[16])}, nil
}

// Time converts the value into a time.Time in the fixed zone given by the GMT
// offset. The unspecified form yields the zero time.
func (l LongDateTime) Time() (time.Time, error) {
	if l.IsUnspecified() {
		return time.Time{}, nil
	}
	var year, mon, day, hour, min, sec, hundredths int
	if _, err := fmt.Sscanf(l.Digits, "%4d%2d%2d%2d%2d%2d%2d",
		&year, &mon, &day, &hour, &min, &sec, &hundredths); err != nil {
		return time.Time{}, fmt.Errorf("parse error: %v", err)
	}

	offsetSec := int(l.GMTOffset) * 900
	loc := time.UTC
	if offsetSec != 0 {
		loc = time.FixedZone("", offsetSec)
	}
	return time.Date(year, time.Month(mon), day, hour, min, sec, hundredths*10_000_000, loc), nil
}

// MarshalRecordingDateTime converts a time.Time into the 7-byte field of
// Table 9 – Recording Date and Time. The zero time yields seven zero bytes
// ("not specified"). All fields are stored as numerical values.
func MarshalRecordingDateTime(t time.Time) ([7]byte, error) {
	var b [7]byte
	if t.IsZero() {
		return b, nil
	}

	year, month, day := t.Date()
	hour, minute, second := t.Clock()

	// The field stores the number of years since 1900, so valid years are 1900–2155.
	if year < 1900 || year > 2155 {
		return b, fmt.Errorf("year %d out of range for Recording Date and Time (must be between 1900 and 2155)", year)
	}
	b[0] = byte(year - 1900)
	b[1] = byte(month)
	b[2] = byte(day)
	b[3] = byte(hour)
	b[4] = byte(minute)
	b[5] = byte(second)

	_, offsetSec := t.Zone()
	offset15 := int8(offsetSec / (15 * 60))
	if offset15 < -48 || offset15 > 52 {
		return b, fmt.Errorf("time zone offset %d (in 15-minute intervals: %d) is out of allowed range", offsetSec, offset15)
	}
	b[6] = byte(offset15)
	return b, nil
}

// UnmarshalRecordingDateTime converts a 7-byte Recording Date and Time field
// into a time.Time. If all seven bytes are zero, the zero time is returned.
func UnmarshalRecordingDateTime(b []byte) (time.Time, error) {
	if len(b) < 7 {
		return time.Time{}, fmt.Errorf("recording date/time field requires 7 bytes, got %d", len(b))
	}
	allZero := true
	for _, v := range b[:7] {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return time.Time{}, nil
	}

	offset15 := int8(b[6])
	offsetSec := int(offset15) * 15 * 60
	loc := time.UTC
	if offsetSec != 0 {
		loc = time.FixedZone("", offsetSec)
	}
	return time.Date(int(b[0])+1900, time.Month(b[1]), int(b[2]), int(b[3]), int(b[4]), int(b[5]), 0, loc), nil
}
