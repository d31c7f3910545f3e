package helpers

import "github.com/psxtools/psx-kit/pkg/consts"

// PadString copies s into a new byte slice of the given length, filling the
// remainder with the ISO9660 filler character (space). Longer strings are
// truncated.
func PadString(s string, length int) []byte {
	b := make([]byte, length)
	copy(b, s)
	for i := len(s); i < length; i++ {
		b[i] = consts.ISO9660_FILLER
	}
	return b
}

// StripTrailingFiller removes trailing filler characters from an identifier
// field read back from a descriptor.
func StripTrailingFiller(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == consts.ISO9660_FILLER || b[end-1] == 0) {
		end--
	}
	return string(b[:end])
}
