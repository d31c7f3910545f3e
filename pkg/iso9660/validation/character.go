package validation

import (
	"fmt"
	"strings"

	"github.com/psxtools/psx-kit/pkg/consts"
)

// validateByAllowedChars is a generic helper that checks if every character in
// s is contained in the allowed set. The field name is used in error messages.
func validateByAllowedChars(s, allowed, field string) error {
	for _, r := range s {
		if !strings.ContainsRune(allowed, r) {
			return fmt.Errorf("illegal character '%c' in %s \"%s\"", r, field, s)
		}
	}
	return nil
}

// ValidateDCharacters checks that every character in the input string is one
// of the allowed d-characters (digits, uppercase letters, underscore).
func ValidateDCharacters(s, field string) error {
	return validateByAllowedChars(s, consts.D_CHARACTERS, field)
}

// ValidateACharacters checks that every character in the input string is one
// of the allowed a-characters.
func ValidateACharacters(s, field string) error {
	return validateByAllowedChars(s, consts.A_CHARACTERS, field)
}

// ValidateFileName checks that the given string is a valid file name:
// d-characters plus the '.' extension separator. The ";1" version suffix is
// appended after validation, so it is not part of the allowed set here.
func ValidateFileName(s, field string) error {
	return validateByAllowedChars(s, consts.D_CHARACTERS+consts.ISO9660_SEPARATOR_1, field)
}

// ValidateLBN checks that a requested start LBN lies inside the addressable
// range: after the volume descriptor set terminator and before the end of a
// 74-minute medium. A zero value means "unconstrained" and is always valid.
func ValidateLBN(lbn uint32, itemName string) error {
	if lbn == 0 {
		return nil
	}
	if lbn <= consts.ISO9660_EVD_SECTOR || lbn >= consts.MAX_ISO_SECTORS {
		return fmt.Errorf("start LBN '%d' of '%s' is outside the valid range %d..%d",
			lbn, itemName, consts.ISO9660_EVD_SECTOR, consts.MAX_ISO_SECTORS)
	}
	return nil
}
