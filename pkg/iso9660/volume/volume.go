// Package volume holds the descriptive metadata of a volume: the identifier
// strings and dates recorded in the primary volume descriptor, plus the
// default file ownership recorded in the XA attributes.
package volume

import (
	"fmt"

	"github.com/psxtools/psx-kit/pkg/iso9660/descriptor"
	"github.com/psxtools/psx-kit/pkg/iso9660/encoding"
	"github.com/psxtools/psx-kit/pkg/iso9660/validation"
)

// Metadata describes a volume. The zero value has empty identifiers and
// unspecified dates.
type Metadata struct {
	SystemIdentifier        string
	VolumeIdentifier        string
	VolumeSetIdentifier     string
	PublisherIdentifier     string
	DataPreparerIdentifier  string
	ApplicationIdentifier   string
	CopyrightFileIdentifier string
	AbstractFileIdentifier  string
	BibliographicFileID     string

	CreationDate     encoding.LongDateTime
	ModificationDate encoding.LongDateTime
	ExpirationDate   encoding.LongDateTime
	EffectiveDate    encoding.LongDateTime

	// DefaultUID and DefaultGID are recorded in the XA attributes of every
	// file.
	DefaultUID uint16
	DefaultGID uint16
}

// NewMetadata returns a Metadata with all dates unspecified.
func NewMetadata() Metadata {
	return Metadata{
		CreationDate:     encoding.UnspecifiedLongDateTime(),
		ModificationDate: encoding.UnspecifiedLongDateTime(),
		ExpirationDate:   encoding.UnspecifiedLongDateTime(),
		EffectiveDate:    encoding.UnspecifiedLongDateTime(),
	}
}

type identifierRule struct {
	name     string
	value    string
	maxLen   int
	validate func(s, field string) error
}

// Validate checks every identifier against its ISO9660 character set and
// length limit.
func (m *Metadata) Validate() error {
	rules := []identifierRule{
		{"system_id", m.SystemIdentifier, descriptor.SYSTEM_ID_LENGTH, validation.ValidateACharacters},
		{"volume_id", m.VolumeIdentifier, descriptor.VOLUME_ID_LENGTH, validation.ValidateDCharacters},
		{"volume_set_id", m.VolumeSetIdentifier, descriptor.VOLUME_SET_ID_LENGTH, validation.ValidateDCharacters},
		{"publisher_id", m.PublisherIdentifier, descriptor.PUBLISHER_ID_LENGTH, validation.ValidateACharacters},
		{"preparer_id", m.DataPreparerIdentifier, descriptor.PREPARER_ID_LENGTH, validation.ValidateACharacters},
		{"application_id", m.ApplicationIdentifier, descriptor.APPLICATION_ID_LENGTH, validation.ValidateACharacters},
		{"copyright_file_id", m.CopyrightFileIdentifier, descriptor.FILE_ID_LENGTH, validation.ValidateFileName},
		{"abstract_file_id", m.AbstractFileIdentifier, descriptor.FILE_ID_LENGTH, validation.ValidateFileName},
		{"bibliographic_file_id", m.BibliographicFileID, descriptor.FILE_ID_LENGTH, validation.ValidateFileName},
	}

	for _, rule := range rules {
		if len(rule.value) > rule.maxLen {
			return fmt.Errorf("%s %q exceeds %d characters", rule.name, rule.value, rule.maxLen)
		}
		if err := rule.validate(rule.value, rule.name); err != nil {
			return err
		}
	}
	return nil
}
