// Package descriptor implements the ISO9660 volume descriptors per ECMA-119
// clause 8: the primary volume descriptor and the volume descriptor set
// terminator.
package descriptor

import (
	"encoding/binary"
	"fmt"

	"github.com/psxtools/psx-kit/pkg/consts"
	"github.com/psxtools/psx-kit/pkg/helpers"
	"github.com/psxtools/psx-kit/pkg/iso9660/encoding"
)

// Volume descriptor types per ECMA-119 clause 8.1.1.
const (
	TYPE_PRIMARY    = 1
	TYPE_TERMINATOR = 255
)

// Identifier field lengths.
const (
	SYSTEM_ID_LENGTH      = 32
	VOLUME_ID_LENGTH      = 32
	VOLUME_SET_ID_LENGTH  = 128
	PUBLISHER_ID_LENGTH   = 128
	PREPARER_ID_LENGTH    = 128
	APPLICATION_ID_LENGTH = 128
	FILE_ID_LENGTH        = 37
)

// Header is the 7-byte header common to all volume descriptors, ECMA-119
// clause 8.1.
type Header struct {
	Type    byte
	Version byte
}

// Marshal serializes the header.
func (h *Header) Marshal() [consts.ISO9660_VOLUME_DESC_HEADER_SIZE]byte {
	var buffer [consts.ISO9660_VOLUME_DESC_HEADER_SIZE]byte
	buffer[0] = h.Type
	copy(buffer[1:6], consts.ISO9660_STD_IDENTIFIER)
	buffer[6] = h.Version
	return buffer
}

// Unmarshal decodes and validates the header.
func (h *Header) Unmarshal(data []byte) error {
	if len(data) < consts.ISO9660_VOLUME_DESC_HEADER_SIZE {
		return fmt.Errorf("volume descriptor header truncated")
	}
	if string(data[1:6]) != consts.ISO9660_STD_IDENTIFIER {
		return fmt.Errorf("invalid standard identifier %q", string(data[1:6]))
	}
	h.Type = data[0]
	h.Version = data[6]
	return nil
}

// PrimaryVolumeDescriptor is the primary volume descriptor, ECMA-119
// clause 8.4, with the root directory record held in serialized form.
type PrimaryVolumeDescriptor struct {
	SystemIdentifier          string
	VolumeIdentifier          string
	VolumeSpaceSize           uint32
	VolumeSetSize             uint16
	VolumeSequenceNumber      uint16
	LogicalBlockSize          uint16
	PathTableSize             uint32
	TypeLPathTableLocation    uint32
	OptTypeLPathTableLocation uint32
	TypeMPathTableLocation    uint32
	OptTypeMPathTableLocation uint32
	RootDirectoryRecord       [34]byte
	VolumeSetIdentifier       string
	PublisherIdentifier       string
	DataPreparerIdentifier    string
	ApplicationIdentifier     string
	CopyrightFileIdentifier   string
	AbstractFileIdentifier    string
	BibliographicFileID       string
	CreationDate              encoding.LongDateTime
	ModificationDate          encoding.LongDateTime
	ExpirationDate            encoding.LongDateTime
	EffectiveDate             encoding.LongDateTime
	ApplicationUse            [consts.ISO9660_APPLICATION_USE_SIZE]byte
}

// Marshal serializes the descriptor into a full logical sector.
func (d *PrimaryVolumeDescriptor) Marshal() ([consts.ISO9660_SECTOR_SIZE]byte, error) {
	var buffer [consts.ISO9660_SECTOR_SIZE]byte

	header := Header{Type: TYPE_PRIMARY, Version: consts.ISO9660_VOLUME_DESC_VERSION}
	h := header.Marshal()
	copy(buffer[0:7], h[:])

	copy(buffer[8:40], helpers.PadString(d.SystemIdentifier, SYSTEM_ID_LENGTH))
	copy(buffer[40:72], helpers.PadString(d.VolumeIdentifier, VOLUME_ID_LENGTH))

	copy(buffer[80:88], encoding.MarshalBothByteOrders32(d.VolumeSpaceSize))
	copy(buffer[120:124], encoding.MarshalBothByteOrders16(d.VolumeSetSize))
	copy(buffer[124:128], encoding.MarshalBothByteOrders16(d.VolumeSequenceNumber))
	copy(buffer[128:132], encoding.MarshalBothByteOrders16(d.LogicalBlockSize))
	copy(buffer[132:140], encoding.MarshalBothByteOrders32(d.PathTableSize))

	binary.LittleEndian.PutUint32(buffer[140:144], d.TypeLPathTableLocation)
	binary.LittleEndian.PutUint32(buffer[144:148], d.OptTypeLPathTableLocation)
	binary.BigEndian.PutUint32(buffer[148:152], d.TypeMPathTableLocation)
	binary.BigEndian.PutUint32(buffer[152:156], d.OptTypeMPathTableLocation)

	copy(buffer[156:190], d.RootDirectoryRecord[:])

	copy(buffer[190:318], helpers.PadString(d.VolumeSetIdentifier, VOLUME_SET_ID_LENGTH))
	copy(buffer[318:446], helpers.PadString(d.PublisherIdentifier, PUBLISHER_ID_LENGTH))
	copy(buffer[446:574], helpers.PadString(d.DataPreparerIdentifier, PREPARER_ID_LENGTH))
	copy(buffer[574:702], helpers.PadString(d.ApplicationIdentifier, APPLICATION_ID_LENGTH))
	copy(buffer[702:739], helpers.PadString(d.CopyrightFileIdentifier, FILE_ID_LENGTH))
	copy(buffer[739:776], helpers.PadString(d.AbstractFileIdentifier, FILE_ID_LENGTH))
	copy(buffer[776:813], helpers.PadString(d.BibliographicFileID, FILE_ID_LENGTH))

	for i, date := range []encoding.LongDateTime{
		d.CreationDate, d.ModificationDate, d.ExpirationDate, d.EffectiveDate,
	} {
		encoded, err := date.Marshal()
		if err != nil {
			return buffer, fmt.Errorf("unable to marshal volume date: %w", err)
		}
		copy(buffer[813+i*17:830+i*17], encoded[:])
	}

	buffer[881] = 1 // file structure version
	copy(buffer[883:883+consts.ISO9660_APPLICATION_USE_SIZE], d.ApplicationUse[:])

	return buffer, nil
}

// Unmarshal decodes a primary volume descriptor from a logical sector.
func (d *PrimaryVolumeDescriptor) Unmarshal(data []byte) error {
	if len(data) < consts.ISO9660_SECTOR_SIZE {
		return fmt.Errorf("volume descriptor truncated")
	}

	var header Header
	if err := header.Unmarshal(data); err != nil {
		return err
	}
	if header.Type != TYPE_PRIMARY {
		return fmt.Errorf("not a primary volume descriptor (type %d)", header.Type)
	}

	d.SystemIdentifier = helpers.StripTrailingFiller(data[8:40])
	d.VolumeIdentifier = helpers.StripTrailingFiller(data[40:72])

	var err error
	if d.VolumeSpaceSize, err = encoding.UnmarshalUint32LSBMSB(data[80:88]); err != nil {
		return fmt.Errorf("unable to unmarshal volume space size: %w", err)
	}
	if d.VolumeSetSize, err = encoding.UnmarshalUint16LSBMSB(data[120:124]); err != nil {
		return fmt.Errorf("unable to unmarshal volume set size: %w", err)
	}
	if d.VolumeSequenceNumber, err = encoding.UnmarshalUint16LSBMSB(data[124:128]); err != nil {
		return fmt.Errorf("unable to unmarshal volume sequence number: %w", err)
	}
	if d.LogicalBlockSize, err = encoding.UnmarshalUint16LSBMSB(data[128:132]); err != nil {
		return fmt.Errorf("unable to unmarshal logical block size: %w", err)
	}
	if d.PathTableSize, err = encoding.UnmarshalUint32LSBMSB(data[132:140]); err != nil {
		return fmt.Errorf("unable to unmarshal path table size: %w", err)
	}

	d.TypeLPathTableLocation = binary.LittleEndian.Uint32(data[140:144])
	d.OptTypeLPathTableLocation = binary.LittleEndian.Uint32(data[144:148])
	d.TypeMPathTableLocation = binary.BigEndian.Uint32(data[148:152])
	d.OptTypeMPathTableLocation = binary.BigEndian.Uint32(data[152:156])

	copy(d.RootDirectoryRecord[:], data[156:190])

	d.VolumeSetIdentifier = helpers.StripTrailingFiller(data[190:318])
	d.PublisherIdentifier = helpers.StripTrailingFiller(data[318:446])
	d.DataPreparerIdentifier = helpers.StripTrailingFiller(data[446:574])
	d.ApplicationIdentifier = helpers.StripTrailingFiller(data[574:702])
	d.CopyrightFileIdentifier = helpers.StripTrailingFiller(data[702:739])
	d.AbstractFileIdentifier = helpers.StripTrailingFiller(data[739:776])
	d.BibliographicFileID = helpers.StripTrailingFiller(data[776:813])

	dates := []*encoding.LongDateTime{
		&d.CreationDate, &d.ModificationDate, &d.ExpirationDate, &d.EffectiveDate,
	}
	for i, date := range dates {
		decoded, err := encoding.UnmarshalLongDateTime(data[813+i*17 : 830+i*17])
		if err != nil {
			return fmt.Errorf("unable to unmarshal volume date: %w", err)
		}
		*date = decoded
	}

	copy(d.ApplicationUse[:], data[883:883+consts.ISO9660_APPLICATION_USE_SIZE])

	return nil
}

// MarshalTerminator serializes a volume descriptor set terminator sector,
// ECMA-119 clause 8.3.
func MarshalTerminator() [consts.ISO9660_SECTOR_SIZE]byte {
	var buffer [consts.ISO9660_SECTOR_SIZE]byte
	header := Header{Type: TYPE_TERMINATOR, Version: consts.ISO9660_VOLUME_DESC_VERSION}
	h := header.Marshal()
	copy(buffer[0:7], h[:])
	return buffer
}
