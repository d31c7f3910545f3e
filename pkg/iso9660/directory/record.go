// Package directory implements ISO9660 directory records and directory
// extents with CD-ROM XA attributes in the system use area, per ECMA-119
// clause 9.1.
package directory

import (
	"bytes"
	"fmt"
	"time"

	"github.com/psxtools/psx-kit/pkg/consts"
	"github.com/psxtools/psx-kit/pkg/iso9660/encoding"
)

// File flag bits per ECMA-119 clause 9.1.6.
const (
	FLAG_EXISTENCE = 0x01
	FLAG_DIRECTORY = 0x02
)

// Record is a single directory record. Extent location and data length are
// recorded in both-byte order on disc.
type Record struct {
	ExtendedAttributeRecordLength byte
	ExtentLocation                uint32
	DataLength                    uint32
	RecordingDateTime             time.Time
	FileFlags                     byte
	FileUnitSize                  byte
	InterleaveGapSize             byte
	VolumeSequenceNumber          uint16
	Identifier                    string
	SystemUse                     []byte
}

// RecordSize returns the on-disc size of a directory record with a name of
// nameLen bytes and suLen bytes of system use data. The fixed part is 33
// bytes and the record is padded to an even length before the system use
// area.
func RecordSize(nameLen, suLen int) int {
	size := 33 + nameLen
	if size%2 != 0 {
		size++
	}
	return size + suLen
}

// Len returns the on-disc size of the record.
func (r *Record) Len() int {
	return RecordSize(len(r.Identifier), len(r.SystemUse))
}

// IsDir reports whether the record describes a directory.
func (r *Record) IsDir() bool {
	return r.FileFlags&FLAG_DIRECTORY != 0
}

// Marshal serializes the record.
func (r *Record) Marshal() ([]byte, error) {
	length := r.Len()
	if length > 0xFF {
		return nil, fmt.Errorf("directory record for %q exceeds 255 bytes", r.Identifier)
	}
	buffer := make([]byte, length)

	buffer[0] = byte(length)
	buffer[1] = r.ExtendedAttributeRecordLength

	copy(buffer[2:10], encoding.MarshalBothByteOrders32(r.ExtentLocation))
	copy(buffer[10:18], encoding.MarshalBothByteOrders32(r.DataLength))

	recTime, err := encoding.MarshalRecordingDateTime(r.RecordingDateTime)
	if err != nil {
		return nil, err
	}
	copy(buffer[18:25], recTime[:])

	buffer[25] = r.FileFlags
	buffer[26] = r.FileUnitSize
	buffer[27] = r.InterleaveGapSize
	copy(buffer[28:32], encoding.MarshalBothByteOrders16(r.VolumeSequenceNumber))

	identifier := r.Identifier
	if identifier == "" {
		identifier = "\x00"
	}
	buffer[32] = byte(len(identifier))
	copy(buffer[33:], identifier)

	// The system use area starts on an even offset.
	copy(buffer[length-len(r.SystemUse):], r.SystemUse)

	return buffer, nil
}

// Unmarshal decodes a directory record from the start of data and returns its
// on-disc length. A length byte of zero means no record starts here (the
// remainder of the sector is padding).
func (r *Record) Unmarshal(data []byte) (int, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("directory record data truncated")
	}
	length := int(data[0])
	if length == 0 {
		return 0, nil
	}
	if length < 34 || length > len(data) {
		return 0, fmt.Errorf("invalid directory record length %d", length)
	}

	r.ExtendedAttributeRecordLength = data[1]

	var err error
	r.ExtentLocation, err = encoding.UnmarshalUint32LSBMSB(data[2:10])
	if err != nil {
		return 0, fmt.Errorf("unable to unmarshal extent location: %w", err)
	}
	r.DataLength, err = encoding.UnmarshalUint32LSBMSB(data[10:18])
	if err != nil {
		return 0, fmt.Errorf("unable to unmarshal data length: %w", err)
	}

	r.RecordingDateTime, err = encoding.UnmarshalRecordingDateTime(data[18:25])
	if err != nil {
		return 0, fmt.Errorf("unable to unmarshal recording date and time: %w", err)
	}

	r.FileFlags = data[25]
	r.FileUnitSize = data[26]
	r.InterleaveGapSize = data[27]
	r.VolumeSequenceNumber, err = encoding.UnmarshalUint16LSBMSB(data[28:32])
	if err != nil {
		return 0, fmt.Errorf("unable to unmarshal volume sequence number: %w", err)
	}

	identifierLen := int(data[32])
	if 33+identifierLen > length {
		return 0, fmt.Errorf("directory record identifier overruns record")
	}
	identifier := data[33 : 33+identifierLen]
	if bytes.Equal(identifier, []byte{0}) {
		r.Identifier = ""
	} else {
		r.Identifier = string(identifier)
	}

	suStart := 33 + identifierLen
	if suStart%2 != 0 {
		suStart++
	}
	if suStart < length {
		r.SystemUse = make([]byte, length-suStart)
		copy(r.SystemUse, data[suStart:length])
	} else {
		r.SystemUse = nil
	}

	return length, nil
}

// ReadExtent decodes all records from a directory extent, skipping the sector
// padding after the last record of each logical sector.
func ReadExtent(data []byte) ([]Record, error) {
	var records []Record
	offset := 0
	for offset < len(data) {
		if data[offset] == 0 {
			// rest of this sector is padding
			offset = nextSector(offset)
			continue
		}
		var r Record
		n, err := r.Unmarshal(data[offset:])
		if err != nil {
			return nil, fmt.Errorf("unable to unmarshal directory record at offset %d: %w", offset, err)
		}
		records = append(records, r)
		offset += n
	}
	return records, nil
}

func nextSector(offset int) int {
	return (offset/consts.ISO9660_SECTOR_SIZE + 1) * consts.ISO9660_SECTOR_SIZE
}
