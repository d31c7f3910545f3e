// Package xa implements the CD-ROM XA extension record carried in the system
// use field of every directory record on a PlayStation 1 volume.
package xa

import (
	"encoding/binary"
	"fmt"
)

// Record size of the XA attribute extension (always 14 bytes).
const RECORD_SIZE = 14

// signature identifying the extension inside the system use field.
const signature = "XA"

// Attribute flag bits of the 16-bit attributes field.
const (
	PERM_READ_SYS = 0x0001
	PERM_EXEC_SYS = 0x0004
	PERM_READ_USR = 0x0010
	PERM_EXEC_USR = 0x0040
	PERM_READ_GRP = 0x0100
	PERM_EXEC_GRP = 0x0400

	ATTR_MODE2FORM1  = 1 << 11
	ATTR_MODE2FORM2  = 1 << 12
	ATTR_INTERLEAVED = 1 << 13
	ATTR_CDDA        = 1 << 14
	ATTR_DIRECTORY   = 1 << 15

	permAllRead = PERM_READ_USR | PERM_READ_SYS | PERM_READ_GRP
	permAllExec = PERM_EXEC_USR | PERM_EXEC_SYS | PERM_EXEC_GRP
	permAll     = permAllRead | permAllExec

	// Composite attribute values used when mastering.
	FORM1_DIR  = ATTR_DIRECTORY | ATTR_MODE2FORM1 | permAll
	FORM1_FILE = ATTR_MODE2FORM1 | permAll
	FORM2_FILE = ATTR_MODE2FORM2 | permAll
)

// Record is the 14-byte XA attribute record. Group, user and attribute fields
// are recorded big-endian; the signature is the two ASCII characters "XA".
type Record struct {
	// Group Identification of the file owner group.
	GroupID uint16 `json:"group_id"`
	// User Identification of the file owner.
	UserID uint16 `json:"user_id"`
	// Attributes holds the permission and sector-form flag bits.
	Attributes uint16 `json:"attributes"`
	// File Number is the XA file number matched against the subheader of the
	// file's sectors (non-zero only for Form 2 / interleaved files).
	FileNumber uint8 `json:"file_number"`
}

// NewRecord mirrors the field order used when mastering: owner, group,
// attributes and file number.
func NewRecord(userID, groupID uint16, attributes uint16, fileNumber uint8) Record {
	return Record{
		GroupID:    groupID,
		UserID:     userID,
		Attributes: attributes,
		FileNumber: fileNumber,
	}
}

// IsForm2 reports whether the attributes mark a Form 2 or interleaved file.
func (r Record) IsForm2() bool {
	return r.Attributes&(ATTR_MODE2FORM2|ATTR_INTERLEAVED) != 0
}

// IsCDDA reports whether the attributes mark a CD-DA (audio) file.
func (r Record) IsCDDA() bool {
	return r.Attributes&ATTR_CDDA != 0
}

// IsDirectory reports whether the attributes mark a directory extent.
func (r Record) IsDirectory() bool {
	return r.Attributes&ATTR_DIRECTORY != 0
}

// Marshal converts the Record into its 14-byte on-disk representation.
func (r Record) Marshal() [RECORD_SIZE]byte {
	var buf [RECORD_SIZE]byte
	binary.BigEndian.PutUint16(buf[0:2], r.GroupID)
	binary.BigEndian.PutUint16(buf[2:4], r.UserID)
	binary.BigEndian.PutUint16(buf[4:6], r.Attributes)
	copy(buf[6:8], signature)
	buf[8] = r.FileNumber
	// bytes 9..13 reserved, zero
	return buf
}

// Unmarshal decodes a Record from a system use field. It verifies the "XA"
// signature and the field length.
func Unmarshal(data []byte) (Record, error) {
	var r Record
	if len(data) < RECORD_SIZE {
		return r, fmt.Errorf("system use field of %d bytes is too short for an XA record", len(data))
	}
	if string(data[6:8]) != signature {
		return r, fmt.Errorf("missing XA signature, got %q", data[6:8])
	}
	r.GroupID = binary.BigEndian.Uint16(data[0:2])
	r.UserID = binary.BigEndian.Uint16(data[2:4])
	r.Attributes = binary.BigEndian.Uint16(data[4:6])
	r.FileNumber = data[8]
	return r, nil
}
