// Package pathtable implements the ISO9660 path tables per ECMA-119
// clause 9.4: a flat, breadth-first listing of every directory on the
// volume, recorded once least-significant-byte-first (type L) and once
// most-significant-byte-first (type M).
package pathtable

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/psxtools/psx-kit/pkg/consts"
	"github.com/psxtools/psx-kit/pkg/iso9660/fstree"
)

// ErrTooLarge is returned when a path table does not fit in a single logical
// sector. The volume descriptor only records one extent location per table,
// so larger tables are not supported.
var ErrTooLarge = errors.New("path table is larger than one sector")

// Builder accumulates path table records and serializes both byte orders.
type Builder struct {
	lTable []byte
	mTable []byte
	count  uint16
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a record for a directory and returns its 1-based record
// number. The root directory is always record 1 and is identified by a
// single zero byte. Parents must be added before their children.
func (b *Builder) Add(name string, extent uint32, parentNumber uint16) uint16 {
	identifier := []byte(name)
	if len(identifier) == 0 {
		identifier = []byte{0}
	}

	b.lTable = appendRecord(b.lTable, identifier, extent, parentNumber, binary.LittleEndian)
	b.mTable = appendRecord(b.mTable, identifier, extent, parentNumber, binary.BigEndian)

	b.count++
	return b.count
}

func appendRecord(table, identifier []byte, extent uint32, parentNumber uint16, order binary.ByteOrder) []byte {
	record := make([]byte, 8+len(identifier)+len(identifier)%2)
	record[0] = byte(len(identifier))
	record[1] = 0 // extended attribute record length
	order.PutUint32(record[2:6], extent)
	order.PutUint16(record[6:8], parentNumber)
	copy(record[8:], identifier)
	return append(table, record...)
}

// Size returns the path table size in bytes. Both byte orders are the same
// size.
func (b *Builder) Size() uint32 {
	return uint32(len(b.lTable))
}

// LTable returns the type L (LSB-first) path table.
func (b *Builder) LTable() []byte {
	return b.lTable
}

// MTable returns the type M (MSB-first) path table.
func (b *Builder) MTable() []byte {
	return b.mTable
}

// Build constructs the path tables for a filesystem tree, assigning the
// RecordNumber field of every directory node. Directories are visited
// breadth first with siblings sorted by name, so a parent's record number is
// always assigned before its children reference it.
func Build(root *fstree.Node) (*Builder, error) {
	builder := NewBuilder()

	err := root.Walk(fstree.BreadthFirstSorted, func(node *fstree.Node) error {
		if !node.IsDir() {
			return nil
		}
		parentNumber := uint16(1)
		if node.Parent != nil {
			parentNumber = node.Parent.RecordNumber
		}
		node.RecordNumber = builder.Add(node.Name, node.FirstSector, parentNumber)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if builder.Size() > consts.ISO9660_SECTOR_SIZE {
		return nil, ErrTooLarge
	}
	return builder, nil
}

// Record is a decoded path table record.
type Record struct {
	Identifier   string
	Extent       uint32
	ParentNumber uint16
}

// Decode parses a path table of the given byte order into its records.
func Decode(table []byte, order binary.ByteOrder) ([]Record, error) {
	var records []Record
	offset := 0
	for offset < len(table) {
		identifierLen := int(table[offset])
		if identifierLen == 0 {
			break
		}
		recordLen := 8 + identifierLen + identifierLen%2
		if offset+recordLen > len(table) {
			return nil, fmt.Errorf("path table record at offset %d overruns table", offset)
		}

		record := Record{
			Extent:       order.Uint32(table[offset+2 : offset+6]),
			ParentNumber: order.Uint16(table[offset+6 : offset+8]),
		}
		identifier := table[offset+8 : offset+8+identifierLen]
		if identifierLen != 1 || identifier[0] != 0 {
			record.Identifier = string(identifier)
		}

		records = append(records, record)
		offset += recordLen
	}
	return records, nil
}
