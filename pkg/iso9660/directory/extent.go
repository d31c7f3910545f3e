package directory

import (
	"fmt"
	"time"

	"github.com/psxtools/psx-kit/pkg/consts"
	"github.com/psxtools/psx-kit/pkg/iso9660/fstree"
	"github.com/psxtools/psx-kit/pkg/iso9660/xa"
)

// extentBuilder serializes directory records into a fixed-size directory
// extent. Records never cross a logical sector boundary; a record that would
// is moved to the start of the next sector and the gap is left zeroed.
type extentBuilder struct {
	data   []byte
	offset int
}

func newExtentBuilder(numSectors uint32) *extentBuilder {
	return &extentBuilder{data: make([]byte, numSectors*consts.ISO9660_SECTOR_SIZE)}
}

func (b *extentBuilder) add(r *Record) error {
	encoded, err := r.Marshal()
	if err != nil {
		return err
	}
	if b.offset/consts.ISO9660_SECTOR_SIZE != (b.offset+len(encoded)-1)/consts.ISO9660_SECTOR_SIZE {
		b.offset = nextSector(b.offset)
	}
	if b.offset+len(encoded) > len(b.data) {
		return fmt.Errorf("directory record for %q does not fit in extent", r.Identifier)
	}
	copy(b.data[b.offset:], encoded)
	b.offset += len(encoded)
	return nil
}

// BuildExtents serializes the directory extent of every directory in the
// tree, filling in the Data field. Sector allocation must already have run:
// the records reference the children's extent locations. Form 1 files record
// their byte size; form 2 files and directories record whole sectors. The
// default owner applies to files, directories are owned by root.
func BuildExtents(root *fstree.Node, defaultUID, defaultGID uint16, recordingTime time.Time) error {
	return root.Walk(fstree.PreOrderSorted, func(node *fstree.Node) error {
		if !node.IsDir() {
			return nil
		}
		return buildExtent(node, defaultUID, defaultGID, recordingTime)
	})
}

func buildExtent(dir *fstree.Node, defaultUID, defaultGID uint16, recordingTime time.Time) error {
	builder := newExtentBuilder(dir.NumSectors)
	dirXA := xa.NewRecord(0, 0, xa.FORM1_DIR, 0).Marshal()

	parent := dir.Parent
	if parent == nil {
		parent = dir // the root is its own parent
	}

	dot := Record{
		ExtentLocation:       dir.FirstSector,
		DataLength:           dir.NumSectors * consts.ISO9660_SECTOR_SIZE,
		RecordingDateTime:    recordingTime,
		FileFlags:            FLAG_DIRECTORY,
		VolumeSequenceNumber: 1,
		Identifier:           "\x00",
		SystemUse:            dirXA[:],
	}
	if err := builder.add(&dot); err != nil {
		return err
	}

	dotDot := dot
	dotDot.ExtentLocation = parent.FirstSector
	dotDot.DataLength = parent.NumSectors * consts.ISO9660_SECTOR_SIZE
	dotDot.Identifier = "\x01"
	if err := builder.add(&dotDot); err != nil {
		return err
	}

	for _, child := range dir.SortedChildren() {
		record := Record{
			ExtentLocation:       child.FirstSector,
			DataLength:           child.NumSectors * consts.ISO9660_SECTOR_SIZE,
			RecordingDateTime:    recordingTime,
			VolumeSequenceNumber: 1,
			Identifier:           child.Name,
		}

		if child.IsDir() {
			record.FileFlags = FLAG_DIRECTORY | FLAG_EXISTENCE
			childXA := xa.NewRecord(0, 0, xa.FORM1_DIR, 0).Marshal()
			record.SystemUse = childXA[:]
		} else if child.IsForm2 {
			record.FileFlags = FLAG_EXISTENCE
			childXA := xa.NewRecord(defaultUID, defaultGID, xa.FORM2_FILE, 1).Marshal()
			record.SystemUse = childXA[:]
		} else {
			record.FileFlags = FLAG_EXISTENCE
			record.DataLength = child.Size
			childXA := xa.NewRecord(defaultUID, defaultGID, xa.FORM1_FILE, 0).Marshal()
			record.SystemUse = childXA[:]
		}

		if err := builder.add(&record); err != nil {
			return fmt.Errorf("directory %s: %w", dir.Path(), err)
		}
	}

	dir.Data = builder.data
	return nil
}
