// Package layout computes directory extent sizes and assigns start sectors
// to every extent in a filesystem tree.
package layout

import (
	"github.com/psxtools/psx-kit/pkg/consts"
	"github.com/psxtools/psx-kit/pkg/iso9660/directory"
	"github.com/psxtools/psx-kit/pkg/iso9660/fstree"
	"github.com/psxtools/psx-kit/pkg/iso9660/xa"
	"github.com/psxtools/psx-kit/pkg/logging"
)

// CalcDirSizes computes the extent size in sectors of every directory in the
// tree. Directory records never cross a logical sector boundary, so a record
// that would cross is counted at the start of the next sector.
func CalcDirSizes(root *fstree.Node) {
	root.Walk(fstree.PreOrderSorted, func(node *fstree.Node) error {
		if !node.IsDir() {
			return nil
		}

		// "." and ".." records
		size := uint32(directory.RecordSize(1, xa.RECORD_SIZE))
		size += uint32(directory.RecordSize(1, xa.RECORD_SIZE))

		for _, child := range node.SortedChildren() {
			recordSize := uint32(directory.RecordSize(len(child.Name), xa.RECORD_SIZE))
			if size/consts.ISO9660_SECTOR_SIZE != (size+recordSize)/consts.ISO9660_SECTOR_SIZE {
				recordSize += consts.ISO9660_SECTOR_SIZE - size%consts.ISO9660_SECTOR_SIZE
			}
			size += recordSize
		}

		node.NumSectors = (size + consts.ISO9660_SECTOR_SIZE - 1) / consts.ISO9660_SECTOR_SIZE
		return nil
	})
}

// AllocSectors assigns a start sector to every extent of the tree, visiting
// nodes parent first with children in declaration order. The image writer
// must use the same traversal so the data lands on the allocated sectors.
//
// A requested start sector at or past the allocation cursor is honored and
// the skipped sectors become a gap. A request before the cursor cannot be
// honored; the node is placed at the cursor and a warning is logged. The
// returned value is the total number of sectors allocated.
func AllocSectors(root *fstree.Node, startSector uint32, logger *logging.Logger) uint32 {
	currentSector := startSector

	root.Walk(fstree.PreOrder, func(node *fstree.Node) error {
		if node.RequestedStartSector != 0 {
			if node.RequestedStartSector < currentSector {
				node.FirstSector = currentSector
				logger.Warn("start sector request cannot be honored",
					"path", node.Path(),
					"requested", node.RequestedStartSector,
					"assigned", node.FirstSector)
			} else {
				node.FirstSector = node.RequestedStartSector
			}
		} else {
			node.FirstSector = currentSector
		}

		currentSector = node.FirstSector + node.NumSectors
		return nil
	})

	if currentSector > consts.MAX_ISO_SECTORS {
		logger.Warn("volume exceeds 74 minute medium capacity",
			"sectors", currentSector,
			"maxSectors", uint32(consts.MAX_ISO_SECTORS))
	}

	return currentSector
}
