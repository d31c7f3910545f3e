// Package systemarea models the 16-sector system area at the start of a
// volume. On PlayStation discs it carries the license data; the filesystem
// proper starts at the primary volume descriptor behind it.
package systemarea

import (
	"fmt"
	"io"
	"os"

	"github.com/psxtools/psx-kit/pkg/consts"
)

// Size is the system area capacity in bytes (32 KiB of logical blocks).
const Size = consts.ISO9660_SYSTEM_AREA_SECTORS * consts.ISO9660_SECTOR_SIZE

// SystemArea holds the content of the system area. Sectors covered by the
// backing file are recorded as Mode 2 Form 1 data sectors; the remainder are
// empty Form 2 sectors.
type SystemArea struct {
	data           [Size]byte
	numFileSectors int
}

// Load reads the system area content from a file, up to 32 KiB. An empty
// path yields an all-empty system area.
func Load(path string) (*SystemArea, error) {
	s := &SystemArea{}
	if path == "" {
		return s, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open system area file %s: %w", path, err)
	}
	defer f.Close()

	n, err := io.ReadFull(f, s.data[:])
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("error reading system area file %s: %w", path, err)
	}

	s.numFileSectors = (n + consts.ISO9660_SECTOR_SIZE - 1) / consts.ISO9660_SECTOR_SIZE
	return s, nil
}

// NumFileSectors returns the number of sectors covered by file content.
func (s *SystemArea) NumFileSectors() int {
	return s.numFileSectors
}

// Sector returns the 2048-byte payload of the given system area sector and
// whether the sector is an empty Form 2 sector rather than a Form 1 data
// sector.
func (s *SystemArea) Sector(n int) (payload []byte, empty bool) {
	if n < 0 || n >= consts.ISO9660_SYSTEM_AREA_SECTORS {
		return nil, true
	}
	offset := n * consts.ISO9660_SECTOR_SIZE
	return s.data[offset : offset+consts.ISO9660_SECTOR_SIZE], n >= s.numFileSectors
}
