package image

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/psxtools/psx-kit/pkg/cdrom"
	"github.com/psxtools/psx-kit/pkg/consts"
	"github.com/psxtools/psx-kit/pkg/iso9660/descriptor"
	"github.com/psxtools/psx-kit/pkg/iso9660/directory"
	"github.com/psxtools/psx-kit/pkg/iso9660/xa"
	"github.com/psxtools/psx-kit/pkg/logging"
	"github.com/psxtools/psx-kit/pkg/options"
)

// Stat describes one entry of the volume, resolved from its directory
// record.
type Stat struct {
	// Name is the on-disc identifier. Files keep their ";1" version suffix;
	// the "." and ".." entries appear under those names.
	Name string

	// LSN is the first sector of the entry's extent.
	LSN uint32

	// NumSectors is the extent size in sectors.
	NumSectors uint32

	// Size is the data length recorded in the directory record. For XA
	// Form 2 files this is the synthetic whole-sector size, not the raw
	// 2336-byte-per-sector payload size.
	Size uint32

	// IsDir reports whether the entry is a directory.
	IsDir bool

	// XA holds the CD-ROM XA attribute record, nil if the record carries
	// none.
	XA *xa.Record
}

// IsForm2 reports whether the entry is an XA Form 2 (or interleaved) file.
func (s *Stat) IsForm2() bool {
	return s.XA != nil && s.XA.IsForm2()
}

// IsCDDA reports whether the entry refers to CD-DA audio, which has no data
// extent in the image file.
func (s *Stat) IsCDDA() bool {
	return s.XA != nil && s.XA.IsCDDA()
}

// Reader reads an existing disc image: either raw 2352-byte Mode 2 sectors
// (the format the Builder writes) or a cooked 2048-byte-per-sector ISO file.
type Reader struct {
	f          *os.File
	imagePath  string
	raw        bool
	numSectors uint32
	pvd        descriptor.PrimaryVolumeDescriptor
	root       Stat
	logger     *logging.Logger
}

// Open opens a disc image. The path may name the .bin file itself, a .cue
// sheet referencing it, or omit the extension (".bin" is assumed). The
// primary volume descriptor is read immediately.
func Open(path string, opts ...options.Option) (*Reader, error) {
	o := &options.Options{}
	for _, opt := range opts {
		opt(o)
	}

	logger := logging.DefaultLogger()
	if o.Logger.GetSink() != nil {
		logger = logging.NewLogger(o.Logger)
	}

	imagePath, err := resolveImagePath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("error opening input image %s: %w", imagePath, err)
	}

	r := &Reader{f: f, imagePath: imagePath, logger: logger}
	if err := r.detectFormat(); err != nil {
		f.Close()
		return nil, err
	}
	if err := r.readSuperblock(); err != nil {
		f.Close()
		return nil, err
	}

	logger.Debug("image opened", "path", imagePath, "rawMode2", r.raw, "sectors", r.numSectors)
	return r, nil
}

// resolveImagePath maps the user-supplied path to the binary image file,
// following a cue sheet if one was given.
func resolveImagePath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case "":
		return path + ".bin", nil
	case ".cue":
		return imageFileFromCue(path)
	default:
		return path, nil
	}
}

// imageFileFromCue extracts the binary file name from the FILE line of a cue
// sheet, resolved relative to the sheet's directory.
func imageFileFromCue(cuePath string) (string, error) {
	f, err := os.Open(cuePath)
	if err != nil {
		return "", fmt.Errorf("error opening cue file %s: %w", cuePath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(strings.ToUpper(line), "FILE") {
			continue
		}
		name := strings.TrimSpace(line[4:])
		if end := strings.ToUpper(name); strings.HasSuffix(end, "BINARY") {
			name = strings.TrimSpace(name[:len(name)-len("BINARY")])
		}
		name = strings.Trim(name, "\"")
		if name == "" {
			break
		}
		if !filepath.IsAbs(name) {
			name = filepath.Join(filepath.Dir(cuePath), name)
		}
		return name, nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("error reading cue file %s: %w", cuePath, err)
	}
	return "", fmt.Errorf("cue file %s has no FILE line", cuePath)
}

// detectFormat decides between raw Mode 2 frames and cooked 2048-byte
// sectors by probing for the sync pattern.
func (r *Reader) detectFormat() error {
	info, err := r.f.Stat()
	if err != nil {
		return fmt.Errorf("cannot stat image file %s: %w", r.imagePath, err)
	}
	size := info.Size()

	var frame [consts.CD_FRAMESIZE_RAW]byte
	n, err := r.f.ReadAt(frame[:], 0)
	if err != nil && n < consts.ISO9660_SECTOR_SIZE {
		return fmt.Errorf("error reading image file %s: %w", r.imagePath, err)
	}

	if size%consts.CD_FRAMESIZE_RAW == 0 && n == consts.CD_FRAMESIZE_RAW {
		if _, _, err := cdrom.DecodeMode2(frame[:]); err == nil {
			r.raw = true
			r.numSectors = uint32(size / consts.CD_FRAMESIZE_RAW)
			return nil
		}
	}
	if size%consts.ISO9660_SECTOR_SIZE == 0 {
		r.raw = false
		r.numSectors = uint32(size / consts.ISO9660_SECTOR_SIZE)
		return nil
	}
	return fmt.Errorf("image file %s is neither a raw Mode 2 image nor a 2048-byte sector image", r.imagePath)
}

func (r *Reader) readSuperblock() error {
	data, err := r.ReadData(consts.ISO9660_PVD_SECTOR)
	if err != nil {
		return fmt.Errorf("error reading volume information: %w", err)
	}
	if err := r.pvd.Unmarshal(data); err != nil {
		return fmt.Errorf("error reading volume information: %w", err)
	}

	var rootRecord directory.Record
	if _, err := rootRecord.Unmarshal(r.pvd.RootDirectoryRecord[:]); err != nil {
		return fmt.Errorf("invalid root directory record: %w", err)
	}
	r.root = statFromRecord(&rootRecord)
	r.root.Name = ""
	return nil
}

// Close closes the underlying image file.
func (r *Reader) Close() error {
	return r.f.Close()
}

// ImagePath returns the path of the binary image file.
func (r *Reader) ImagePath() string {
	return r.imagePath
}

// IsMode2 reports whether the image holds raw 2352-byte Mode 2 sectors.
func (r *Reader) IsMode2() bool {
	return r.raw
}

// NumSectors returns the image size in sectors.
func (r *Reader) NumSectors() uint32 {
	return r.numSectors
}

// PVD returns the primary volume descriptor.
func (r *Reader) PVD() *descriptor.PrimaryVolumeDescriptor {
	return &r.pvd
}

// Root returns the stat of the root directory.
func (r *Reader) Root() Stat {
	return r.root
}

// ReadFrame reads one raw 2352-byte frame. Only valid on raw images.
func (r *Reader) ReadFrame(lbn uint32) ([]byte, error) {
	if !r.raw {
		return nil, fmt.Errorf("image %s is not a raw Mode 2 image", r.imagePath)
	}
	frame := make([]byte, consts.CD_FRAMESIZE_RAW)
	if _, err := r.f.ReadAt(frame, int64(lbn)*consts.CD_FRAMESIZE_RAW); err != nil {
		return nil, fmt.Errorf("error reading sector %d of image file: %w", lbn, err)
	}
	return frame, nil
}

// ReadRawXA reads one sector as a 2336-byte raw Mode 2 block: subheader
// followed by form data. Only valid on raw images.
func (r *Reader) ReadRawXA(lbn uint32) ([]byte, error) {
	frame, err := r.ReadFrame(lbn)
	if err != nil {
		return nil, err
	}
	if _, _, err := cdrom.DecodeMode2(frame); err != nil {
		return nil, fmt.Errorf("sector %d: %w", lbn, err)
	}
	return frame[consts.CD_SYNC_SIZE+consts.CD_HEADER_SIZE:], nil
}

// ReadData reads the 2048-byte data payload of one sector.
func (r *Reader) ReadData(lbn uint32) ([]byte, error) {
	if !r.raw {
		data := make([]byte, consts.ISO9660_SECTOR_SIZE)
		if _, err := r.f.ReadAt(data, int64(lbn)*consts.ISO9660_SECTOR_SIZE); err != nil {
			return nil, fmt.Errorf("error reading sector %d of image file: %w", lbn, err)
		}
		return data, nil
	}

	frame, err := r.ReadFrame(lbn)
	if err != nil {
		return nil, err
	}
	sh, payload, err := cdrom.DecodeMode2(frame)
	if err != nil {
		return nil, fmt.Errorf("sector %d: %w", lbn, err)
	}
	if sh.IsForm2() {
		return nil, fmt.Errorf("sector %d is a form 2 sector, not data", lbn)
	}
	return payload, nil
}

// readExtent reads a whole directory extent.
func (r *Reader) readExtent(lsn, numSectors uint32) ([]byte, error) {
	data := make([]byte, 0, numSectors*consts.ISO9660_SECTOR_SIZE)
	for sector := uint32(0); sector < numSectors; sector++ {
		payload, err := r.ReadData(lsn + sector)
		if err != nil {
			return nil, err
		}
		data = append(data, payload...)
	}
	return data, nil
}

func statFromRecord(record *directory.Record) Stat {
	s := Stat{
		Name:  record.Identifier,
		LSN:   record.ExtentLocation,
		Size:  record.DataLength,
		IsDir: record.IsDir(),
		NumSectors: (record.DataLength + consts.ISO9660_SECTOR_SIZE - 1) /
			consts.ISO9660_SECTOR_SIZE,
	}
	if record.Identifier == "" {
		s.Name = "."
	} else if record.Identifier == "\x01" {
		s.Name = ".."
	}
	if len(record.SystemUse) >= xa.RECORD_SIZE {
		if attr, err := xa.Unmarshal(record.SystemUse); err == nil {
			s.XA = &attr
		}
	}
	return s
}

// ReadDir returns the entries of a directory, including "." and "..", in
// record order.
func (r *Reader) ReadDir(dir *Stat) ([]Stat, error) {
	if !dir.IsDir {
		return nil, fmt.Errorf("'%s' does not refer to a directory", dir.Name)
	}
	data, err := r.readExtent(dir.LSN, dir.NumSectors)
	if err != nil {
		return nil, err
	}
	records, err := directory.ReadExtent(data)
	if err != nil {
		return nil, err
	}

	stats := make([]Stat, 0, len(records))
	for i := range records {
		stats = append(stats, statFromRecord(&records[i]))
	}
	return stats, nil
}

// Stat resolves a path inside the volume. Components are matched against the
// on-disc identifiers; the ";1" version suffix of file names may be omitted.
// The empty path and "/" refer to the root directory.
func (r *Reader) Stat(path string) (*Stat, error) {
	current := r.root
	for _, component := range strings.Split(path, "/") {
		if component == "" {
			continue
		}

		entries, err := r.ReadDir(&current)
		if err != nil {
			return nil, err
		}

		found := false
		for i := range entries {
			name := entries[i].Name
			if name == component || strings.TrimSuffix(name, ";1") == component {
				current = entries[i]
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("cannot find '%s' in image", path)
		}
	}
	return &current, nil
}
