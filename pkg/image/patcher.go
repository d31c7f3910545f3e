package image

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/psxtools/psx-kit/pkg/cdrom"
	"github.com/psxtools/psx-kit/pkg/consts"
	"github.com/psxtools/psx-kit/pkg/iso9660/directory"
	"github.com/psxtools/psx-kit/pkg/iso9660/encoding"
	"github.com/psxtools/psx-kit/pkg/logging"
	"github.com/psxtools/psx-kit/pkg/options"
)

// Patcher replaces a file's data inside an already-built image. The
// replacement may not need more sectors than the original allocation; files
// cannot grow past their reserved extent.
type Patcher struct {
	opts   *options.Options
	logger *logging.Logger
}

// NewPatcher creates a Patcher.
func NewPatcher(opts ...options.Option) *Patcher {
	o := &options.Options{}
	for _, opt := range opts {
		opt(o)
	}

	logger := logging.DefaultLogger()
	if o.Logger.GetSink() != nil {
		logger = logging.NewLogger(o.Logger)
	}

	return &Patcher{opts: o, logger: logger}
}

// target holds the analysis result of the read-only pass: where the file's
// extent and its directory record live.
type target struct {
	extent     uint32
	maxSectors uint32
	isForm2    bool

	dirSector     uint32
	dirOffset     int
	dirData       []byte
	lastDirSector bool
}

// Inject replaces the file at filePath inside the image with the content of
// newFilePath. The analysis pass uses a read-only handle which is closed
// before the image is reopened for writing; the two never interleave.
func (p *Patcher) Inject(imagePath, filePath, newFilePath string) error {
	r, err := Open(imagePath, options.WithLogger(p.opts.Logger))
	if err != nil {
		return err
	}

	t, numSectors, newSize, err := p.analyze(r, filePath, newFilePath)
	raw := r.IsMode2()
	binPath := r.ImagePath()
	r.Close()
	if err != nil {
		return err
	}

	return p.rewrite(binPath, raw, t, numSectors, newSize, newFilePath)
}

func (p *Patcher) analyze(r *Reader, filePath, newFilePath string) (*target, uint32, int64, error) {
	stat, err := r.Stat(filePath)
	if err != nil {
		return nil, 0, 0, err
	}
	if stat.IsDir {
		return nil, 0, 0, fmt.Errorf("'%s' does not refer to a file", filePath)
	}

	t := &target{
		extent:     stat.LSN,
		maxSectors: stat.NumSectors,
		isForm2:    stat.IsForm2(),
	}
	p.logger.Debug("replacement target located",
		"path", filePath, "form2", t.isForm2,
		"lbn", t.extent, "sectors", t.maxSectors, "bytes", stat.Size)

	info, err := os.Stat(newFilePath)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("cannot stat file %s: %w", newFilePath, err)
	}
	newSize := info.Size()

	blockSize := int64(consts.ISO9660_SECTOR_SIZE)
	if t.isForm2 {
		if !r.IsMode2() {
			return nil, 0, 0, fmt.Errorf("'%s' is a form 2 file but '%s' is not a raw mode 2 image", filePath, r.ImagePath())
		}
		blockSize = consts.M2RAW_SECTOR_SIZE
		if newSize%blockSize != 0 {
			return nil, 0, 0, fmt.Errorf("'%s' is a form 2 file but the size of %s is not a multiple of %d bytes", filePath, newFilePath, blockSize)
		}
	}

	numSectors := uint32((newSize + blockSize - 1) / blockSize)
	if numSectors == 0 {
		numSectors = 1 // empty files use one sector
	}
	if numSectors > t.maxSectors {
		return nil, 0, 0, fmt.Errorf("%s would require %d sectors but there is only room for %d sectors (%d bytes)",
			newFilePath, numSectors, t.maxSectors, int64(t.maxSectors)*blockSize)
	}

	if err := p.locateRecord(r, filePath, t); err != nil {
		return nil, 0, 0, err
	}
	return t, numSectors, newSize, nil
}

// locateRecord scans the raw bytes of the parent directory's extent for the
// directory record of the target file, remembering the sector and byte
// offset holding it.
func (p *Patcher) locateRecord(r *Reader, filePath string, t *target) error {
	dirPath := path.Dir(strings.TrimPrefix(filePath, "/"))
	if dirPath == "." {
		dirPath = "/"
	}

	dirStat, err := r.Stat(dirPath)
	if err != nil {
		return err
	}
	if !dirStat.IsDir {
		return fmt.Errorf("'%s' does not refer to a directory", dirPath)
	}

	searchName := path.Base(filePath)
	if !strings.Contains(searchName, ";") {
		searchName += ";1"
	}

	for sector := uint32(0); sector < dirStat.NumSectors; sector++ {
		data, err := r.ReadData(dirStat.LSN + sector)
		if err != nil {
			return err
		}

		offset := 0
		for offset < consts.ISO9660_SECTOR_SIZE {
			recLen := int(data[offset])
			if recLen == 0 {
				offset++ // padding at end of sector
				continue
			}
			if offset+recLen > consts.ISO9660_SECTOR_SIZE {
				return fmt.Errorf("corrupt directory record at sector %d offset %d", dirStat.LSN+sector, offset)
			}

			// Skip directories, match files by name and version.
			if data[offset+25]&directory.FLAG_DIRECTORY == 0 {
				nameLen := int(data[offset+32])
				if string(data[offset+33:offset+33+nameLen]) == searchName {
					t.dirSector = dirStat.LSN + sector
					t.dirOffset = offset
					t.dirData = data
					t.lastDirSector = sector == dirStat.NumSectors-1
					return nil
				}
			}
			offset += recLen
		}
	}
	return fmt.Errorf("'%s' not found in directory '%s'", searchName, dirPath)
}

// rewrite writes the replacement extent and the patched directory sector.
func (p *Patcher) rewrite(binPath string, raw bool, t *target, numSectors uint32, newSize int64, newFilePath string) error {
	img, err := os.OpenFile(binPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("error opening image file %s: %w", binPath, err)
	}
	defer img.Close()

	src, err := os.Open(newFilePath)
	if err != nil {
		return fmt.Errorf("cannot open file %s: %w", newFilePath, err)
	}
	defer src.Close()

	blockSize := consts.ISO9660_SECTOR_SIZE
	if t.isForm2 {
		blockSize = consts.M2RAW_SECTOR_SIZE
	}
	outputBlockSize := int64(consts.ISO9660_SECTOR_SIZE)
	if raw {
		outputBlockSize = consts.CD_FRAMESIZE_RAW
	}

	data := make([]byte, blockSize)
	var frame [consts.CD_FRAMESIZE_RAW]byte

	for sector := uint32(0); sector < numSectors; sector++ {
		for i := range data {
			data[i] = 0
		}
		if _, err := io.ReadFull(src, data); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("error reading file %s: %w", newFilePath, err)
		}

		lbn := t.extent + sector
		offset := int64(lbn) * outputBlockSize

		if !raw {
			if _, err := img.WriteAt(data, offset); err != nil {
				return fmt.Errorf("error writing sector %d of image file: %w", lbn, err)
			}
			continue
		}

		var sh cdrom.Subheader
		var payload []byte
		if t.isForm2 {
			sh = cdrom.Subheader{
				FileNumber:    data[0],
				ChannelNumber: data[1],
				SubMode:       data[2],
				CodingInfo:    data[3],
			}
			payload = data[consts.CD_SUBHEADER_SIZE : consts.CD_SUBHEADER_SIZE+consts.M2F2_DATA_SIZE]
		} else {
			subMode := byte(consts.SM_DATA)
			if sector == numSectors-1 {
				subMode |= consts.SM_EOF | consts.SM_EOR
			}
			sh = cdrom.Subheader{SubMode: subMode}
			payload = data
		}

		if err := cdrom.EncodeMode2(frame[:], payload, lbn, sh); err != nil {
			return err
		}
		if _, err := img.WriteAt(frame[:], offset); err != nil {
			return fmt.Errorf("error writing sector %d of image file: %w", lbn, err)
		}
	}

	// Patch the data length field of the directory record. Form 2 records
	// store a synthetic whole-sector size.
	size := uint32(newSize)
	if t.isForm2 {
		size = numSectors * consts.ISO9660_SECTOR_SIZE
	}
	copy(t.dirData[t.dirOffset+10:t.dirOffset+18], encoding.MarshalBothByteOrders32(size))

	offset := int64(t.dirSector) * outputBlockSize
	if !raw {
		if _, err := img.WriteAt(t.dirData, offset); err != nil {
			return fmt.Errorf("error writing sector %d of image file: %w", t.dirSector, err)
		}
		return nil
	}

	subMode := byte(consts.SM_DATA)
	if t.lastDirSector {
		subMode |= consts.SM_EOF | consts.SM_EOR
	}
	if err := cdrom.EncodeMode2(frame[:], t.dirData, t.dirSector, cdrom.Subheader{SubMode: subMode}); err != nil {
		return err
	}
	if _, err := img.WriteAt(frame[:], offset); err != nil {
		return fmt.Errorf("error writing sector %d of image file: %w", t.dirSector, err)
	}

	p.logger.Info("file replaced", "image", binPath, "sectors", numSectors)
	return nil
}
