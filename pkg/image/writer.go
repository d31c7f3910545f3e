// Package image builds, reads, patches, and rips PlayStation disc images:
// flat files of raw 2352-byte Mode 2 sectors carrying an ISO9660 filesystem
// with CD-ROM XA extensions.
package image

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/psxtools/psx-kit/pkg/catalog"
	"github.com/psxtools/psx-kit/pkg/cdrom"
	"github.com/psxtools/psx-kit/pkg/consts"
	"github.com/psxtools/psx-kit/pkg/iso9660/descriptor"
	"github.com/psxtools/psx-kit/pkg/iso9660/directory"
	"github.com/psxtools/psx-kit/pkg/iso9660/fstree"
	"github.com/psxtools/psx-kit/pkg/iso9660/layout"
	"github.com/psxtools/psx-kit/pkg/iso9660/pathtable"
	"github.com/psxtools/psx-kit/pkg/iso9660/systemarea"
	"github.com/psxtools/psx-kit/pkg/logging"
	"github.com/psxtools/psx-kit/pkg/options"
)

// Fixed layout of the volume prefix. The path table fits a single sector, so
// the four copies (L, optional L, M, optional M) occupy one sector each and
// the root directory extent starts right behind them.
const (
	pathTableStartSector = consts.ISO9660_EVD_SECTOR + 1
	numPathTableSectors  = 1
	rootDirStartSector   = pathTableStartSector + 4*numPathTableSectors
)

// Builder assembles a disc image from a catalog.
type Builder struct {
	cat    *catalog.Catalog
	opts   *options.Options
	logger *logging.Logger
}

// NewBuilder creates a Builder for the given catalog.
func NewBuilder(cat *catalog.Catalog, opts ...options.Option) *Builder {
	o := &options.Options{}
	for _, opt := range opts {
		opt(o)
	}

	logger := logging.DefaultLogger()
	if o.Logger.GetSink() != nil {
		logger = logging.NewLogger(o.Logger)
	}

	return &Builder{cat: cat, opts: o, logger: logger}
}

// Write lays out the filesystem tree and writes the image to
// outputPath + ".bin", plus a cue sheet if requested. Any failure aborts the
// build; a partially written image is not meaningful.
func (b *Builder) Write(outputPath string) error {
	if b.cat.Root == nil {
		return fmt.Errorf("catalog has no root directory section")
	}
	if err := b.cat.Volume.Validate(); err != nil {
		return err
	}

	// Pass 1: directory extent sizes.
	layout.CalcDirSizes(b.cat.Root)

	// Pass 2: sector allocation. The extent write below must traverse in the
	// same order.
	volumeSize := layout.AllocSectors(b.cat.Root, rootDirStartSector, b.logger)
	b.logger.Debug("sector allocation complete", "volumeSectors", volumeSize)

	recordingTime, err := b.cat.Volume.CreationDate.Time()
	if err != nil {
		return fmt.Errorf("invalid creation date: %w", err)
	}

	// Pass 3: directory extents, now that every child has its final LBN.
	if err := directory.BuildExtents(b.cat.Root, b.cat.Volume.DefaultUID, b.cat.Volume.DefaultGID, recordingTime); err != nil {
		return err
	}

	// Pass 4: path tables.
	tables, err := pathtable.Build(b.cat.Root)
	if err != nil {
		return err
	}

	area, err := systemarea.Load(b.cat.SystemAreaFile)
	if err != nil {
		return err
	}

	imagePath := replaceExtension(outputPath, ".bin")
	f, err := os.Create(imagePath)
	if err != nil {
		return fmt.Errorf("error creating image file %s: %w", imagePath, err)
	}
	defer f.Close()

	w := newSectorWriter(f, b.opts.ProgressCallback, int64(volumeSize))

	b.logger.Debug("writing system area")
	if err := b.writeSystemArea(w, area); err != nil {
		return err
	}

	b.logger.Debug("writing volume descriptors")
	if err := b.writeDescriptors(w, tables, volumeSize, recordingTime); err != nil {
		return err
	}

	b.logger.Debug("writing path tables")
	if err := b.writePathTables(w, tables); err != nil {
		return err
	}

	if err := b.writeExtents(w); err != nil {
		return err
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("error writing to image file %s: %w", imagePath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error writing to image file %s: %w", imagePath, err)
	}

	if b.opts.WriteCueFile {
		if err := writeCueFile(outputPath, imagePath); err != nil {
			return err
		}
	}

	return nil
}

func (b *Builder) writeSystemArea(w *sectorWriter, area *systemarea.SystemArea) error {
	for sector := 0; sector < consts.ISO9660_SYSTEM_AREA_SECTORS; sector++ {
		payload, empty := area.Sector(sector)
		if empty {
			if err := w.WriteEmpty(); err != nil {
				return err
			}
			continue
		}
		if err := w.WriteForm1(payload, consts.SM_DATA); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) writeDescriptors(w *sectorWriter, tables *pathtable.Builder, volumeSize uint32, recordingTime time.Time) error {
	root := b.cat.Root
	rootRecord := directory.Record{
		ExtentLocation:       root.FirstSector,
		DataLength:           root.NumSectors * consts.ISO9660_SECTOR_SIZE,
		RecordingDateTime:    recordingTime,
		FileFlags:            directory.FLAG_DIRECTORY,
		VolumeSequenceNumber: 1,
		Identifier:           "\x00",
	}

	v := &b.cat.Volume
	pvd := descriptor.PrimaryVolumeDescriptor{
		SystemIdentifier:          v.SystemIdentifier,
		VolumeIdentifier:          v.VolumeIdentifier,
		VolumeSpaceSize:           volumeSize,
		VolumeSetSize:             1,
		VolumeSequenceNumber:      1,
		LogicalBlockSize:          consts.ISO9660_SECTOR_SIZE,
		PathTableSize:             tables.Size(),
		TypeLPathTableLocation:    pathTableStartSector,
		OptTypeLPathTableLocation: pathTableStartSector + numPathTableSectors,
		TypeMPathTableLocation:    pathTableStartSector + 2*numPathTableSectors,
		OptTypeMPathTableLocation: pathTableStartSector + 3*numPathTableSectors,
		VolumeSetIdentifier:       v.VolumeSetIdentifier,
		PublisherIdentifier:       v.PublisherIdentifier,
		DataPreparerIdentifier:    v.DataPreparerIdentifier,
		ApplicationIdentifier:     v.ApplicationIdentifier,
		CopyrightFileIdentifier:   v.CopyrightFileIdentifier,
		AbstractFileIdentifier:    v.AbstractFileIdentifier,
		BibliographicFileID:       v.BibliographicFileID,
		CreationDate:              v.CreationDate,
		ModificationDate:          v.ModificationDate,
		ExpirationDate:            v.ExpirationDate,
		EffectiveDate:             v.EffectiveDate,
	}

	encoded, err := rootRecord.Marshal()
	if err != nil {
		return err
	}
	copy(pvd.RootDirectoryRecord[:], encoded)

	sector, err := pvd.Marshal()
	if err != nil {
		return err
	}
	if err := w.WriteForm1(sector[:], consts.SM_DATA|consts.SM_EOR); err != nil {
		return err
	}

	terminator := descriptor.MarshalTerminator()
	return w.WriteForm1(terminator[:], consts.SM_DATA|consts.SM_EOF|consts.SM_EOR)
}

func (b *Builder) writePathTables(w *sectorWriter, tables *pathtable.Builder) error {
	for _, table := range [][]byte{tables.LTable(), tables.LTable(), tables.MTable(), tables.MTable()} {
		if err := w.WriteForm1(table, consts.SM_DATA|consts.SM_EOF|consts.SM_EOR); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) writeExtents(w *sectorWriter) error {
	return b.cat.Root.Walk(fstree.PreOrder, func(node *fstree.Node) error {
		if err := w.WriteGap(node.FirstSector); err != nil {
			return err
		}
		if node.IsDir() {
			return b.writeDirectory(w, node)
		}
		return b.writeFile(w, node)
	})
}

func (b *Builder) writeDirectory(w *sectorWriter, dir *fstree.Node) error {
	b.logger.Debug("writing directory", "path", dir.Path(), "firstSector", dir.FirstSector)

	for sector := uint32(0); sector < dir.NumSectors; sector++ {
		subMode := byte(consts.SM_DATA)
		if sector == dir.NumSectors-1 {
			subMode |= consts.SM_EOF | consts.SM_EOR
		}
		offset := sector * consts.ISO9660_SECTOR_SIZE
		if err := w.WriteForm1(dir.Data[offset:offset+consts.ISO9660_SECTOR_SIZE], subMode); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) writeFile(w *sectorWriter, file *fstree.Node) error {
	f, err := os.Open(file.HostPath)
	if err != nil {
		return fmt.Errorf("cannot open file %s: %w", file.HostPath, err)
	}
	defer f.Close()

	b.logger.Info("writing file", "path", file.HostPath, "firstSector", file.FirstSector, "sectors", file.NumSectors)

	blockSize := consts.ISO9660_SECTOR_SIZE
	if file.IsForm2 {
		blockSize = consts.M2RAW_SECTOR_SIZE
	}
	data := make([]byte, blockSize)
	r := bufio.NewReader(f)

	for sector := uint32(0); sector < file.NumSectors; sector++ {
		for i := range data {
			data[i] = 0
		}
		if _, err := io.ReadFull(r, data); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("error reading file %s: %w", file.HostPath, err)
		}

		if file.IsForm2 {
			if err := w.WriteForm2Raw(data); err != nil {
				return err
			}
		} else {
			subMode := byte(consts.SM_DATA)
			if sector == file.NumSectors-1 {
				subMode |= consts.SM_EOF | consts.SM_EOR
			}
			if err := w.WriteForm1(data, subMode); err != nil {
				return err
			}
		}

		w.Progress(file.HostPath)
	}
	return nil
}

// sectorWriter frames logical blocks into raw sectors and writes them
// strictly sequentially. The sector address is embedded in every frame
// header, so gaps are filled with empty sectors rather than seeking.
type sectorWriter struct {
	w            *bufio.Writer
	frame        [consts.CD_FRAMESIZE_RAW]byte
	current      uint32
	progress     options.ProgressCallback
	totalSectors int64
}

func newSectorWriter(w io.Writer, progress options.ProgressCallback, totalSectors int64) *sectorWriter {
	return &sectorWriter{
		w:            bufio.NewWriterSize(w, 64*consts.CD_FRAMESIZE_RAW),
		progress:     progress,
		totalSectors: totalSectors,
	}
}

// WriteForm1 writes one Form 1 data sector. Payloads shorter than 2048 bytes
// are zero padded.
func (w *sectorWriter) WriteForm1(payload []byte, subMode byte) error {
	if len(payload) > consts.ISO9660_SECTOR_SIZE {
		payload = payload[:consts.ISO9660_SECTOR_SIZE]
	}
	sh := cdrom.Subheader{SubMode: subMode}
	if err := cdrom.EncodeMode2(w.frame[:], payload, w.current, sh); err != nil {
		return err
	}
	return w.emit()
}

// WriteForm2Raw writes one Form 2 sector from a 2336-byte raw block whose
// first four bytes carry the subheader recorded on the original medium.
func (w *sectorWriter) WriteForm2Raw(block []byte) error {
	if len(block) != consts.M2RAW_SECTOR_SIZE {
		return fmt.Errorf("raw form 2 block must be %d bytes, got %d", consts.M2RAW_SECTOR_SIZE, len(block))
	}
	sh := cdrom.Subheader{
		FileNumber:    block[0],
		ChannelNumber: block[1],
		SubMode:       block[2],
		CodingInfo:    block[3],
	}
	return w.writeForm2(block[consts.CD_SUBHEADER_SIZE:], sh)
}

// WriteEmpty writes one empty Form 2 sector.
func (w *sectorWriter) WriteEmpty() error {
	return w.writeForm2(nil, cdrom.Subheader{SubMode: consts.SM_FORM2})
}

func (w *sectorWriter) writeForm2(payload []byte, sh cdrom.Subheader) error {
	if len(payload) > consts.M2F2_DATA_SIZE {
		payload = payload[:consts.M2F2_DATA_SIZE]
	}
	if err := cdrom.EncodeMode2(w.frame[:], payload, w.current, sh); err != nil {
		return err
	}
	return w.emit()
}

// WriteGap fills with empty sectors until the writer reaches the given
// sector.
func (w *sectorWriter) WriteGap(until uint32) error {
	for w.current < until {
		if err := w.WriteEmpty(); err != nil {
			return err
		}
	}
	return nil
}

func (w *sectorWriter) emit() error {
	if _, err := w.w.Write(w.frame[:]); err != nil {
		return err
	}
	w.current++
	return nil
}

func (w *sectorWriter) Flush() error {
	return w.w.Flush()
}

// Progress reports the current position to the progress callback, if any.
func (w *sectorWriter) Progress(name string) {
	if w.progress != nil {
		w.progress(name, int64(w.current), w.totalSectors)
	}
}

// writeCueFile writes a single-track MODE2/2352 cue sheet referencing the
// image file.
func writeCueFile(outputPath, imagePath string) error {
	cuePath := replaceExtension(outputPath, ".cue")
	f, err := os.Create(cuePath)
	if err != nil {
		return fmt.Errorf("error creating cue file %s: %w", cuePath, err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "FILE %q BINARY\r\n  TRACK 01 MODE2/2352\r\n    INDEX 01 00:00:00\r\n", filepath.Base(imagePath))
	if err != nil {
		return fmt.Errorf("error writing to cue file %s: %w", cuePath, err)
	}
	return f.Close()
}

// replaceExtension swaps the extension of path for ext (which includes the
// dot).
func replaceExtension(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
