package image

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/psxtools/psx-kit/pkg/catalog"
	"github.com/psxtools/psx-kit/pkg/consts"
	"github.com/psxtools/psx-kit/pkg/iso9660/fstree"
	"github.com/psxtools/psx-kit/pkg/iso9660/volume"
	"github.com/psxtools/psx-kit/pkg/logging"
	"github.com/psxtools/psx-kit/pkg/options"
)

// Ripper decomposes a disc image into the pieces the Builder consumes: a
// catalog file, the system area data, and a directory tree of extracted
// files.
type Ripper struct {
	opts   *options.Options
	logger *logging.Logger
}

// NewRipper creates a Ripper.
func NewRipper(opts ...options.Option) *Ripper {
	o := &options.Options{}
	for _, opt := range opts {
		opt(o)
	}

	logger := logging.DefaultLogger()
	if o.Logger.GetSink() != nil {
		logger = logging.NewLogger(o.Logger)
	}

	return &Ripper{opts: o, logger: logger}
}

// Rip extracts the image to outputPath: the filesystem tree is dumped under
// the outputPath directory, the system area to outputPath + ".sys", and the
// catalog to outputPath + ".cat". CD-DA files have no data extent in the
// image and are skipped.
func (rp *Ripper) Rip(imagePath, outputPath string) error {
	r, err := Open(imagePath, options.WithLogger(rp.opts.Logger))
	if err != nil {
		return err
	}
	defer r.Close()

	sysPath := outputPath + ".sys"
	catPath := outputPath + ".cat"

	if err := rp.dumpSystemArea(r, sysPath); err != nil {
		return err
	}
	rp.logger.Info("system area data written", "path", sysPath)

	cat := &catalog.Catalog{
		SystemAreaFile: sysPath,
		Volume:         rp.volumeMetadata(r),
	}

	root := r.Root()
	cat.Root = &fstree.Node{Kind: fstree.KindDirectory, FirstSector: root.LSN, NumSectors: root.NumSectors}
	if err := rp.dumpDirectory(r, &root, cat.Root, outputPath); err != nil {
		return err
	}

	f, err := os.Create(catPath)
	if err != nil {
		return fmt.Errorf("cannot create catalog file %s: %w", catPath, err)
	}
	defer f.Close()

	if err := cat.Write(f, catalog.WriteOptions{WriteLBNs: rp.opts.WriteLBNs}); err != nil {
		return fmt.Errorf("error writing catalog file %s: %w", catPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error writing catalog file %s: %w", catPath, err)
	}

	rp.logger.Info("catalog written", "path", catPath)
	return nil
}

func (rp *Ripper) volumeMetadata(r *Reader) volume.Metadata {
	pvd := r.PVD()
	m := volume.NewMetadata()
	m.SystemIdentifier = pvd.SystemIdentifier
	m.VolumeIdentifier = pvd.VolumeIdentifier
	m.VolumeSetIdentifier = pvd.VolumeSetIdentifier
	m.PublisherIdentifier = pvd.PublisherIdentifier
	m.DataPreparerIdentifier = pvd.DataPreparerIdentifier
	m.ApplicationIdentifier = pvd.ApplicationIdentifier
	m.CopyrightFileIdentifier = pvd.CopyrightFileIdentifier
	m.AbstractFileIdentifier = pvd.AbstractFileIdentifier
	m.BibliographicFileID = pvd.BibliographicFileID
	m.CreationDate = pvd.CreationDate
	m.ModificationDate = pvd.ModificationDate
	m.ExpirationDate = pvd.ExpirationDate
	m.EffectiveDate = pvd.EffectiveDate
	return m
}

// dumpSystemArea writes the system area data sectors to a file. On a raw
// image the dump stops at the first sector whose submode is not plain DATA
// (the trailing empty Form 2 sectors carry no content).
func (rp *Ripper) dumpSystemArea(r *Reader, sysPath string) error {
	f, err := os.Create(sysPath)
	if err != nil {
		return fmt.Errorf("cannot create system area file %s: %w", sysPath, err)
	}
	defer f.Close()

	for sector := uint32(0); sector < consts.ISO9660_SYSTEM_AREA_SECTORS; sector++ {
		var payload []byte

		if r.IsMode2() {
			block, err := r.ReadRawXA(sector)
			if err != nil {
				return err
			}
			if block[2] != consts.SM_DATA {
				break
			}
			payload = block[consts.CD_SUBHEADER_SIZE : consts.CD_SUBHEADER_SIZE+consts.ISO9660_SECTOR_SIZE]
		} else {
			payload, err = r.ReadData(sector)
			if err != nil {
				return err
			}
		}

		if _, err := f.Write(payload); err != nil {
			return fmt.Errorf("cannot write to system area file %s: %w", sysPath, err)
		}
	}
	return f.Close()
}

// dumpDirectory extracts one directory level: creates the host directory,
// appends child nodes to the tree in ascending LBN order, extracts files,
// and recurses into subdirectories.
func (rp *Ripper) dumpDirectory(r *Reader, dir *Stat, node *fstree.Node, hostDir string) error {
	if err := os.MkdirAll(hostDir, 0o755); err != nil {
		return fmt.Errorf("cannot create output directory %s: %w", hostDir, err)
	}

	entries, err := r.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LSN < entries[j].LSN
	})

	for i := range entries {
		entry := &entries[i]
		if entry.Name == "." || entry.Name == ".." {
			continue
		}

		if entry.IsDir {
			child := &fstree.Node{
				Kind:        fstree.KindDirectory,
				Name:        entry.Name,
				Parent:      node,
				FirstSector: entry.LSN,
				NumSectors:  entry.NumSectors,
			}
			node.Children = append(node.Children, child)
			if err := rp.dumpDirectory(r, entry, child, filepath.Join(hostDir, entry.Name)); err != nil {
				return err
			}
			continue
		}

		if entry.IsCDDA() {
			rp.logger.Info("skipping CD-DA file", "name", entry.Name)
			continue
		}

		name := entry.Name
		if idx := strings.LastIndex(name, ";"); idx >= 0 {
			name = name[:idx]
		}

		hostPath := filepath.Join(hostDir, name)
		if err := rp.extractFile(r, entry, hostPath); err != nil {
			return err
		}

		child := &fstree.Node{
			Kind:        fstree.KindFile,
			Name:        entry.Name,
			HostPath:    hostPath,
			Parent:      node,
			FirstSector: entry.LSN,
			NumSectors:  entry.NumSectors,
			Size:        entry.Size,
			IsForm2:     entry.IsForm2(),
		}
		node.Children = append(node.Children, child)
	}
	return nil
}

// extractFile writes a file's extent to the host filesystem. Form 1 files
// are truncated to the recorded byte size; Form 2 files are dumped as raw
// 2336-byte blocks.
func (rp *Ripper) extractFile(r *Reader, entry *Stat, hostPath string) error {
	form2 := entry.IsForm2()
	if form2 {
		rp.logger.Debug("XA file",
			"name", entry.Name, "size", entry.Size, "sectors", entry.NumSectors,
			"groupID", entry.XA.GroupID, "userID", entry.XA.UserID,
			"attributes", fmt.Sprintf("%04x", entry.XA.Attributes), "fileNumber", entry.XA.FileNumber)
	}

	f, err := os.Create(hostPath)
	if err != nil {
		return fmt.Errorf("cannot create output file %s: %w", hostPath, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	remaining := int64(entry.Size)
	if form2 {
		remaining = int64(entry.NumSectors) * consts.M2RAW_SECTOR_SIZE
	}

	for sector := uint32(0); sector < entry.NumSectors; sector++ {
		var block []byte
		if form2 {
			block, err = r.ReadRawXA(entry.LSN + sector)
		} else {
			block, err = r.ReadData(entry.LSN + sector)
		}
		if err != nil {
			return fmt.Errorf("output file %s may be incomplete: %w", hostPath, err)
		}

		toWrite := int64(len(block))
		if toWrite > remaining {
			toWrite = remaining
		}
		if _, err := w.Write(block[:toWrite]); err != nil {
			return fmt.Errorf("cannot write to file %s: %w", hostPath, err)
		}
		remaining -= toWrite

		if rp.opts.ProgressCallback != nil {
			rp.opts.ProgressCallback(hostPath, int64(sector)+1, int64(entry.NumSectors))
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("cannot write to file %s: %w", hostPath, err)
	}
	return f.Close()
}

// DumpLBNTable writes a table of every entry's location to w: LBN, sector
// count, byte size, a type column (d directory, f file, x XA form 2, a
// CD-DA) and the path inside the volume.
func (rp *Ripper) DumpLBNTable(imagePath string, w io.Writer) error {
	r, err := Open(imagePath, options.WithLogger(rp.opts.Logger))
	if err != nil {
		return err
	}
	defer r.Close()

	if _, err := fmt.Fprintf(w, "%8s %8s %8s T Path\n", "LBN", "NumSec", "Size"); err != nil {
		return err
	}
	root := r.Root()
	return rp.dumpLBNTableDir(r, &root, "", w)
}

func (rp *Ripper) dumpLBNTableDir(r *Reader, dir *Stat, dirPath string, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%08x %08x %08x d %s\n", dir.LSN, dir.NumSectors, dir.Size, dirPath); err != nil {
		return err
	}

	entries, err := r.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LSN < entries[j].LSN
	})

	for i := range entries {
		entry := &entries[i]
		if entry.Name == "." || entry.Name == ".." {
			continue
		}

		name := entry.Name
		if idx := strings.LastIndex(name, ";"); idx >= 0 {
			name = name[:idx]
		}
		entryPath := name
		if dirPath != "" {
			entryPath = dirPath + "/" + name
		}

		if entry.IsDir {
			if err := rp.dumpLBNTableDir(r, entry, entryPath, w); err != nil {
				return err
			}
			continue
		}

		size := entry.Size
		typeChar := 'f'
		if entry.IsForm2() {
			typeChar = 'x'
			size = entry.NumSectors * consts.M2RAW_SECTOR_SIZE
		}
		if entry.IsCDDA() {
			typeChar = 'a'
		}

		if _, err := fmt.Fprintf(w, "%08x %08x %08x %c %s\n", entry.LSN, entry.NumSectors, size, typeChar, entryPath); err != nil {
			return err
		}
	}
	return nil
}
