// Package psx builds, patches, and decomposes PlayStation 1 disc images:
// ISO9660 filesystems with CD-ROM XA extensions laid out on raw 2352-byte
// Mode 2 sectors.
package psx

import (
	"io"

	"github.com/psxtools/psx-kit/pkg/catalog"
	"github.com/psxtools/psx-kit/pkg/image"
	"github.com/psxtools/psx-kit/pkg/options"
)

// Build creates a disc image from a catalog file. The filesystem content is
// taken from the directory tree next to the catalog (or fsBase if non-empty)
// and the image is written to outputPath + ".bin".
func Build(catalogPath, fsBase, outputPath string, opts ...options.Option) error {
	cat, err := catalog.ParseFile(catalogPath, fsBase)
	if err != nil {
		return err
	}
	return image.NewBuilder(cat, opts...).Write(outputPath)
}

// Open opens an existing disc image (a .bin file, a .cue sheet, or a path
// without extension) for reading.
func Open(location string, opts ...options.Option) (*image.Reader, error) {
	return image.Open(location, opts...)
}

// Inject replaces the file at filePath inside an existing image with the
// content of newFilePath. The replacement may not occupy more sectors than
// the original allocation.
func Inject(imagePath, filePath, newFilePath string, opts ...options.Option) error {
	return image.NewPatcher(opts...).Inject(imagePath, filePath, newFilePath)
}

// Rip decomposes an existing image into a catalog file, the system area
// data, and the extracted filesystem tree under outputPath.
func Rip(imagePath, outputPath string, opts ...options.Option) error {
	return image.NewRipper(opts...).Rip(imagePath, outputPath)
}

// DumpLBNTable writes a table of every file and directory location in the
// image to w.
func DumpLBNTable(imagePath string, w io.Writer, opts ...options.Option) error {
	return image.NewRipper(opts...).DumpLBNTable(imagePath, w)
}
