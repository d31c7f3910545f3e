package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/psxtools/psx-kit/pkg/catalog"
	"github.com/psxtools/psx-kit/pkg/cdrom"
	"github.com/psxtools/psx-kit/pkg/consts"
	"github.com/psxtools/psx-kit/pkg/options"
)

// xaBlock builds one raw 2336-byte Mode 2 block: doubled subheader, payload,
// and a zeroed EDC field (recomputed when the block is framed).
func xaBlock(fileNumber, subMode, fill byte) []byte {
	block := make([]byte, consts.M2RAW_SECTOR_SIZE)
	block[0], block[4] = fileNumber, fileNumber
	block[2], block[6] = subMode, subMode
	for i := consts.CD_SUBHEADER_SIZE; i < consts.CD_SUBHEADER_SIZE+consts.M2F2_DATA_SIZE; i++ {
		block[i] = fill
	}
	return block
}

type sampleImage struct {
	base      string // catalog and host files
	outDir    string // image output
	imagePath string // the .bin file

	textContent  []byte // A.TXT
	movieContent []byte // MOVIE.STR, 2 raw blocks
	dataContent  []byte // SUB/B.DAT
}

const sampleImageCatalog = `
system_area {
  file "%s"
}

volume {
  system_id [PLAYSTATION]
  volume_id [EXAMPLE]
  creation_date 1999-01-01 00:00:00.00 0
}

dir {
  file A.TXT
  xafile MOVIE.STR @40
  dir SUB {
    file B.DAT
  }
}
`

// buildSampleImage builds a small raw image:
//
//	22      root directory
//	23      A.TXT       (form 1, 1 sector)
//	24..39  gap
//	40..41  MOVIE.STR   (form 2, fixed LBN)
//	42      SUB
//	43..44  SUB/B.DAT   (form 1, 2 sectors)
func buildSampleImage(t *testing.T, opts ...options.Option) *sampleImage {
	t.Helper()
	s := &sampleImage{
		base:        t.TempDir(),
		outDir:      t.TempDir(),
		textContent: []byte("BOOT=cdrom:\\PSX.EXE;1\r\n"),
		dataContent: bytes.Repeat([]byte{0x5A}, 3000),
	}

	sub := byte(consts.SM_DATA | consts.SM_FORM2)
	s.movieContent = append(xaBlock(1, sub, 0x11), xaBlock(1, sub|consts.SM_EOF|consts.SM_EOR, 0x22)...)

	licensePath := filepath.Join(s.base, "LICENSE.SYS")
	require.NoError(t, os.WriteFile(licensePath, bytes.Repeat([]byte{0xC9}, 100), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.base, "A.TXT"), s.textContent, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.base, "MOVIE.STR"), s.movieContent, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(s.base, "SUB"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.base, "SUB", "B.DAT"), s.dataContent, 0o644))

	catText := fmt.Sprintf(sampleImageCatalog, licensePath)
	cat, err := catalog.Parse(strings.NewReader(catText), s.base)
	require.NoError(t, err)

	outputPath := filepath.Join(s.outDir, "example")
	require.NoError(t, NewBuilder(cat, opts...).Write(outputPath))
	s.imagePath = outputPath + ".bin"
	return s
}

func TestBuildAndOpen(t *testing.T) {
	s := buildSampleImage(t)

	info, err := os.Stat(s.imagePath)
	require.NoError(t, err)
	require.Equal(t, int64(45*consts.CD_FRAMESIZE_RAW), info.Size())

	r, err := Open(s.imagePath)
	require.NoError(t, err)
	defer r.Close()

	t.Run("Superblock", func(t *testing.T) {
		require.True(t, r.IsMode2())
		require.Equal(t, uint32(45), r.NumSectors())

		pvd := r.PVD()
		require.Equal(t, "PLAYSTATION", pvd.SystemIdentifier)
		require.Equal(t, "EXAMPLE", pvd.VolumeIdentifier)
		require.Equal(t, uint32(45), pvd.VolumeSpaceSize)
		require.Equal(t, uint16(2048), pvd.LogicalBlockSize)
		require.Equal(t, uint32(18), pvd.TypeLPathTableLocation)
		require.Equal(t, uint32(19), pvd.OptTypeLPathTableLocation)
		require.Equal(t, uint32(20), pvd.TypeMPathTableLocation)
		require.Equal(t, uint32(21), pvd.OptTypeMPathTableLocation)
		require.Equal(t, "1999-01-01 00:00:00.00 0", pvd.CreationDate.String())

		root := r.Root()
		require.True(t, root.IsDir)
		require.Equal(t, uint32(22), root.LSN)
	})

	t.Run("EveryFrameHasValidEDC", func(t *testing.T) {
		for lbn := uint32(0); lbn < r.NumSectors(); lbn++ {
			frame, err := r.ReadFrame(lbn)
			require.NoError(t, err)
			ok, err := cdrom.VerifyEDC(frame)
			require.NoError(t, err, "sector %d", lbn)
			require.True(t, ok, "sector %d", lbn)
		}
	})

	t.Run("ReadDirRoot", func(t *testing.T) {
		root := r.Root()
		entries, err := r.ReadDir(&root)
		require.NoError(t, err)
		require.Len(t, entries, 5)
		require.Equal(t, ".", entries[0].Name)
		require.Equal(t, "..", entries[1].Name)
		require.Equal(t, "A.TXT;1", entries[2].Name)
		require.Equal(t, "MOVIE.STR;1", entries[3].Name)
		require.Equal(t, "SUB", entries[4].Name)
	})

	t.Run("StatForm1File", func(t *testing.T) {
		stat, err := r.Stat("/A.TXT")
		require.NoError(t, err)
		require.Equal(t, uint32(23), stat.LSN)
		require.Equal(t, uint32(len(s.textContent)), stat.Size)
		require.False(t, stat.IsForm2())

		payload, err := r.ReadData(stat.LSN)
		require.NoError(t, err)
		require.Equal(t, s.textContent, payload[:len(s.textContent)])
	})

	t.Run("FixedLBNHonored", func(t *testing.T) {
		stat, err := r.Stat("/MOVIE.STR;1")
		require.NoError(t, err)
		require.Equal(t, uint32(40), stat.LSN)
		require.Equal(t, uint32(2), stat.NumSectors)
		require.Equal(t, uint32(2*consts.ISO9660_SECTOR_SIZE), stat.Size,
			"form 2 records carry a synthetic whole-sector size")
		require.True(t, stat.IsForm2())
	})

	t.Run("GapSectorsAreEmptyForm2", func(t *testing.T) {
		for _, lbn := range []uint32{24, 30, 39} {
			frame, err := r.ReadFrame(lbn)
			require.NoError(t, err)
			sh, _, err := cdrom.DecodeMode2(frame)
			require.NoError(t, err)
			require.Equal(t, byte(consts.SM_FORM2), sh.SubMode, "gap sector %d", lbn)
		}
	})

	t.Run("Form2DataRoundTrip", func(t *testing.T) {
		block, err := r.ReadRawXA(40)
		require.NoError(t, err)
		// The EDC field is regenerated during framing; everything before it
		// must match the source block.
		require.Equal(t, s.movieContent[:2332], block[:2332])

		block, err = r.ReadRawXA(41)
		require.NoError(t, err)
		require.Equal(t, byte(consts.SM_DATA|consts.SM_FORM2|consts.SM_EOF|consts.SM_EOR), block[2])
	})

	t.Run("SubdirectoryFile", func(t *testing.T) {
		stat, err := r.Stat("/SUB/B.DAT")
		require.NoError(t, err)
		require.Equal(t, uint32(43), stat.LSN)
		require.Equal(t, uint32(2), stat.NumSectors)
		require.Equal(t, uint32(3000), stat.Size)
	})

	t.Run("SystemAreaContent", func(t *testing.T) {
		payload, err := r.ReadData(0)
		require.NoError(t, err)
		require.Equal(t, bytes.Repeat([]byte{0xC9}, 100), payload[:100])

		frame, err := r.ReadFrame(1)
		require.NoError(t, err)
		sh, _, err := cdrom.DecodeMode2(frame)
		require.NoError(t, err)
		require.True(t, sh.IsForm2(), "sectors past the license data are empty")
	})

	t.Run("PathTables", func(t *testing.T) {
		// Root (10 bytes) plus SUB (12 bytes). Type L at 18, type M at 20.
		require.Equal(t, uint32(22), r.PVD().PathTableSize)

		l, err := r.ReadData(18)
		require.NoError(t, err)
		require.Equal(t, uint32(22), binary.LittleEndian.Uint32(l[2:6]))
		require.Equal(t, "SUB", string(l[18:21]))

		m, err := r.ReadData(20)
		require.NoError(t, err)
		require.Equal(t, uint32(22), binary.BigEndian.Uint32(m[2:6]))
	})

	t.Run("StatErrors", func(t *testing.T) {
		_, err := r.Stat("/MISSING.BIN")
		require.Error(t, err)
		_, err = r.Stat("/A.TXT/Nested")
		require.Error(t, err)
	})
}

func TestBuildWithCueFile(t *testing.T) {
	s := buildSampleImage(t, options.WithCueFile(true))

	cuePath := filepath.Join(s.outDir, "example.cue")
	content, err := os.ReadFile(cuePath)
	require.NoError(t, err)
	require.Equal(t, "FILE \"example.bin\" BINARY\r\n  TRACK 01 MODE2/2352\r\n    INDEX 01 00:00:00\r\n", string(content))

	t.Run("OpenViaCueSheet", func(t *testing.T) {
		r, err := Open(cuePath)
		require.NoError(t, err)
		defer r.Close()
		require.Equal(t, s.imagePath, r.ImagePath())
	})

	t.Run("OpenWithoutExtension", func(t *testing.T) {
		r, err := Open(filepath.Join(s.outDir, "example"))
		require.NoError(t, err)
		defer r.Close()
		require.Equal(t, s.imagePath, r.ImagePath())
	})
}

func TestBuildProgressCallback(t *testing.T) {
	var names []string
	buildSampleImage(t, options.WithProgress(func(name string, current, total int64) {
		require.LessOrEqual(t, current, total)
		names = append(names, filepath.Base(name))
	}))
	require.Contains(t, names, "A.TXT")
	require.Contains(t, names, "MOVIE.STR")
	require.Contains(t, names, "B.DAT")
}

func TestBuildErrors(t *testing.T) {
	t.Run("NoRootDirectory", func(t *testing.T) {
		cat, err := catalog.Parse(strings.NewReader("volume {\n  volume_id [X]\n}\n"), t.TempDir())
		require.NoError(t, err)
		err = NewBuilder(cat).Write(filepath.Join(t.TempDir(), "out"))
		require.Error(t, err)
	})
}

func TestInject(t *testing.T) {
	t.Run("Form1Replacement", func(t *testing.T) {
		s := buildSampleImage(t)
		replacement := []byte("BOOT=cdrom:\\GAME.EXE;1\r\nTCB=4\r\n")
		newPath := filepath.Join(s.base, "NEW.CNF")
		require.NoError(t, os.WriteFile(newPath, replacement, 0o644))

		require.NoError(t, NewPatcher().Inject(s.imagePath, "/A.TXT", newPath))

		r, err := Open(s.imagePath)
		require.NoError(t, err)
		defer r.Close()

		stat, err := r.Stat("/A.TXT")
		require.NoError(t, err)
		require.Equal(t, uint32(len(replacement)), stat.Size, "directory record size is patched")
		require.Equal(t, uint32(23), stat.LSN, "the extent does not move")

		payload, err := r.ReadData(stat.LSN)
		require.NoError(t, err)
		require.Equal(t, replacement, payload[:len(replacement)])

		// The root directory sector was re-framed; its EDC must still hold.
		frame, err := r.ReadFrame(22)
		require.NoError(t, err)
		ok, err := cdrom.VerifyEDC(frame)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("Form2Replacement", func(t *testing.T) {
		s := buildSampleImage(t)
		sub := byte(consts.SM_DATA | consts.SM_FORM2)
		replacement := append(xaBlock(2, sub, 0x77), xaBlock(2, sub|consts.SM_EOF|consts.SM_EOR, 0x88)...)
		newPath := filepath.Join(s.base, "NEW.STR")
		require.NoError(t, os.WriteFile(newPath, replacement, 0o644))

		require.NoError(t, NewPatcher().Inject(s.imagePath, "/MOVIE.STR", newPath))

		r, err := Open(s.imagePath)
		require.NoError(t, err)
		defer r.Close()

		block, err := r.ReadRawXA(40)
		require.NoError(t, err)
		require.Equal(t, replacement[:2332], block[:2332])
	})

	t.Run("TooLargeLeavesImageIntact", func(t *testing.T) {
		s := buildSampleImage(t)
		before, err := os.ReadFile(s.imagePath)
		require.NoError(t, err)

		newPath := filepath.Join(s.base, "BIG.DAT")
		require.NoError(t, os.WriteFile(newPath, make([]byte, 3000), 0o644))

		err = NewPatcher().Inject(s.imagePath, "/A.TXT", newPath)
		require.Error(t, err)
		require.Contains(t, err.Error(), "would require 2 sectors but there is only room for 1 sectors")

		after, err := os.ReadFile(s.imagePath)
		require.NoError(t, err)
		require.Equal(t, before, after)
	})

	t.Run("Form2SizeMustBeBlockAligned", func(t *testing.T) {
		s := buildSampleImage(t)
		newPath := filepath.Join(s.base, "ODD.STR")
		require.NoError(t, os.WriteFile(newPath, make([]byte, 1000), 0o644))

		err := NewPatcher().Inject(s.imagePath, "/MOVIE.STR", newPath)
		require.Error(t, err)
		require.Contains(t, err.Error(), "not a multiple of 2336")
	})

	t.Run("DirectoryTarget", func(t *testing.T) {
		s := buildSampleImage(t)
		err := NewPatcher().Inject(s.imagePath, "/SUB", filepath.Join(s.base, "A.TXT"))
		require.Error(t, err)
	})

	t.Run("MissingTarget", func(t *testing.T) {
		s := buildSampleImage(t)
		err := NewPatcher().Inject(s.imagePath, "/NOPE.BIN", filepath.Join(s.base, "A.TXT"))
		require.Error(t, err)
	})
}

func TestRip(t *testing.T) {
	s := buildSampleImage(t)
	ripDir := filepath.Join(t.TempDir(), "ripped")
	require.NoError(t, NewRipper(options.WithLBNs(true)).Rip(s.imagePath, ripDir))

	t.Run("SystemAreaDump", func(t *testing.T) {
		content, err := os.ReadFile(ripDir + ".sys")
		require.NoError(t, err)
		require.Len(t, content, consts.ISO9660_SECTOR_SIZE, "the dump stops at the first empty sector")
		require.Equal(t, bytes.Repeat([]byte{0xC9}, 100), content[:100])
	})

	t.Run("ExtractedFiles", func(t *testing.T) {
		text, err := os.ReadFile(filepath.Join(ripDir, "A.TXT"))
		require.NoError(t, err)
		require.Equal(t, s.textContent, text, "form 1 files are truncated to their recorded size")

		movie, err := os.ReadFile(filepath.Join(ripDir, "MOVIE.STR"))
		require.NoError(t, err)
		require.Len(t, movie, 2*consts.M2RAW_SECTOR_SIZE)
		require.Equal(t, s.movieContent[:2332], movie[:2332])

		data, err := os.ReadFile(filepath.Join(ripDir, "SUB", "B.DAT"))
		require.NoError(t, err)
		require.Equal(t, s.dataContent, data)
	})

	t.Run("CatalogRoundTrip", func(t *testing.T) {
		content, err := os.ReadFile(ripDir + ".cat")
		require.NoError(t, err)
		text := string(content)
		require.Contains(t, text, "volume_id [EXAMPLE]")
		require.Contains(t, text, "file A.TXT @23")
		require.Contains(t, text, "xafile MOVIE.STR @40")
		require.Contains(t, text, "file B.DAT @43")

		cat, err := catalog.ParseFile(ripDir+".cat", ripDir)
		require.NoError(t, err)
		require.Equal(t, "EXAMPLE", cat.Volume.VolumeIdentifier)
		require.Len(t, cat.Root.Children, 3)
		require.Equal(t, uint32(40), cat.Root.Children[1].RequestedStartSector)
	})

	t.Run("RebuiltImageMatches", func(t *testing.T) {
		cat, err := catalog.ParseFile(ripDir+".cat", ripDir)
		require.NoError(t, err)

		rebuiltPath := filepath.Join(t.TempDir(), "rebuilt")
		require.NoError(t, NewBuilder(cat).Write(rebuiltPath))

		original, err := os.ReadFile(s.imagePath)
		require.NoError(t, err)
		rebuilt, err := os.ReadFile(rebuiltPath + ".bin")
		require.NoError(t, err)
		require.Equal(t, len(original), len(rebuilt))
		require.True(t, bytes.Equal(original, rebuilt), "rip and rebuild reproduces the image")
	})
}

func TestDumpLBNTable(t *testing.T) {
	s := buildSampleImage(t)

	var buf strings.Builder
	require.NoError(t, NewRipper().DumpLBNTable(s.imagePath, &buf))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	require.Equal(t, fmt.Sprintf("%8s %8s %8s T Path", "LBN", "NumSec", "Size"), lines[0])
	require.Equal(t, "00000016 00000001 00000800 d ", lines[1], "the root row has an empty path")
	require.Contains(t, lines, fmt.Sprintf("%08x %08x %08x f %s", 23, 1, len(s.textContent), "A.TXT"))
	require.Contains(t, lines, fmt.Sprintf("%08x %08x %08x x %s", 40, 2, 2*consts.M2RAW_SECTOR_SIZE, "MOVIE.STR"))
	require.Contains(t, lines, fmt.Sprintf("%08x %08x %08x d %s", 42, 1, 2048, "SUB"))
	require.Contains(t, lines, fmt.Sprintf("%08x %08x %08x f %s", 43, 2, 3000, "SUB/B.DAT"))
}

func TestOpenErrors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "nope.bin"))
		require.Error(t, err)
	})

	t.Run("OddSize", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "junk.bin")
		require.NoError(t, os.WriteFile(path, make([]byte, 1000), 0o644))
		_, err := Open(path)
		require.Error(t, err)
	})
}
