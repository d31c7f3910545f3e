package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/psxtools/psx-kit/pkg/iso9660/fstree"
)

const sampleCatalog = `
system_area {
  file "LICENSE.SYS"
}

volume {
  system_id [PLAYSTATION]
  volume_id [EXAMPLE]
  publisher_id [TEST PUBLISHER]
  creation_date 1999-01-01 00:00:00.00 0
  default_uid 5
}

dir {
  file SYSTEM.CNF
  xafile MOVIE.STR @5000
  dir DATA {
    file LEVEL1.DAT
  }
}
`

// sampleTree writes the host files referenced by sampleCatalog into a temp
// directory and returns it.
func sampleTree(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "SYSTEM.CNF"), []byte("BOOT=cdrom:\\PSX.EXE;1\r\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "MOVIE.STR"), make([]byte, 2336*3), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "DATA"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "DATA", "LEVEL1.DAT"), make([]byte, 5000), 0o644))
	return base
}

func TestParse(t *testing.T) {
	base := sampleTree(t)
	cat, err := Parse(strings.NewReader(sampleCatalog), base)
	require.NoError(t, err)

	t.Run("SystemArea", func(t *testing.T) {
		require.Equal(t, "LICENSE.SYS", cat.SystemAreaFile)
	})

	t.Run("Volume", func(t *testing.T) {
		require.Equal(t, "PLAYSTATION", cat.Volume.SystemIdentifier)
		require.Equal(t, "EXAMPLE", cat.Volume.VolumeIdentifier)
		require.Equal(t, "TEST PUBLISHER", cat.Volume.PublisherIdentifier)
		require.Equal(t, "1999-01-01 00:00:00.00 0", cat.Volume.CreationDate.String())
		require.Equal(t, uint16(5), cat.Volume.DefaultUID)
		require.Zero(t, cat.Volume.DefaultGID)
	})

	t.Run("Tree", func(t *testing.T) {
		require.NotNil(t, cat.Root)
		require.Len(t, cat.Root.Children, 3)

		cnf := cat.Root.Children[0]
		require.Equal(t, "SYSTEM.CNF;1", cnf.Name, "on-disc names carry the version suffix")
		require.Equal(t, filepath.Join(base, "SYSTEM.CNF"), cnf.HostPath)
		require.False(t, cnf.IsForm2)
		require.Zero(t, cnf.RequestedStartSector)

		movie := cat.Root.Children[1]
		require.True(t, movie.IsForm2)
		require.Equal(t, uint32(5000), movie.RequestedStartSector)
		require.Equal(t, uint32(3), movie.NumSectors, "form 2 files are sized in 2336-byte blocks")

		data := cat.Root.Children[2]
		require.True(t, data.IsDir())
		require.Equal(t, "DATA", data.Name)
		require.Len(t, data.Children, 1)
		require.Equal(t, "LEVEL1.DAT;1", data.Children[0].Name)
	})
}

func TestParseErrors(t *testing.T) {
	base := sampleTree(t)

	tests := []struct {
		name    string
		catalog string
	}{
		{"unknown section", "bogus {\n}\n"},
		{"unterminated volume", "volume {\n  volume_id [X]\n"},
		{"bad volume keyword", "volume {\n  colour [RED]\n}\n"},
		{"unbracketed identifier", "volume {\n  volume_id EXAMPLE\n}\n"},
		{"lowercase volume id", "volume {\n  volume_id [example]\n}\n"},
		{"bad date", "volume {\n  creation_date yesterday\n}\n"},
		{"bad uid", "volume {\n  default_uid many\n}\n"},
		{"two root dirs", "dir {\n}\ndir {\n}\n"},
		{"lowercase file name", "dir {\n  file system.cnf\n}\n"},
		{"bad lbn", "dir {\n  file SYSTEM.CNF @17\n}\n"},
		{"unparsable lbn", "dir {\n  file SYSTEM.CNF @soon\n}\n"},
		{"missing host file", "dir {\n  file NOT_THERE.BIN\n}\n"},
		{"junk in dir section", "dir {\n  link SYSTEM.CNF\n}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.catalog), base)
			require.Error(t, err)
		})
	}
}

func TestParseFile(t *testing.T) {
	base := sampleTree(t)
	path := filepath.Join(base, "example.cat")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))

	cat, err := ParseFile(path, base)
	require.NoError(t, err)
	require.NotNil(t, cat.Root)

	_, err = ParseFile(filepath.Join(base, "missing.cat"), base)
	require.Error(t, err)
}

func TestWriteRoundTrip(t *testing.T) {
	base := sampleTree(t)
	cat, err := Parse(strings.NewReader(sampleCatalog), base)
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, cat.Write(&buf, WriteOptions{}))
	text := buf.String()

	require.Contains(t, text, `file "LICENSE.SYS"`)
	require.Contains(t, text, "volume_id [EXAMPLE]")
	require.Contains(t, text, "file SYSTEM.CNF\n", "version suffix is stripped on output")
	require.Contains(t, text, "xafile MOVIE.STR\n")

	reparsed, err := Parse(strings.NewReader(text), base)
	require.NoError(t, err)
	require.Equal(t, cat.Volume, reparsed.Volume)
	require.Equal(t, cat.SystemAreaFile, reparsed.SystemAreaFile)
	require.Len(t, reparsed.Root.Children, 3)
}

func TestWriteLBNs(t *testing.T) {
	root := fstree.NewDirectory("", "", nil, 0)
	root.Children = append(root.Children, &fstree.Node{
		Kind:        fstree.KindFile,
		Name:        "A.TXT;1",
		Parent:      root,
		FirstSector: 23,
		NumSectors:  1,
	})

	cat := &Catalog{Root: root}
	var buf strings.Builder
	require.NoError(t, cat.Write(&buf, WriteOptions{WriteLBNs: true}))
	require.Contains(t, buf.String(), "file A.TXT @23")
}
