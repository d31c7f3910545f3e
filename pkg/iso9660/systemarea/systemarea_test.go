package systemarea

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/psxtools/psx-kit/pkg/consts"
)

func TestLoadEmpty(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	require.Zero(t, s.NumFileSectors())

	payload, empty := s.Sector(0)
	require.True(t, empty)
	require.Len(t, payload, consts.ISO9660_SECTOR_SIZE)
}

func TestLoadPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "license.dat")
	content := bytes.Repeat([]byte{0xAB}, 3000)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, s.NumFileSectors(), "3000 bytes cover two sectors")

	payload, empty := s.Sector(0)
	require.False(t, empty)
	require.Equal(t, content[:2048], payload)

	payload, empty = s.Sector(1)
	require.False(t, empty)
	require.Equal(t, content[2048:], payload[:952])
	for _, b := range payload[952:] {
		require.Zero(t, b, "the tail of the last file sector is zero padded")
	}

	_, empty = s.Sector(2)
	require.True(t, empty)
}

func TestLoadFull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "license.dat")
	require.NoError(t, os.WriteFile(path, make([]byte, Size+100), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, consts.ISO9660_SYSTEM_AREA_SECTORS, s.NumFileSectors(), "content past 32 KiB is ignored")
}

func TestSectorOutOfRange(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	payload, empty := s.Sector(16)
	require.Nil(t, payload)
	require.True(t, empty)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
