package directory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/psxtools/psx-kit/pkg/iso9660/xa"
)

func TestRecordSize(t *testing.T) {
	tests := []struct {
		nameLen, suLen, want int
	}{
		{1, 14, 48},  // dot record with XA attributes
		{1, 0, 34},   // bare dot record
		{14, 14, 62}, // "FILE_000.DAT;1"
		{7, 14, 54},  // odd name lengths need no pad byte
		{8, 14, 56},  // even name lengths get one
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, RecordSize(tt.nameLen, tt.suLen), "RecordSize(%d, %d)", tt.nameLen, tt.suLen)
	}
}

func TestRecordMarshalRoundTrip(t *testing.T) {
	sysUse := xa.NewRecord(0, 0, xa.FORM1_FILE, 0).Marshal()
	want := Record{
		ExtentLocation:       1234,
		DataLength:           56789,
		RecordingDateTime:    time.Date(1994, 12, 1, 10, 30, 59, 0, time.UTC),
		FileFlags:            FLAG_EXISTENCE,
		VolumeSequenceNumber: 1,
		Identifier:           "README.TXT;1",
		SystemUse:            sysUse[:],
	}

	data, err := want.Marshal()
	require.NoError(t, err)
	require.Len(t, data, want.Len())
	require.Equal(t, byte(want.Len()), data[0])
	require.Equal(t, byte(12), data[32], "identifier length")

	var got Record
	n, err := got.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, want.Len(), n)
	require.Equal(t, want.ExtentLocation, got.ExtentLocation)
	require.Equal(t, want.DataLength, got.DataLength)
	require.Equal(t, want.FileFlags, got.FileFlags)
	require.Equal(t, want.Identifier, got.Identifier)
	require.Equal(t, want.SystemUse, got.SystemUse)
	require.True(t, want.RecordingDateTime.Equal(got.RecordingDateTime))
}

func TestRecordMarshalDot(t *testing.T) {
	r := Record{
		ExtentLocation:       22,
		DataLength:           2048,
		FileFlags:            FLAG_DIRECTORY,
		VolumeSequenceNumber: 1,
		Identifier:           "\x00",
	}
	data, err := r.Marshal()
	require.NoError(t, err)
	require.Equal(t, byte(34), data[0])
	require.Equal(t, byte(1), data[32])
	require.Equal(t, byte(0), data[33])
	require.True(t, r.IsDir())
}

func TestUnmarshalZeroLength(t *testing.T) {
	var r Record
	n, err := r.Unmarshal(make([]byte, 100))
	require.NoError(t, err)
	require.Zero(t, n, "length byte of zero means no record")
}

func TestUnmarshalInvalidLength(t *testing.T) {
	data := make([]byte, 100)
	data[0] = 10 // below the 34-byte minimum
	var r Record
	_, err := r.Unmarshal(data)
	require.Error(t, err)
}
