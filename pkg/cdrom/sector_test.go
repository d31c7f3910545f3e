package cdrom

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/psxtools/psx-kit/pkg/consts"
)

func TestEncodeMode2Form1(t *testing.T) {
	payload := make([]byte, consts.ISO9660_SECTOR_SIZE)
	for i := range payload {
		payload[i] = byte(i)
	}

	frame := make([]byte, consts.CD_FRAMESIZE_RAW)
	sh := Subheader{SubMode: consts.SM_DATA}
	err := EncodeMode2(frame, payload, 16, sh)
	require.NoError(t, err)

	t.Run("SyncAndHeader", func(t *testing.T) {
		require.Equal(t, syncPattern[:], frame[:12])
		// LBN 16 + 150 frame pre-gap = 166 frames = 00:02:16 in BCD.
		require.Equal(t, byte(0x00), frame[12])
		require.Equal(t, byte(0x02), frame[13])
		require.Equal(t, byte(0x16), frame[14])
		require.Equal(t, byte(2), frame[15])
	})

	t.Run("SubheaderDoubled", func(t *testing.T) {
		require.Equal(t, frame[16:20], frame[20:24])
		require.Equal(t, byte(consts.SM_DATA), frame[18])
	})

	t.Run("RoundTrip", func(t *testing.T) {
		gotSH, gotPayload, err := DecodeMode2(frame)
		require.NoError(t, err)
		require.Equal(t, sh, gotSH)
		require.Equal(t, payload, gotPayload)
	})

	t.Run("EDCVerifies", func(t *testing.T) {
		ok, err := VerifyEDC(frame)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("EDCCatchesCorruption", func(t *testing.T) {
		corrupted := make([]byte, len(frame))
		copy(corrupted, frame)
		corrupted[100] ^= 0xFF
		ok, err := VerifyEDC(corrupted)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestEncodeMode2Form2(t *testing.T) {
	payload := make([]byte, consts.M2F2_DATA_SIZE)
	for i := range payload {
		payload[i] = byte(i * 3)
	}

	frame := make([]byte, consts.CD_FRAMESIZE_RAW)
	sh := Subheader{FileNumber: 1, SubMode: consts.SM_DATA | consts.SM_FORM2, CodingInfo: 0}
	err := EncodeMode2(frame, payload, 22, sh)
	require.NoError(t, err)

	gotSH, gotPayload, err := DecodeMode2(frame)
	require.NoError(t, err)
	require.True(t, gotSH.IsForm2())
	require.Equal(t, payload, gotPayload)
	require.Len(t, gotPayload, consts.M2F2_DATA_SIZE)

	ok, err := VerifyEDC(frame)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEncodeMode2ShortPayloadZeroPadded(t *testing.T) {
	frame := make([]byte, consts.CD_FRAMESIZE_RAW)
	err := EncodeMode2(frame, []byte{0xAA, 0xBB}, 0, Subheader{SubMode: consts.SM_DATA})
	require.NoError(t, err)

	_, payload, err := DecodeMode2(frame)
	require.NoError(t, err)
	require.Equal(t, byte(0xAA), payload[0])
	require.Equal(t, byte(0xBB), payload[1])
	for _, b := range payload[2:] {
		require.Zero(t, b)
	}
}

func TestEncodeMode2Errors(t *testing.T) {
	t.Run("BadFrameSize", func(t *testing.T) {
		err := EncodeMode2(make([]byte, 2048), nil, 0, Subheader{})
		require.Error(t, err)
	})

	t.Run("OversizedForm1Payload", func(t *testing.T) {
		frame := make([]byte, consts.CD_FRAMESIZE_RAW)
		err := EncodeMode2(frame, make([]byte, 2049), 0, Subheader{SubMode: consts.SM_DATA})
		require.Error(t, err)
	})
}

func TestDecodeMode2Errors(t *testing.T) {
	t.Run("BadSync", func(t *testing.T) {
		frame := make([]byte, consts.CD_FRAMESIZE_RAW)
		_, _, err := DecodeMode2(frame)
		require.Error(t, err)
	})

	t.Run("BadMode", func(t *testing.T) {
		frame := make([]byte, consts.CD_FRAMESIZE_RAW)
		require.NoError(t, EncodeMode2(frame, nil, 0, Subheader{SubMode: consts.SM_DATA}))
		frame[15] = 1
		_, _, err := DecodeMode2(frame)
		require.Error(t, err)
	})

	t.Run("SubheaderMismatch", func(t *testing.T) {
		frame := make([]byte, consts.CD_FRAMESIZE_RAW)
		require.NoError(t, EncodeMode2(frame, nil, 0, Subheader{SubMode: consts.SM_DATA}))
		frame[20] ^= 0x01
		_, _, err := DecodeMode2(frame)
		require.Error(t, err)
	})
}

func TestMSFConversions(t *testing.T) {
	tests := []struct {
		lbn     uint32
		m, s, f byte
	}{
		{0, 0x00, 0x02, 0x00},
		{16, 0x00, 0x02, 0x16},
		{150, 0x00, 0x04, 0x00},
		{4500, 0x01, 0x02, 0x00},
		{333000 - 150, 0x74, 0x00, 0x00},
	}
	for _, tt := range tests {
		m, s, f := lbnToMSF(tt.lbn)
		require.Equal(t, tt.m, m, "minute for lbn %d", tt.lbn)
		require.Equal(t, tt.s, s, "second for lbn %d", tt.lbn)
		require.Equal(t, tt.f, f, "frame for lbn %d", tt.lbn)
		require.Equal(t, tt.lbn, MSFToLBN(m, s, f))
	}
}

func TestLBAToMSF(t *testing.T) {
	require.Equal(t, "00:02:00", LBAToMSF(0))
	require.Equal(t, "01:02:00", LBAToMSF(4500))
}
