// Package cdrom implements the raw Mode 2 / CD-ROM XA sector codec used for
// PlayStation 1 disc images. Every logical block written to an image is framed
// into a 2352-byte raw sector consisting of sync pattern, BCD MSF header, XA
// subheader, user data and the ECMA-130 error detection/correction fields.
package cdrom

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/psxtools/psx-kit/pkg/consts"
)

// syncPattern is the 12-byte sync field at the start of every raw sector.
var syncPattern = [consts.CD_SYNC_SIZE]byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

// EDC table for the CD-ROM CRC polynomial, and the GF(2^8) forward/backward
// tables used by the P/Q parity encoder.
var (
	edcTable [256]uint32
	gfFwd    [256]byte
	gfBwd    [256]byte
)

func init() {
	for i := uint32(0); i < 256; i++ {
		edc := i
		for j := 0; j < 8; j++ {
			if edc&1 != 0 {
				edc = (edc >> 1) ^ 0xD8018001
			} else {
				edc >>= 1
			}
		}
		edcTable[i] = edc
	}
	for i := 0; i < 256; i++ {
		j := i << 1
		if i&0x80 != 0 {
			j ^= 0x11D
		}
		j &= 0xFF
		gfFwd[i] = byte(j)
		gfBwd[i^j] = byte(i)
	}
}

// computeEDC returns the CRC over data with the CD-ROM EDC polynomial.
func computeEDC(data []byte) uint32 {
	var edc uint32
	for _, b := range data {
		edc = edcTable[(edc^uint32(b))&0xFF] ^ (edc >> 8)
	}
	return edc
}

// eccComputeBlock writes one parity block (P or Q) over the 2064-byte region
// starting at the sector header. The address geometry follows ECMA-130 Annex A.
func eccComputeBlock(src []byte, majorCount, minorCount, majorMult, minorInc int, dest []byte) {
	mlen := majorCount * minorCount
	for major := 0; major < majorCount; major++ {
		index := (major >> 1) * majorMult + (major & 1)
		var eccA, eccB byte
		for minor := 0; minor < minorCount; minor++ {
			temp := src[index]
			index += minorInc
			if index >= mlen {
				index -= mlen
			}
			eccA ^= temp
			eccB ^= temp
			eccA = gfFwd[eccA]
		}
		eccA = gfBwd[gfFwd[eccA]^eccB]
		dest[major] = eccA
		dest[major+majorCount] = eccA ^ eccB
	}
}

// encodeParity fills in the 276 parity bytes of a Form 1 sector. For Mode 2
// Form 1 the parity is computed with the 4-byte address field set to zero, and
// the Q parity covers the P parity bytes, so both are computed in a scratch
// copy of the header..EDC region before being written back.
func encodeParity(frame []byte) {
	var region [2340]byte
	copy(region[4:], frame[consts.CD_SYNC_SIZE+consts.CD_HEADER_SIZE:])

	// P parity: 86 columns of 24 bytes.
	eccComputeBlock(region[:], 86, 24, 2, 86, region[2064:])
	// Q parity: 52 diagonals of 43 bytes, covering the P bytes as well.
	eccComputeBlock(region[:], 52, 43, 86, 88, region[2236:])

	// Parity lands at sector offsets 0x81C (P) and 0x8C8 (Q).
	copy(frame[2076:], region[2064:])
}

// lbnToMSF converts an absolute logical block number into the 3-byte BCD
// minute/second/frame address recorded in the sector header. The 150-frame
// pre-gap is added, as on a real disc.
func lbnToMSF(lbn uint32) (m, s, f byte) {
	frames := lbn + consts.CD_MSF_OFFSET
	return toBCD(frames / (60 * 75)), toBCD((frames % (60 * 75)) / 75), toBCD(frames % 75)
}

func toBCD(v uint32) byte {
	return byte(((v / 10) << 4) | (v % 10))
}

func fromBCD(b byte) uint32 {
	return uint32(b>>4)*10 + uint32(b&0x0F)
}

// MSFToLBN is the inverse of the header address encoding.
func MSFToLBN(m, s, f byte) uint32 {
	return (fromBCD(m)*60+fromBCD(s))*75 + fromBCD(f) - consts.CD_MSF_OFFSET
}

// Subheader is the 4-byte XA subheader recorded twice in every Mode 2 sector.
type Subheader struct {
	FileNumber    byte
	ChannelNumber byte
	SubMode       byte
	CodingInfo    byte
}

// IsForm2 reports whether the submode marks a Form 2 sector.
func (sh Subheader) IsForm2() bool {
	return sh.SubMode&consts.SM_FORM2 != 0
}

// EncodeMode2 frames a logical block into the 2352-byte raw sector buffer.
// The payload is 2048 bytes for a Form 1 sector and 2324 bytes for a Form 2
// sector, selected by the FORM2 bit of the subheader submode. Shorter payloads
// are zero padded. The sync field, BCD MSF header, doubled subheader, EDC and
// (for Form 1) the P/Q parity bytes are generated.
func EncodeMode2(frame []byte, payload []byte, lbn uint32, sh Subheader) error {
	if len(frame) != consts.CD_FRAMESIZE_RAW {
		return fmt.Errorf("raw sector buffer must be %d bytes, got %d", consts.CD_FRAMESIZE_RAW, len(frame))
	}

	dataSize := consts.ISO9660_SECTOR_SIZE
	if sh.IsForm2() {
		dataSize = consts.M2F2_DATA_SIZE
	}
	if len(payload) > dataSize {
		return fmt.Errorf("payload of %d bytes exceeds form data size %d", len(payload), dataSize)
	}

	for i := range frame {
		frame[i] = 0
	}

	copy(frame, syncPattern[:])
	m, s, f := lbnToMSF(lbn)
	frame[12] = m
	frame[13] = s
	frame[14] = f
	frame[15] = 2 // mode

	sub := frame[16:24]
	sub[0], sub[4] = sh.FileNumber, sh.FileNumber
	sub[1], sub[5] = sh.ChannelNumber, sh.ChannelNumber
	sub[2], sub[6] = sh.SubMode, sh.SubMode
	sub[3], sub[7] = sh.CodingInfo, sh.CodingInfo

	copy(frame[24:24+dataSize], payload)

	if sh.IsForm2() {
		// EDC over subheader and data, stored in the last 4 bytes.
		binary.LittleEndian.PutUint32(frame[2348:], computeEDC(frame[16:2348]))
	} else {
		binary.LittleEndian.PutUint32(frame[2072:], computeEDC(frame[16:2072]))
		encodeParity(frame)
	}

	return nil
}

// DecodeMode2 validates the framing of a raw sector and returns its subheader
// and user data. The returned payload aliases the frame buffer.
func DecodeMode2(frame []byte) (Subheader, []byte, error) {
	var sh Subheader
	if len(frame) != consts.CD_FRAMESIZE_RAW {
		return sh, nil, fmt.Errorf("raw sector must be %d bytes, got %d", consts.CD_FRAMESIZE_RAW, len(frame))
	}
	if !bytes.Equal(frame[:consts.CD_SYNC_SIZE], syncPattern[:]) {
		return sh, nil, fmt.Errorf("invalid sync pattern %x", frame[:consts.CD_SYNC_SIZE])
	}
	if frame[15] != 2 {
		return sh, nil, fmt.Errorf("unexpected sector mode %d", frame[15])
	}
	sub := frame[16:24]
	if sub[0] != sub[4] || sub[1] != sub[5] || sub[2] != sub[6] || sub[3] != sub[7] {
		return sh, nil, fmt.Errorf("subheader copies disagree: %x", sub)
	}
	sh = Subheader{FileNumber: sub[0], ChannelNumber: sub[1], SubMode: sub[2], CodingInfo: sub[3]}

	if sh.IsForm2() {
		return sh, frame[24 : 24+consts.M2F2_DATA_SIZE], nil
	}
	return sh, frame[24 : 24+consts.ISO9660_SECTOR_SIZE], nil
}

// VerifyEDC recomputes the error detection code of a raw sector and reports
// whether it matches the recorded value.
func VerifyEDC(frame []byte) (bool, error) {
	sh, _, err := DecodeMode2(frame)
	if err != nil {
		return false, err
	}
	if sh.IsForm2() {
		return binary.LittleEndian.Uint32(frame[2348:]) == computeEDC(frame[16:2348]), nil
	}
	return binary.LittleEndian.Uint32(frame[2072:]) == computeEDC(frame[16:2072]), nil
}

// LBAToMSF formats an LBA as a human readable MM:SS:FF string (cue sheet
// style, pre-gap included).
func LBAToMSF(lba uint32) string {
	frames := lba + consts.CD_MSF_OFFSET
	return fmt.Sprintf("%02d:%02d:%02d", frames/(60*75), (frames%(60*75))/75, frames%75)
}
