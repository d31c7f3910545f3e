package consts

const (
	// Number of system area sectors reserved at the start of the volume.
	ISO9660_SYSTEM_AREA_SECTORS = 16

	// Standard ISO9660 identifier.
	ISO9660_STD_IDENTIFIER = "CD001"

	// ISO9660 volume descriptor version (always 1).
	ISO9660_VOLUME_DESC_VERSION = 1

	// ISO9660 logical block size.
	ISO9660_SECTOR_SIZE = 2048

	// ISO9660 volume descriptor header size
	ISO9660_VOLUME_DESC_HEADER_SIZE = 7

	// ISO9660 application use area size
	ISO9660_APPLICATION_USE_SIZE = 512

	// Fixed sector numbers of the primary volume descriptor and the volume
	// descriptor set terminator that follows it.
	ISO9660_PVD_SECTOR = 16
	ISO9660_EVD_SECTOR = 17

	// a-characters set which are specified in the International Reference Version at the following positions.
	//   | 2/0 - 2/2
	//   | 2/5 - 2/15
	//   | 3/0 - 3/15
	//   | 4/1 - 4/15
	//   | 5/0 - 5/10
	//   | 5/15
	A_CHARACTERS = " !\"%&'()*+,-./0123456789:;<=>?ABCDEFGHIJKLMNOPQRSTUVWXYZ_"

	// d-characters: 37 characters in the following positions of the International Reference Version
	// | 3/0 - 3/9
	// | 4/1 - 5/10
	// | 5/15
	D_CHARACTERS = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_"

	// Separators allowed by ISO9660 0x2E and 0x3B.
	ISO9660_SEPARATOR_1 = "."
	ISO9660_SEPARATOR_2 = ";"

	// ISO9660 Filler 0x20 (space)
	ISO9660_FILLER = ' '
)

// Raw CD-ROM sector geometry (Mode 2 / CD-ROM XA).
const (
	// Full raw CD sector size.
	CD_FRAMESIZE_RAW = 2352

	// Mode 2 sector without sync and header (subheader + user data + EDC).
	M2RAW_SECTOR_SIZE = 2336

	// Mode 2 Form 2 user data size.
	M2F2_DATA_SIZE = 2324

	// Sync pattern size at the start of a raw sector.
	CD_SYNC_SIZE = 12

	// Header size (3 BCD address bytes + 1 mode byte).
	CD_HEADER_SIZE = 4

	// XA subheader size (4 bytes, recorded twice).
	CD_SUBHEADER_SIZE = 8

	// Number of pre-gap frames added to an LBN to form the MSF address.
	CD_MSF_OFFSET = 150

	// Maximum number of sectors on a 74-minute medium.
	MAX_ISO_SECTORS = 74 * 60 * 75
)

// XA subheader submode flags.
const (
	SM_EOR      = 1 << 0 // end of logical record
	SM_VIDEO    = 1 << 1
	SM_AUDIO    = 1 << 2
	SM_DATA     = 1 << 3
	SM_TRIGGER  = 1 << 4
	SM_FORM2    = 1 << 5
	SM_REALTIME = 1 << 6
	SM_EOF      = 1 << 7 // end of file
)
