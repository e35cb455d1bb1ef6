package fat32

// vbr is the 512-byte FAT32 Volume Boot Record, flattening the teacher's
// layered dos20BPB/dos331BPB/dos71EBPB composition into one packed struct
// since go-restruct (de)serializes field-by-field in declaration order with
// no implicit padding; the field groupings below mirror those three BPB
// generations for readability only.
type vbr struct {
	JumpCode [3]byte
	OEMName  [8]byte

	// DOS 2.0 BPB
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootDirEntries    uint16
	TotalSectors16    uint16
	Media             uint8
	SectorsPerFAT16   uint16

	// DOS 3.31 BPB
	SectorsPerTrack uint16
	Heads           uint16
	HiddenSectors   uint32
	TotalSectors32  uint32

	// DOS 7.1 EBPB (FAT32-specific)
	SectorsPerFAT32       uint32
	MirrorFlags           uint16
	Version               uint16
	RootDirCluster        uint32
	FSInfoSector          uint16
	BackupBootSector      uint16
	Reserved              [12]byte
	DriveNumber           uint8
	ReservedFlags         uint8
	ExtendedBootSignature uint8
	VolumeSerialNumber    uint32
	VolumeLabel           [11]byte
	FileSystemType        [8]byte

	BootCode      [420]byte
	BootSignature uint16 // 0xAA55
}

// fsInfoSector is the FAT32 FSINFO structure at sector 1 (and its backup).
type fsInfoSector struct {
	LeadSignature    uint32 // 0x41615252
	Reserved1        [480]byte
	StructSignature  uint32 // 0x61417272
	FreeClusters     uint32
	NextFreeCluster  uint32
	Reserved2        [12]byte
	TrailSignature   uint32 // 0xAA550000
}

const (
	vbrLeadSignature   = 0x41615252
	vbrStructSignature = 0x61417272
	vbrTrailSignature  = 0xAA550000
	vbrBootSignature   = 0xAA55
)
