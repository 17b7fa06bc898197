package xfs

// On-disk structure layouts and magic numbers for the XFS v4/v5 formats.
// Every structure here describes bytes read from the medium; fields are
// decoded through the codec (codec.go), never through native pointer casts,
// so this file is offset documentation as much as it is Go types.

const (
	sbMagicNumber = 0x58465342 // "XFSB"

	versionNumberMask = 0x000f // XFS_SB_VERSION_NUMBITS
	version4          = 4      // XFS_SB_VERSION_4
	version5          = 5      // XFS_SB_VERSION_5

	versionAttrBit     = 0x0010 // XFS_SB_VERSION_ATTRBIT
	versionNlinkBit    = 0x0020 // XFS_SB_VERSION_NLINKBIT
	versionQuotaBit    = 0x0040 // XFS_SB_VERSION_QUOTABIT
	versionAlignBit    = 0x0080 // XFS_SB_VERSION_ALIGNBIT
	versionDalignBit   = 0x0100 // XFS_SB_VERSION_DALIGNBIT
	versionSharedBit   = 0x0200 // XFS_SB_VERSION_SHAREDBIT
	versionLogV2Bit    = 0x0400 // XFS_SB_VERSION_LOGV2BIT
	versionSectorBit   = 0x0800 // XFS_SB_VERSION_SECTORBIT
	versionExtFlgBit   = 0x1000 // XFS_SB_VERSION_EXTFLGBIT
	versionDirV2Bit    = 0x2000 // XFS_SB_VERSION_DIRV2BIT
	versionBorgBit     = 0x4000 // XFS_SB_VERSION_BORGBIT
	versionMoreBitsBit = 0x8000 // XFS_SB_VERSION_MOREBITSBIT

	version2LazySBCountBit = 0x00000002 // XFS_SB_VERSION2_LAZYSBCOUNTBIT
	version2Attr2Bit       = 0x00000008 // XFS_SB_VERSION2_ATTR2BIT
	version2ParentBit      = 0x00000010 // XFS_SB_VERSION2_PARENTBIT
	version2ProjID32Bit    = 0x00000080 // XFS_SB_VERSION2_PROJID32BIT
	version2CRCBit         = 0x00000100 // XFS_SB_VERSION2_CRCBIT
	version2FtypeBit       = 0x00000200 // XFS_SB_VERSION2_FTYPE

	// sb_features_incompat bits (v5 only). A decoder that doesn't
	// recognize a required incompat bit must refuse the mount.
	incompatFtype    = 0x00000001
	incompatSparse   = 0x00000002
	incompatMetaUUID = 0x00000004
	incompatRmapBt   = 0x00000010
	incompatReflink  = 0x00000020

	dir2DataFDCount = 3 // XFS_DIR2_DATA_FD_COUNT

	dir2BlockMagic = 0x58443242 // XFS_DIR2_BLOCK_MAGIC "XD2B"
	dir2DataMagic  = 0x58443244 // XFS_DIR2_DATA_MAGIC "XD2D" (v4)
	dir3DataMagic  = 0x58444233 // "XDB3" (v5)
	dir2Leaf1Magic = 0xd2f1     // XFS_DIR2_LEAF1_MAGIC (v4)
	dir3Leaf1Magic = 0x3df1     // v5 single-leaf directory
	dir2LeafNMagic = 0xd2ff     // XFS_DIR2_LEAFN_MAGIC (v4)
	dir3LeafNMagic = 0x3ff1     // v5 leafn block
	dir2FreeMagic  = 0x58443246 // XFS_DIR2_FREE_MAGIC "XD2F" (v4)
	dir3FreeMagic  = 0x58444633 // "XDF3" (v5)
	daNodeMagic    = 0xfebe     // XFS_DA_NODE_MAGIC (v4)
	da3NodeMagic   = 0x3ebe     // v5 node block

	xfsDir2DataFreeTag = 0xffff
	xfsDir2DataAlign   = 8

	attrLeafMagic  = 0xfbee // XFS_ATTR_LEAF_MAGIC (v4)
	attr3LeafMagic = 0x3bee // v5 attribute leaf

	ftypeRegularFile  = 1
	ftypeDirectory    = 2
	ftypeCharSpecial  = 3
	ftypeBlockSpecial = 4
	ftypeFIFO         = 5
	ftypeSocket       = 6
	ftypeSymlink      = 7

	inodeMagicNumber = 0x494e // "IN"

	inodeFormatDev     = 0
	inodeFormatLocal   = 1
	inodeFormatExtents = 2
	inodeFormatBTree   = 3

	bmbtMagic  = 0x424d4150 // "BMAP" (v4 BMBT node/leaf block)
	bmbt3Magic = 0x424d4133 // "BMA3" (v5 BMBT node/leaf block)

	// attr entry flag bits (low bits double as the namespace selector).
	attrLocalFlag  = 0x01
	attrRootFlag   = 0x02
	attrSecureFlag = 0x08
	attrIncomplete = 0x10

	// S_IFMT family, used by InodeView.IsDir/IsLnk/IsReg to classify an
	// inode's mode.
	sIFMT  = 0xf000
	sIFDIR = 0x4000
	sIFREG = 0x8000
	sIFLNK = 0xa000
)

// superBlockOnDisk is the v4 superblock layout (bytes 0..207). v5 images
// carry superBlockV5Extra immediately after it.
type superBlockOnDisk struct {
	MagicNumber                     uint32   // 0
	BlockSize                       uint32   // 4
	DataBlocks                      uint64   // 8
	RealtimeBlocks                  uint64   // 16
	RealtimeExtents                 uint64   // 24
	UUID                            [16]byte // 32
	LogStart                        uint64   // 48
	RootInode                       uint64   // 56
	RealtimeBitmapInode             uint64   // 64
	RealtimeSummaryInode            uint64   // 72
	RealtimeExtentBlocks            uint32   // 80
	AGBlocks                        uint32   // 84
	AGCount                         uint32   // 88
	RealtimeBitmapBlocks            uint32   // 92
	LogBlocks                       uint32   // 96
	VersionNum                      uint16   // 100
	SectorSize                      uint16   // 102
	InodeSize                       uint16   // 104
	InodesPerBlock                  uint16   // 106
	FSName                          [12]byte // 108
	BlockSizeLogarithmic            uint8    // 120
	SectorSizeLogarithmic           uint8    // 121
	InodeSizeLogarithmic            uint8    // 122
	InodesPerBlockLogarithmic       uint8    // 123
	AGBlocksLogarithmic             uint8    // 124
	RealtimeExtentBlocksLogarithmic uint8    // 125
	InProgress                      uint8    // 126
	InodesMaxPercentage             uint8    // 127
	InodesAllocated                 uint64   // 128
	InodesFree                      uint64   // 136
	DataFree                        uint64   // 144
	RealtimeExtentsFree             uint64   // 152
	UserQuotasInode                 uint64   // 160
	GroupQuotasInode                uint64   // 168
	QuotaFlags                      uint16   // 176
	MiscFlags                       uint8    // 178
	SharedVN                        uint8    // 179
	InodeChunkAlignment             uint32   // 180
	StripeUnitBlocks                uint32   // 184
	StripeWidthBlocks               uint32   // 188
	DirectoryBlocksLogarithmic      uint8    // 192
	LogSectorSizeLogarithmic        uint8    // 193
	LogSectorSize                   uint16   // 194
	LogStripeUnit                   uint32   // 196
	MoreFeatures                    uint32   // 200
	BadFeatures                     uint32   // 204
} // 208

// superBlockV5Extra picks up where superBlockOnDisk leaves off (byte 208)
// on any image where VersionNum&versionNumberMask == version5.
type superBlockV5Extra struct {
	FeaturesCompat       uint32   // 208
	FeaturesROCompat     uint32   // 212
	FeaturesIncompat     uint32   // 216
	FeaturesLogIncompat  uint32   // 220
	Checksum             uint32   // 224
	SparseInodeAlignment uint32   // 228
	ProjectQuotaInode    uint64   // 232
	LastLogSeqNo         uint64   // 240
	UUID2                [16]byte // 248
	RMapBTInode          uint64   // 264
} // 272

// inodeCoreV4 is the first 96 bytes of every inode record, both dialects.
type inodeCoreV4 struct {
	Magic     uint16 // 0
	Mode      uint16 // 2
	Version   uint8  // 4
	Format    uint8  // 5
	Onlink    uint16 // 6 (v4 only; v5 reuses as padding)
	UID       uint32 // 8
	GID       uint32 // 12
	Nlink     uint32 // 16
	ProjIDLo  uint16 // 20
	ProjIDHi  uint16 // 22 (only meaningful when projid32 feature bit set)
	Pad       [6]byte
	FlushIter uint16 // 30
	ATimeSec  uint32 // 32
	ATimeNSec uint32 // 36
	MTimeSec  uint32 // 40
	MTimeNSec uint32 // 44
	CTimeSec  uint32 // 48
	CTimeNSec uint32 // 52
	Size      int64  // 56
	NBlocks   uint64 // 64
	ExtSize   uint32 // 72
	NExtents  int32  // 76
	ANExtents int16  // 80
	ForkOff   uint8  // 82
	AFormat   int8   // 83
	DMevMask  uint32 // 84
	DMState   uint16 // 88
	Flags     uint16 // 90
	Gen       uint32 // 92
} // 96

// inodeV4Tail is decoded right after inodeCoreV4 on a v4 image; the literal
// area (data/attr forks) begins immediately after it, at offset 100.
type inodeV4Tail struct {
	NextUnlinked uint32 // 96
} // 100

// inodeV5Tail is decoded right after inodeCoreV4 on a v5 image, bringing the
// core to 176 bytes; the literal area begins at offset 176.
type inodeV5Tail struct {
	NextUnlinked  uint32   // 96
	CRC           uint32   // 100
	ChangeCount   uint64   // 104
	LSN           uint64   // 112
	Flags2        uint64   // 120
	CoWExtSize    uint32   // 128
	_             [12]byte // 132 reserved
	BirthTimeSec  uint32   // 144
	BirthTimeNSec uint32   // 148
	UUID          [16]byte // 152
} // 176 (168..175 unused by this decoder)

// bmbtBlockHeaderV4 is the header of a non-root BMBT node/leaf block on a v4
// image; records follow immediately after it.
type bmbtBlockHeaderV4 struct {
	Magic    uint32 // 0
	Level    uint16 // 4
	NumRecs  uint16 // 6
	LeftSIB  uint64 // 8
	RightSIB uint64 // 16
} // 24

// bmbtBlockHeaderV5 is the v5 equivalent, with CRC/self-describing fields
// ahead of the level/numrecs/sibling fields.
type bmbtBlockHeaderV5 struct {
	Magic    uint32   // 0
	Level    uint16   // 4
	NumRecs  uint16   // 6
	LeftSIB  uint64   // 8
	RightSIB uint64   // 16
	BlkNo    uint64   // 24
	LSN      uint64   // 32
	UUID     [16]byte // 40
	Owner    uint64   // 56
	CRC      uint32   // 64
} // 72 (padded to a multiple of 8 by the caller)

// shortDirHeader begins a short-form directory's literal area (data-fork
// format LOCAL). ParentIno is 4 or 8 bytes depending on I8Count.
type shortDirHeader struct {
	Count   uint8 // 0
	I8Count uint8 // 1
} // followed by ParentIno (4 or 8 bytes)

type dir2FreeEntry struct {
	Offset uint16 // 0
	Length uint16 // 2
} // 4

// dir2DataHeader begins a v4 directory data block: magic + best-free list.
type dir2DataHeader struct {
	Magic    uint32                         // 0
	BestFree [dir2DataFDCount]dir2FreeEntry // 4
} // 16

// dir3DataHeader is the v5 equivalent: a self-describing prefix ahead of
// the same best-free summary.
type dir3DataHeader struct {
	Magic    uint32                         // 0
	CRC      uint32                         // 4
	BlkNo    uint64                         // 8
	LSN      uint64                         // 16
	UUID     [16]byte                       // 24
	Owner    uint64                         // 40
	BestFree [dir2DataFDCount]dir2FreeEntry // 48
	Pad      uint32                         // 60
} // 64

// dir2DataUnused marks a free region inside a data block; FreeTag is always
// xfsDir2DataFreeTag. The Tag (back-pointer to this entry's own offset) sits
// at Length-2 and is read separately since the struct is variable-sized.
type dir2DataUnused struct {
	FreeTag uint16 // 0
	Length  uint16 // 2
}

type dir2LeafEntry struct {
	HashVal uint32 // 0
	Address uint32 // 4 (byte offset / XFS_DIR2_DATA_ALIGN, or 0/-1 if unused)
} // 8

type dir2BlockTail struct {
	Count uint32 // 0
	Stale uint32 // 4
} // 8

type blockInfo struct {
	Forw  uint32 // 0
	Back  uint32 // 4
	Magic uint16 // 8
	Pad   uint16 // 10
} // 12

type dir2LeafHeader struct {
	Info  blockInfo // 0
	Count uint16    // 12
	Stale uint16    // 14
} // 16

type dir2LeafTail struct {
	BestCount uint32 // 0
} // 4

type dir2NodeBlockHeader struct {
	Info  blockInfo // 0
	Count uint16    // 12
	Level uint16    // 14
} // 16

// dirLeafHeaderV5/daNodeHeaderV5 are the v5 self-describing equivalents of
// dir2LeafHeader/dir2NodeBlockHeader, with the CRC/LSN/UUID/owner fields the
// same way bmbtBlockHeaderV5 extends bmbtBlockHeaderV4.
type dirLeafHeaderV5 struct {
	Forw  uint32 // 0
	Back  uint32 // 4
	Magic uint16 // 8
	Pad   uint16 // 10
	Count uint16 // 12
	Stale uint16 // 14
	BlkNo uint64 // 16
	LSN   uint64 // 24
	UUID  [16]byte
	Owner uint64 // 48
	CRC   uint32 // 56
} // 60, padded to 64

type daNodeHeaderV5 struct {
	Forw  uint32 // 0
	Back  uint32 // 4
	Magic uint16 // 8
	Pad   uint16 // 10
	Count uint16 // 12
	Level uint16 // 14
	BlkNo uint64 // 16
	LSN   uint64 // 24
	UUID  [16]byte
	Owner uint64 // 48
	CRC   uint32 // 56
} // 60, padded to 64

// daNodeEntry is one B+tree-internal {hash, child} pair in a node block.
type daNodeEntry struct {
	HashVal uint32 // 0
	Before  uint32 // 4
} // 8

type dir2FreeIndexHeader struct {
	Magic   uint32 // 0
	FirstDB int32  // 4
	NValid  int32  // 8
	NUsed   int32  // 12
} // 16

// attrLeafHeader begins an attribute-fork leaf block (short-form attrs use
// no header at all; see xattr.go).
type attrLeafHeader struct {
	Info      blockInfo // 0
	Count     uint16    // 12
	UsedBytes uint16    // 14
	FirstUsed uint16    // 16
	Holes     uint8     // 18
	Pad1      uint8     // 19
} // 20, rounded up to 32 by the freemap that follows on disk

type attrLeafEntry struct {
	HashVal uint32 // 0
	NameIdx uint16 // 4
	Flags   uint8  // 6
	Pad2    uint8  // 7
} // 8

// attrLeafNameLocal precedes an inline name+value pair.
type attrLeafNameLocal struct {
	ValueLen uint16 // 0
	NameLen  uint8  // 2
} // 3, followed by Name[NameLen] then Value[ValueLen]

// attrLeafNameRemote precedes a name whose value lives out-of-line.
type attrLeafNameRemote struct {
	ValueBlk uint32 // 0
	ValueLen uint32 // 4
	NameLen  uint8  // 8
} // 9, followed by Name[NameLen]
