package xfs

import (
	"sort"

	"github.com/xfsro/xfsro/pkg/xfserr"
)

// Extent is a resolved, logical-to-physical mapping for one run of file
// blocks. A Hole extent has FSBlock == 0 and carries no backing storage;
// reads against it must be synthesized as zero bytes.
type Extent struct {
	FileBlock  uint64
	FSBlock    uint64
	BlockCount uint64
	Unwritten  bool
	Hole       bool
}

func (e Extent) contains(fileBlock uint64) bool {
	return fileBlock >= e.FileBlock && fileBlock < e.FileBlock+e.BlockCount
}

// decodeExtentList parses a run of packed 16-byte extent records (the data
// fork's literal area in EXTENTS format, or one leaf block's record region
// in BTREE format) into sorted Extent values.
func decodeExtentList(b []byte) ([]Extent, error) {
	if len(b)%16 != 0 {
		return nil, xfserr.New(xfserr.Corrupt, "decodeExtentList", "extent list not a multiple of 16 bytes")
	}
	n := len(b) / 16
	out := make([]Extent, 0, n)
	for i := 0; i < n; i++ {
		rec, err := decodeExtentRecord(b[i*16 : i*16+16])
		if err != nil {
			return nil, err
		}
		out = append(out, Extent{
			FileBlock:  rec.StartFileBlock,
			FSBlock:    rec.StartFSBlock,
			BlockCount: rec.BlockCount,
			Unwritten:  rec.Unwritten,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileBlock < out[j].FileBlock })
	return out, nil
}

// bmbtReader resolves file-block extents for one fork, dispatching on the
// inode's data/attr fork format the way the teacher's compiler constructs
// the two representations on write.
type bmbtReader struct {
	fs *FilesystemHandle
}

// lookup returns the extent covering fileBlock, or a synthetic Hole extent
// if fileBlock falls in an unallocated gap. NExtents/AFormat and the raw
// literal area come from the already-decoded InodeView.
func (b *bmbtReader) lookup(iv *InodeView, fork string, fileBlock uint64) (Extent, error) {
	extents, err := b.allExtents(iv, fork)
	if err != nil {
		return Extent{}, err
	}
	return findExtent(extents, fileBlock), nil
}

func findExtent(extents []Extent, fileBlock uint64) Extent {
	i := sort.Search(len(extents), func(i int) bool {
		return extents[i].FileBlock+extents[i].BlockCount > fileBlock
	})
	if i < len(extents) && extents[i].contains(fileBlock) {
		return extents[i]
	}
	return Extent{FileBlock: fileBlock, BlockCount: 1, Hole: true}
}

// allExtents returns every extent of the given fork in file-block order.
// Used both by lookup and by directory/file readers that need to walk a
// fork sequentially (readdir over a node/btree directory, sequential file
// read).
func (b *bmbtReader) allExtents(iv *InodeView, fork string) ([]Extent, error) {
	const op = "allExtents"

	format := iv.Format
	literal := iv.literal
	nextents := int(iv.NExtents)
	if fork == "attr" {
		format = uint8(iv.AFormat)
		literal = iv.attrLiteral
		nextents = int(iv.ANExtents)
	}

	switch format {
	case inodeFormatExtents:
		// The literal area is sized to the fork's fixed allocation, not to
		// the number of extents actually in use; anything past nextents*16
		// is unused space left over from a shorter previous extent list
		// and must not be parsed as more records.
		n := nextents * 16
		if n < 0 || n > len(literal) {
			return nil, xfserr.New(xfserr.Corrupt, op, "extent count out of bounds").WithIno(iv.Ino)
		}
		return decodeExtentList(literal[:n])
	case inodeFormatBTree:
		return b.walkBTreeFork(iv, literal)
	case inodeFormatLocal:
		return nil, nil
	default:
		return nil, xfserr.New(xfserr.UnsupportedFeature, "allExtents", "unsupported fork format").WithIno(iv.Ino)
	}
}

// btreeRootHeader is the layout of a BTREE-format fork's literal-area root:
// a numrecs count followed by that many {startoff} keys, then that many
// child block pointers. Unlike a non-root BMBT block it carries no magic,
// siblings, or CRC — those only appear once the tree descends onto disk.
type btreeRootHeader struct {
	Level   uint16 // 0
	NumRecs uint16 // 2
} // 4, followed by NumRecs uint64 keys then NumRecs uint64 pointers

func (b *bmbtReader) walkBTreeFork(iv *InodeView, literal []byte) ([]Extent, error) {
	const op = "walkBTreeFork"
	if len(literal) < 4 {
		return nil, xfserr.New(xfserr.Corrupt, op, "btree root truncated").WithIno(iv.Ino)
	}

	var hdr btreeRootHeader
	if err := decodeStruct(literal[:4], &hdr); err != nil {
		return nil, xfserr.Wrap(xfserr.Corrupt, op, err).WithIno(iv.Ino)
	}

	keysOff := 4
	ptrsOff := keysOff + int(hdr.NumRecs)*8
	need := ptrsOff + int(hdr.NumRecs)*8
	if need > len(literal) {
		return nil, xfserr.New(xfserr.Corrupt, op, "btree root pointers out of bounds").WithIno(iv.Ino)
	}

	var extents []Extent
	for i := 0; i < int(hdr.NumRecs); i++ {
		ptr := u64(literal[ptrsOff+i*8 : ptrsOff+i*8+8])
		sub, err := b.walkBTreeBlock(iv, ptr, int(hdr.Level)-1)
		if err != nil {
			return nil, err
		}
		extents = append(extents, sub...)
	}

	sort.Slice(extents, func(i, j int) bool { return extents[i].FileBlock < extents[j].FileBlock })
	return extents, nil
}

// walkBTreeBlock descends one on-disk BMBT node/leaf block. level 0 is a
// leaf (packed extent records follow the header); level > 0 is an internal
// node (key/pointer pairs follow the header, same layout as the literal
// area root but with a real magic/sibling header ahead of them).
func (b *bmbtReader) walkBTreeBlock(iv *InodeView, fsBlock uint64, level int) ([]Extent, error) {
	const op = "walkBTreeBlock"

	raw, err := b.fs.readFSBlock(fsBlock)
	if err != nil {
		return nil, xfserr.Wrap(xfserr.Io, op, err).WithIno(iv.Ino).WithBlock(fsBlock)
	}

	var magic uint32
	var level16, numRecs16 uint16
	headerLen := 24
	if b.fs.sb.geom.isV5 {
		headerLen = 72
		var hdr bmbtBlockHeaderV5
		if len(raw) < headerLen {
			return nil, xfserr.New(xfserr.Corrupt, op, "bmbt block truncated").WithIno(iv.Ino).WithBlock(fsBlock)
		}
		if err := decodeStruct(raw[:68], &hdr); err != nil {
			return nil, xfserr.Wrap(xfserr.Corrupt, op, err).WithIno(iv.Ino).WithBlock(fsBlock)
		}
		magic, level16, numRecs16 = hdr.Magic, hdr.Level, hdr.NumRecs
	} else {
		var hdr bmbtBlockHeaderV4
		if len(raw) < headerLen {
			return nil, xfserr.New(xfserr.Corrupt, op, "bmbt block truncated").WithIno(iv.Ino).WithBlock(fsBlock)
		}
		if err := decodeStruct(raw[:24], &hdr); err != nil {
			return nil, xfserr.Wrap(xfserr.Corrupt, op, err).WithIno(iv.Ino).WithBlock(fsBlock)
		}
		magic, level16, numRecs16 = hdr.Magic, hdr.Level, hdr.NumRecs
	}

	wantMagic := uint32(bmbtMagic)
	if b.fs.sb.geom.isV5 {
		wantMagic = bmbt3Magic
	}
	if magic != wantMagic {
		return nil, xfserr.New(xfserr.Corrupt, op, "bmbt block magic mismatch").WithIno(iv.Ino).WithBlock(fsBlock)
	}
	if int(level16) != level {
		return nil, xfserr.New(xfserr.Corrupt, op, "bmbt block level mismatch").WithIno(iv.Ino).WithBlock(fsBlock)
	}

	numRecs := int(numRecs16)
	body := raw[headerLen:]

	if level == 0 {
		recLen := numRecs * 16
		if recLen > len(body) {
			return nil, xfserr.New(xfserr.Corrupt, op, "leaf records out of bounds").WithIno(iv.Ino).WithBlock(fsBlock)
		}
		return decodeExtentList(body[:recLen])
	}

	ptrsOff := numRecs * 8
	need := ptrsOff + numRecs*8
	if need > len(body) {
		return nil, xfserr.New(xfserr.Corrupt, op, "node pointers out of bounds").WithIno(iv.Ino).WithBlock(fsBlock)
	}

	var extents []Extent
	for i := 0; i < numRecs; i++ {
		ptr := u64(body[ptrsOff+i*8 : ptrsOff+i*8+8])
		sub, err := b.walkBTreeBlock(iv, ptr, level-1)
		if err != nil {
			return nil, err
		}
		extents = append(extents, sub...)
	}
	return extents, nil
}
