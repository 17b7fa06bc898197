package xfs

import (
	"sort"

	"github.com/xfsro/xfsro/pkg/xfserr"
)

// DirEntry is one resolved directory entry, including the two virtual
// entries "." and "..".
type DirEntry struct {
	Name  string
	Ino   uint64
	FType uint8
}

const (
	cursorDot    = 0
	cursorDotDot = 1
)

// encodeCursor packs a logical directory block and in-block byte offset
// into the opaque 64-bit cursor handed back to callers.
func encodeCursor(block uint32, offset uint32) uint64 {
	return uint64(block)<<32 | uint64(offset)
}

func decodeCursor(c uint64) (block uint32, offset uint32) {
	return uint32(c >> 32), uint32(c)
}

// dirFormat classifies which of the five on-disk directory encodings an
// inode's data fork uses, beyond what InodeView.Format alone distinguishes
// (LOCAL is always short-form; EXTENTS/BTREE need the extent layout
// inspected to tell block/leaf/node/btree-backed apart).
type dirFormat int

const (
	dirShortForm dirFormat = iota
	dirBlock
	dirLeaf
	dirNode
	dirBTree
)

// leafOffsetBlock/freeOffsetBlock are the fixed logical file-block numbers
// (in fs-block units) at which a directory's leaf/node index and freespace
// index live, reserved well past any plausible data region so data and
// index blocks never collide.
func (fs *FilesystemHandle) leafOffsetBlock() uint64 {
	return (32 * 1024 * 1024 * 1024) / uint64(fs.sb.geom.blockSize)
}

func (fs *FilesystemHandle) freeOffsetBlock() uint64 {
	return (64 * 1024 * 1024 * 1024) / uint64(fs.sb.geom.blockSize)
}

// classifyDir determines the directory format and returns the sorted data
// extents (file blocks below leafOffsetBlock). The index extents are only
// inspected, not returned.
func (fs *FilesystemHandle) classifyDir(iv *InodeView) (dirFormat, []Extent, error) {
	if iv.Format == inodeFormatLocal {
		return dirShortForm, nil, nil
	}

	extents, err := fs.bmbt.allExtents(iv, "data")
	if err != nil {
		return 0, nil, err
	}
	if len(extents) == 0 {
		return dirShortForm, nil, nil
	}

	leafBlk := fs.leafOffsetBlock()
	var data, index []Extent
	for _, e := range extents {
		if e.FileBlock < leafBlk {
			data = append(data, e)
		} else {
			index = append(index, e)
		}
	}

	if len(index) == 0 {
		return dirBlock, data, nil
	}

	raw, err := fs.readFSBlock(index[0].FSBlock)
	if err != nil {
		return 0, nil, err
	}
	// blkinfo (both v4 and v5) leads with 4 bytes of forw/back sibling
	// pointers each; the magic is the uint16 immediately after them, not the
	// first 4 bytes of the block.
	if len(raw) < 10 {
		return 0, nil, xfserr.New(xfserr.Corrupt, "classifyDir", "index block truncated").WithIno(iv.Ino)
	}
	magic := u16(raw[8:10])
	switch magic {
	case dir2Leaf1Magic, dir3Leaf1Magic:
		return dirLeaf, data, nil
	case daNodeMagic, da3NodeMagic:
		return dirNode, data, nil
	default:
		return dirBTree, data, nil
	}
}

// dirDataHeaderLen returns the byte size of the block header that precedes
// entries in a data block (short-form has no block header at all).
func (fs *FilesystemHandle) dirDataHeaderLen() int {
	if fs.sb.geom.isV5 {
		return 64
	}
	return 16
}

// dirFirstCursor computes the cursor of the first real (non-"."/"..") entry
// for iv's directory encoding: just past the short-form header for
// LOCAL-format directories, or just past the data block header and the
// on-disk "." and ".." records that lead the first data block otherwise.
func (fs *FilesystemHandle) dirFirstCursor(iv *InodeView) (uint64, error) {
	const op = "readdir"

	if iv.Format != inodeFormatLocal {
		ftypeLen := boolToInt(fs.sb.geom.hasFtype)
		dotLen := align(int64(8+1+1+ftypeLen+2), xfsDir2DataAlign)
		dotdotLen := align(int64(8+1+2+ftypeLen+2), xfsDir2DataAlign)
		return encodeCursor(0, uint32(int64(fs.dirDataHeaderLen())+dotLen+dotdotLen)), nil
	}

	raw := shortFormBytes(iv)
	if len(raw) < 2 {
		return 0, xfserr.New(xfserr.Corrupt, op, "short-form directory truncated").WithIno(iv.Ino)
	}
	var hdr shortDirHeader
	if err := decodeStruct(raw[:2], &hdr); err != nil {
		return 0, xfserr.Wrap(xfserr.Corrupt, op, err).WithIno(iv.Ino)
	}
	inoWidth := 4
	if hdr.I8Count > 0 {
		inoWidth = 8
	}
	return encodeCursor(0, uint32(2+inoWidth)), nil
}

// dirNext returns the entry at cursor and the cursor of the entry after it, or
// ok=false at end of stream.
func (fs *FilesystemHandle) dirNext(iv *InodeView, cursor uint64) (entry DirEntry, next uint64, ok bool, err error) {
	const op = "readdir"

	if cursor == cursorDot {
		return DirEntry{Name: ".", Ino: iv.Ino, FType: ftypeDirectory}, cursorDotDot, true, nil
	}
	if cursor == cursorDotDot {
		parent, err := fs.dirParent(iv)
		if err != nil {
			return DirEntry{}, 0, false, err
		}
		first, err := fs.dirFirstCursor(iv)
		if err != nil {
			return DirEntry{}, 0, false, err
		}
		return DirEntry{Name: "..", Ino: parent, FType: ftypeDirectory}, first, true, nil
	}

	format, data, err := fs.classifyDir(iv)
	if err != nil {
		return DirEntry{}, 0, false, err
	}

	if format == dirShortForm {
		return fs.shortFormNext(iv, cursor)
	}

	block, offset := decodeCursor(cursor)

	dirBlockSize := fs.sb.geom.dirBlockSize
	blocksPerDir := dirBlockSize / fs.sb.geom.blockSize

	for {
		if int(block) >= len(data) {
			return DirEntry{}, 0, false, nil
		}
		raw, err := fs.readDirBlock(data[block].FSBlock, blocksPerDir)
		if err != nil {
			return DirEntry{}, 0, false, xfserr.Wrap(xfserr.Io, op, err).WithIno(iv.Ino)
		}

		limit := len(raw)
		if format == dirBlock {
			var tail dir2BlockTail
			if err := decodeStruct(raw[len(raw)-8:], &tail); err == nil {
				limit = len(raw) - 8 - int(tail.Count)*8
			}
		}

		for int(offset) < limit {
			ent, entLen, live, perr := fs.decodeDentry(raw, int(offset))
			if perr != nil {
				return DirEntry{}, 0, false, xfserr.Wrap(xfserr.Corrupt, op, perr).WithIno(iv.Ino)
			}
			nextOffset := offset + uint32(entLen)
			if !live {
				offset = nextOffset
				continue
			}
			nc := encodeCursor(block, nextOffset)
			if int(nextOffset) >= limit {
				nc = encodeCursor(block+1, uint32(fs.dirDataHeaderLen()))
			}
			return ent, nc, true, nil
		}

		block++
		offset = uint32(fs.dirDataHeaderLen())
	}
}

// readDirBlock reads and concatenates the blocksPerDir fs-blocks backing one
// logical directory block, starting at fsBlock.
func (fs *FilesystemHandle) readDirBlock(fsBlock uint64, blocksPerDir uint32) ([]byte, error) {
	if blocksPerDir <= 1 {
		return fs.readFSBlock(fsBlock)
	}
	out := make([]byte, 0, int(blocksPerDir)*int(fs.sb.geom.blockSize))
	for i := uint32(0); i < blocksPerDir; i++ {
		b, err := fs.readFSBlock(fsBlock + uint64(i))
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// decodeDentry decodes one entry (live or free) from a data block at
// offset, returning its total on-disk length including padding and tag.
func (fs *FilesystemHandle) decodeDentry(raw []byte, offset int) (DirEntry, int, bool, error) {
	if offset+2 > len(raw) {
		return DirEntry{}, 0, false, xfserr.New(xfserr.Corrupt, "decodeDentry", "entry header out of bounds")
	}
	if u16(raw[offset:offset+2]) == xfsDir2DataFreeTag {
		if offset+4 > len(raw) {
			return DirEntry{}, 0, false, xfserr.New(xfserr.Corrupt, "decodeDentry", "free entry truncated")
		}
		length := int(u16(raw[offset+2 : offset+4]))
		return DirEntry{}, length, false, nil
	}

	if offset+9 > len(raw) {
		return DirEntry{}, 0, false, xfserr.New(xfserr.Corrupt, "decodeDentry", "entry truncated")
	}
	ino := u64(raw[offset : offset+8])
	nameLen := int(raw[offset+8])
	nameStart := offset + 9
	if nameStart+nameLen > len(raw) {
		return DirEntry{}, 0, false, xfserr.New(xfserr.Corrupt, "decodeDentry", "entry name out of bounds")
	}
	name := string(raw[nameStart : nameStart+nameLen])

	ftype := uint8(0)
	ftypeLen := 0
	if fs.sb.geom.hasFtype {
		ftype = raw[nameStart+nameLen]
		ftypeLen = 1
	}

	rawLen := 8 + 1 + nameLen + ftypeLen + 2
	entLen := int(align(int64(rawLen), xfsDir2DataAlign))

	return DirEntry{Name: name, Ino: ino, FType: ftype}, entLen, true, nil
}

func align(x, y int64) int64 {
	return ((x + y - 1) / y) * y
}

// shortFormBytes returns a short-form directory's literal area trimmed to
// its recorded Size; the literal slice itself may run longer (it's the
// whole post-core region of the inode record), and unread padding bytes
// must never be mistaken for a trailing zero-length entry.
func shortFormBytes(iv *InodeView) []byte {
	if int(iv.Size) <= len(iv.literal) {
		return iv.literal[:iv.Size]
	}
	return iv.literal
}

// shortFormNext scans the literal area of a short-form directory.
func (fs *FilesystemHandle) shortFormNext(iv *InodeView, cursor uint64) (DirEntry, uint64, bool, error) {
	const op = "readdir:shortform"

	_, offset := decodeCursor(cursor)
	raw := shortFormBytes(iv)
	if len(raw) < 2 {
		return DirEntry{}, 0, false, xfserr.New(xfserr.Corrupt, op, "short-form directory truncated").WithIno(iv.Ino)
	}

	pos := int(offset)
	if pos >= len(raw) {
		return DirEntry{}, 0, false, nil
	}

	// inoWidth must match dirFirstCursor's computation of the entry start;
	// re-derive it from the header rather than trusting the cursor alone.
	var hdr shortDirHeader
	if err := decodeStruct(raw[:2], &hdr); err != nil {
		return DirEntry{}, 0, false, xfserr.Wrap(xfserr.Corrupt, op, err).WithIno(iv.Ino)
	}
	inoWidth := 4
	if hdr.I8Count > 0 {
		inoWidth = 8
	}

	if pos+3+inoWidth > len(raw) {
		return DirEntry{}, 0, false, xfserr.New(xfserr.Corrupt, op, "short-form entry truncated").WithIno(iv.Ino)
	}
	nameLen := int(raw[pos])
	// bytes pos+1..pos+3 are the 2-byte in-block offset hint; unused by
	// this decoder since entries are walked sequentially.
	nameStart := pos + 3
	if nameStart+nameLen > len(raw) {
		return DirEntry{}, 0, false, xfserr.New(xfserr.Corrupt, op, "short-form name out of bounds").WithIno(iv.Ino)
	}
	name := string(raw[nameStart : nameStart+nameLen])

	next := nameStart + nameLen
	ftype := uint8(0)
	if fs.sb.geom.hasFtype {
		if next >= len(raw) {
			return DirEntry{}, 0, false, xfserr.New(xfserr.Corrupt, op, "short-form ftype out of bounds").WithIno(iv.Ino)
		}
		ftype = raw[next]
		next++
	}

	var ino uint64
	if next+inoWidth > len(raw) {
		return DirEntry{}, 0, false, xfserr.New(xfserr.Corrupt, op, "short-form ino out of bounds").WithIno(iv.Ino)
	}
	if inoWidth == 8 {
		ino = u64(raw[next : next+8])
	} else {
		ino = uint64(u32(raw[next : next+4]))
	}
	next += inoWidth

	return DirEntry{Name: name, Ino: ino, FType: ftype}, encodeCursor(0, uint32(next)), true, nil
}

// dirParent resolves the ".." target: the header's ParentIno for
// short-form, or the first data block's dotdot entry otherwise.
func (fs *FilesystemHandle) dirParent(iv *InodeView) (uint64, error) {
	const op = "dirParent"

	if iv.Format == inodeFormatLocal {
		raw := shortFormBytes(iv)
		if len(raw) < 2 {
			return 0, xfserr.New(xfserr.Corrupt, op, "short-form directory truncated").WithIno(iv.Ino)
		}
		var hdr shortDirHeader
		if err := decodeStruct(raw[:2], &hdr); err != nil {
			return 0, xfserr.Wrap(xfserr.Corrupt, op, err).WithIno(iv.Ino)
		}
		if hdr.I8Count > 0 {
			if len(raw) < 10 {
				return 0, xfserr.New(xfserr.Corrupt, op, "short-form parent truncated").WithIno(iv.Ino)
			}
			return u64(raw[2:10]), nil
		}
		if len(raw) < 6 {
			return 0, xfserr.New(xfserr.Corrupt, op, "short-form parent truncated").WithIno(iv.Ino)
		}
		return uint64(u32(raw[2:6])), nil
	}

	_, data, err := fs.classifyDir(iv)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, xfserr.New(xfserr.Corrupt, op, "directory has no data blocks").WithIno(iv.Ino)
	}
	raw, err := fs.readFSBlock(data[0].FSBlock)
	if err != nil {
		return 0, xfserr.Wrap(xfserr.Io, op, err).WithIno(iv.Ino)
	}
	// The dotdot entry is always the second entry in the block, right
	// after "." at the fixed offset the teacher's compiler also uses
	// (header-length, then a 16-byte aligned "." record before dotdot).
	ent, _, _, err := fs.decodeDentry(raw, fs.dirDataHeaderLen())
	if err != nil {
		return 0, err
	}
	_ = ent // "." itself; dotdot follows
	dotLen := 8 + 1 + 1 + boolToInt(fs.sb.geom.hasFtype) + 2
	dotdotOff := fs.dirDataHeaderLen() + int(align(int64(dotLen), xfsDir2DataAlign))
	dotdot, _, _, err := fs.decodeDentry(raw, dotdotOff)
	if err != nil {
		return 0, err
	}
	return dotdot.Ino, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// lookupName resolves name within iv. Short-form and single-block
// directories are small enough that a linear scan is the whole job; leaf,
// node, and btree directories carry a hash-sorted index precisely so a
// lookup can descend it instead, which lookupIndexed does — bounding the
// cost to the index's depth (at most a few block reads) rather than the
// directory's entry count.
func (fs *FilesystemHandle) lookupName(iv *InodeView, name string) (DirEntry, error) {
	const op = "lookup"

	if name == "." {
		return DirEntry{Name: ".", Ino: iv.Ino, FType: ftypeDirectory}, nil
	}
	if name == ".." {
		parent, err := fs.dirParent(iv)
		if err != nil {
			return DirEntry{}, err
		}
		return DirEntry{Name: "..", Ino: parent, FType: ftypeDirectory}, nil
	}

	format, data, err := fs.classifyDir(iv)
	if err != nil {
		return DirEntry{}, err
	}

	switch format {
	case dirLeaf, dirNode, dirBTree:
		ent, found, err := fs.lookupIndexed(iv, data, name)
		if err != nil {
			return DirEntry{}, err
		}
		if found {
			return ent, nil
		}
		return DirEntry{}, xfserr.New(xfserr.NotFound, op, "no such entry").WithIno(iv.Ino)
	}

	targetHash := dirHash(name)
	cursor, err := fs.dirFirstCursor(iv)
	if err != nil {
		return DirEntry{}, err
	}
	for {
		ent, next, ok, err := fs.dirNext(iv, cursor)
		if err != nil {
			return DirEntry{}, err
		}
		if !ok {
			return DirEntry{}, xfserr.New(xfserr.NotFound, op, "no such entry").WithIno(iv.Ino)
		}
		if dirHash(ent.Name) == targetHash && ent.Name == name {
			return ent, nil
		}
		cursor = next
	}
}

// maxIndexDescent bounds how many node levels lookupIndexed will follow
// before giving up on the structure as corrupt — real XFS directories never
// nest anywhere close to this deep.
const maxIndexDescent = 16

// lookupIndexed resolves name by descending a leaf/node/btree directory's
// hash index instead of scanning every data block. It reads the root index
// block (single leaf, or the top da_node), binary-searches each level for
// the child covering dirHash(name), and only falls through to decoding a
// data-block entry once it reaches a leaf block's matching hash bucket.
func (fs *FilesystemHandle) lookupIndexed(iv *InodeView, data []Extent, name string) (DirEntry, bool, error) {
	const op = "lookup:indexed"

	index, err := fs.bmbt.allExtents(iv, "data")
	if err != nil {
		return DirEntry{}, false, err
	}
	leafBlk := fs.leafOffsetBlock()
	var idx []Extent
	for _, e := range index {
		if e.FileBlock >= leafBlk {
			idx = append(idx, e)
		}
	}
	if len(idx) == 0 {
		return DirEntry{}, false, xfserr.New(xfserr.Corrupt, op, "directory has no index blocks").WithIno(iv.Ino)
	}

	targetHash := dirHash(name)
	fsBlock := idx[0].FSBlock

	for depth := 0; ; depth++ {
		if depth >= maxIndexDescent {
			return DirEntry{}, false, xfserr.New(xfserr.Corrupt, op, "index descent too deep").WithIno(iv.Ino)
		}

		raw, err := fs.readFSBlock(fsBlock)
		if err != nil {
			return DirEntry{}, false, xfserr.Wrap(xfserr.Io, op, err).WithIno(iv.Ino).WithBlock(fsBlock)
		}
		if len(raw) < 10 {
			return DirEntry{}, false, xfserr.New(xfserr.Corrupt, op, "index block truncated").WithIno(iv.Ino).WithBlock(fsBlock)
		}

		// Same blkinfo layout classifyDir reads: magic is the uint16 right
		// after the forw/back sibling pointers, not the block's first bytes.
		switch u16(raw[8:10]) {
		case daNodeMagic, da3NodeMagic:
			children, err := fs.decodeNodeEntries(iv, raw)
			if err != nil {
				return DirEntry{}, false, err
			}
			if len(children) == 0 {
				return DirEntry{}, false, nil
			}
			i := sort.Search(len(children), func(i int) bool { return children[i].HashVal >= targetHash })
			if i == len(children) {
				return DirEntry{}, false, nil
			}
			next, err := fs.resolveIndexBlock(iv, idx, uint64(children[i].Before))
			if err != nil {
				return DirEntry{}, false, err
			}
			fsBlock = next
			continue

		case dir2Leaf1Magic, dir3Leaf1Magic, dir2LeafNMagic, dir3LeafNMagic:
			entries, err := fs.decodeLeafEntries(iv, raw)
			if err != nil {
				return DirEntry{}, false, err
			}
			return fs.scanLeafEntries(iv, data, entries, targetHash, name)

		default:
			return DirEntry{}, false, xfserr.New(xfserr.Corrupt, op, "unrecognized index block magic").WithIno(iv.Ino).WithBlock(fsBlock)
		}
	}
}

// resolveIndexBlock maps a da_node child pointer (a logical fs-block number
// within the directory's own index region) to the physical fs block that
// backs it, the same way data block indices resolve through the data
// extents.
func (fs *FilesystemHandle) resolveIndexBlock(iv *InodeView, idx []Extent, logicalBlock uint64) (uint64, error) {
	const op = "lookup:indexed"
	for _, e := range idx {
		if logicalBlock >= e.FileBlock && logicalBlock < e.FileBlock+e.BlockCount {
			return e.FSBlock + (logicalBlock - e.FileBlock), nil
		}
	}
	return 0, xfserr.New(xfserr.Corrupt, op, "index child pointer out of range").WithIno(iv.Ino)
}

// decodeNodeEntries parses a da_node block's header and {hashval,before}
// array, picking the v4 or v5 header layout the same way bmbt block
// decoding does.
func (fs *FilesystemHandle) decodeNodeEntries(iv *InodeView, raw []byte) ([]daNodeEntry, error) {
	const op = "lookup:node"

	headerLen := 16
	var count int
	if fs.sb.geom.isV5 {
		headerLen = 64
		if len(raw) < headerLen {
			return nil, xfserr.New(xfserr.Corrupt, op, "node block truncated").WithIno(iv.Ino)
		}
		var hdr daNodeHeaderV5
		if err := decodeStruct(raw[:60], &hdr); err != nil {
			return nil, xfserr.Wrap(xfserr.Corrupt, op, err).WithIno(iv.Ino)
		}
		count = int(hdr.Count)
	} else {
		if len(raw) < headerLen {
			return nil, xfserr.New(xfserr.Corrupt, op, "node block truncated").WithIno(iv.Ino)
		}
		var hdr dir2NodeBlockHeader
		if err := decodeStruct(raw[:16], &hdr); err != nil {
			return nil, xfserr.Wrap(xfserr.Corrupt, op, err).WithIno(iv.Ino)
		}
		count = int(hdr.Count)
	}

	need := headerLen + count*8
	if need > len(raw) {
		return nil, xfserr.New(xfserr.Corrupt, op, "node entries out of bounds").WithIno(iv.Ino)
	}
	out := make([]daNodeEntry, 0, count)
	for i := 0; i < count; i++ {
		off := headerLen + i*8
		var ent daNodeEntry
		if err := decodeStruct(raw[off:off+8], &ent); err != nil {
			return nil, xfserr.Wrap(xfserr.Corrupt, op, err).WithIno(iv.Ino)
		}
		out = append(out, ent)
	}
	return out, nil
}

// decodeLeafEntries parses a leaf block's header and hash-sorted
// {hashval,address} array. It's shared by the single combined leaf
// (dir2Leaf1) and by the terminal leaf blocks reached through a node
// descent (dir2LeafN) — both carry the same header and entry layout, the
// leaf1 variant just also has a tail this decoder doesn't need here.
func (fs *FilesystemHandle) decodeLeafEntries(iv *InodeView, raw []byte) ([]dir2LeafEntry, error) {
	const op = "lookup:leaf"

	headerLen := 16
	var count int
	if fs.sb.geom.isV5 {
		headerLen = 64
		if len(raw) < headerLen {
			return nil, xfserr.New(xfserr.Corrupt, op, "leaf block truncated").WithIno(iv.Ino)
		}
		var hdr dirLeafHeaderV5
		if err := decodeStruct(raw[:60], &hdr); err != nil {
			return nil, xfserr.Wrap(xfserr.Corrupt, op, err).WithIno(iv.Ino)
		}
		count = int(hdr.Count) - int(hdr.Stale)
	} else {
		if len(raw) < headerLen {
			return nil, xfserr.New(xfserr.Corrupt, op, "leaf block truncated").WithIno(iv.Ino)
		}
		var hdr dir2LeafHeader
		if err := decodeStruct(raw[:16], &hdr); err != nil {
			return nil, xfserr.Wrap(xfserr.Corrupt, op, err).WithIno(iv.Ino)
		}
		count = int(hdr.Count) - int(hdr.Stale)
	}
	if count < 0 {
		count = 0
	}

	need := headerLen + count*8
	if need > len(raw) {
		return nil, xfserr.New(xfserr.Corrupt, op, "leaf entries out of bounds").WithIno(iv.Ino)
	}
	out := make([]dir2LeafEntry, 0, count)
	for i := 0; i < count; i++ {
		off := headerLen + i*8
		var ent dir2LeafEntry
		if err := decodeStruct(raw[off:off+8], &ent); err != nil {
			return nil, xfserr.Wrap(xfserr.Corrupt, op, err).WithIno(iv.Ino)
		}
		out = append(out, ent)
	}
	return out, nil
}

// scanLeafEntries binary-searches entries (hash-sorted ascending) for
// targetHash, then walks every consecutive entry sharing that hash —
// collisions are rare but must still fall through to a real name
// comparison rather than a false match on the first hash hit.
func (fs *FilesystemHandle) scanLeafEntries(iv *InodeView, data []Extent, entries []dir2LeafEntry, targetHash uint32, name string) (DirEntry, bool, error) {
	const op = "lookup:leaf"

	dirBlockBytes := uint64(fs.sb.geom.dirBlockSize)
	blocksPerDir := fs.sb.geom.dirBlockSize / fs.sb.geom.blockSize

	i := sort.Search(len(entries), func(i int) bool { return entries[i].HashVal >= targetHash })
	for ; i < len(entries) && entries[i].HashVal == targetHash; i++ {
		ent := entries[i]
		if ent.Address == 0 || ent.Address == 0xffffffff {
			continue // unused slot
		}
		byteOff := uint64(ent.Address) * xfsDir2DataAlign
		blockIdx := byteOff / dirBlockBytes
		inOffset := uint32(byteOff % dirBlockBytes)
		if blockIdx >= uint64(len(data)) {
			return DirEntry{}, false, xfserr.New(xfserr.Corrupt, op, "leaf address out of range").WithIno(iv.Ino)
		}
		raw, err := fs.readDirBlock(data[blockIdx].FSBlock, blocksPerDir)
		if err != nil {
			return DirEntry{}, false, xfserr.Wrap(xfserr.Io, op, err).WithIno(iv.Ino)
		}
		got, _, live, err := fs.decodeDentry(raw, int(inOffset))
		if err != nil {
			return DirEntry{}, false, xfserr.Wrap(xfserr.Corrupt, op, err).WithIno(iv.Ino)
		}
		if live && got.Name == name {
			return got, true, nil
		}
	}
	return DirEntry{}, false, nil
}
