package xfs

import (
	"bytes"
	"context"
	"encoding/binary"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xfsro/xfsro/pkg/xfserr"
)

// buildDentryBytes returns one data-block directory entry in the layout
// decodeDentry expects: ino, namelen, name, optional ftype, then padding
// out to the next 8-byte boundary.
func buildDentryBytes(ino uint64, name string, ftype uint8, hasFtype bool) []byte {
	ftypeLen := 0
	if hasFtype {
		ftypeLen = 1
	}
	rawLen := 8 + 1 + len(name) + ftypeLen + 2
	entLen := int(align(int64(rawLen), xfsDir2DataAlign))

	buf := make([]byte, entLen)
	binary.BigEndian.PutUint64(buf[0:8], ino)
	buf[8] = byte(len(name))
	copy(buf[9:], name)
	pos := 9 + len(name)
	if hasFtype {
		buf[pos] = ftype
		pos++
	}
	return buf
}

type namedChild struct {
	name  string
	ino   uint64
	ftype uint8
}

// buildDirDataBlock writes "." and ".." plus children into a blockSize data
// block starting at headerLen, recording each child's byte offset (for
// leaf-format Address fields). withBlockTail marks the remainder with a
// dir2BlockTail instead of a free-space run, the way XFS_DIR2_BLOCK format
// combines data and the single-leaf hash table in one block.
func buildDirDataBlock(blockSize, headerLen int, selfIno, parentIno uint64, hasFtype bool, children []namedChild, withBlockTail bool) ([]byte, map[string]uint32) {
	block := make([]byte, blockSize)
	pos := headerLen

	write := func(ino uint64, name string, ftype uint8) {
		e := buildDentryBytes(ino, name, ftype, hasFtype)
		copy(block[pos:], e)
		pos += len(e)
	}
	write(selfIno, ".", ftypeDirectory)
	write(parentIno, "..", ftypeDirectory)

	addr := make(map[string]uint32, len(children))
	for _, c := range children {
		addr[c.name] = uint32(pos)
		write(c.ino, c.name, c.ftype)
	}

	limit := blockSize
	if withBlockTail {
		liveCount := uint32(2 + len(children))
		limit = blockSize - 8 - int(liveCount)*8
		binary.BigEndian.PutUint32(block[blockSize-8:blockSize-4], liveCount)
		binary.BigEndian.PutUint32(block[blockSize-4:blockSize], 0)
	}
	// Mark the gap between the last real entry and the tail/end-of-block as
	// free space; otherwise a readdir scan would decode the zero-filled
	// padding as bogus zero-length live entries.
	if remaining := limit - pos; remaining >= 4 {
		binary.BigEndian.PutUint16(block[pos:pos+2], xfsDir2DataFreeTag)
		binary.BigEndian.PutUint16(block[pos+2:pos+4], uint16(remaining))
	}
	return block, addr
}

// buildLeafBlock writes a dir2Leaf1/dir2LeafN-shaped block: a 16-byte v4
// header (blockInfo + count/stale) followed by the hash-sorted
// {hashval,address} array.
func buildLeafBlock(blockSize int, magic uint16, entries []dir2LeafEntry) []byte {
	block := make([]byte, blockSize)
	binary.BigEndian.PutUint16(block[8:10], magic)
	binary.BigEndian.PutUint16(block[12:14], uint16(len(entries)))
	off := 16
	for _, e := range entries {
		binary.BigEndian.PutUint32(block[off:off+4], e.HashVal)
		binary.BigEndian.PutUint32(block[off+4:off+8], e.Address)
		off += 8
	}
	return block
}

// buildNodeBlock writes a da_node-shaped block: the same 16-byte header
// shape as buildLeafBlock, carrying {hashval,before} child pointers instead.
func buildNodeBlock(blockSize int, magic uint16, entries []daNodeEntry) []byte {
	block := make([]byte, blockSize)
	binary.BigEndian.PutUint16(block[8:10], magic)
	binary.BigEndian.PutUint16(block[12:14], uint16(len(entries)))
	binary.BigEndian.PutUint16(block[14:16], 1)
	off := 16
	for _, e := range entries {
		binary.BigEndian.PutUint32(block[off:off+4], e.HashVal)
		binary.BigEndian.PutUint32(block[off+4:off+8], e.Before)
		off += 8
	}
	return block
}

// dirTestGeometry is the common v4 superblock shared by the block/leaf/node
// directory fixtures below: one AG, 4096-byte blocks and directory blocks,
// ftype enabled.
func dirTestGeometry() superBlockOnDisk {
	return superBlockOnDisk{
		MagicNumber:               sbMagicNumber,
		BlockSize:                 4096,
		DataBlocks:                1024,
		RootInode:                 128,
		AGBlocks:                  1024,
		AGCount:                   1,
		VersionNum:                version4,
		SectorSize:                512,
		InodeSize:                 256,
		InodesPerBlock:            16,
		BlockSizeLogarithmic:      12,
		SectorSizeLogarithmic:     9,
		InodeSizeLogarithmic:      8,
		InodesPerBlockLogarithmic: 4,
		AGBlocksLogarithmic:       10,
		MoreFeatures:              version2FtypeBit,
	}
}

func writeBlockAt(image []byte, blockSize, fsBlock int, data []byte) {
	copy(image[fsBlock*blockSize:], data)
}

// buildBlockFormatDirImage (scenario S2) builds a single-fs-block,
// XFS_DIR2_BLOCK-format directory: one data extent, no separate index
// block, a dir2BlockTail closing out the block.
func buildBlockFormatDirImage(t *testing.T) ([]byte, map[string]uint64) {
	t.Helper()
	const (
		blockSize  = 4096
		rootIno    = 128
		fileIno    = 129 // ag-relative block 8, slot 1 — see dirTestGeometry's inode addressing
		dataFSBlk  = 20
		inodeBlock = 8 * blockSize
	)

	image := make([]byte, 1<<20)
	sb := dirTestGeometry()
	buf := new(bytes.Buffer)
	require.NoError(t, binary.Write(buf, binary.BigEndian, &sb))
	copy(image, buf.Bytes())

	children := []namedChild{{"one.txt", fileIno, ftypeRegularFile}}
	block, _ := buildDirDataBlock(blockSize, 16, rootIno, rootIno, true, children, true)
	writeBlockAt(image, blockSize, dataFSBlk, block)

	extents := packExtent(t, 0, dataFSBlk, 1, false)
	writeInode(t, image, inodeBlock+0*256, inodeCoreV4{
		Magic: inodeMagicNumber, Mode: sIFDIR | 0755, Format: inodeFormatExtents,
		Nlink: 2, Size: blockSize, NExtents: 1,
	}, extents)
	writeInode(t, image, inodeBlock+1*256, inodeCoreV4{
		Magic: inodeMagicNumber, Mode: sIFREG | 0644, Format: inodeFormatLocal,
		Nlink: 1, Size: 2,
	}, []byte("hi"))

	return image, map[string]uint64{"one.txt": fileIno}
}

func TestLookupBlockFormatDir(t *testing.T) {
	image, ino := buildBlockFormatDirImage(t)
	dev := NewDevice(bytes.NewReader(image), int64(len(image)))
	fs, err := Mount(context.Background(), dev, DefaultOptions())
	require.NoError(t, err)

	ent, err := fs.Lookup(context.Background(), fs.Superblock().RootIno, "one.txt")
	require.NoError(t, err)
	require.Equal(t, ino["one.txt"], ent.Ino)
}

func TestReadDirBlockFormatDir(t *testing.T) {
	image, _ := buildBlockFormatDirImage(t)
	dev := NewDevice(bytes.NewReader(image), int64(len(image)))
	fs, err := Mount(context.Background(), dev, DefaultOptions())
	require.NoError(t, err)

	dh, err := fs.OpenDir(context.Background(), fs.Superblock().RootIno)
	require.NoError(t, err)
	var names []string
	for {
		ent, ok, err := dh.ReadDir(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, ent.Name)
	}
	require.Equal(t, []string{".", "..", "one.txt"}, names)
}

// buildLeafFormatDirImage (scenario S3) builds an XFS_DIR2_LEAF-format
// directory: one data extent plus a single separate leaf index block at
// the fixed leafOffsetBlock() logical position.
func buildLeafFormatDirImage(t *testing.T) ([]byte, []namedChild) {
	t.Helper()
	const (
		blockSize = 4096
		rootIno   = 128
		dataFSBlk = 20
		leafFSBlk = 21
	)

	image := make([]byte, 1<<20)
	sb := dirTestGeometry()
	buf := new(bytes.Buffer)
	require.NoError(t, binary.Write(buf, binary.BigEndian, &sb))
	copy(image, buf.Bytes())

	// ino values are ag-relative slots 1..3 of inode block 8 (rootIno=128 is
	// slot 0), matching dirTestGeometry's inode addressing.
	children := []namedChild{
		{"alpha", 129, ftypeRegularFile},
		{"bravo", 130, ftypeRegularFile},
		{"charlie", 131, ftypeDirectory},
	}
	block, addr := buildDirDataBlock(blockSize, 16, rootIno, rootIno, true, children, false)
	writeBlockAt(image, blockSize, dataFSBlk, block)

	leafEntries := make([]dir2LeafEntry, 0, len(children))
	for _, c := range children {
		leafEntries = append(leafEntries, dir2LeafEntry{
			HashVal: dirHash(c.name),
			Address: addr[c.name] / xfsDir2DataAlign,
		})
	}
	sort.Slice(leafEntries, func(i, j int) bool { return leafEntries[i].HashVal < leafEntries[j].HashVal })
	leafBlock := buildLeafBlock(blockSize, dir2Leaf1Magic, leafEntries)
	writeBlockAt(image, blockSize, leafFSBlk, leafBlock)

	leafFileBlock := (32 * 1024 * 1024 * 1024) / blockSize
	extents := append(packExtent(t, 0, dataFSBlk, 1, false), packExtent(t, uint64(leafFileBlock), leafFSBlk, 1, false)...)
	writeInode(t, image, 8*blockSize+0*256, inodeCoreV4{
		Magic: inodeMagicNumber, Mode: sIFDIR | 0755, Format: inodeFormatExtents,
		Nlink: 2, Size: blockSize, NExtents: 2,
	}, extents)
	for i := range children {
		writeInode(t, image, 8*blockSize+int64(1+i)*256, inodeCoreV4{
			Magic: inodeMagicNumber, Mode: sIFREG | 0644, Format: inodeFormatLocal,
			Nlink: 1, Size: 2,
		}, []byte("hi"))
	}

	return image, children
}

func TestLookupLeafFormatDir(t *testing.T) {
	image, children := buildLeafFormatDirImage(t)
	dev := NewDevice(bytes.NewReader(image), int64(len(image)))
	fs, err := Mount(context.Background(), dev, DefaultOptions())
	require.NoError(t, err)

	for _, c := range children {
		ent, err := fs.Lookup(context.Background(), fs.Superblock().RootIno, c.name)
		require.NoError(t, err, "looking up %s", c.name)
		require.Equal(t, c.ino, ent.Ino)
	}

	_, err = fs.Lookup(context.Background(), fs.Superblock().RootIno, "missing")
	require.Error(t, err)
}

// buildNodeFormatDirImage (scenario S4) builds a two-level
// XFS_DIR2_NODE-format directory: a root da_node block whose two children
// are separate dir2LeafN blocks, each covering half the hash space. This is
// the shape lookupIndexed must descend in O(depth) block reads rather than
// scanning every data block.
func buildNodeFormatDirImage(t *testing.T) ([]byte, []namedChild) {
	t.Helper()
	const (
		blockSize = 4096
		rootIno   = 128
		dataFSBlk = 20
		nodeFSBlk = 22
		leaf0FSBlk = 23
		leaf1FSBlk = 24
	)

	image := make([]byte, 1<<20)
	sb := dirTestGeometry()
	buf := new(bytes.Buffer)
	require.NoError(t, binary.Write(buf, binary.BigEndian, &sb))
	copy(image, buf.Bytes())

	// ino values are ag-relative slots 1..4 of inode block 8 (rootIno=128 is
	// slot 0), matching dirTestGeometry's inode addressing.
	children := []namedChild{
		{"frame000001", 129, ftypeRegularFile},
		{"frame050000", 130, ftypeRegularFile},
		{"frame100000", 131, ftypeRegularFile},
		{"frame150000", 132, ftypeRegularFile},
	}
	block, addr := buildDirDataBlock(blockSize, 16, rootIno, rootIno, true, children, false)
	writeBlockAt(image, blockSize, dataFSBlk, block)

	sorted := append([]namedChild(nil), children...)
	sort.Slice(sorted, func(i, j int) bool { return dirHash(sorted[i].name) < dirHash(sorted[j].name) })
	half := len(sorted) / 2
	leaf0Names, leaf1Names := sorted[:half], sorted[half:]

	buildLeafEntries := func(names []namedChild) []dir2LeafEntry {
		out := make([]dir2LeafEntry, 0, len(names))
		for _, c := range names {
			out = append(out, dir2LeafEntry{HashVal: dirHash(c.name), Address: addr[c.name] / xfsDir2DataAlign})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].HashVal < out[j].HashVal })
		return out
	}
	leaf0 := buildLeafBlock(blockSize, dir2LeafNMagic, buildLeafEntries(leaf0Names))
	leaf1 := buildLeafBlock(blockSize, dir2LeafNMagic, buildLeafEntries(leaf1Names))
	writeBlockAt(image, blockSize, leaf0FSBlk, leaf0)
	writeBlockAt(image, blockSize, leaf1FSBlk, leaf1)

	leafOffsetBlock := uint64((32 * 1024 * 1024 * 1024) / blockSize)
	maxHash := func(names []namedChild) uint32 {
		m := uint32(0)
		for _, c := range names {
			if h := dirHash(c.name); h > m {
				m = h
			}
		}
		return m
	}
	node := buildNodeBlock(blockSize, daNodeMagic, []daNodeEntry{
		{HashVal: maxHash(leaf0Names), Before: uint32(leafOffsetBlock + 1)},
		{HashVal: maxHash(leaf1Names), Before: uint32(leafOffsetBlock + 2)},
	})
	writeBlockAt(image, blockSize, nodeFSBlk, node)

	extents := packExtent(t, 0, dataFSBlk, 1, false)
	extents = append(extents, packExtent(t, leafOffsetBlock, nodeFSBlk, 1, false)...)
	extents = append(extents, packExtent(t, leafOffsetBlock+1, leaf0FSBlk, 1, false)...)
	extents = append(extents, packExtent(t, leafOffsetBlock+2, leaf1FSBlk, 1, false)...)

	writeInode(t, image, 8*blockSize+0*256, inodeCoreV4{
		Magic: inodeMagicNumber, Mode: sIFDIR | 0755, Format: inodeFormatExtents,
		Nlink: 2, Size: blockSize, NExtents: 4,
	}, extents)
	for i := range children {
		writeInode(t, image, 8*blockSize+int64(1+i)*256, inodeCoreV4{
			Magic: inodeMagicNumber, Mode: sIFREG | 0644, Format: inodeFormatLocal,
			Nlink: 1, Size: 2,
		}, []byte("hi"))
	}

	return image, children
}

func TestLookupNodeFormatDirBoundedReads(t *testing.T) {
	image, children := buildNodeFormatDirImage(t)
	dev := NewDevice(bytes.NewReader(image), int64(len(image)))
	fs, err := Mount(context.Background(), dev, DefaultOptions())
	require.NoError(t, err)

	for _, c := range children {
		ent, err := fs.Lookup(context.Background(), fs.Superblock().RootIno, c.name)
		require.NoError(t, err, "looking up %s", c.name)
		require.Equal(t, c.ino, ent.Ino)
	}

	_, err = fs.Lookup(context.Background(), fs.Superblock().RootIno, "nope")
	require.Error(t, err)
	require.True(t, xfserr.Is(err, xfserr.NotFound))
}
