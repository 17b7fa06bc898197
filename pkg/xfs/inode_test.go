package xfs

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func testGeometry() geometry {
	return geometry{
		blockSize:      4096,
		blockSizeLog:   12,
		sectorSize:     512,
		inodeSize:      256,
		inodeSizeLog:   8,
		inodesPerBlock: 16,
		agBlocks:       1024,
		agBlocksLog:    10,
		agCount:        4,
		hasFtype:       true,
		inoAGBits:      10 + (12 - 8),
	}
}

func TestLocateRoundTrips(t *testing.T) {
	g := testGeometry()

	for ag := uint64(0); ag < uint64(g.agCount); ag++ {
		for _, rel := range []uint64{0, 1, 17, 255} {
			ino := (ag << g.inoAGBits) | rel
			off, size, err := g.locate(ino)
			require.NoError(t, err)
			require.Equal(t, int(g.inodeSize), size)

			wantAGByte := ag * uint64(g.agBlocks) * uint64(g.blockSize)
			wantBlock := rel >> 4 // inodesPerBlockLog = blockSizeLog-inodeSizeLog = 4
			wantSlot := rel & 15
			wantOff := int64(wantAGByte + wantBlock*uint64(g.blockSize) + wantSlot*uint64(g.inodeSize))
			require.Equal(t, wantOff, off)
		}
	}
}

func TestLocateRejectsOutOfRangeAG(t *testing.T) {
	g := testGeometry()
	_, _, err := g.locate(uint64(g.agCount) << g.inoAGBits)
	require.Error(t, err)
}

func buildV4Inode(t *testing.T, mode uint16, format uint8, size int64) []byte {
	t.Helper()

	core := inodeCoreV4{
		Magic:  inodeMagicNumber,
		Mode:   mode,
		Format: format,
		Nlink:  1,
		Size:   size,
	}
	buf := new(bytes.Buffer)
	require.NoError(t, binary.Write(buf, binary.BigEndian, &core))
	require.NoError(t, binary.Write(buf, binary.BigEndian, &inodeV4Tail{}))
	return buf.Bytes()
}

func TestDecodeInodeV4Local(t *testing.T) {
	raw := buildV4Inode(t, sIFREG|0644, inodeFormatLocal, 5)
	raw = append(raw, []byte("hello")...)

	iv, err := decodeInode(999, raw, false, false, 4096)
	require.NoError(t, err)
	require.True(t, iv.IsReg())
	require.Equal(t, int64(5), iv.Size)
	require.Equal(t, "hello", string(iv.literal[:iv.Size]))
}

func TestDecodeInodeBadMagic(t *testing.T) {
	raw := buildV4Inode(t, sIFREG, inodeFormatLocal, 0)
	raw[0] = 0
	_, err := decodeInode(1, raw, false, false, 4096)
	require.Error(t, err)
}

func TestDecodeInodeForkSplit(t *testing.T) {
	core := inodeCoreV4{
		Magic:   inodeMagicNumber,
		Mode:    sIFREG | 0644,
		Format:  inodeFormatLocal,
		AFormat: inodeFormatLocal,
		ForkOff: 1, // 8 bytes
		Size:    4,
	}
	buf := new(bytes.Buffer)
	require.NoError(t, binary.Write(buf, binary.BigEndian, &core))
	require.NoError(t, binary.Write(buf, binary.BigEndian, &inodeV4Tail{}))
	raw := buf.Bytes()
	raw = append(raw, []byte("data")...) // 4 bytes data, pad to 8
	raw = append(raw, []byte{0, 0, 0, 0}...)
	raw = append(raw, []byte("attrs!!!")...)

	iv, err := decodeInode(1, raw, false, false, 4096)
	require.NoError(t, err)
	require.True(t, iv.HasAttr())
	require.Equal(t, "data", string(iv.literal[:4]))
	require.Equal(t, "attrs!!!", string(iv.attrLiteral))
}
