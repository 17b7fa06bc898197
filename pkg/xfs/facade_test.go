package xfs

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xfsro/xfsro/pkg/xfserr"
)

// buildShortFormDirLiteral builds the literal-area bytes of a short-form
// directory with parentIno as its own ".." target and the given children,
// in the same {namelen, offset-hint, name, ftype, ino} shape shortFormNext
// decodes.
func buildShortFormDirLiteral(parentIno uint32, children []struct {
	name  string
	ino   uint32
	ftype uint8
}) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(uint8(len(children)))
	buf.WriteByte(0) // I8Count: 4-byte inode numbers
	binary.Write(buf, binary.BigEndian, parentIno)

	for _, c := range children {
		buf.WriteByte(uint8(len(c.name)))
		binary.Write(buf, binary.BigEndian, uint16(0))
		buf.WriteString(c.name)
		buf.WriteByte(c.ftype)
		binary.Write(buf, binary.BigEndian, c.ino)
	}
	return buf.Bytes()
}

func writeInode(t *testing.T, image []byte, offset int64, core inodeCoreV4, literal []byte) {
	t.Helper()

	buf := new(bytes.Buffer)
	require.NoError(t, binary.Write(buf, binary.BigEndian, &core))
	require.NoError(t, binary.Write(buf, binary.BigEndian, &inodeV4Tail{}))
	require.LessOrEqual(t, buf.Len()+len(literal), 256)
	buf.Write(literal)

	copy(image[offset:], buf.Bytes())
}

// buildMinimalV4Image constructs a tiny in-memory v4 image: one AG, a
// short-form root directory containing a regular file (LOCAL format) and a
// symlink (LOCAL format), all three inodes packed into one inode block.
func buildMinimalV4Image(t *testing.T) []byte {
	t.Helper()

	const (
		blockSize  = 4096
		inodeSize  = 256
		agBlocks   = 1024
		rootIno    = 128
		fileIno    = 129
		symlinkIno = 130
	)

	image := make([]byte, 1<<20)

	sb := superBlockOnDisk{
		MagicNumber:               sbMagicNumber,
		BlockSize:                 blockSize,
		DataBlocks:                1024,
		RootInode:                 rootIno,
		AGBlocks:                  agBlocks,
		AGCount:                   1,
		VersionNum:                version4,
		SectorSize:                512,
		InodeSize:                 inodeSize,
		InodesPerBlock:            16,
		BlockSizeLogarithmic:      12,
		SectorSizeLogarithmic:     9,
		InodeSizeLogarithmic:      8,
		InodesPerBlockLogarithmic: 4,
		AGBlocksLogarithmic:       10,
		MoreFeatures:              version2FtypeBit,
	}
	buf := new(bytes.Buffer)
	require.NoError(t, binary.Write(buf, binary.BigEndian, &sb))
	copy(image, buf.Bytes())

	// ag-relative block 8 (arbitrary), byte offset 8*4096 = 32768, holds
	// the root/file/symlink inode records at slots 0/1/2.
	const inodeBlockOffset = 8 * blockSize

	dirLiteral := buildShortFormDirLiteral(rootIno, []struct {
		name  string
		ino   uint32
		ftype uint8
	}{
		{"hello.txt", fileIno, ftypeRegularFile},
		{"link", symlinkIno, ftypeSymlink},
	})
	writeInode(t, image, inodeBlockOffset+0*inodeSize, inodeCoreV4{
		Magic: inodeMagicNumber, Mode: sIFDIR | 0755, Format: inodeFormatLocal,
		Nlink: 2, Size: int64(len(dirLiteral)),
	}, dirLiteral)

	writeInode(t, image, inodeBlockOffset+1*inodeSize, inodeCoreV4{
		Magic: inodeMagicNumber, Mode: sIFREG | 0644, Format: inodeFormatLocal,
		Nlink: 1, Size: 2,
	}, []byte("hi"))

	writeInode(t, image, inodeBlockOffset+2*inodeSize, inodeCoreV4{
		Magic: inodeMagicNumber, Mode: sIFLNK | 0777, Format: inodeFormatLocal,
		Nlink: 1, Size: 9,
	}, []byte("hello.txt"))

	return image
}

func mountTestImage(t *testing.T) *FilesystemHandle {
	t.Helper()
	image := buildMinimalV4Image(t)
	dev := NewDevice(bytes.NewReader(image), int64(len(image)))
	fs, err := Mount(context.Background(), dev, DefaultOptions())
	require.NoError(t, err)
	return fs
}

func TestMountAndGetAttrRoot(t *testing.T) {
	fs := mountTestImage(t)
	attr, err := fs.GetAttr(context.Background(), fs.Superblock().RootIno)
	require.NoError(t, err)
	require.Equal(t, uint16(sIFDIR|0755), attr.Mode)
}

func TestLookupRegularFile(t *testing.T) {
	fs := mountTestImage(t)
	attr, err := fs.Lookup(context.Background(), fs.Superblock().RootIno, "hello.txt")
	require.NoError(t, err)
	require.Equal(t, uint16(sIFREG|0644), attr.Mode)
	require.Equal(t, int64(2), attr.Size)
}

func TestLookupMissing(t *testing.T) {
	fs := mountTestImage(t)
	_, err := fs.Lookup(context.Background(), fs.Superblock().RootIno, "nope")
	require.Error(t, err)
	require.True(t, xfserr.Is(err, xfserr.NotFound))
}

func TestReadDirRoot(t *testing.T) {
	fs := mountTestImage(t)
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
	require.Equal(t, []string{".", "..", "hello.txt", "link"}, names)
}

func TestOpenReadFile(t *testing.T) {
	fs := mountTestImage(t)
	attr, err := fs.Lookup(context.Background(), fs.Superblock().RootIno, "hello.txt")
	require.NoError(t, err)

	fh, err := fs.Open(context.Background(), attr.Ino)
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := fh.Read(context.Background(), 0, buf)
	require.NoError(t, err)
	require.Equal(t, "hi", string(buf[:n]))
}

func TestReadlink(t *testing.T) {
	fs := mountTestImage(t)
	attr, err := fs.Lookup(context.Background(), fs.Superblock().RootIno, "link")
	require.NoError(t, err)

	target, err := fs.Readlink(context.Background(), attr.Ino)
	require.NoError(t, err)
	require.Equal(t, "hello.txt", target)
}

func TestStatFS(t *testing.T) {
	fs := mountTestImage(t)
	st, err := fs.StatFS(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint32(4096), st.BlockSize)
}
