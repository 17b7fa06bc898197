package xfs

import (
	"github.com/xfsro/xfsro/pkg/vio"
	"github.com/xfsro/xfsro/pkg/xfserr"
)

// SeekWhence mirrors the two extended lseek modes a read-only filesystem
// needs to support; SEEK_SET/CUR/END are handled by the caller and never
// reach the decoder.
type SeekWhence int

const (
	SeekData SeekWhence = iota
	SeekHole
)

// readInodeData reads len(buf) bytes starting at file-offset off from a
// regular file's (or inline-overflow symlink's) data fork, resolving each
// covered extent through the block-map and zero-filling holes and
// unwritten extents in place.
func (fs *FilesystemHandle) readInodeData(iv *InodeView, off int64, buf []byte) (int, error) {
	const op = "read"

	if iv.Format == inodeFormatLocal {
		n := copy(buf, sliceFrom(iv.literal, off))
		return n, nil
	}
	if iv.Format != inodeFormatExtents && iv.Format != inodeFormatBTree {
		return 0, xfserr.New(xfserr.UnsupportedFeature, op, "unsupported data fork format").WithIno(iv.Ino)
	}

	blockSize := int64(fs.sb.geom.blockSize)
	total := 0

	for total < len(buf) {
		fileOff := off + int64(total)
		fileBlock := uint64(fileOff / blockSize)
		inBlock := fileOff % blockSize

		ext, err := fs.bmbt.lookup(iv, "data", fileBlock)
		if err != nil {
			return total, xfserr.Wrap(xfserr.Io, op, err).WithIno(iv.Ino)
		}

		avail := blockSize - inBlock
		want := int64(len(buf) - total)
		n := avail
		if want < n {
			n = want
		}

		dst := buf[total : int64(total)+n]
		if ext.Hole || ext.Unwritten {
			vio.ZeroFill(dst)
		} else {
			fsBlock := ext.FSBlock + (fileBlock - ext.FileBlock)
			raw, err := fs.readFSBlock(fsBlock)
			if err != nil {
				return total, xfserr.Wrap(xfserr.Io, op, err).WithIno(iv.Ino).WithBlock(fsBlock)
			}
			copy(dst, raw[inBlock:])
		}

		total += int(n)
	}

	return total, nil
}

func sliceFrom(b []byte, off int64) []byte {
	if off < 0 || off >= int64(len(b)) {
		return nil
	}
	return b[off:]
}

// lseek implements SEEK_DATA/SEEK_HOLE: starting from off, find the next
// byte offset at or after off where the data/hole state changes into the
// requested kind.
func (fs *FilesystemHandle) lseek(iv *InodeView, off int64, whence SeekWhence) (int64, error) {
	const op = "lseek"

	if off < 0 || off > iv.Size {
		return 0, xfserr.New(xfserr.InvalidArgument, op, "offset out of range").WithIno(iv.Ino)
	}
	if iv.Format == inodeFormatLocal {
		if whence == SeekData {
			return off, nil
		}
		return iv.Size, nil
	}

	blockSize := int64(fs.sb.geom.blockSize)
	pos := off
	for pos < iv.Size {
		fileBlock := uint64(pos / blockSize)
		ext, err := fs.bmbt.lookup(iv, "data", fileBlock)
		if err != nil {
			return 0, xfserr.Wrap(xfserr.Io, op, err).WithIno(iv.Ino)
		}
		isHole := ext.Hole
		if whence == SeekData && !isHole {
			return pos, nil
		}
		if whence == SeekHole && isHole {
			return pos, nil
		}
		// Advance to the start of the next extent/gap boundary.
		if isHole {
			pos = int64(fileBlock+1) * blockSize
		} else {
			pos = int64(ext.FileBlock+ext.BlockCount) * blockSize
		}
	}
	if whence == SeekHole {
		return iv.Size, nil
	}
	return 0, xfserr.New(xfserr.InvalidArgument, op, "no data at or after offset").WithIno(iv.Ino)
}
