package xfs

import (
	"github.com/xfsro/xfsro/pkg/xfserr"
)

// readlink returns a symlink inode's target. LOCAL-format symlinks carry
// the target literally in the data fork's literal area, mirroring how the
// teacher's compiler writes a symlink's target via the same local-format
// path it uses for short file content. EXTENTS-format symlinks (targets
// that didn't fit inline) resolve through the block-map like a regular
// file and are read back byte-for-byte.
func (fs *FilesystemHandle) readlink(iv *InodeView) (string, error) {
	const op = "readlink"

	if !iv.IsLnk() {
		return "", xfserr.New(xfserr.InvalidArgument, op, "not a symlink").WithIno(iv.Ino)
	}

	switch iv.Format {
	case inodeFormatLocal:
		n := int(iv.Size)
		if n > len(iv.literal) {
			return "", xfserr.New(xfserr.Corrupt, op, "symlink target exceeds literal area").WithIno(iv.Ino)
		}
		return string(iv.literal[:n]), nil
	case inodeFormatExtents:
		buf := make([]byte, iv.Size)
		if _, err := fs.readInodeData(iv, 0, buf); err != nil {
			return "", xfserr.Wrap(xfserr.Io, op, err).WithIno(iv.Ino)
		}
		return string(buf), nil
	default:
		return "", xfserr.New(xfserr.UnsupportedFeature, op, "unsupported symlink format").WithIno(iv.Ino)
	}
}
