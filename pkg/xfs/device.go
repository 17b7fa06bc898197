package xfs

import (
	"io"

	"github.com/xfsro/xfsro/pkg/xfserr"
)

// Device is the block medium a filesystem is mounted against. Implementations
// need only support concurrent, stateless reads at arbitrary byte offsets;
// the decoder never seeks a shared cursor and never writes.
type Device interface {
	ReadAt(p []byte, off int64) (int, error)
	Size() (int64, error)
}

// readerAtDevice adapts any io.ReaderAt (an *os.File, a bytes.Reader over an
// in-memory image, ...) into a Device.
type readerAtDevice struct {
	r    io.ReaderAt
	size int64
}

// NewDevice wraps r as a Device of the given total size in bytes.
func NewDevice(r io.ReaderAt, size int64) Device {
	return &readerAtDevice{r: r, size: size}
}

func (d *readerAtDevice) ReadAt(p []byte, off int64) (int, error) {
	return d.r.ReadAt(p, off)
}

func (d *readerAtDevice) Size() (int64, error) {
	return d.size, nil
}

// sectorReader performs a sector-aligned read of an arbitrary byte range,
// rounding the request out to sectorSize boundaries the way a block device
// requires, then trimming the padding back off before returning.
type sectorReader struct {
	dev        Device
	sectorSize int64
}

func newSectorReader(dev Device, sectorSize int64) *sectorReader {
	if sectorSize <= 0 {
		sectorSize = 512
	}
	return &sectorReader{dev: dev, sectorSize: sectorSize}
}

func alignDown(x, y int64) int64 { return (x / y) * y }
func alignUp(x, y int64) int64   { return ((x + y - 1) / y) * y }

// readAt reads exactly n bytes starting at byte offset off, padding the
// underlying ReadAt out to sector boundaries and copying only the requested
// window back to the caller.
func (s *sectorReader) readAt(off, n int64) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}

	start := alignDown(off, s.sectorSize)
	end := alignUp(off+n, s.sectorSize)

	buf := make([]byte, end-start)
	read, err := s.dev.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return nil, xfserr.Wrap(xfserr.Io, "readAt", err)
	}
	if int64(read) < off+n-start {
		return nil, xfserr.New(xfserr.Io, "readAt", "short read")
	}

	lo := off - start
	return buf[lo : lo+n], nil
}
