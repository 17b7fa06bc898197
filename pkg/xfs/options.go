package xfs

import (
	"github.com/xfsro/xfsro/pkg/xfserr"
	"github.com/xfsro/xfsro/pkg/xfslog"
)

// ChecksumPolicy controls how much effort Mount and subsequent reads spend
// verifying v5 self-describing metadata against its CRC32C.
type ChecksumPolicy int

const (
	// ChecksumOff never computes a CRC; corruption is only caught by the
	// structural checks (magic numbers, bounds, B+tree ordering).
	ChecksumOff ChecksumPolicy = iota
	// ChecksumVerify computes and logs a mismatch but still returns the
	// block, on the theory that a stale CRC is less harmful than refusing
	// to read a file.
	ChecksumVerify
	// ChecksumStrict turns a mismatch into a Corrupt error.
	ChecksumStrict
)

// Options configures a Mount. In the zero value, CacheCapacity and Logger
// are replaced by their defaults at Mount; DefaultOptions returns the same
// defaults explicitly.
type Options struct {
	// CacheCapacity bounds the number of decoded metadata blocks (inodes,
	// directory blocks, BMBT nodes, attr leaves) held in the LRU cache.
	CacheCapacity int

	// VerifyChecksums selects how v5 block checksums are treated.
	VerifyChecksums ChecksumPolicy

	// UIDOverride/GIDOverride, when non-nil, replace every decoded
	// inode's UID/GID — the read-only equivalent of a mount-time
	// uid=/gid= override.
	UIDOverride *uint32
	GIDOverride *uint32

	// DefaultPermissions mirrors the FUSE mount option of the same name:
	// the decoder still decodes and reports every inode's real mode bits,
	// it only surfaces the flag back through StatFS so a kernel-bridge
	// adapter mounting with default_permissions can tell the kernel to
	// enforce access checks itself instead of forwarding every access(2)
	// to userspace.
	DefaultPermissions bool

	// Logger receives structural diagnostics. Defaults to xfslog.Nop.
	Logger xfslog.Logger
}

// DefaultOptions returns Options with every field at its default value.
func DefaultOptions() Options {
	return Options{
		CacheCapacity:   1024,
		VerifyChecksums: ChecksumOff,
		Logger:          xfslog.Nop,
	}
}

// normalize fills in defaults for unset fields and rejects combinations
// that can never be made sense of (a negative cache capacity). It does
// not substitute a default for an explicitly invalid CacheCapacity — only
// the zero value (an unset field) takes the default.
func (o *Options) normalize() error {
	const op = "mount"

	switch {
	case o.CacheCapacity == 0:
		o.CacheCapacity = 1024
	case o.CacheCapacity < 0:
		return xfserr.New(xfserr.InvalidArgument, op, "CacheCapacity must be positive")
	}
	if o.Logger == nil {
		o.Logger = xfslog.Nop
	}
	return nil
}
