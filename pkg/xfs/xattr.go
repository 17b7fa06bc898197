package xfs

import (
	"github.com/xfsro/xfsro/pkg/xfserr"
)

// XAttr is one decoded extended attribute. Name carries its namespace as a
// conventional dot-separated prefix ("user.", "trusted.", "security."), the
// way getxattr(2)/listxattr(2) callers expect to see it.
type XAttr struct {
	Name   string
	Value  []byte
	Root   bool // "trusted"/root namespace vs the default user namespace
	Secure bool // "security" namespace
}

// xattrName prefixes a raw on-disk attribute name with its namespace.
func xattrName(raw string, root, secure bool) string {
	switch {
	case secure:
		return "security." + raw
	case root:
		return "trusted." + raw
	default:
		return "user." + raw
	}
}

// shortAttrEntry precedes each attribute in a short-form attribute fork;
// unlike the leaf-format attrLeafEntry, short-form has no hash and no
// separate name/value region — everything is inline, back to back.
type shortAttrHeader struct {
	TotalSize uint16 // 0
	Count     uint8  // 2
} // 4 (padded), followed by Count entries

type shortAttrEntry struct {
	ValueLen uint8 // 0
	NameLen  uint8 // 1
	Flags    uint8 // 2
} // 3, followed by Name[NameLen] then Value[ValueLen]

// listXAttrs returns every attribute on iv. Short-form attrs decode
// entirely from the inode's attr-fork literal area; leaf/node/btree attrs
// resolve leaf blocks through the same block-map the data fork uses.
func (fs *FilesystemHandle) listXAttrs(iv *InodeView) ([]XAttr, error) {
	const op = "listxattr"

	if !iv.HasAttr() {
		return nil, nil
	}

	switch iv.AFormat {
	case inodeFormatLocal:
		return decodeShortAttrs(iv.attrLiteral)
	case inodeFormatExtents, inodeFormatBTree:
		return fs.listLeafAttrs(iv)
	default:
		return nil, xfserr.New(xfserr.UnsupportedFeature, op, "unsupported attr fork format").WithIno(iv.Ino)
	}
}

// getXAttr returns the value of name, or a NotFound error.
func (fs *FilesystemHandle) getXAttr(iv *InodeView, name string) ([]byte, error) {
	all, err := fs.listXAttrs(iv)
	if err != nil {
		return nil, err
	}
	for _, a := range all {
		if a.Name == name {
			return a.Value, nil
		}
	}
	return nil, xfserr.New(xfserr.NotFound, "getxattr", "no such attribute").WithIno(iv.Ino)
}

func decodeShortAttrs(literal []byte) ([]XAttr, error) {
	const op = "listxattr:shortform"
	if len(literal) < 4 {
		if len(literal) == 0 {
			return nil, nil
		}
		return nil, xfserr.New(xfserr.Corrupt, op, "short attr fork truncated")
	}

	var hdr shortAttrHeader
	if err := decodeStruct(literal[:3], &hdr); err != nil {
		return nil, xfserr.Wrap(xfserr.Corrupt, op, err)
	}

	out := make([]XAttr, 0, hdr.Count)
	pos := 4
	for i := 0; i < int(hdr.Count); i++ {
		if pos+3 > len(literal) {
			return nil, xfserr.New(xfserr.Corrupt, op, "attr entry truncated")
		}
		var ent shortAttrEntry
		if err := decodeStruct(literal[pos:pos+3], &ent); err != nil {
			return nil, xfserr.Wrap(xfserr.Corrupt, op, err)
		}
		nameStart := pos + 3
		valueStart := nameStart + int(ent.NameLen)
		valueEnd := valueStart + int(ent.ValueLen)
		if valueEnd > len(literal) {
			return nil, xfserr.New(xfserr.Corrupt, op, "attr name/value out of bounds")
		}
		root := ent.Flags&attrRootFlag != 0
		secure := ent.Flags&attrSecureFlag != 0
		out = append(out, XAttr{
			Name:   xattrName(string(literal[nameStart:valueStart]), root, secure),
			Value:  append([]byte(nil), literal[valueStart:valueEnd]...),
			Root:   root,
			Secure: secure,
		})
		pos = valueEnd
	}
	return out, nil
}

// listLeafAttrs reads every block mapped by the attr fork, in extent order,
// and decodes each entry's local or remote value from the blocks that carry
// an attr leaf magic; any other block is skipped, not descended.
func (fs *FilesystemHandle) listLeafAttrs(iv *InodeView) ([]XAttr, error) {
	const op = "listxattr:leaf"

	extents, err := fs.bmbt.allExtents(iv, "attr")
	if err != nil {
		return nil, err
	}

	var out []XAttr
	for _, e := range extents {
		for i := uint64(0); i < e.BlockCount; i++ {
			raw, err := fs.readFSBlock(e.FSBlock + i)
			if err != nil {
				return nil, xfserr.Wrap(xfserr.Io, op, err).WithIno(iv.Ino)
			}
			if len(raw) < 10 {
				return nil, xfserr.New(xfserr.Corrupt, op, "attr leaf block truncated").WithIno(iv.Ino)
			}
			// attrLeafHeader embeds blkinfo: magic is the uint16 right after
			// the forw/back sibling pointers, not the block's first bytes.
			magic := uint32(u16(raw[8:10]))
			if magic != attrLeafMagic && magic != attr3LeafMagic {
				// A node-format internal block; attribute leaves are
				// only ever found at the block-map's leaf level, so any
				// non-leaf block here is a pure routing node and is
				// skipped rather than decoded for entries.
				continue
			}
			attrs, err := fs.decodeAttrLeafBlock(iv, raw)
			if err != nil {
				return nil, err
			}
			out = append(out, attrs...)
		}
	}
	return out, nil
}

func (fs *FilesystemHandle) decodeAttrLeafBlock(iv *InodeView, raw []byte) ([]XAttr, error) {
	const op = "listxattr:leafblock"

	headerLen := 32
	if len(raw) < headerLen {
		return nil, xfserr.New(xfserr.Corrupt, op, "attr leaf block truncated").WithIno(iv.Ino)
	}
	var hdr attrLeafHeader
	if err := decodeStruct(raw[:20], &hdr); err != nil {
		return nil, xfserr.Wrap(xfserr.Corrupt, op, err).WithIno(iv.Ino)
	}

	out := make([]XAttr, 0, hdr.Count)
	entriesOff := headerLen
	for i := 0; i < int(hdr.Count); i++ {
		off := entriesOff + i*8
		if off+8 > len(raw) {
			return nil, xfserr.New(xfserr.Corrupt, op, "attr leaf entry out of bounds").WithIno(iv.Ino)
		}
		var ent attrLeafEntry
		if err := decodeStruct(raw[off:off+8], &ent); err != nil {
			return nil, xfserr.Wrap(xfserr.Corrupt, op, err).WithIno(iv.Ino)
		}

		a, err := fs.decodeAttrAt(iv, raw, int(ent.NameIdx), ent.Flags)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (fs *FilesystemHandle) decodeAttrAt(iv *InodeView, raw []byte, nameIdx int, flags uint8) (XAttr, error) {
	const op = "listxattr:entry"

	if nameIdx >= len(raw) {
		return XAttr{}, xfserr.New(xfserr.Corrupt, op, "attr name offset out of bounds").WithIno(iv.Ino)
	}

	if flags&attrLocalFlag != 0 {
		if nameIdx+3 > len(raw) {
			return XAttr{}, xfserr.New(xfserr.Corrupt, op, "local attr header truncated").WithIno(iv.Ino)
		}
		var local attrLeafNameLocal
		if err := decodeStruct(raw[nameIdx:nameIdx+3], &local); err != nil {
			return XAttr{}, xfserr.Wrap(xfserr.Corrupt, op, err).WithIno(iv.Ino)
		}
		nameStart := nameIdx + 3
		valueStart := nameStart + int(local.NameLen)
		valueEnd := valueStart + int(local.ValueLen)
		if valueEnd > len(raw) {
			return XAttr{}, xfserr.New(xfserr.Corrupt, op, "local attr value out of bounds").WithIno(iv.Ino)
		}
		root := flags&attrRootFlag != 0
		secure := flags&attrSecureFlag != 0
		return XAttr{
			Name:   xattrName(string(raw[nameStart:valueStart]), root, secure),
			Value:  append([]byte(nil), raw[valueStart:valueEnd]...),
			Root:   root,
			Secure: secure,
		}, nil
	}

	if nameIdx+9 > len(raw) {
		return XAttr{}, xfserr.New(xfserr.Corrupt, op, "remote attr header truncated").WithIno(iv.Ino)
	}
	var remote attrLeafNameRemote
	if err := decodeStruct(raw[nameIdx:nameIdx+9], &remote); err != nil {
		return XAttr{}, xfserr.Wrap(xfserr.Corrupt, op, err).WithIno(iv.Ino)
	}
	nameStart := nameIdx + 9
	nameEnd := nameStart + int(remote.NameLen)
	if nameEnd > len(raw) {
		return XAttr{}, xfserr.New(xfserr.Corrupt, op, "remote attr name out of bounds").WithIno(iv.Ino)
	}
	name := string(raw[nameStart:nameEnd])

	value := make([]byte, 0, remote.ValueLen)
	blockSize := uint64(fs.sb.geom.blockSize)
	remaining := uint64(remote.ValueLen)
	block := uint64(remote.ValueBlk)
	for remaining > 0 {
		raw, err := fs.readFSBlock(block)
		if err != nil {
			return XAttr{}, xfserr.Wrap(xfserr.Io, op, err).WithIno(iv.Ino).WithBlock(block)
		}
		n := blockSize
		if remaining < n {
			n = remaining
		}
		value = append(value, raw[:n]...)
		remaining -= n
		block++
	}

	root := flags&attrRootFlag != 0
	secure := flags&attrSecureFlag != 0
	return XAttr{
		Name:   xattrName(name, root, secure),
		Value:  value,
		Root:   root,
		Secure: secure,
	}, nil
}
