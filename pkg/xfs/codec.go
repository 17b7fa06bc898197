package xfs

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/xfsro/xfsro/pkg/xfserr"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// crc32c computes the Castagnoli CRC32 XFS v5 uses for self-describing
// metadata blocks. verify_checksums controls whether callers bother.
func crc32c(b []byte) uint32 {
	return crc32.Checksum(b, crc32cTable)
}

// decodeStruct decodes a fixed-size big-endian record from b into v, which
// must be a pointer to a struct of plain fixed-width fields (the same
// structs binary.Write already round-trips on the encode side).
func decodeStruct(b []byte, v interface{}) error {
	r := bytes.NewReader(b)
	return binary.Read(r, binary.BigEndian, v)
}

func u16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }
func u32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func u64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

// extentRecord is the decoded form of a 128-bit packed BMBT/inode-literal
// extent record: bit 127 unwritten flag, bits 73-126 start file block
// (54 bits), bits 21-72 start fs block (52 bits), bits 0-20 block count
// (21 bits).
type extentRecord struct {
	StartFileBlock uint64
	StartFSBlock   uint64
	BlockCount     uint64
	Unwritten      bool
}

// decodeExtentRecord unpacks one 16-byte BMBT extent record. The teacher's
// image builder assembles the packed 128 bits through davidminor/uint128's
// ShiftLeft/Or when it writes one; unpacking is the inverse (shifts and
// masks back out of the two halves), which that library's exported API
// doesn't cover, so the two halves are carried as plain uint64s here.
func decodeExtentRecord(b []byte) (extentRecord, error) {
	if len(b) < 16 {
		return extentRecord{}, xfserr.New(xfserr.Corrupt, "decodeExtentRecord", "short extent record")
	}

	hi := u64(b[0:8])
	lo := u64(b[8:16])

	return extentRecord{
		Unwritten:      hi>>63 != 0,
		StartFileBlock: (hi >> 9) & ((1 << 54) - 1),
		StartFSBlock:   ((hi & 0x1ff) << 43) | (lo >> 21),
		BlockCount:     lo & ((1 << 21) - 1),
	}, nil
}

// checkMagic32 is the common "does this block look like what we think it
// is" gate used before trusting anything else in the block.
func checkMagic32(op string, got, want uint32) error {
	if got != want {
		return xfserr.New(xfserr.Corrupt, op, "magic mismatch")
	}
	return nil
}

func checkMagic16(op string, got, want uint16) error {
	if got != want {
		return xfserr.New(xfserr.Corrupt, op, "magic mismatch")
	}
	return nil
}
