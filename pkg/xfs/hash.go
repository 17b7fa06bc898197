package xfs

// dirHash computes the XFS directory-entry name hash used as the sort/lookup
// key in leaf, node, and btree-format directories. It consumes the name
// front-to-back in chunks of up to 4 bytes, rotating the running hash left
// by 7 bits per byte consumed before XORing in the next chunk. The shift
// amounts and rotate width are load-bearing: a decoder that computes a
// different hash for the same name will never find it again in a
// leaf/node/btree directory, since entries are ordered by this value.
func dirHash(name string) uint32 {
	var hash uint32

	for {
		switch len(name) {
		case 0:
			return hash
		case 1:
			hash = uint32(name[0])<<0 ^ rol32(hash, 7*1)
			name = name[1:]
		case 2:
			hash = uint32(name[0])<<7 ^ uint32(name[1])<<0 ^ rol32(hash, 7*2)
			name = name[2:]
		case 3:
			hash = uint32(name[0])<<14 ^ uint32(name[1])<<7 ^ uint32(name[2])<<0 ^ rol32(hash, 7*3)
			name = name[3:]
		default:
			hash = uint32(name[0])<<21 ^ uint32(name[1])<<14 ^ uint32(name[2])<<7 ^ uint32(name[3])<<0 ^ rol32(hash, 7*4)
			name = name[4:]
		}
	}
}

func rol32(word uint32, shift int) uint32 {
	return (word << (shift & 31)) | (word >> ((-shift) & 31))
}
