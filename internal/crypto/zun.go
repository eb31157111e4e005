package crypto

// ZunParams selects one rolling-XOR transform.
type ZunParams struct {
	Key   byte
	Step  byte
	Block int
	Limit int
}

// zunLength returns how many leading bytes of a size-byte buffer take part
// in the transform. A short tail block survives only when it is at least a
// quarter of a block, and odd sizes always leave their last byte alone.
func zunLength(size, block int) int {
	left := size
	if left%block < block/4 {
		left -= left % block
	}
	left -= size & 1
	if left < 0 {
		return 0
	}
	return left
}

// ZunDecrypt reverses ZunEncrypt in place.
func ZunDecrypt(data []byte, p ZunParams) {
	if p.Block <= 0 {
		return
	}
	left := zunLength(len(data), p.Block)
	limit := p.Limit
	key := p.Key
	tmp := make([]byte, p.Block)
	for off := 0; left > 0 && limit > 0; {
		blk := min(p.Block, left)
		in := data[off : off+blk]
		out := tmp[:blk]
		pin := 0
		for j := 0; j < 2; j++ {
			pout := blk - j - 1
			for i := 0; i < (blk-j+1)/2; i++ {
				out[pout] = in[pin] ^ key
				pin++
				pout -= 2
				key += p.Step
			}
		}
		copy(in, out)
		off += blk
		limit -= blk
		left -= blk
	}
}

// ZunEncrypt obfuscates data in place. The chunk is read backwards in pairs;
// the first byte of each pair fills the front half of the chunk and the
// second byte the back half, starting increment bytes later.
func ZunEncrypt(data []byte, p ZunParams) {
	if p.Block <= 0 {
		return
	}
	left := zunLength(len(data), p.Block)
	limit := p.Limit
	key := p.Key
	tmp := make([]byte, p.Block)
	for off := 0; left > 0 && limit > 0; {
		blk := min(p.Block, left)
		in := data[off : off+blk]
		out := tmp[:blk]
		increment := (blk + 1) / 2
		// the back half is keyed increment steps ahead of the front half
		skew := p.Step * byte(increment)
		pin := blk - 1
		pout := 0
		for ; pin > 0; pin -= 2 {
			out[pout] = in[pin] ^ key
			out[pout+increment] = in[pin-1] ^ (key + skew)
			pout++
			key += p.Step
		}
		if blk&1 != 0 {
			out[pout] = in[0] ^ key
			key += p.Step
		}
		key += p.Step * byte(blk/2)
		copy(in, out)
		off += blk
		limit -= blk
		left -= blk
	}
}
