// Package rle implements the byte run-length codec used by the older
// Touhou containers. Two equal literals open a run; the byte after them is
// the number of further repeats.
package rle

// maxRun is the longest run one count byte can describe, counting the
// second literal that opened it.
const maxRun = 256

// Compress encodes src. The previous byte starts as the complement of the
// first input byte so the first byte can never continue a run.
func Compress(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}
	out := make([]byte, 0, len(src)+len(src)/128+2)
	prev := ^src[0]
	rl := 0
	for _, c := range src {
		if rl > 0 && (c != prev || rl == maxRun) {
			out = append(out, byte(rl-1), c)
			rl = 0
		} else if rl == 0 {
			out = append(out, c)
		}
		if c == prev {
			rl++
		}
		prev = c
	}
	if rl > 0 {
		out = append(out, byte(rl-1))
	}
	return out
}

// Decompress decodes src. Inputs shorter than three bytes cannot hold a
// run and are returned as a copy.
func Decompress(src []byte) []byte {
	if len(src) < 3 {
		return append([]byte(nil), src...)
	}
	out := make([]byte, 0, len(src)*2)
	prev := src[0]
	out = append(out, prev)
	for i := 1; i < len(src); {
		c := src[i]
		i++
		out = append(out, c)
		if c == prev {
			if i >= len(src) {
				break
			}
			n := int(src[i])
			i++
			for ; n > 0; n-- {
				out = append(out, c)
			}
		}
		prev = c
	}
	return out
}

// DecompressedSize returns the length Decompress would produce without
// materializing the output.
func DecompressedSize(src []byte) int {
	if len(src) < 3 {
		return len(src)
	}
	size := 1
	prev := src[0]
	for i := 1; i < len(src); {
		c := src[i]
		i++
		size++
		if c == prev {
			if i >= len(src) {
				break
			}
			size += int(src[i])
			i++
		}
		prev = c
	}
	return size
}
