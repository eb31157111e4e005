package crypto

// ScheduleXOR applies the table keystream used by the Tasofro containers.
// Byte i is XORed with key + i*step1 + T(i-1)*step2, where T is the
// triangular number, and with the low byte of an MT19937 output seeded with
// 6+len(data). The keystream depends only on position and length, so the
// same call encrypts and decrypts.
func ScheduleXOR(data []byte, key, step1, step2 byte) {
	mt := NewMT19937(uint32(6 + len(data)))
	k, t := key, step1
	for i := range data {
		data[i] ^= k ^ byte(mt.Uint32())
		k += t
		t += step2
	}
}

// Park-Miller minimal standard generator, evaluated with Schrage's method.
const (
	pmA = 16807
	pmM = 0x7fffffff
	pmQ = pmM / pmA // 127773
	pmR = pmM % pmA // 2836
)

// congruentialNext advances the generator one round. Go's truncating
// division matches the sign-corrected reciprocal multiply the containers
// were built with.
func congruentialNext(key int32) int32 {
	hi := key / pmQ
	lo := key - hi*pmQ
	key = lo*pmA - hi*pmR
	if key <= 0 {
		key += pmM
	}
	return key
}

// CongruentialXOR obfuscates a table stored at offset in the container.
// The running key starts as len(data)^offset; every four-byte group is XORed
// with a big-endian mask assembled from four generator rounds. The transform
// is its own inverse.
func CongruentialXOR(data []byte, offset uint32) {
	key := int32(uint32(len(data)) ^ offset)
	for i := 0; i < len(data); i += 4 {
		var mask uint32
		for r := 0; r < 4; r++ {
			key = congruentialNext(key)
			mask = mask<<8 | uint32(byte(key))
		}
		for j := 0; j < 4 && i+j < len(data); j++ {
			data[i+j] ^= byte(mask >> (24 - 8*j))
		}
	}
}
