package crypto

import "encoding/binary"

// keyBytes lays the four key words out little-endian, the order the
// container stores them in.
func keyBytes(key [4]uint32) [16]byte {
	var k [16]byte
	for i, w := range key {
		binary.LittleEndian.PutUint32(k[i*4:], w)
	}
	return k
}

// XORKey XORs every byte with byte i%16 of the key. It is its own inverse.
func XORKey(data []byte, key [4]uint32) {
	k := keyBytes(key)
	for i := range data {
		data[i] ^= k[i%16]
	}
}

// FeedbackDecrypt reverses FeedbackEncrypt in place. Each byte is XORed with
// the key and with the ciphertext byte four positions earlier; the first
// four positions use the low key word instead.
func FeedbackDecrypt(data []byte, key [4]uint32) {
	k := keyBytes(key)
	var aux [4]byte
	copy(aux[:], k[:4])
	for i, c := range data {
		data[i] = c ^ k[i%16] ^ aux[i%4]
		aux[i%4] = c
	}
}

// FeedbackEncrypt obfuscates data in place so that FeedbackDecrypt restores it.
//
// The decrypter's feedback register only settles once every ciphertext byte
// exists, so encryption runs twice: a forward simulation over a scratch copy
// finds the register's final state, then a backward walk from the end
// unwinds that state one slot at a time, emitting the ciphertext byte held in
// the slot and recovering the one four positions earlier from the plaintext.
func FeedbackEncrypt(data []byte, key [4]uint32) {
	if len(data) == 0 {
		return
	}
	aux := feedbackFinalState(data, key)
	k := keyBytes(key)
	for i := len(data) - 1; i >= 0; i-- {
		c := aux[i%4]
		aux[i%4] = data[i] ^ k[i%16] ^ c
		data[i] = c
	}
}

// feedbackFinalState replays the decrypter's register over a scratch copy
// and returns its contents after the last byte.
func feedbackFinalState(plain []byte, key [4]uint32) [4]byte {
	k := keyBytes(key)
	var aux [4]byte
	copy(aux[:], k[:4])
	scratch := make([]byte, len(plain))
	copy(scratch, plain)
	for i, p := range scratch {
		c := p ^ k[i%16] ^ aux[i%4]
		scratch[i] = c
		aux[i%4] = c
	}
	return aux
}
