package crypto

import (
	"io"
)

// Decryptor defines the interface for stream decryption.
type Decryptor interface {
	// Decrypt decrypts the buffer in place, continuing from the previous call.
	Decrypt([]byte) error

	// Finish performs final verification.
	Finish() error
}

// NopDecryptor is a no-op decryptor for unobfuscated streams.
type NopDecryptor struct{}

// Decrypt implements Decryptor.
func (NopDecryptor) Decrypt([]byte) error { return nil }

// Finish implements Decryptor.
func (NopDecryptor) Finish() error { return nil }

// ByteXOR XORs every byte with one constant.
type ByteXOR byte

// Decrypt implements Decryptor.
func (x ByteXOR) Decrypt(buf []byte) error {
	for i := range buf {
		buf[i] ^= byte(x)
	}
	return nil
}

// Finish implements Decryptor.
func (ByteXOR) Finish() error { return nil }

// KeyDecryptor is the streaming form of XORKey.
type KeyDecryptor struct {
	key [16]byte
	pos int
}

// NewKeyDecryptor returns a flat key decryptor starting at position zero.
func NewKeyDecryptor(key [4]uint32) *KeyDecryptor {
	return &KeyDecryptor{key: keyBytes(key)}
}

// Decrypt implements Decryptor.
func (d *KeyDecryptor) Decrypt(buf []byte) error {
	for i := range buf {
		buf[i] ^= d.key[d.pos%16]
		d.pos++
	}
	return nil
}

// Finish implements Decryptor.
func (d *KeyDecryptor) Finish() error { return nil }

// FeedbackDecryptor is the streaming form of FeedbackDecrypt.
type FeedbackDecryptor struct {
	key [16]byte
	aux [4]byte
	pos int
}

// NewFeedbackDecryptor returns a feedback decryptor starting at position zero.
func NewFeedbackDecryptor(key [4]uint32) *FeedbackDecryptor {
	d := &FeedbackDecryptor{key: keyBytes(key)}
	copy(d.aux[:], d.key[:4])
	return d
}

// Decrypt implements Decryptor.
func (d *FeedbackDecryptor) Decrypt(buf []byte) error {
	for i, c := range buf {
		buf[i] = c ^ d.key[d.pos%16] ^ d.aux[d.pos%4]
		d.aux[d.pos%4] = c
		d.pos++
	}
	return nil
}

// Finish implements Decryptor.
func (d *FeedbackDecryptor) Finish() error { return nil }

// DecryptReader wraps a reader with decryption.
type DecryptReader struct {
	R   io.Reader
	Dec Decryptor
}

// Read implements io.Reader with decryption.
func (d *DecryptReader) Read(p []byte) (int, error) {
	n, err := d.R.Read(p)
	if n > 0 {
		if derr := d.Dec.Decrypt(p[:n]); derr != nil {
			return n, derr
		}
	}
	return n, err
}

// WriteCounter wraps a writer and counts bytes written.
type WriteCounter struct {
	W io.Writer
	N int64
}

// Write implements io.Writer with byte counting.
func (c *WriteCounter) Write(p []byte) (int, error) {
	n, err := c.W.Write(p)
	c.N += int64(n)
	return n, err
}
