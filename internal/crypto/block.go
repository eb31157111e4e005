package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
)

const (
	// PlainBlockSize is the payload carried by one block.
	PlainBlockSize = 32
	// CipherBlockSize is the stored size of one block.
	CipherBlockSize = 64
)

// ErrBadBlock indicates a block whose padding does not decode.
var ErrBadBlock = errors.New("crypto: malformed public-key block")

// KeySet is a raw RSA key. Readers apply the public exponent, the way the
// games unwrap their tables; writers need the private exponent.
type KeySet struct {
	N *big.Int
	E *big.Int
	D *big.Int
}

// NewKeySet derives a key from two primes and a public exponent.
func NewKeySet(p, q *big.Int, e int64) (*KeySet, error) {
	n := new(big.Int).Mul(p, q)
	if (n.BitLen()+7)/8 != CipherBlockSize {
		return nil, fmt.Errorf("crypto: modulus is %d bits, want a %d-byte block", n.BitLen(), CipherBlockSize)
	}
	one := big.NewInt(1)
	phi := new(big.Int).Mul(new(big.Int).Sub(p, one), new(big.Int).Sub(q, one))
	E := big.NewInt(e)
	d := new(big.Int).ModInverse(E, phi)
	if d == nil {
		return nil, fmt.Errorf("crypto: exponent %d is not invertible", e)
	}
	return &KeySet{N: n, E: E, D: d}, nil
}

// BlockCount returns how many cipher blocks hold n plaintext bytes.
func BlockCount(n int) int {
	return (n + PlainBlockSize - 1) / PlainBlockSize
}

// BlockReader decodes primitives from a stream of cipher blocks. Every call
// consumes whole blocks; a value shorter than a block still takes one.
type BlockReader struct {
	r   io.Reader
	key *KeySet
	in  [CipherBlockSize]byte
	m   big.Int
}

// NewBlockReader returns a reader that unwraps blocks with key's public exponent.
func NewBlockReader(r io.Reader, key *KeySet) *BlockReader {
	return &BlockReader{r: r, key: key}
}

// ReadBytes reads n plaintext bytes.
func (br *BlockReader) ReadBytes(n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for n > 0 {
		want := min(n, PlainBlockSize)
		chunk, err := br.readBlock(want)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		n -= want
	}
	return out, nil
}

func (br *BlockReader) readBlock(want int) ([]byte, error) {
	if _, err := io.ReadFull(br.r, br.in[:]); err != nil {
		return nil, err
	}
	br.m.SetBytes(br.in[:])
	br.m.Exp(&br.m, br.key.E, br.key.N)
	var padded [CipherBlockSize]byte
	br.m.FillBytes(padded[:])
	data, err := unpadBlock(padded[:])
	if err != nil {
		return nil, err
	}
	if len(data) != want {
		return nil, fmt.Errorf("%w: carries %d bytes, want %d", ErrBadBlock, len(data), want)
	}
	return data, nil
}

// Uint8 reads one byte.
func (br *BlockReader) Uint8() (uint8, error) {
	b, err := br.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 reads a little-endian 16-bit value.
func (br *BlockReader) Uint16() (uint16, error) {
	b, err := br.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Uint32 reads a little-endian 32-bit value.
func (br *BlockReader) Uint32() (uint32, error) {
	b, err := br.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Uint64 reads a little-endian 64-bit value.
func (br *BlockReader) Uint64() (uint64, error) {
	b, err := br.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// BlockWriter is the inverse of BlockReader.
type BlockWriter struct {
	w   io.Writer
	key *KeySet
	m   big.Int
	out [CipherBlockSize]byte
}

// NewBlockWriter returns a writer that wraps blocks with key's private exponent.
func NewBlockWriter(w io.Writer, key *KeySet) *BlockWriter {
	return &BlockWriter{w: w, key: key}
}

// WriteBytes writes p as ceil(len(p)/32) blocks.
func (bw *BlockWriter) WriteBytes(p []byte) error {
	if bw.key.D == nil {
		return errors.New("crypto: key set has no private exponent")
	}
	for len(p) > 0 {
		n := min(len(p), PlainBlockSize)
		if err := bw.writeBlock(p[:n]); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (bw *BlockWriter) writeBlock(data []byte) error {
	padded := padBlock(data)
	bw.m.SetBytes(padded[:])
	bw.m.Exp(&bw.m, bw.key.D, bw.key.N)
	bw.m.FillBytes(bw.out[:])
	_, err := bw.w.Write(bw.out[:])
	return err
}

// Uint8 writes one byte.
func (bw *BlockWriter) Uint8(v uint8) error {
	return bw.WriteBytes([]byte{v})
}

// Uint16 writes a little-endian 16-bit value.
func (bw *BlockWriter) Uint16(v uint16) error {
	return bw.WriteBytes(binary.LittleEndian.AppendUint16(nil, v))
}

// Uint32 writes a little-endian 32-bit value.
func (bw *BlockWriter) Uint32(v uint32) error {
	return bw.WriteBytes(binary.LittleEndian.AppendUint32(nil, v))
}

// Uint64 writes a little-endian 64-bit value.
func (bw *BlockWriter) Uint64(v uint64) error {
	return bw.WriteBytes(binary.LittleEndian.AppendUint64(nil, v))
}

// padBlock applies PKCS#1 v1.5 type 1 padding: 00 01 FF.. 00 data.
func padBlock(data []byte) [CipherBlockSize]byte {
	var out [CipherBlockSize]byte
	out[1] = 0x01
	sep := CipherBlockSize - len(data) - 1
	for i := 2; i < sep; i++ {
		out[i] = 0xff
	}
	copy(out[sep+1:], data)
	return out
}

func unpadBlock(block []byte) ([]byte, error) {
	if block[0] != 0x00 || block[1] != 0x01 {
		return nil, fmt.Errorf("%w: bad padding header", ErrBadBlock)
	}
	i := 2
	for i < len(block) && block[i] == 0xff {
		i++
	}
	if i == len(block) || block[i] != 0x00 || i < 10 {
		return nil, fmt.Errorf("%w: bad padding", ErrBadBlock)
	}
	return block[i+1:], nil
}
