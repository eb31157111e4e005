package dat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math/big"
	"math/rand/v2"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blurfx/thdat/internal/archive"
	"github.com/blurfx/thdat/internal/crypto"
)

const (
	tfpkMagic     = "TFPK"
	tfpkPrefix    = len(tfpkMagic) + 1
	tfpkRowFields = 4 // size, offset, hash, key
	tfpkKeySeed   = 0x5446504b
)

// tfpkKeySet is the block key shared by every TFPK archive this package
// writes: p is 2^256-2^32-977, q is 2^255-19.
var tfpkKeySet = sync.OnceValues(func() (*crypto.KeySet, error) {
	p, _ := new(big.Int).SetString("fffffffffffffffffffffffffffffffffffffffffffffffffffffffefffffc2f", 16)
	q := new(big.Int).Lsh(big.NewInt(1), 255)
	q.Sub(q, big.NewInt(19))
	return crypto.NewKeySet(p, q, 65537)
})

func tfpkVersion(f Format) byte {
	if f == TFPK1 {
		return 1
	}
	return 0
}

// tfpkHeaderSize is the size of the magic plus the block stream: three
// header words, the name blob and four blocks per entry.
func tfpkHeaderSize(blobStored, count int) int64 {
	blocks := 3 + crypto.BlockCount(blobStored) + tfpkRowFields*count
	return int64(tfpkPrefix) + int64(blocks)*crypto.CipherBlockSize
}

// tfpkHash hashes a name the way the tables index it: FNV-1a over the
// lower-cased Shift-JIS bytes with '\' separators. Placeholder names carry
// their hash.
func tfpkHash(name string) (uint32, []byte, error) {
	if h, ok := archive.ParsePlaceholder(name); ok {
		return h, nil, nil
	}
	raw, err := archive.EncodeName(strings.ReplaceAll(name, "/", "\\"))
	if err != nil {
		return 0, nil, err
	}
	lower, err := archive.EncodeName(strings.ToLower(strings.ReplaceAll(name, "/", "\\")))
	if err != nil {
		return 0, nil, err
	}
	h := fnv.New32a()
	h.Write(lower)
	return h.Sum32(), raw, nil
}

// tfpkKey derives the per-entry payload key from the name hash.
func tfpkKey(hash uint32) [4]uint32 {
	rng := rand.New(rand.NewPCG(uint64(hash), tfpkKeySeed))
	var key [4]uint32
	for i := range key {
		key[i] = rng.Uint32()
	}
	return key
}

func tfpkPrepare(s *Session) (int64, error) {
	raws := make([][]byte, len(s.entries))
	g := new(errgroup.Group)
	g.SetLimit(s.conc)
	for i := range s.entries {
		g.Go(func() error {
			h, raw, err := tfpkHash(s.entries[i].Name)
			if err != nil {
				return err
			}
			s.entries[i].Hash = h
			s.entries[i].Key = tfpkKey(h)
			raws[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	seen := make(map[uint32]string, len(s.entries))
	total := 0
	for i, e := range s.entries {
		if prev, dup := seen[e.Hash]; dup {
			return 0, fmt.Errorf("%w: %q and %q share hash %08x", archive.ErrInvalidArgument, prev, e.Name, e.Hash)
		}
		seen[e.Hash] = e.Name
		if raws[i] != nil {
			total += len(raws[i]) + 1
		}
	}
	blob := make([]byte, 0, total)
	for _, raw := range raws {
		if raw != nil {
			blob = append(blob, raw...)
			blob = append(blob, 0)
		}
	}

	s.blobLen = len(blob)
	s.blob = blob
	if s.format == TFPK1 {
		c, err := s.format.tableCodec()
		if err != nil {
			return 0, err
		}
		var z bytes.Buffer
		if _, err := c.Compress(bytes.NewReader(blob), int64(len(blob)), &z); err != nil {
			return 0, err
		}
		s.blob = z.Bytes()
	}

	s.base = tfpkHeaderSize(len(s.blob), len(s.entries))
	return s.base, nil
}

func tfpkEncode(f Format, e archive.Entry, data []byte, out *bytes.Buffer) error {
	out.Write(data)
	if f == TFPK1 {
		crypto.FeedbackEncrypt(out.Bytes(), e.Key)
	} else {
		crypto.XORKey(out.Bytes(), e.Key)
	}
	return nil
}

func tfpkReadTable(s *Session) error {
	if s.size < int64(tfpkPrefix) {
		return fmt.Errorf("%w: file too small", archive.ErrBadSignature)
	}
	hdr, err := readFull(s, 0, int64(tfpkPrefix))
	if err != nil {
		return err
	}
	if string(hdr[:len(tfpkMagic)]) != tfpkMagic {
		return archive.ErrBadSignature
	}
	if hdr[len(tfpkMagic)] != tfpkVersion(s.format) {
		return fmt.Errorf("%w: version %d", archive.ErrBadSignature, hdr[len(tfpkMagic)])
	}

	key, err := tfpkKeySet()
	if err != nil {
		return err
	}
	br := crypto.NewBlockReader(s.r, key)
	count, blobStored, blobLen, err := tfpkReadCounts(br)
	if err != nil {
		return err
	}
	if int64(blobStored) > s.size || tfpkHeaderSize(int(blobStored), int(count)) > s.size {
		return fmt.Errorf("%w: table of %d entries does not fit", archive.ErrInvalidData, count)
	}
	blob, err := br.ReadBytes(int(blobStored))
	if err != nil {
		return fmt.Errorf("%w: %v", archive.ErrInvalidData, err)
	}
	if s.format == TFPK1 {
		c, err := s.format.tableCodec()
		if err != nil {
			return err
		}
		var names bytes.Buffer
		if err := c.Decompress(bytes.NewReader(blob), &names, int64(blobLen)); err != nil {
			return err
		}
		blob = names.Bytes()
	} else if blobStored != blobLen {
		return fmt.Errorf("%w: raw name list of %d bytes, header says %d", archive.ErrInvalidData, blobStored, blobLen)
	}

	names := make(map[uint32]string)
	for raw := range bytes.SplitSeq(blob, []byte{0}) {
		if len(raw) == 0 {
			continue
		}
		name := archive.DecodeName(raw)
		h, _, err := tfpkHash(name)
		if err != nil {
			continue
		}
		names[h] = name
	}

	entries := make([]archive.Entry, 0, count)
	for range count {
		e, err := tfpkReadEntry(br)
		if err != nil {
			return fmt.Errorf("%w: %v", archive.ErrInvalidData, err)
		}
		if name, ok := names[e.Hash]; ok {
			e.Name = name
		} else {
			e.Name = archive.PlaceholderName(e.Hash)
		}
		entries = append(entries, e)
	}

	s.entries = entries
	s.base = tfpkHeaderSize(int(blobStored), int(count))
	return nil
}

// tfpkReadEntry reads one table row: size, offset and hash in a block each,
// then the 16-byte key.
func tfpkReadEntry(br *crypto.BlockReader) (archive.Entry, error) {
	var fields [3]uint32
	for i := range fields {
		v, err := br.Uint32()
		if err != nil {
			return archive.Entry{}, err
		}
		fields[i] = v
	}
	raw, err := br.ReadBytes(16)
	if err != nil {
		return archive.Entry{}, err
	}
	e := archive.Entry{
		Size:       int64(fields[0]),
		Offset:     int64(fields[1]),
		StoredSize: int64(fields[0]),
		Hash:       fields[2],
	}
	for i := range e.Key {
		e.Key[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return e, nil
}

func tfpkReadCounts(br *crypto.BlockReader) (count, blobStored, blobLen uint32, err error) {
	for _, v := range []*uint32{&count, &blobStored, &blobLen} {
		if *v, err = br.Uint32(); err != nil {
			return 0, 0, 0, fmt.Errorf("%w: %v", archive.ErrInvalidData, err)
		}
	}
	return count, blobStored, blobLen, nil
}

func tfpkWriteTable(s *Session) error {
	key, err := tfpkKeySet()
	if err != nil {
		return err
	}

	buf := archive.GetBuffer()
	defer archive.PutBuffer(buf)
	buf.WriteString(tfpkMagic)
	buf.WriteByte(tfpkVersion(s.format))

	bw := crypto.NewBlockWriter(buf, key)
	put := func(v uint32) {
		if err == nil {
			err = bw.Uint32(v)
		}
	}
	put(uint32(len(s.entries)))
	put(uint32(len(s.blob)))
	put(uint32(s.blobLen))
	if err == nil {
		err = bw.WriteBytes(s.blob)
	}
	for _, e := range s.entries {
		put(uint32(e.Size))
		put(uint32(e.Offset))
		put(e.Hash)
		if err == nil {
			var k [16]byte
			for i, w := range e.Key {
				binary.LittleEndian.PutUint32(k[4*i:], w)
			}
			err = bw.WriteBytes(k[:])
		}
	}
	if err != nil {
		return err
	}
	if int64(buf.Len()) != s.base {
		return fmt.Errorf("%w: header is %d bytes, reserved %d", archive.ErrInvalidState, buf.Len(), s.base)
	}
	return writeAt(s, 0, buf.Bytes())
}
