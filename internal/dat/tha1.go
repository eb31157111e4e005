package dat

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"github.com/blurfx/thdat/internal/archive"
	"github.com/blurfx/thdat/internal/codec"
	"github.com/blurfx/thdat/internal/crypto"
)

const (
	tha1Magic      = 0x31414854 // "THA1"
	tha1HeaderSize = 16
	tha1SizeBias   = 123456789
	tha1ZSizeBias  = 987654321
	tha1CountBias  = 135792468
	tha1NameAlign  = 4
)

var tha1HeaderKey = crypto.ZunParams{Key: 0x1b, Step: 0x37, Block: tha1HeaderSize, Limit: tha1HeaderSize}

// tha1Keys is indexed by the low three bits of the name byte sum.
var tha1Keys = [8]crypto.ZunParams{
	{Key: 0x1b, Step: 0x37, Block: 0x40, Limit: 0x2800},
	{Key: 0x51, Step: 0xe9, Block: 0x40, Limit: 0x3000},
	{Key: 0xc1, Step: 0x51, Block: 0x80, Limit: 0x3200},
	{Key: 0x03, Step: 0x19, Block: 0x400, Limit: 0x7800},
	{Key: 0xab, Step: 0xcd, Block: 0x200, Limit: 0x2800},
	{Key: 0x12, Step: 0x34, Block: 0x80, Limit: 0x3200},
	{Key: 0x35, Step: 0x97, Block: 0x80, Limit: 0x2800},
	{Key: 0x99, Step: 0x37, Block: 0x400, Limit: 0x2000},
}

func tha1TableKey(zsize int) crypto.ZunParams {
	return crypto.ZunParams{Key: 0x3e, Step: 0x9b, Block: 0x80, Limit: zsize}
}

func nameSum(raw []byte) uint32 {
	var sum uint32
	for _, c := range raw {
		sum += uint32(c)
	}
	return sum
}

func tha1Prepare(s *Session) (int64, error) {
	for i := range s.entries {
		raw, err := archive.EncodeName(s.entries[i].Name)
		if err != nil {
			return 0, err
		}
		s.entries[i].Hash = nameSum(raw)
	}
	return tha1HeaderSize, nil
}

// tha1Encode compresses data with LZMA unless that does not shrink it, in
// which case the entry is stored raw and its stored size equals its size.
func tha1Encode(e archive.Entry, data []byte, out *bytes.Buffer) error {
	if _, err := (codec.LZMA{}).Compress(bytes.NewReader(data), int64(len(data)), out); err != nil {
		return err
	}
	if out.Len() >= len(data) {
		out.Reset()
		out.Write(data)
	}
	crypto.ZunEncrypt(out.Bytes(), tha1Keys[e.Hash&7])
	return nil
}

func tha1Decode(e archive.Entry, r io.Reader) ([]byte, error) {
	buf := archive.GetBuffer()
	defer archive.PutBuffer(buf)

	stored := archive.Grow(buf, int(e.StoredSize))
	if _, err := io.ReadFull(r, stored); err != nil {
		return nil, fmt.Errorf("%w: %v", archive.ErrInvalidData, err)
	}
	crypto.ZunDecrypt(stored, tha1Keys[e.Hash&7])
	if e.StoredSize == e.Size {
		return bytes.Clone(stored), nil
	}

	out := bytes.NewBuffer(make([]byte, 0, e.Size))
	if err := (codec.LZMA{}).Decompress(bytes.NewReader(stored), out, e.Size); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func tha1ReadTable(s *Session) error {
	if s.size < tha1HeaderSize {
		return fmt.Errorf("%w: file too small", archive.ErrBadSignature)
	}
	hdr, err := readFull(s, 0, tha1HeaderSize)
	if err != nil {
		return err
	}
	crypto.ZunDecrypt(hdr, tha1HeaderKey)
	if binary.LittleEndian.Uint32(hdr[0:]) != tha1Magic {
		return archive.ErrBadSignature
	}
	tableSize := binary.LittleEndian.Uint32(hdr[4:]) - tha1SizeBias
	zsize := int64(binary.LittleEndian.Uint32(hdr[8:]) - tha1ZSizeBias)
	count := binary.LittleEndian.Uint32(hdr[12:]) + tha1CountBias

	if zsize > s.size-tha1HeaderSize {
		return fmt.Errorf("%w: table of %d bytes does not fit", archive.ErrInvalidData, zsize)
	}
	// a row holds at least a padded name and three words
	if uint64(count)*(tha1NameAlign+12) > uint64(tableSize) {
		return fmt.Errorf("%w: %d entries do not fit a %d byte table", archive.ErrInvalidData, count, tableSize)
	}
	tableOff := s.size - zsize
	ztable, err := readFull(s, tableOff, zsize)
	if err != nil {
		return err
	}
	crypto.ZunDecrypt(ztable, tha1TableKey(int(zsize)))
	c, err := s.format.tableCodec()
	if err != nil {
		return err
	}
	var table bytes.Buffer
	if err := c.Decompress(bytes.NewReader(ztable), &table, int64(tableSize)); err != nil {
		return err
	}

	tr := &reader{buf: table.Bytes()}
	entries := make([]archive.Entry, 0, count)
	for range count {
		raw, err := tr.cstring(tha1NameAlign)
		if err != nil {
			return err
		}
		off, err := tr.u32()
		if err != nil {
			return err
		}
		size, err := tr.u32()
		if err != nil {
			return err
		}
		if _, err := tr.u32(); err != nil {
			return err
		}
		if int64(off) < tha1HeaderSize || int64(off) > tableOff {
			return fmt.Errorf("%w: entry offset %d outside data region", archive.ErrInvalidData, off)
		}
		e := archive.NewEntry(archive.DecodeName(raw))
		e.Offset = int64(off)
		e.Size = int64(size)
		e.Hash = nameSum(raw)
		entries = append(entries, e)
	}

	// stored sizes are the gaps between consecutive offsets
	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(entries[a].Offset, entries[b].Offset)
	})
	for k, i := range order {
		end := tableOff
		if k+1 < len(order) {
			end = entries[order[k+1]].Offset
		}
		entries[i].StoredSize = end - entries[i].Offset
	}

	s.entries = entries
	return nil
}

func tha1WriteTable(s *Session) error {
	var tw writer
	for _, e := range s.entries {
		raw, err := archive.EncodeName(e.Name)
		if err != nil {
			return err
		}
		tw.cstring(raw, tha1NameAlign)
		tw.u32(uint32(e.Offset))
		tw.u32(uint32(e.Size))
		tw.u32(0)
	}

	c, err := s.format.tableCodec()
	if err != nil {
		return err
	}
	var z bytes.Buffer
	zsize, err := c.Compress(bytes.NewReader(tw.buf), int64(len(tw.buf)), &z)
	if err != nil {
		return err
	}
	if err := archive.CheckSize("archive size", s.cursor+zsize); err != nil {
		return err
	}
	ztable := z.Bytes()
	crypto.ZunEncrypt(ztable, tha1TableKey(len(ztable)))
	if err := writeAt(s, s.cursor, ztable); err != nil {
		return err
	}

	hdr := make([]byte, tha1HeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:], tha1Magic)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(tw.buf))+tha1SizeBias)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(zsize)+tha1ZSizeBias)
	binary.LittleEndian.PutUint32(hdr[12:], uint32(len(s.entries))-tha1CountBias)
	crypto.ZunEncrypt(hdr, tha1HeaderKey)
	return writeAt(s, 0, hdr)
}
