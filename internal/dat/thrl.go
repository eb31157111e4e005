package dat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/blurfx/thdat/internal/archive"
	"github.com/blurfx/thdat/internal/crypto"
	"github.com/blurfx/thdat/internal/rle"
)

const (
	thrlMagic      = 0x4c524854 // "THRL"
	thrlHeaderSize = 20
	thrlNameSize   = 13
	thrlRowSize    = thrlNameSize + 12
)

// thrlKeys selects the payload cipher by lower-cased extension. Anything
// else falls back to thrlDefaultKey.
var thrlKeys = map[string]crypto.ZunParams{
	"msg": {Key: 0x1b, Step: 0x37, Block: 0x40, Limit: 0x2800},
	"txt": {Key: 0x51, Step: 0xe9, Block: 0x40, Limit: 0x3000},
	"anm": {Key: 0xc1, Step: 0x51, Block: 0x1400, Limit: 0x2000},
	"jpg": {Key: 0x03, Step: 0x19, Block: 0x1400, Limit: 0x7800},
	"ecl": {Key: 0xab, Step: 0xcd, Block: 0x200, Limit: 0x1000},
	"wav": {Key: 0x12, Step: 0x34, Block: 0x400, Limit: 0x2800},
	"sht": {Key: 0x99, Step: 0x37, Block: 0x400, Limit: 0x1000},
}

var thrlDefaultKey = crypto.ZunParams{Key: 0x35, Step: 0x97, Block: 0x80, Limit: 0x2800}

func thrlKey(e archive.Entry) crypto.ZunParams {
	if p, ok := thrlKeys[e.Ext()]; ok {
		return p
	}
	return thrlDefaultKey
}

func thrlPrepare(*Session) (int64, error) {
	return thrlHeaderSize, nil
}

// thrlEncode run-length encodes data, then obfuscates the result.
func thrlEncode(e archive.Entry, data []byte, out *bytes.Buffer) error {
	out.Write(rle.Compress(data))
	crypto.ZunEncrypt(out.Bytes(), thrlKey(e))
	return nil
}

func thrlDecode(e archive.Entry, r io.Reader) ([]byte, error) {
	buf := archive.GetBuffer()
	defer archive.PutBuffer(buf)

	stored := archive.Grow(buf, int(e.StoredSize))
	if _, err := io.ReadFull(r, stored); err != nil {
		return nil, fmt.Errorf("%w: %v", archive.ErrInvalidData, err)
	}
	crypto.ZunDecrypt(stored, thrlKey(e))
	if n := rle.DecompressedSize(stored); int64(n) != e.Size {
		return nil, fmt.Errorf("%w: run-length data expands to %d bytes, want %d", archive.ErrInvalidData, n, e.Size)
	}
	return rle.Decompress(stored), nil
}

func thrlReadTable(s *Session) error {
	if s.size < thrlHeaderSize {
		return fmt.Errorf("%w: file too small", archive.ErrBadSignature)
	}
	hdr, err := readFull(s, 0, thrlHeaderSize)
	if err != nil {
		return err
	}
	hr := &reader{buf: hdr}
	magic, _ := hr.u32()
	if magic != thrlMagic {
		return archive.ErrBadSignature
	}
	count, _ := hr.u32()
	tableOff, _ := hr.u32()
	tableStored, _ := hr.u32()
	tableLen, _ := hr.u32()

	if uint64(tableLen) != uint64(count)*thrlRowSize {
		return fmt.Errorf("%w: table of %d bytes for %d entries", archive.ErrInvalidData, tableLen, count)
	}
	if tableOff < thrlHeaderSize {
		return fmt.Errorf("%w: table offset %d inside header", archive.ErrInvalidData, tableOff)
	}
	ztable, err := readFull(s, int64(tableOff), int64(tableStored))
	if err != nil {
		return err
	}
	crypto.CongruentialXOR(ztable, tableOff)
	c, err := s.format.tableCodec()
	if err != nil {
		return err
	}
	var table bytes.Buffer
	if err := c.Decompress(bytes.NewReader(ztable), &table, int64(tableLen)); err != nil {
		return err
	}

	tr := &reader{buf: table.Bytes()}
	entries := make([]archive.Entry, 0, count)
	for range count {
		field, err := tr.bytes(thrlNameSize)
		if err != nil {
			return err
		}
		raw, _, _ := bytes.Cut(field, []byte{0})
		off, _ := tr.u32()
		size, _ := tr.u32()
		stored, _ := tr.u32()
		if int64(off)+int64(stored) > int64(tableOff) {
			return fmt.Errorf("%w: entry overlaps table", archive.ErrInvalidData)
		}
		e := archive.NewEntry(archive.DecodeName(raw))
		e.Offset = int64(off)
		e.Size = int64(size)
		e.StoredSize = int64(stored)
		entries = append(entries, e)
	}
	s.entries = entries
	return nil
}

func thrlWriteTable(s *Session) error {
	var tw writer
	for _, e := range s.entries {
		tw.fixed([]byte(e.Name), thrlNameSize)
		tw.u32(uint32(e.Offset))
		tw.u32(uint32(e.Size))
		tw.u32(uint32(e.StoredSize))
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
	crypto.CongruentialXOR(ztable, uint32(s.cursor))
	if err := writeAt(s, s.cursor, ztable); err != nil {
		return err
	}

	hdr := make([]byte, 0, thrlHeaderSize)
	hdr = binary.LittleEndian.AppendUint32(hdr, thrlMagic)
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(len(s.entries)))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(s.cursor))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(zsize))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(len(tw.buf)))
	return writeAt(s, 0, hdr)
}
