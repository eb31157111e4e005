package dat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/blurfx/thdat/internal/archive"
	"github.com/blurfx/thdat/internal/crypto"
)

const t105HeaderSize = 6

const (
	t105Key   = 0xc5
	t105Step1 = 0x83
	t105Step2 = 0x53
)

// t105PayloadKey is the byte every payload byte is XORed with.
func t105PayloadKey(off int64) byte {
	return byte(off>>1) | 0x23
}

func t105Prepare(s *Session) (int64, error) {
	if len(s.entries) > math.MaxUint16 {
		return 0, fmt.Errorf("%w: %d entries, at most %d", archive.ErrCapacityExceeded, len(s.entries), math.MaxUint16)
	}
	size := int64(t105HeaderSize)
	for _, e := range s.entries {
		raw, err := archive.EncodeName(e.Name)
		if err != nil {
			return 0, err
		}
		size += 9 + int64(len(raw))
	}
	return size, nil
}

func t105Encode(data []byte, off int64, out *bytes.Buffer) error {
	out.Write(data)
	return crypto.ByteXOR(t105PayloadKey(off)).Decrypt(out.Bytes())
}

func t105ReadTable(s *Session) error {
	if s.size < t105HeaderSize {
		return fmt.Errorf("%w: file too small", archive.ErrInvalidData)
	}
	hdr, err := readFull(s, 0, t105HeaderSize)
	if err != nil {
		return err
	}
	hr := &reader{buf: hdr}
	count, _ := hr.u16()
	tableSize, _ := hr.u32()
	table, err := readFull(s, t105HeaderSize, int64(tableSize))
	if err != nil {
		return err
	}
	crypto.ScheduleXOR(table, t105Key, t105Step1, t105Step2)

	tr := &reader{buf: table}
	entries := make([]archive.Entry, 0, count)
	for range count {
		off, err := tr.u32()
		if err != nil {
			return err
		}
		size, err := tr.u32()
		if err != nil {
			return err
		}
		n, err := tr.u8()
		if err != nil {
			return err
		}
		raw, err := tr.bytes(int(n))
		if err != nil {
			return err
		}
		e := archive.NewEntry(archive.DecodeName(raw))
		e.Offset = int64(off)
		e.Size = int64(size)
		e.StoredSize = int64(size)
		entries = append(entries, e)
	}
	if tr.remaining() != 0 {
		return fmt.Errorf("%w: %d trailing table bytes", archive.ErrInvalidData, tr.remaining())
	}
	s.entries = entries
	return nil
}

func t105WriteTable(s *Session) error {
	tw := writer{buf: make([]byte, 0, s.header)}
	tw.u16(uint16(len(s.entries)))
	tw.u32(0)
	for _, e := range s.entries {
		raw, err := archive.EncodeName(e.Name)
		if err != nil {
			return err
		}
		tw.u32(uint32(e.Offset))
		tw.u32(uint32(e.Size))
		tw.u8(byte(len(raw)))
		tw.bytes(raw)
	}
	if int64(len(tw.buf)) != s.header {
		return fmt.Errorf("%w: table is %d bytes, reserved %d", archive.ErrInvalidState, len(tw.buf), s.header)
	}
	table := tw.buf[t105HeaderSize:]
	binary.LittleEndian.PutUint32(tw.buf[2:], uint32(len(table)))
	crypto.ScheduleXOR(table, t105Key, t105Step1, t105Step2)
	return writeAt(s, 0, tw.buf)
}
