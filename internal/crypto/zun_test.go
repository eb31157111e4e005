package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func testPattern(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*7 + 3)
	}
	return out
}

func TestZunRoundTrip(t *testing.T) {
	params := []ZunParams{
		{Key: 0x1b, Step: 0x37, Block: 0x40, Limit: 0x2800},
		{Key: 0x51, Step: 0xe9, Block: 0x40, Limit: 0x3000},
		{Key: 0x03, Step: 0x19, Block: 0x400, Limit: 0x7800},
		{Key: 0x99, Step: 0x37, Block: 0x400, Limit: 0x2000},
		{Key: 0x3e, Step: 0x9b, Block: 0x80, Limit: 0x80},
		{Key: 0x1b, Step: 0x37, Block: 0x10, Limit: 0x10},
		{Key: 0x7f, Step: 0x01, Block: 7, Limit: 100},
	}
	for _, p := range params {
		for n := 0; n <= 4*p.Block+p.Block/2+3; n += max(1, p.Block/16) {
			plain := testPattern(n)
			buf := append([]byte(nil), plain...)
			ZunEncrypt(buf, p)
			ZunDecrypt(buf, p)
			require.Equal(t, plain, buf, "params %+v len %d", p, n)
		}
	}
}

func TestZunDecryptInterleave(t *testing.T) {
	// with a zero step and key the transform is a pure permutation:
	// the first half of the block lands on odd positions from the end.
	p := ZunParams{Key: 0, Step: 0, Block: 4, Limit: 4}
	buf := []byte{'a', 'b', 'c', 'd'}
	ZunDecrypt(buf, p)
	require.Equal(t, []byte{'d', 'b', 'c', 'a'}, buf)

	ZunEncrypt(buf, p)
	require.Equal(t, []byte{'a', 'b', 'c', 'd'}, buf)
}

func TestZunKeySchedule(t *testing.T) {
	p := ZunParams{Key: 0x10, Step: 0x01, Block: 4, Limit: 8}
	buf := make([]byte, 8)
	ZunDecrypt(buf, p)
	// block 0 keys 0x10..0x13, block 1 keys 0x14..0x17
	require.Equal(t, []byte{0x13, 0x11, 0x12, 0x10, 0x17, 0x15, 0x16, 0x14}, buf)
}

func TestZunLeavesShortAndTrailingBytes(t *testing.T) {
	p := ZunParams{Key: 0x1b, Step: 0x37, Block: 0x40, Limit: 0x2800}

	short := testPattern(0x40/4 - 2)
	buf := append([]byte(nil), short...)
	ZunEncrypt(buf, p)
	require.Equal(t, short, buf, "buffer under a quarter block must be untouched")

	odd := testPattern(0x81)
	buf = append([]byte(nil), odd...)
	ZunEncrypt(buf, p)
	require.Equal(t, odd[0x80], buf[0x80], "odd trailing byte must be untouched")
	require.False(t, bytes.Equal(odd[:0x80], buf[:0x80]))
}

func TestZunLimitRoundsToBlock(t *testing.T) {
	p := ZunParams{Key: 0x35, Step: 0x97, Block: 0x80, Limit: 0x81}
	plain := testPattern(0x400)
	buf := append([]byte(nil), plain...)
	ZunEncrypt(buf, p)
	// a limit one byte past a block still covers the whole second block
	require.False(t, bytes.Equal(plain[0x80:0x100], buf[0x80:0x100]))
	require.Equal(t, plain[0x100:], buf[0x100:])
}
