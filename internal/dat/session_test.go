package dat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blurfx/thdat/internal/archive"
	"github.com/blurfx/thdat/internal/crypto"
	"github.com/blurfx/thdat/internal/testutil"
)

// build packs payloads in order and returns a fresh reader over the result.
func build(t *testing.T, f Format, names []string, payloads [][]byte) *testutil.File {
	t.Helper()
	out := testutil.NewFile(nil)
	s, err := Create(f, out, names)
	require.NoError(t, err)
	for i, p := range payloads {
		require.NoError(t, s.Pack(i, p))
	}
	require.NoError(t, s.Commit())
	require.NoError(t, s.Close())
	require.True(t, out.Closed())
	return testutil.NewFile(out.Bytes())
}

func openArchive(t *testing.T, f Format, file io.ReadSeeker, ro archive.ReadOptions, filters ...string) *Session {
	t.Helper()
	s, err := Read(f, file, ro, filters)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRoundTrip(t *testing.T) {
	a := []byte("0123456789")
	b := []byte("abcde")
	tests := []struct {
		format Format
		first  int64
	}{
		{THA1, tha1HeaderSize},
		{THRL, thrlHeaderSize},
		{T105, t105HeaderSize + 9 + 5 + 9 + 5},
		{TFPK0, 0},
		{TFPK1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			file := build(t, tt.format, []string{"A.TXT", "B.DAT"}, [][]byte{a, b})
			s := openArchive(t, tt.format, file, archive.ReadOptions{})

			entries := s.Entries()
			require.Len(t, entries, 2)
			require.Equal(t, "A.TXT", entries[0].Name)
			require.Equal(t, int64(10), entries[0].Size)
			require.Equal(t, tt.first, entries[0].Offset)
			require.Equal(t, "B.DAT", entries[1].Name)
			require.Equal(t, int64(5), entries[1].Size)
			require.Equal(t, entries[0].Offset+entries[0].StoredSize, entries[1].Offset)

			got, err := s.Extract(0)
			require.NoError(t, err)
			require.Equal(t, a, got)
			got, err = s.Extract(1)
			require.NoError(t, err)
			require.Equal(t, b, got)
		})
	}
}

func TestRoundTripReordered(t *testing.T) {
	names := []string{"C.BIN", "D.BIN", "E.BIN"}
	payloads := [][]byte{
		bytes.Repeat([]byte("hakurei shrine "), 4096),
		bytes.Repeat([]byte{0}, 3000),
		[]byte("x"),
	}
	for _, f := range Formats() {
		t.Run(f.String(), func(t *testing.T) {
			out := testutil.NewFile(nil)
			s, err := Create(f, out, names)
			require.NoError(t, err)
			for i := len(names) - 1; i >= 0; i-- {
				require.NoError(t, s.Pack(i, payloads[i]))
			}
			require.NoError(t, s.Commit())

			// the table follows stream order, not creation order
			entries := s.Entries()
			require.Equal(t, "E.BIN", entries[0].Name)
			require.Equal(t, "C.BIN", entries[2].Name)
			for i := 1; i < len(entries); i++ {
				require.Less(t, entries[i-1].Offset, entries[i].Offset)
			}

			r := openArchive(t, f, testutil.NewFile(out.Bytes()), archive.ReadOptions{})
			require.Equal(t, 3, r.Len())
			for i := range r.Len() {
				e, err := r.Entry(i)
				require.NoError(t, err)
				data, err := r.Extract(i)
				require.NoError(t, err)
				want := payloads[slicesIndex(names, e.Name)]
				require.Equal(t, want, data, e.Name)
			}
		})
	}
}

func slicesIndex(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func TestTHA1Compression(t *testing.T) {
	text := bytes.Repeat([]byte("border of wave and particle "), 1024)
	file := build(t, THA1, []string{"big.txt", "tiny.txt"}, [][]byte{text, []byte("ab")})
	s := openArchive(t, THA1, file, archive.ReadOptions{})

	big, err := s.Entry(0)
	require.NoError(t, err)
	require.Less(t, big.StoredSize, big.Size)

	tiny, err := s.Entry(1)
	require.NoError(t, err)
	require.Equal(t, tiny.Size, tiny.StoredSize)

	got, err := s.Extract(0)
	require.NoError(t, err)
	require.Equal(t, text, got)
}

func TestTHA1Header(t *testing.T) {
	file := build(t, THA1, []string{"a.txt"}, [][]byte{[]byte("hello")})
	hdr := bytes.Clone(file.Bytes()[:tha1HeaderSize])
	crypto.ZunDecrypt(hdr, tha1HeaderKey)
	require.Equal(t, []byte("THA1"), hdr[:4])
	require.Equal(t, uint32(1), le32(hdr[12:])+tha1CountBias)
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func TestT105PayloadKey(t *testing.T) {
	data := []byte("sakuya")
	file := build(t, T105, []string{"a.txt"}, [][]byte{data})
	off := int64(t105HeaderSize + 9 + 5)
	raw := file.Bytes()
	for i, c := range data {
		require.Equal(t, c^t105PayloadKey(off), raw[off+int64(i)])
	}
	require.Equal(t, byte(0x23|byte(off>>1)), t105PayloadKey(off))
}

func TestShiftJISNames(t *testing.T) {
	// ﾃｱ is stored as 0xC3 0xB1, which is also valid UTF-8
	names := []string{"音楽/曲.wav", "data/スクリプト.txt", "ﾃｱ.txt"}
	payloads := [][]byte{[]byte("bgm"), []byte("script"), []byte("kana")}
	for _, f := range []Format{THA1, T105, TFPK0, TFPK1} {
		t.Run(f.String(), func(t *testing.T) {
			s := openArchive(t, f, build(t, f, names, payloads), archive.ReadOptions{})
			for i := range s.Len() {
				e, err := s.Entry(i)
				require.NoError(t, err)
				require.Equal(t, names[i], e.Name)
				data, err := s.Extract(i)
				require.NoError(t, err)
				require.Equal(t, payloads[i], data)
			}
		})
	}
}

func TestTHRLExtensionKeys(t *testing.T) {
	require.Equal(t, thrlKeys["msg"], thrlKey(archive.NewEntry("STAGE1.MSG")))
	require.Equal(t, thrlKeys["wav"], thrlKey(archive.NewEntry("se.wav")))
	require.Equal(t, thrlDefaultKey, thrlKey(archive.NewEntry("A.BIN")))
	require.Equal(t, thrlDefaultKey, thrlKey(archive.NewEntry("README")))

	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i * 7)
	}
	names := []string{"A.MSG", "B.WAV", "C.BIN"}
	file := build(t, THRL, names, [][]byte{data, data, data})
	s := openArchive(t, THRL, file, archive.ReadOptions{})

	// one plaintext, three ciphertexts
	stored := map[string][]byte{}
	for i := range s.Len() {
		e, err := s.Entry(i)
		require.NoError(t, err)
		stored[e.Name] = file.Bytes()[e.Offset : e.Offset+e.StoredSize]
		got, err := s.Extract(i)
		require.NoError(t, err)
		require.Equal(t, data, got, e.Name)
	}
	require.NotEqual(t, stored["A.MSG"], stored["B.WAV"])
	require.NotEqual(t, stored["B.WAV"], stored["C.BIN"])
	require.NotEqual(t, stored["A.MSG"], stored["C.BIN"])
}

func TestPayloadDecryptor(t *testing.T) {
	e := archive.Entry{Offset: 0x40, Key: [4]uint32{1, 2, 3, 4}}
	require.Equal(t, crypto.NopDecryptor{}, THA1.payloadDecryptor(e))
	require.Equal(t, crypto.NopDecryptor{}, THRL.payloadDecryptor(e))
	require.Equal(t, crypto.ByteXOR(t105PayloadKey(e.Offset)), T105.payloadDecryptor(e))
	require.IsType(t, &crypto.KeyDecryptor{}, TFPK0.payloadDecryptor(e))
	require.IsType(t, &crypto.FeedbackDecryptor{}, TFPK1.payloadDecryptor(e))
}

var errTail = errors.New("read past table")

// tailless fails every read beyond limit.
type tailless struct {
	*testutil.File
	limit int64
	pos   int64
}

func (f *tailless) Seek(offset int64, whence int) (int64, error) {
	pos, err := f.File.Seek(offset, whence)
	f.pos = pos
	return pos, err
}

func (f *tailless) Read(p []byte) (int, error) {
	if f.pos >= f.limit {
		return 0, errTail
	}
	n, err := f.File.Read(p)
	f.pos += int64(n)
	return n, err
}

func (f *tailless) ReadAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > f.limit {
		return 0, errTail
	}
	return f.File.ReadAt(p, off)
}

func TestExtractZeroSize(t *testing.T) {
	name := []byte("empty.txt")
	// the entry points at end of file, right after the table
	end := uint32(t105HeaderSize + 9 + len(name))
	var tw writer
	tw.u32(end)
	tw.u32(0)
	tw.u8(byte(len(name)))
	tw.bytes(name)
	table := tw.buf
	crypto.ScheduleXOR(table, t105Key, t105Step1, t105Step2)

	hw := writer{}
	hw.u16(1)
	hw.u32(uint32(len(table)))
	hw.bytes(table)

	for _, tt := range []struct {
		name string
		r    io.ReadSeeker
	}{
		{"reader at", &tailless{File: testutil.NewFile(hw.buf), limit: int64(end)}},
		{"seek only", seekOnly{&tailless{File: testutil.NewFile(hw.buf), limit: int64(end)}}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			s := openArchive(t, T105, tt.r, archive.ReadOptions{})
			e, err := s.Entry(0)
			require.NoError(t, err)
			require.Equal(t, "empty.txt", e.Name)
			require.Equal(t, int64(0), e.Size)
			require.Equal(t, int64(end), e.Offset)

			data, err := s.Extract(0)
			require.NoError(t, err)
			require.NotNil(t, data)
			require.Empty(t, data)
		})
	}
}

func TestReadBadSignature(t *testing.T) {
	tests := []struct {
		format  Format
		corrupt func([]byte)
	}{
		{THA1, func(b []byte) {
			crypto.ZunDecrypt(b[:tha1HeaderSize], tha1HeaderKey)
			b[0] ^= 0xff
			crypto.ZunEncrypt(b[:tha1HeaderSize], tha1HeaderKey)
		}},
		{THRL, func(b []byte) { b[0] = 'X' }},
		{TFPK0, func(b []byte) { b[0] = 'X' }},
		{TFPK1, func(b []byte) { b[4] = 7 }},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			raw := build(t, tt.format, []string{"A.TXT"}, [][]byte{[]byte("data")}).Bytes()
			tt.corrupt(raw)
			s, err := Read(tt.format, testutil.NewFile(raw), archive.ReadOptions{}, nil)
			require.Nil(t, s)
			require.ErrorIs(t, err, archive.ErrInvalidData)
			require.ErrorIs(t, err, archive.ErrBadSignature)
		})
	}
}

func TestReadWrongVersion(t *testing.T) {
	raw := build(t, TFPK1, []string{"a.txt"}, [][]byte{[]byte("data")}).Bytes()
	_, err := Read(TFPK0, testutil.NewFile(raw), archive.ReadOptions{}, nil)
	require.ErrorIs(t, err, archive.ErrBadSignature)
}

func TestReadTruncated(t *testing.T) {
	for _, f := range Formats() {
		t.Run(f.String(), func(t *testing.T) {
			raw := build(t, f, []string{"A.TXT", "B.TXT"}, [][]byte{[]byte("first"), []byte("second")}).Bytes()
			_, err := Read(f, testutil.NewFile(raw[:len(raw)-3]), archive.ReadOptions{}, nil)
			require.ErrorIs(t, err, archive.ErrInvalidData)

			_, err = Read(f, testutil.NewFile(nil), archive.ReadOptions{}, nil)
			require.ErrorIs(t, err, archive.ErrInvalidData)
		})
	}
}

func TestT105CorruptTable(t *testing.T) {
	raw := build(t, T105, []string{"a.txt"}, [][]byte{[]byte("data")}).Bytes()
	// an entry count past the table
	raw[0] = 5
	_, err := Read(T105, testutil.NewFile(raw), archive.ReadOptions{}, nil)
	require.ErrorIs(t, err, archive.ErrInvalidData)
}

func TestModeErrors(t *testing.T) {
	w, err := Create(THA1, testutil.NewFile(nil), []string{"a.txt"})
	require.NoError(t, err)
	_, err = w.Extract(0)
	require.ErrorIs(t, err, archive.ErrInvalidState)
	require.ErrorIs(t, w.ExtractAll(context.Background(), nil), archive.ErrInvalidState)

	r := openArchive(t, THA1, build(t, THA1, []string{"a.txt"}, [][]byte{[]byte("data")}), archive.ReadOptions{})
	require.ErrorIs(t, r.Pack(0, []byte("x")), archive.ErrInvalidState)
	require.ErrorIs(t, r.Commit(), archive.ErrInvalidState)
	require.Equal(t, ModeExtract, r.Mode())
	require.Equal(t, THA1, r.Format())
}

func TestPackErrors(t *testing.T) {
	s, err := Create(THRL, testutil.NewFile(nil), []string{"A.TXT", "B.TXT"})
	require.NoError(t, err)

	require.ErrorIs(t, s.Pack(0, nil), archive.ErrInvalidArgument)
	require.ErrorIs(t, s.Pack(0, []byte{}), archive.ErrInvalidArgument)
	require.ErrorIs(t, s.Pack(2, []byte("x")), archive.ErrInvalidArgument)
	require.ErrorIs(t, s.Pack(-1, []byte("x")), archive.ErrInvalidArgument)

	// a rejected pack leaves the cursor where it was
	require.NoError(t, s.Pack(0, []byte("first")))
	e, err := s.Entry(0)
	require.NoError(t, err)
	require.Equal(t, int64(thrlHeaderSize), e.Offset)

	require.ErrorIs(t, s.Pack(0, []byte("again")), archive.ErrInvalidState)
	require.ErrorIs(t, s.Commit(), archive.ErrInvalidState)

	require.NoError(t, s.Pack(1, []byte("second")))
	require.NoError(t, s.Commit())
	require.ErrorIs(t, s.Commit(), archive.ErrInvalidState)
	require.ErrorIs(t, s.Pack(1, []byte("late")), archive.ErrInvalidState)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		w      io.WriteSeeker
		names  []string
	}{
		{"unknown format", Format(0), testutil.NewFile(nil), []string{"a"}},
		{"nil stream", THA1, nil, []string{"a"}},
		{"no names", THA1, testutil.NewFile(nil), nil},
		{"long short name", THRL, testutil.NewFile(nil), []string{"TOOLONGNAME.TXT"}},
		{"short name with dir", THRL, testutil.NewFile(nil), []string{"DIR/A.TXT"}},
		{"duplicate", T105, testutil.NewFile(nil), []string{"a.txt", "a.txt"}},
		{"not shift-jis", T105, testutil.NewFile(nil), []string{"emoji-😀.txt"}},
		{"empty name", THA1, testutil.NewFile(nil), []string{""}},
		{"hash collision", TFPK0, testutil.NewFile(nil), []string{"Data/A.txt", "data\\a.TXT"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Create(tt.format, tt.w, tt.names)
			require.Nil(t, s)
			require.ErrorIs(t, err, archive.ErrInvalidArgument)
		})
	}
}

func TestCloseIdempotent(t *testing.T) {
	file := testutil.NewFile(nil)
	s, err := Create(TFPK1, file, []string{"a.txt"})
	require.NoError(t, err)

	errs := make(chan error, 4)
	for range 4 {
		go func() { errs <- s.Close() }()
	}
	for range 4 {
		require.NoError(t, <-errs)
	}
	require.True(t, file.Closed())
	require.NoError(t, s.Close())

	require.Nil(t, s.Entries())
	require.ErrorIs(t, s.Pack(0, []byte("x")), archive.ErrInvalidState)
	require.ErrorIs(t, s.Commit(), archive.ErrInvalidState)
	_, err = s.Entry(0)
	require.ErrorIs(t, err, archive.ErrInvalidState)
}

func TestReadFilters(t *testing.T) {
	names := []string{"a.txt", "b.dat", "c.TXT"}
	payloads := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	file := build(t, THA1, names, payloads)

	s := openArchive(t, THA1, file, archive.ReadOptions{}, ".txt")
	require.Equal(t, 2, s.Len())
	for _, e := range s.Entries() {
		require.Equal(t, "txt", e.Ext())
	}

	s = openArchive(t, THA1, testutil.NewFile(file.Bytes()), archive.ReadOptions{}, "wav")
	require.Equal(t, 0, s.Len())
}

func TestTFPKPlaceholder(t *testing.T) {
	names := []string{"data/a.txt", "unk/0badf00d"}
	payloads := [][]byte{[]byte("named"), []byte("anonymous")}
	for _, f := range []Format{TFPK0, TFPK1} {
		t.Run(f.String(), func(t *testing.T) {
			file := build(t, f, names, payloads)

			s := openArchive(t, f, file, archive.ReadOptions{})
			require.Equal(t, 2, s.Len())
			e, err := s.Entry(1)
			require.NoError(t, err)
			require.Equal(t, "unk/0badf00d", e.Name)
			require.Equal(t, uint32(0x0badf00d), e.Hash)
			require.True(t, e.IsPlaceholder())
			data, err := s.Extract(1)
			require.NoError(t, err)
			require.Equal(t, payloads[1], data)

			s = openArchive(t, f, testutil.NewFile(file.Bytes()), archive.ReadOptions{ExcludeUnknown: true})
			require.Equal(t, 1, s.Len())
			e, err = s.Entry(0)
			require.NoError(t, err)
			require.Equal(t, "data/a.txt", e.Name)
		})
	}
}

func TestTFPKHash(t *testing.T) {
	h1, raw, err := tfpkHash("Data/Script.TXT")
	require.NoError(t, err)
	require.Equal(t, []byte("Data\\Script.TXT"), raw)
	h2, _, err := tfpkHash("data/script.txt")
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	h, raw, err := tfpkHash("unk/12345678")
	require.NoError(t, err)
	require.Nil(t, raw)
	require.Equal(t, uint32(0x12345678), h)

	require.Equal(t, tfpkKey(h1), tfpkKey(h2))
	require.NotEqual(t, tfpkKey(1), tfpkKey(2))
}

type seekOnly struct{ io.ReadSeeker }

func TestExtractWithoutReaderAt(t *testing.T) {
	payloads := [][]byte{[]byte("youmu"), bytes.Repeat([]byte("yuyuko"), 100)}
	for _, f := range Formats() {
		t.Run(f.String(), func(t *testing.T) {
			file := build(t, f, []string{"A.TXT", "B.TXT"}, payloads)
			s := openArchive(t, f, seekOnly{file}, archive.ReadOptions{})

			var mu sync.Mutex
			got := map[string][]byte{}
			err := s.ExtractAll(context.Background(), func(e archive.Entry, data []byte) error {
				mu.Lock()
				defer mu.Unlock()
				got[e.Name] = data
				return nil
			})
			require.NoError(t, err)
			require.Equal(t, payloads[0], got["A.TXT"])
			require.Equal(t, payloads[1], got["B.TXT"])
		})
	}
}

func TestExtractAllStopsOnError(t *testing.T) {
	names := []string{"A.TXT", "B.TXT", "C.TXT"}
	file := build(t, THRL, names, [][]byte{[]byte("a"), []byte("b"), []byte("c")})
	s, err := Read(THRL, file, archive.ReadOptions{}, nil, WithConcurrency(1))
	require.NoError(t, err)
	defer s.Close()

	boom := errors.New("boom")
	calls := 0
	err = s.ExtractAll(context.Background(), func(archive.Entry, []byte) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.ExtractAll(ctx, func(archive.Entry, []byte) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtractTo(t *testing.T) {
	names := []string{"data/a.txt", "data/sub/b.bin", "c.txt"}
	payloads := [][]byte{[]byte("alice"), {1, 2, 3}, []byte("cirno")}
	file := build(t, TFPK1, names, payloads)
	s := openArchive(t, TFPK1, file, archive.ReadOptions{})

	dest := t.TempDir()
	require.NoError(t, s.ExtractTo(context.Background(), ExtractOptions{Dest: dest, Concurrency: 2, Quiet: true}))
	for i, name := range names {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		require.NoError(t, err)
		require.Equal(t, payloads[i], got)
	}
}

func TestParseFormat(t *testing.T) {
	for _, f := range Formats() {
		got, err := ParseFormat(f.String())
		require.NoError(t, err)
		require.Equal(t, f, got)
	}
	got, err := ParseFormat("THA1")
	require.NoError(t, err)
	require.Equal(t, THA1, got)

	_, err = ParseFormat("zip")
	require.ErrorIs(t, err, archive.ErrInvalidArgument)
	require.Equal(t, "format(9)", Format(9).String())
}
