package dat

import (
	"bytes"
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/blurfx/thdat/internal/archive"
	"github.com/blurfx/thdat/internal/crypto"
)

// Mode is the direction a Session was opened in.
type Mode uint8

// Session modes.
const (
	ModeCreate Mode = iota + 1
	ModeExtract
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeExtract:
		return "extract"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Session is one open archive. A session created with Create accepts Pack
// and Commit; a session opened with Read accepts Extract. Entries are
// addressed by their index in the session's table.
//
// A Session is safe for concurrent use. Stream access is serialized unless
// the stream implements io.ReaderAt.
type Session struct {
	format Format
	mode   Mode
	logger *slog.Logger
	conc   int

	mu        sync.Mutex
	stream    any
	r         io.ReadSeeker
	ra        io.ReaderAt
	w         io.WriteSeeker
	size      int64
	entries   []archive.Entry
	header    int64
	base      int64
	cursor    int64
	blob      []byte
	blobLen   int
	committed bool
	closed    bool

	closeOnce sync.Once
	closeErr  error
}

// Create starts a new archive on w with one entry per name. The stream is
// positioned past the header region; entries are packed with Pack and the
// table is written by Commit. On success the session owns w.
func Create(f Format, w io.WriteSeeker, names []string, opts ...Option) (*Session, error) {
	if !f.valid() {
		return nil, fmt.Errorf("dat: create: %w: unknown format %d", archive.ErrInvalidArgument, uint8(f))
	}
	if w == nil {
		return nil, fmt.Errorf("dat: create: %w: nil stream", archive.ErrInvalidArgument)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("dat: create: %w: no entries", archive.ErrInvalidArgument)
	}
	if err := archive.CheckSize("entry count", int64(len(names))); err != nil {
		return nil, fmt.Errorf("dat: create: %w", err)
	}

	cfg := newConfig(opts)
	s := &Session{
		format:  f,
		mode:    ModeCreate,
		logger:  cfg.logger,
		conc:    cfg.concurrency,
		stream:  w,
		w:       w,
		entries: make([]archive.Entry, len(names)),
	}

	seen := make(map[string]struct{}, len(names))
	for i, name := range names {
		if err := f.validateName(name); err != nil {
			return nil, fmt.Errorf("dat: create: %w", err)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("dat: create: %w: duplicate name %q", archive.ErrInvalidArgument, name)
		}
		seen[name] = struct{}{}
		s.entries[i] = archive.NewEntry(name)
	}

	start, err := f.prepare(s)
	if err != nil {
		return nil, fmt.Errorf("dat: create %s: %w", f, err)
	}
	if err := archive.CheckSize("header", start); err != nil {
		return nil, fmt.Errorf("dat: create %s: %w", f, err)
	}
	if _, err := w.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("dat: create %s: %w", f, err)
	}
	s.header = start
	s.cursor = start

	s.logger.Debug("archive created",
		slog.String("format", f.String()),
		slog.Int("entries", len(names)),
		slog.Int64("header", start))
	return s, nil
}

// Read opens an existing archive on r and decodes its table. Entries whose
// extension is not in filters are dropped when filters is non-empty. On
// success the session owns r; on failure the caller keeps it.
func Read(f Format, r io.ReadSeeker, ro archive.ReadOptions, filters []string, opts ...Option) (*Session, error) {
	if !f.valid() {
		return nil, fmt.Errorf("dat: read: %w: unknown format %d", archive.ErrInvalidArgument, uint8(f))
	}
	if r == nil {
		return nil, fmt.Errorf("dat: read: %w: nil stream", archive.ErrInvalidArgument)
	}
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("dat: read %s: %w", f, err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("dat: read %s: %w", f, err)
	}

	cfg := newConfig(opts)
	s := &Session{
		format: f,
		mode:   ModeExtract,
		logger: cfg.logger,
		conc:   cfg.concurrency,
		stream: r,
		r:      r,
		size:   size,
	}
	if ra, ok := r.(io.ReaderAt); ok {
		s.ra = ra
	}

	if err := f.readTable(s); err != nil {
		return nil, fmt.Errorf("dat: read %s: %w", f, err)
	}

	kept := s.entries[:0]
	for _, e := range s.entries {
		if err := s.validate(e); err != nil {
			return nil, fmt.Errorf("dat: read %s: %w", f, err)
		}
		if !e.MatchExt(filters) || (ro.ExcludeUnknown && e.IsPlaceholder()) {
			continue
		}
		kept = append(kept, e)
	}
	s.entries = slices.Clip(kept)

	s.logger.Debug("archive opened",
		slog.String("format", f.String()),
		slog.Int("entries", len(s.entries)),
		slog.Int64("size", size))
	return s, nil
}

// validate checks that a table entry points inside the stream.
func (s *Session) validate(e archive.Entry) error {
	if e.Size < 0 || e.StoredSize < 0 || e.Offset < 0 {
		return fmt.Errorf("%w: entry %q has negative fields", archive.ErrInvalidData, e.Name)
	}
	if end := s.base + e.Offset + e.StoredSize; end > s.size {
		return fmt.Errorf("%w: entry %q ends at %d past stream of %d bytes", archive.ErrInvalidData, e.Name, end, s.size)
	}
	return nil
}

// Format returns the session's format.
func (s *Session) Format() Format { return s.format }

// Mode returns the direction the session was opened in.
func (s *Session) Mode() Mode { return s.mode }

// Len returns the number of entries.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns a copy of the entry table.
func (s *Session) Entries() []archive.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// Entry returns the entry at index i.
func (s *Session) Entry(i int) (archive.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return archive.Entry{}, fmt.Errorf("dat: %w: session closed", archive.ErrInvalidState)
	}
	if err := s.checkIndex(i); err != nil {
		return archive.Entry{}, err
	}
	return s.entries[i], nil
}

// Extract returns the plaintext of entry i. The returned slice belongs to
// the caller.
func (s *Session) Extract(i int) ([]byte, error) {
	s.mu.Lock()
	if err := s.check(ModeExtract); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := s.checkIndex(i); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	e := s.entries[i]
	if e.Size == 0 {
		s.mu.Unlock()
		return []byte{}, nil
	}

	var src io.Reader
	if s.ra != nil {
		src = io.NewSectionReader(s.ra, s.base+e.Offset, e.StoredSize)
		s.mu.Unlock()
	} else {
		buf := archive.GetBuffer()
		defer archive.PutBuffer(buf)
		err := s.stage(buf, e)
		s.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("dat: extract %s: %w", e.Name, err)
		}
		src = bytes.NewReader(buf.Bytes())
	}

	dec := s.format.payloadDecryptor(e)
	data, err := s.format.decode(e, &crypto.DecryptReader{R: src, Dec: dec})
	if err == nil {
		err = dec.Finish()
	}
	if err != nil {
		return nil, fmt.Errorf("dat: extract %s: %w", e.Name, err)
	}
	s.logger.Debug("entry extracted", slog.String("name", e.Name), slog.Int64("size", e.Size))
	return data, nil
}

// stage copies the stored bytes of e into buf. The caller holds s.mu.
func (s *Session) stage(buf *bytes.Buffer, e archive.Entry) error {
	if _, err := s.r.Seek(s.base+e.Offset, io.SeekStart); err != nil {
		return err
	}
	buf.Grow(int(e.StoredSize))
	if _, err := io.CopyN(buf, s.r, e.StoredSize); err != nil {
		return fmt.Errorf("%w: %v", archive.ErrInvalidData, err)
	}
	return nil
}

// Pack encodes data as entry i and appends it at the write cursor.
func (s *Session) Pack(i int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ModeCreate); err != nil {
		return err
	}
	if s.committed {
		return fmt.Errorf("dat: pack: %w: archive already committed", archive.ErrInvalidState)
	}
	if err := s.checkIndex(i); err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("dat: pack: %w: empty data", archive.ErrInvalidArgument)
	}
	e := &s.entries[i]
	if e.Packed() {
		return fmt.Errorf("dat: pack: %w: entry %q already packed", archive.ErrInvalidState, e.Name)
	}
	if err := archive.CheckSize("size", int64(len(data))); err != nil {
		return fmt.Errorf("dat: pack %s: %w", e.Name, err)
	}

	buf := archive.GetBuffer()
	defer archive.PutBuffer(buf)

	off := s.cursor - s.base
	if err := s.format.encode(*e, data, off, buf); err != nil {
		return fmt.Errorf("dat: pack %s: %w", e.Name, err)
	}
	if err := archive.CheckSize("archive size", s.cursor+int64(buf.Len())); err != nil {
		return fmt.Errorf("dat: pack %s: %w", e.Name, err)
	}

	if _, err := s.w.Seek(s.cursor, io.SeekStart); err != nil {
		return fmt.Errorf("dat: pack %s: %w", e.Name, err)
	}
	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("dat: pack %s: %w", e.Name, err)
	}

	e.Offset = off
	e.Size = int64(len(data))
	e.StoredSize = int64(buf.Len())
	s.cursor += e.StoredSize

	s.logger.Debug("entry packed",
		slog.String("name", e.Name),
		slog.Int64("offset", e.Offset),
		slog.Int64("size", e.Size),
		slog.Int64("stored", e.StoredSize))
	return nil
}

// Commit writes the table and header of a new archive. Every entry must be
// packed. Entries are re-ordered by offset. A failed Commit leaves the
// stream without a valid header.
func (s *Session) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ModeCreate); err != nil {
		return err
	}
	if s.committed {
		return fmt.Errorf("dat: commit: %w: archive already committed", archive.ErrInvalidState)
	}
	for _, e := range s.entries {
		if !e.Packed() {
			return fmt.Errorf("dat: commit: %w: entry %q not packed", archive.ErrInvalidState, e.Name)
		}
	}

	slices.SortStableFunc(s.entries, func(a, b archive.Entry) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
	if err := s.format.writeTable(s); err != nil {
		return fmt.Errorf("dat: commit %s: %w", s.format, err)
	}
	s.committed = true

	s.logger.Debug("archive committed",
		slog.String("format", s.format.String()),
		slog.Int("entries", len(s.entries)),
		slog.Int64("payload", s.cursor))
	return nil
}

// Close releases the session. The stream is closed when it implements
// io.Closer. Close does not commit; calling it more than once returns the
// first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		s.entries = nil
		s.blob = nil
		if c, ok := s.stream.(io.Closer); ok {
			s.closeErr = c.Close()
		}
		s.stream, s.r, s.ra, s.w = nil, nil, nil, nil
	})
	return s.closeErr
}

// check verifies the session is open in mode want. The caller holds s.mu.
func (s *Session) check(want Mode) error {
	if s.closed {
		return fmt.Errorf("dat: %w: session closed", archive.ErrInvalidState)
	}
	if s.mode != want {
		return fmt.Errorf("dat: %w: operation needs %s mode, session is in %s mode", archive.ErrInvalidState, want, s.mode)
	}
	return nil
}

func (s *Session) checkIndex(i int) error {
	if i < 0 || i >= len(s.entries) {
		return fmt.Errorf("dat: %w: index %d out of range [0,%d)", archive.ErrInvalidArgument, i, len(s.entries))
	}
	return nil
}
