package dat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/blurfx/thdat/internal/archive"
)

// ExtractOptions is an alias to archive.ExtractOptions.
type ExtractOptions = archive.ExtractOptions

// ExtractAll extracts every entry on a bounded group of workers and hands
// each plaintext to fn. fn may be called from several goroutines at once.
// The first error cancels the remaining work.
func (s *Session) ExtractAll(ctx context.Context, fn func(archive.Entry, []byte) error) error {
	return s.extractAll(ctx, s.conc, fn)
}

func (s *Session) extractAll(ctx context.Context, limit int, fn func(archive.Entry, []byte) error) error {
	entries := s.Entries()
	s.mu.Lock()
	err := s.check(ModeExtract)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, e := range entries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := s.Extract(i)
			if err != nil {
				return err
			}
			return fn(e, data)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ExtractTo writes every entry under opts.Dest, creating directories as
// needed. Entry names that would escape the destination are rejected.
func (s *Session) ExtractTo(ctx context.Context, opts ExtractOptions) error {
	opts = opts.WithDefaults()
	if err := os.MkdirAll(opts.Dest, 0o755); err != nil {
		return err
	}

	return s.extractAll(ctx, opts.Concurrency, func(e archive.Entry, data []byte) error {
		if !opts.Quiet {
			s.logger.Info("extracting", slog.String("name", e.Name), slog.Int64("size", e.Size))
		}
		return writeEntry(opts.Dest, e, data)
	})
}

func writeEntry(dest string, e archive.Entry, data []byte) error {
	fullPath, err := archive.SecureJoin(dest, e.Name)
	if err != nil {
		return fmt.Errorf("dat: %s: %w", e.Name, err)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(fullPath, data, 0o644)
}
