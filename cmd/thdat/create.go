package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/blurfx/thdat/internal/dat"
)

func init() {
	cmd := &cobra.Command{
		Use:   "create <archive> <dir>",
		Short: "Pack a directory into a new archive",
		Args:  cobra.ExactArgs(2),
	}
	Root.AddCommand(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		format, err := rootFormat()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		out, src := args[0], args[1]
		names, err := collect(src)
		if err != nil {
			return err
		}
		// a failed pack leaves the partial archive on disk for inspection
		return create(format, out, src, names)
	}
}

// collect lists every regular file under root as a '/'-separated relative
// name, sorted.
func collect(root string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.New("no files to pack")
	}
	slices.Sort(names)
	return names, nil
}

func create(format dat.Format, out, root string, names []string) error {
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	logger := newLogger()
	s, err := dat.Create(format, f, names, dat.WithLogger(logger))
	if err != nil {
		f.Close()
		return err
	}
	defer s.Close()

	for i, name := range names {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
		if err != nil {
			return err
		}
		logger.Info("packing", slog.String("name", name), slog.Int("size", len(data)))
		if err := s.Pack(i, data); err != nil {
			return err
		}
	}
	if err := s.Commit(); err != nil {
		return err
	}
	return s.Close()
}
