package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blurfx/thdat/internal/dat"
)

var (
	Root = &cobra.Command{
		Use:   "thdat",
		Short: "Touhou archive tools",
	}
	fRootFormat  = Root.PersistentFlags().StringP("format", "f", "", "archive format: tha1, thrl, t105, tfpk0, tfpk1")
	fRootVerbose = Root.PersistentFlags().BoolP("verbose", "v", false, "log every archive operation")
	fRootQuiet   = Root.PersistentFlags().BoolP("quiet", "q", false, "no progress output")
)

func rootFormat() (dat.Format, error) {
	if *fRootFormat == "" {
		return 0, errors.New("--format is required")
	}
	return dat.ParseFormat(*fRootFormat)
}

func newLogger() *slog.Logger {
	if *fRootQuiet {
		return slog.New(slog.DiscardHandler)
	}
	level := slog.LevelInfo
	if *fRootVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// baseName returns the archive file name without its extension.
func baseName(path, fallback string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." {
		return fallback
	}
	return base
}

func main() {
	if err := Root.Execute(); err != nil {
		os.Exit(1)
	}
}
