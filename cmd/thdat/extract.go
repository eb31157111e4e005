package main

import (
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/blurfx/thdat/internal/archive"
	"github.com/blurfx/thdat/internal/dat"
)

func init() {
	cmd := &cobra.Command{
		Use:   "extract <archive>",
		Short: "Extract archive contents",
		Args:  cobra.ExactArgs(1),
	}
	Root.AddCommand(cmd)
	fDest := cmd.Flags().StringP("dest", "C", "", "destination directory (default: archive base name)")
	fJobs := cmd.Flags().IntP("jobs", "j", runtime.NumCPU(), "number of parallel workers")
	fExt := cmd.Flags().StringSliceP("ext", "x", nil, "only entries with these extensions")
	fNamed := cmd.Flags().Bool("named", false, "skip entries whose name is unknown")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		format, err := rootFormat()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		s, err := dat.Read(format, f, archive.ReadOptions{ExcludeUnknown: *fNamed}, *fExt,
			dat.WithLogger(newLogger()),
			dat.WithConcurrency(*fJobs))
		if err != nil {
			f.Close()
			return err
		}
		defer s.Close()

		dest := *fDest
		if dest == "" {
			dest = baseName(path, "thdat-output")
		}
		return s.ExtractTo(cmd.Context(), dat.ExtractOptions{
			Dest:        dest,
			Concurrency: *fJobs,
			Quiet:       *fRootQuiet,
		})
	}
}
