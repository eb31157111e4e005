package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blurfx/thdat/internal/archive"
	"github.com/blurfx/thdat/internal/dat"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list <archive>",
		Short: "List archive contents",
		Args:  cobra.ExactArgs(1),
	}
	Root.AddCommand(cmd)
	fExt := cmd.Flags().StringSliceP("ext", "x", nil, "only entries with these extensions")
	fNamed := cmd.Flags().Bool("named", false, "skip entries whose name is unknown")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		format, err := rootFormat()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		s, err := dat.Read(format, f, archive.ReadOptions{ExcludeUnknown: *fNamed}, *fExt, dat.WithLogger(newLogger()))
		if err != nil {
			f.Close()
			return err
		}
		defer s.Close()

		var total int64
		for _, e := range s.Entries() {
			fmt.Printf("%12d  %12d  %08x  %s\n", e.Size, e.StoredSize, e.Hash, e.Name)
			total += e.Size
		}
		fmt.Printf("\n%d entries, %d bytes\n", s.Len(), total)
		return nil
	}
}
