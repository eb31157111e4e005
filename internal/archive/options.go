package archive

import "runtime"

// ReadOptions configures how an archive table is materialized.
type ReadOptions struct {
	// ExcludeUnknown drops entries whose real name could not be recovered
	// and which would otherwise surface under an "unk/<hash>" placeholder.
	ExcludeUnknown bool
}

// ExtractOptions configures extraction of a whole archive to disk.
type ExtractOptions struct {
	// Dest is the destination directory for extracted files.
	Dest string

	// Concurrency specifies the number of parallel extraction workers.
	// If <= 0, defaults to runtime.NumCPU().
	Concurrency int

	// Quiet suppresses per-entry progress logging when true.
	Quiet bool
}

// WithDefaults returns a copy of opts with default values applied.
func (opts ExtractOptions) WithDefaults() ExtractOptions {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	return opts
}
