package archive

import (
	"errors"
	"fmt"
)

// Error classes shared by every format driver. Callers match them with errors.Is.
var (
	// ErrInvalidArgument indicates a nil stream, an empty payload or a name
	// the format cannot store.
	ErrInvalidArgument = errors.New("archive: invalid argument")

	// ErrInvalidState indicates an operation called in the wrong session mode
	// or after the session was closed.
	ErrInvalidState = errors.New("archive: invalid state")

	// ErrInvalidData indicates a malformed archive: bad magic, impossible
	// offsets or sizes, or a corrupt table.
	ErrInvalidData = errors.New("archive: invalid data")

	// ErrCapacityExceeded indicates a size or offset that does not fit the
	// signed 32-bit fields used by the formats.
	ErrCapacityExceeded = errors.New("archive: capacity exceeded")
)

var (
	// ErrBadSignature indicates the archive has an invalid or unrecognized signature.
	ErrBadSignature = fmt.Errorf("%w: invalid signature", ErrInvalidData)

	// ErrUnsupportedMethod indicates an unknown compression codec.
	ErrUnsupportedMethod = fmt.Errorf("%w: unsupported compression method", ErrInvalidArgument)

	// ErrPathTraversal indicates an attempt to write outside the destination directory.
	ErrPathTraversal = errors.New("archive: path traversal detected")
)
