package archive

import (
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
)

// Unknown marks a size or offset that has not been materialized yet.
const Unknown = -1

// MaxSize is the largest size or offset the formats can record.
const MaxSize = math.MaxInt32

const placeholderPrefix = "unk/"

// Entry describes one logical file inside a container.
type Entry struct {
	// Name is the path relative to the archive root, using '/' separators.
	Name string

	// Size is the plaintext length, or Unknown before the entry is packed.
	Size int64

	// Offset is the position of the stored bytes, or Unknown before packing.
	Offset int64

	// StoredSize is the length of the stored bytes after compression.
	StoredSize int64

	// Hash is the format-specific name hash, when the format keeps one.
	Hash uint32

	// Key is per-entry cipher key material.
	Key [4]uint32
}

// NewEntry returns an entry with sentinel size and offset.
func NewEntry(name string) Entry {
	return Entry{Name: name, Size: Unknown, Offset: Unknown, StoredSize: Unknown}
}

// Packed reports whether the entry has been assigned a position and size.
func (e Entry) Packed() bool {
	return e.Size >= 0 && e.Offset >= 0
}

// Ext returns the lower-cased extension of the entry name without the dot.
func (e Entry) Ext() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(e.Name)), ".")
}

// IsPlaceholder reports whether the name is an "unk/<hash>" stand-in.
func (e Entry) IsPlaceholder() bool {
	_, ok := ParsePlaceholder(e.Name)
	return ok
}

// PlaceholderName returns the stand-in name used for an unresolved hash.
func PlaceholderName(hash uint32) string {
	return fmt.Sprintf("%s%08x", placeholderPrefix, hash)
}

// ParsePlaceholder recovers the hash encoded in a stand-in name.
func ParsePlaceholder(name string) (uint32, bool) {
	hex, ok := strings.CutPrefix(name, placeholderPrefix)
	if !ok || len(hex) != 8 {
		return 0, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// MatchExt reports whether the entry passes an extension filter list.
// An empty list matches everything.
func (e Entry) MatchExt(filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	ext := e.Ext()
	for _, f := range filters {
		if strings.EqualFold(strings.TrimPrefix(f, "."), ext) {
			return true
		}
	}
	return false
}

// CheckSize returns ErrCapacityExceeded when v does not fit the formats' fields.
func CheckSize(what string, v int64) error {
	if v < 0 || v > MaxSize {
		return fmt.Errorf("%w: %s %d", ErrCapacityExceeded, what, v)
	}
	return nil
}
