package archive

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// DecodeName converts a stored Shift-JIS name to UTF-8. ASCII passes
// through unchanged.
func DecodeName(raw []byte) string {
	decoded, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), raw)
	if err != nil {
		return cleanName(string(raw))
	}
	return cleanName(string(decoded))
}

// EncodeName converts a name to the Shift-JIS bytes the games store.
func EncodeName(name string) ([]byte, error) {
	out, _, err := transform.Bytes(japanese.ShiftJIS.NewEncoder(), []byte(name))
	if err != nil {
		return nil, fmt.Errorf("%w: name %q is not Shift-JIS encodable", ErrInvalidArgument, name)
	}
	return out, nil
}

// ValidateShortName checks the DOS 8.3 rule: an ASCII base of 1-8
// characters and an optional extension of 1-3 characters.
func ValidateShortName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidArgument)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= 0x20 || c >= 0x7f || c == '/' || c == '\\' {
			return fmt.Errorf("%w: name %q is not a short name", ErrInvalidArgument, name)
		}
	}
	base, ext, hasExt := strings.Cut(name, ".")
	if len(base) == 0 || len(base) > 8 {
		return fmt.Errorf("%w: name %q exceeds 8.3", ErrInvalidArgument, name)
	}
	if hasExt && (len(ext) == 0 || len(ext) > 3 || strings.Contains(ext, ".")) {
		return fmt.Errorf("%w: name %q exceeds 8.3", ErrInvalidArgument, name)
	}
	return nil
}

// ValidatePath checks a stored path against a byte limit. NUL bytes are
// rejected because the tables terminate names with them.
func ValidatePath(name string, limit int) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidArgument)
	}
	if strings.IndexByte(name, 0) >= 0 {
		return fmt.Errorf("%w: name %q contains NUL", ErrInvalidArgument, name)
	}
	if len(name) > limit {
		return fmt.Errorf("%w: name %q exceeds %d bytes", ErrInvalidArgument, name, limit)
	}
	return nil
}

func cleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	return name
}
