package archive

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SecureJoin joins an entry name onto base, refusing any name that would
// land outside base. Entry names always use '/' separators.
func SecureJoin(base, name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: absolute path %q", ErrPathTraversal, name)
	}
	// drive letters and UNC prefixes are rejected on every host
	if len(name) >= 2 && name[1] == ':' && isASCIILetter(name[0]) {
		return "", fmt.Errorf("%w: drive path %q", ErrPathTraversal, name)
	}
	if strings.ContainsRune(name, '\\') {
		return "", fmt.Errorf("%w: backslash in path %q", ErrPathTraversal, name)
	}

	rel := filepath.Clean(filepath.FromSlash(name))
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}

	baseAbs, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(baseAbs, rel)
	prefix := baseAbs
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if joined != baseAbs && !strings.HasPrefix(joined, prefix) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	return joined, nil
}

func isASCIILetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
