package packfs

import (
	"io/fs"
	"strings"
)

// Separator is the path separator used inside the virtual file system.
const Separator = "/"

// invalidNameChars are rejected in file and directory names.
const invalidNameChars = `:*?"<>|`

// CleanDir converts a user-provided directory path to canonical form.
//
// It performs the following transformations:
//   - Accepts "\" as a separator: `a\b` → "/a/b/"
//   - Adds leading and trailing separators: "a/b" → "/a/b/"
//   - Collapses consecutive separators: "//a//b" → "/a/b/"
//   - Maps empty input to the root: "" → "/"
//
// Segments "." and ".." and names containing control or reserved
// characters are rejected with ErrInvalidPath.
func CleanDir(p string) (string, error) {
	parts, err := splitPath(p)
	if err != nil {
		return "", &fs.PathError{Op: "clean", Path: p, Err: err}
	}
	if len(parts) == 0 {
		return Separator, nil
	}
	return Separator + strings.Join(parts, Separator) + Separator, nil
}

// CleanFile converts a user-provided file path to canonical "/a/b.txt" form.
// Input naming no file, such as "" or "/a/", is rejected with ErrInvalidPath.
func CleanFile(p string) (string, error) {
	if p == "" || strings.HasSuffix(p, "/") || strings.HasSuffix(p, `\`) {
		return "", &fs.PathError{Op: "clean", Path: p, Err: ErrInvalidPath}
	}
	parts, err := splitPath(p)
	if err != nil {
		return "", &fs.PathError{Op: "clean", Path: p, Err: err}
	}
	if len(parts) == 0 {
		return "", &fs.PathError{Op: "clean", Path: p, Err: ErrInvalidPath}
	}
	return Separator + strings.Join(parts, Separator), nil
}

// splitFile splits a canonical file path into its directory and name.
func splitFile(fullPath string) (dir, name string) {
	i := strings.LastIndex(fullPath, Separator)
	return fullPath[:i+1], fullPath[i+1:]
}

func splitPath(p string) ([]string, error) {
	p = strings.ReplaceAll(p, `\`, Separator)
	raw := strings.Split(p, Separator)
	parts := raw[:0]
	for _, part := range raw {
		if part == "" {
			continue
		}
		if !ValidName(part) {
			return nil, ErrInvalidPath
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// ValidName reports whether name can be used as a single file or directory
// name.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f || r == '/' || r == '\\' {
			return false
		}
		if strings.ContainsRune(invalidNameChars, r) {
			return false
		}
	}
	return true
}
