// Package safety decides whether a path may be handed to the deleter.
package safety

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath    = errors.New("invalid path")
	ErrProtectedPath  = errors.New("protected path")
	ErrOutsideAllowed = errors.New("outside allowed roots")
	ErrTraversal      = errors.New("path traversal detected")
	ErrSymlinkEscape  = errors.New("symlink escape detected")
)

// Validator rejects deletion targets that are protected or outside the
// allowed roots. With no allowed roots every unprotected path is allowed.
type Validator struct {
	AllowedRoots   []string
	ProtectedPaths []string
}

// NewValidator creates a validator with allowed roots and optional additional protected paths
func NewValidator(allowed []string, extraProtected []string) *Validator {
	return &Validator{
		AllowedRoots:   normalizeRoots(allowed),
		ProtectedPaths: defaultProtected(normalizeRoots(extraProtected)),
	}
}

// ValidateDeleteTarget returns nil when path may be deleted, otherwise an
// error wrapping one of the package sentinels.
func (v *Validator) ValidateDeleteTarget(path string) error {
	// Traversal is judged on the raw input, before cleaning hides it
	if DetectTraversal(path) {
		return fmt.Errorf("%w: %s", ErrTraversal, path)
	}

	p, err := NormalizePath(path)
	if err != nil {
		return err
	}

	if IsProtectedPath(p, v.ProtectedPaths) {
		return fmt.Errorf("%w: %s", ErrProtectedPath, p)
	}

	if len(v.AllowedRoots) == 0 {
		return nil
	}
	if !IsWithinAllowedRoots(p, v.AllowedRoots) {
		return fmt.Errorf("%w: %s", ErrOutsideAllowed, p)
	}

	escaped, err := DetectSymlinkEscape(p, v.AllowedRoots)
	if err != nil {
		// a missing target is left for the deleter to report
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if escaped {
		return fmt.Errorf("%w: %s", ErrSymlinkEscape, p)
	}

	return nil
}

// NormalizePath converts path to absolute, cleaned form
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidPath, path, err)
	}
	return abs, nil
}

// DetectTraversal reports any ".." segment in raw input
func DetectTraversal(raw string) bool {
	for _, p := range strings.Split(filepath.ToSlash(raw), "/") {
		if p == ".." {
			return true
		}
	}
	return false
}

// IsWithinAllowedRoots checks if path is within any allowed root
func IsWithinAllowedRoots(path string, allowedRoots []string) bool {
	for _, r := range allowedRoots {
		if hasPathPrefix(path, r) {
			return true
		}
	}
	return false
}

// DetectSymlinkEscape resolves symlinks and checks if resolved path escapes allowed roots
func DetectSymlinkEscape(cleanAbs string, allowedRoots []string) (bool, error) {
	resolved, err := filepath.EvalSymlinks(cleanAbs)
	if err != nil {
		return false, err
	}
	resolvedAbs, err := filepath.Abs(resolved)
	if err != nil {
		return false, err
	}
	return !IsWithinAllowedRoots(resolvedAbs, allowedRoots), nil
}

// IsProtectedPath checks if path is, or lies under, a protected path.
// The filesystem root is only protected itself, not everything under it.
func IsProtectedPath(path string, protected []string) bool {
	p := filepath.Clean(path)
	if p == string(os.PathSeparator) {
		return true
	}

	for _, prot := range protected {
		prot = filepath.Clean(prot)
		if prot == string(os.PathSeparator) {
			continue
		}
		if hasPathPrefix(p, prot) {
			return true
		}
	}
	return false
}

func hasPathPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)

	if prefix == string(os.PathSeparator) {
		return strings.HasPrefix(path, prefix)
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+string(os.PathSeparator))
}

// normalizeRoots converts slice of roots to absolute, cleaned paths
func normalizeRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if strings.TrimSpace(r) == "" {
			continue
		}
		abs, err := filepath.Abs(r)
		if err != nil {
			continue
		}
		out = append(out, abs)
	}
	return out
}

// defaultProtected returns the base set of protected paths plus any extras
func defaultProtected(extra []string) []string {
	base := []string{
		"/",
		"/etc",
		"/bin",
		"/usr",
		"/boot",
		"/lib",
		"/lib64",
		"/sbin",
		"/proc",
		"/sys",
		"/dev",
		"/var/lib/trashcan",
	}
	return append(base, extra...)
}
