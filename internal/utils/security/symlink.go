package security

import (
	"fmt"
	"os"
	"path/filepath"
)

// SymlinkPolicy defines how a path that is a symlink is treated.
type SymlinkPolicy int

const (
	RejectSymlinks SymlinkPolicy = iota
	ResolveSymlinks
	AllowSymlinks
)

// CheckSymlink applies policy to path and returns the path that should be
// opened.
func CheckSymlink(path string, policy SymlinkPolicy) (string, error) {
	if policy < RejectSymlinks || policy > AllowSymlinks {
		return "", fmt.Errorf("invalid symlink policy: %d", policy)
	}

	fi, err := os.Lstat(path)
	if err != nil {
		return "", fmt.Errorf("failed to get file info for %s: %w", path, err)
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		return path, nil
	}

	switch policy {
	case RejectSymlinks:
		return "", fmt.Errorf("symlinks are not allowed: %s", path)
	case ResolveSymlinks:
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve symlink %s: %w", path, err)
		}
		return resolved, nil
	}
	return path, nil
}

// SafeReadFile reads path after the symlink check.
func SafeReadFile(path string, policy SymlinkPolicy) ([]byte, error) {
	resolved, err := CheckSymlink(path, policy)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(resolved)
}

// SafeWriteFile writes data to path after checking the file (when it
// exists) and its parent directory.
func SafeWriteFile(path string, data []byte, perm os.FileMode, policy SymlinkPolicy) error {
	resolved, err := safeTarget(path, policy)
	if err != nil {
		return err
	}
	return os.WriteFile(resolved, data, perm)
}

// SafeOpenFile is os.OpenFile behind the same checks as SafeWriteFile.
func SafeOpenFile(path string, flag int, perm os.FileMode, policy SymlinkPolicy) (*os.File, error) {
	resolved, err := safeTarget(path, policy)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(resolved, flag, perm)
}

func safeTarget(path string, policy SymlinkPolicy) (string, error) {
	if _, err := os.Lstat(path); err == nil {
		resolved, err := CheckSymlink(path, policy)
		if err != nil {
			return "", fmt.Errorf("existing file symlink check failed: %w", err)
		}
		path = resolved
	}

	dir := filepath.Dir(path)
	if dir == "." || dir == "/" {
		return path, nil
	}
	if _, err := os.Stat(dir); err != nil {
		// missing parent: let the open report it
		return path, nil
	}
	resolvedDir, err := CheckSymlink(dir, policy)
	if err != nil {
		return "", fmt.Errorf("parent directory symlink check failed: %w", err)
	}
	return filepath.Join(resolvedDir, filepath.Base(path)), nil
}
