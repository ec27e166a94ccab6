// Package fsutil holds the filesystem helpers the store and the asset
// finalizer share: token sanitizing, root containment, directory ensure,
// atomic writes and rename-or-copy moves.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultTokenLen bounds sanitized tokens when the caller passes 0.
const DefaultTokenLen = 64

// Swapped by tests to reach the copy fallbacks.
var (
	rename = os.Rename
	remove = os.Remove
)

// SanitizeToken validates a path token such as a customer number or a
// capture session id. The token is trimmed and NFC normalized; it must then
// consist only of ASCII letters, digits, '-' and '_' and be at most maxLen
// bytes. Anything else is rejected rather than rewritten, so "../S1" never
// turns into a valid "S1".
func SanitizeToken(s string, maxLen int) (string, bool) {
	if maxLen <= 0 {
		maxLen = DefaultTokenLen
	}
	s = norm.NFC.String(strings.TrimSpace(s))
	if s == "" || len(s) > maxLen {
		return "", false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", false
		}
	}
	return s, true
}

// Within reports whether path resolves strictly inside root. Both are
// resolved through symlinks first, so a link pointing out of root fails.
func Within(root, path string) (bool, error) {
	realRoot, err := resolve(root)
	if err != nil {
		return false, fmt.Errorf("resolve root %s: %w", root, err)
	}
	realPath, err := resolve(path)
	if err != nil {
		return false, fmt.Errorf("resolve path %s: %w", path, err)
	}
	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil {
		return false, nil
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return false, nil
	}
	return true, nil
}

func resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure dir %s: %w", dir, err)
	}
	return nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsFile reports whether path exists and is a regular file.
func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// WriteFileAtomic writes data to a uniquely named temporary file beside
// path and renames it over path. If the rename fails the temporary file is
// stream-copied over path instead. The temporary file never outlives the call.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = fmt.Errorf("remove temp: %w", rmErr)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}

	if renameErr := rename(tmpName, path); renameErr == nil {
		return nil
	} else if copyErr := CopyFile(tmpName, path); copyErr != nil {
		return fmt.Errorf("rename failed (%v), copy fallback failed: %w", renameErr, copyErr)
	}
	return nil
}

// CopyFile stream-copies src over dst, creating or truncating dst, and
// syncs it to disk. dst keeps src's permission bits.
func CopyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close destination: %w", closeErr)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync destination: %w", err)
	}
	return nil
}

// MoveFile renames src to dst. When rename fails (typically across
// filesystems) it copies and then deletes src. If the delete fails the copy
// is removed again so the file exists in exactly one place.
func MoveFile(src, dst string) error {
	renameErr := rename(src, dst)
	if renameErr == nil {
		return nil
	}
	if err := CopyFile(src, dst); err != nil {
		remove(dst)
		return fmt.Errorf("move %s: rename: %v; copy: %w", src, renameErr, err)
	}
	if err := remove(src); err != nil {
		if rmErr := remove(dst); rmErr != nil {
			return fmt.Errorf("move %s: remove source: %w (copy left at %s)", src, err, dst)
		}
		return fmt.Errorf("move %s: remove source: %w", src, err)
	}
	return nil
}
