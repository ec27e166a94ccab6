package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"A100", "A100", true},
		{"  S1_x-2 ", "S1_x-2", true},
		{"../S1", "", false},
		{"a/b", "", false},
		{"..", "", false},
		{"", "", false},
		{"   ", "", false},
		{"name with space", "", false},
		{"ümlaut", "", false},
		{"S1\x00", "", false},
	}
	for _, tc := range cases {
		got, ok := SanitizeToken(tc.in, 0)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestSanitizeToken_Length(t *testing.T) {
	_, ok := SanitizeToken("abcdef", 5)
	assert.False(t, ok)

	got, ok := SanitizeToken("abcde", 5)
	assert.True(t, ok)
	assert.Equal(t, "abcde", got)
}

func TestWithin(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(inside, 0o755))
	outside := t.TempDir()

	ok, err := Within(root, inside)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Within(root, root)
	require.NoError(t, err)
	assert.False(t, ok, "root itself is not strictly inside")

	ok, err = Within(root, outside)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithin_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "escape")
	require.NoError(t, os.Symlink(outside, link))

	ok, err := Within(root, link)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithin_MissingPath(t *testing.T) {
	_, err := Within(t.TempDir(), "/definitely/not/here")
	assert.Error(t, err)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.json")

	require.NoError(t, WriteFileAtomic(path, []byte("[1]"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("[1,2]"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not linger")
}

func TestWriteFileAtomic_MissingDir(t *testing.T) {
	err := WriteFileAtomic(filepath.Join(t.TempDir(), "nope", "f.json"), []byte("x"), 0o644)
	assert.Error(t, err)
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	dst := filepath.Join(dir, "sub", "b.jpg")
	require.NoError(t, os.WriteFile(src, []byte("img"), 0o644))
	require.NoError(t, EnsureDir(filepath.Dir(dst)))

	require.NoError(t, MoveFile(src, dst))

	assert.False(t, IsFile(src))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "img", string(data))
}

func TestMoveFile_MissingSource(t *testing.T) {
	dir := t.TempDir()
	err := MoveFile(filepath.Join(dir, "missing"), filepath.Join(dir, "dst"))
	assert.Error(t, err)
	assert.False(t, IsFile(filepath.Join(dir, "dst")))
}

// failRename makes every rename fail as it would across filesystems.
func failRename(t *testing.T) {
	t.Helper()
	prev := rename
	rename = func(string, string) error { return errors.New("invalid cross-device link") }
	t.Cleanup(func() { rename = prev })
}

func TestWriteFileAtomic_CopyFallback(t *testing.T) {
	failRename(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "events.json")
	require.NoError(t, os.WriteFile(path, []byte("[1,2,3,4]"), 0o644))

	require.NoError(t, WriteFileAtomic(path, []byte("[5]"), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[5]", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not linger")
}

func TestMoveFile_CopyFallback(t *testing.T) {
	failRename(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	dst := filepath.Join(dir, "sub", "b.jpg")
	require.NoError(t, os.WriteFile(src, []byte("img"), 0o644))
	require.NoError(t, EnsureDir(filepath.Dir(dst)))

	require.NoError(t, MoveFile(src, dst))

	assert.False(t, IsFile(src))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "img", string(data))
}

func TestMoveFile_SourceDeleteFailsDropsCopy(t *testing.T) {
	failRename(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	dst := filepath.Join(dir, "b.jpg")
	require.NoError(t, os.WriteFile(src, []byte("img"), 0o644))

	prev := remove
	remove = func(name string) error {
		if name == src {
			return &os.PathError{Op: "remove", Path: name, Err: os.ErrPermission}
		}
		return os.Remove(name)
	}
	t.Cleanup(func() { remove = prev })

	err := MoveFile(src, dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Contains(t, err.Error(), "remove source")
	assert.NotContains(t, err.Error(), "copy left at")

	assert.True(t, IsFile(src), "source stays when it cannot be deleted")
	assert.False(t, IsFile(dst), "copy is removed so the file exists once")
}

func TestMoveFile_CopyFallbackFailureLeavesNoDestination(t *testing.T) {
	failRename(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.WriteFile(src, []byte("img"), 0o644))

	err := MoveFile(src, filepath.Join(dir, "missing", "b.jpg"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy")
	assert.True(t, IsFile(src))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o600))
	require.NoError(t, os.WriteFile(dst, []byte("previous longer content"), 0o644))

	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.True(t, IsFile(src))
}

func TestIsDirIsFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(f, nil, 0o644))

	assert.True(t, IsDir(dir))
	assert.False(t, IsDir(f))
	assert.True(t, IsFile(f))
	assert.False(t, IsFile(dir))
}
