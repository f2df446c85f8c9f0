package storage

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	s, err := NewLocal(t.TempDir(), "http://localhost:8080", []byte("secret"))
	require.NoError(t, err)
	return s
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestCheckName(t *testing.T) {
	assert.True(t, CheckName("beach-cleanup-2021"))
	assert.False(t, CheckName(""))
	assert.False(t, CheckName("Upper"))
	assert.False(t, CheckName("under_score"))
	assert.False(t, CheckName("-leading"))
	assert.False(t, CheckName("trailing-"))
	assert.False(t, CheckName("double--dash"))
	assert.False(t, CheckName(strings.Repeat("a", 54)))
}

func TestSplitPath(t *testing.T) {
	location, name := SplitPath("/images/uploads/set/a.png")
	assert.Equal(t, "images", location)
	assert.Equal(t, "uploads/set/a.png", name)
}

func TestCreateLocation(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	location, err := s.CreateLocation(ctx, "Beach")
	require.NoError(t, err)
	assert.Equal(t, "dropbox-beach", location)
	assert.DirExists(t, filepath.Join(s.Root(), location))

	_, err = s.CreateLocation(ctx, "beach")
	assert.ErrorIs(t, err, ErrExists)
}

func TestCopyContentsAndDelete(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()
	location, err := s.CreateLocation(ctx, "set")
	require.NoError(t, err)

	_, err = s.Put(location+"/a.png", bytes.NewReader(pngBytes(t, 4, 3)))
	require.NoError(t, err)
	_, err = s.Put(location+"/sub/b.png", bytes.NewReader(pngBytes(t, 8, 6)))
	require.NoError(t, err)

	items, err := s.CopyContents(ctx, location, "", "images", "uploads/set")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a.png", items[0].Name)
	assert.Equal(t, "sub/b.png", items[1].Name)
	assert.Positive(t, items[0].Size)

	desc, err := s.DescribeItem(ctx, "images/uploads/set/sub/b.png")
	require.NoError(t, err)
	assert.Equal(t, Description{FileType: "PNG", Width: 8, Height: 6}, desc)

	require.NoError(t, s.DeleteLocation(ctx, location))
	assert.NoDirExists(t, filepath.Join(s.Root(), location))
	assert.ErrorIs(t, s.DeleteLocation(ctx, "../outside"), ErrInvalidPath)
}

func TestCopyContentsOntoItself(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "images"), 0755))
	content := pngBytes(t, 4, 3)
	_, err := s.Put("images/uploads/set/a.png", bytes.NewReader(content))
	require.NoError(t, err)

	_, err = s.CopyContents(ctx, "images", "uploads/set", "images", "uploads/set")
	assert.ErrorIs(t, err, ErrSameFile)

	_, err = s.CopyContents(ctx, "images/uploads", "set", "images", "uploads/set")
	assert.ErrorIs(t, err, ErrSameFile)

	stored, err := os.ReadFile(filepath.Join(s.Root(), "images", "uploads", "set", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, content, stored)
}

func TestCopyFileOntoItself(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "a.png")
	require.NoError(t, os.WriteFile(source, []byte("0123456789"), 0644))

	_, err := copyFile(source, filepath.Join(dir, ".", "a.png"))
	assert.ErrorIs(t, err, ErrSameFile)

	stored, err := os.ReadFile(source)
	require.NoError(t, err)
	assert.Len(t, stored, 10)
}

func TestCopyContentsMissingSource(t *testing.T) {
	s := newTestLocal(t)
	_, err := s.CopyContents(context.Background(), "dropbox-missing", "", "images", "x")
	assert.Error(t, err)
}

func TestDescribeItemNotAnImage(t *testing.T) {
	s := newTestLocal(t)
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "images"), 0755))
	_, err := s.Put("images/notes.txt", strings.NewReader("hello"))
	require.NoError(t, err)

	_, err = s.DescribeItem(context.Background(), "images/notes.txt")
	assert.Error(t, err)
	_, err = s.DescribeItem(context.Background(), "images/missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutRequiresLocation(t *testing.T) {
	s := newTestLocal(t)
	_, err := s.Put("nowhere/a.png", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Put("../../etc/passwd", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestSignAndVerify(t *testing.T) {
	s := newTestLocal(t)

	signed, err := s.SignURL("dropbox-set", time.Now().Add(time.Hour), PermissionWrite, PermissionRead)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "/blobs/dropbox-set", u.Path)
	token := u.Query().Get("token")

	assert.NoError(t, s.Verify(token, "dropbox-set/a.png", PermissionWrite))
	assert.NoError(t, s.Verify(token, "dropbox-set", PermissionRead))
	assert.ErrorIs(t, s.Verify(token, "dropbox-set/a.png", PermissionDelete), ErrInvalidToken)
	assert.ErrorIs(t, s.Verify(token, "dropbox-settle/a.png", PermissionRead), ErrInvalidToken)
	assert.ErrorIs(t, s.Verify(token, "dropbox-set/../images/a.png", PermissionRead), ErrInvalidToken)
	assert.ErrorIs(t, s.Verify("garbage", "dropbox-set/a.png", PermissionRead), ErrInvalidToken)

	expired, err := s.SignURL("images/a.png", time.Now().Add(-time.Hour), PermissionRead)
	require.NoError(t, err)
	u, err = url.Parse(expired)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Verify(u.Query().Get("token"), "images/a.png", PermissionRead), ErrInvalidToken)

	other, err := NewLocal(t.TempDir(), "", []byte("other"))
	require.NoError(t, err)
	assert.ErrorIs(t, other.Verify(token, "dropbox-set/a.png", PermissionRead), ErrInvalidToken)
}
