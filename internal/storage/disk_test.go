package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskSaveTrashAndRestore(t *testing.T) {
	ctx := context.Background()
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	obj, err := d.Save(ctx, KindAssets, "p1", "a1.png", strings.NewReader("pixels"), 6, "image/png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(d.Root(), "projects", "p1", "assets", "a1.png"), obj.Path)
	assert.Equal(t, "/files/projects/p1/assets/a1.png", obj.URL)

	trash := d.TrashPath("p1", KindAssets, obj.Path)
	assert.Equal(t, filepath.Join(d.Root(), "projects", "p1", "trash", "assets", "a1.png"), trash)

	require.NoError(t, d.Move(ctx, obj.Path, trash))
	ok, err := d.Exists(ctx, obj.Path)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = d.Exists(ctx, trash)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, d.Move(ctx, obj.Path, trash), ErrNotFound)

	require.NoError(t, d.Move(ctx, trash, obj.Path))
	raw, err := os.ReadFile(obj.Path)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(raw))
}

func TestDiskMoveNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	a, err := d.Save(ctx, KindAssets, "p1", "a.png", strings.NewReader("a"), 1, "image/png")
	require.NoError(t, err)
	b, err := d.Save(ctx, KindAssets, "p1", "b.png", strings.NewReader("b"), 1, "image/png")
	require.NoError(t, err)

	assert.ErrorIs(t, d.Move(ctx, a.Path, b.Path), ErrDestinationExists)
	raw, err := os.ReadFile(b.Path)
	require.NoError(t, err)
	assert.Equal(t, "b", string(raw))
}

func TestDiskRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	_, err = d.Save(ctx, KindAssets, "p1", "../escape.png", strings.NewReader("x"), 1, "image/png")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = d.Save(ctx, KindAssets, "..", "x.png", strings.NewReader("x"), 1, "image/png")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, _, err = d.Open(ctx, "p1", KindAssets, "..")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = d.Open(ctx, "p1", Kind("trash"), "a.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiskPreviewAndOpen(t *testing.T) {
	ctx := context.Background()
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	_, err = d.OpenPreview(ctx, "p1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, d.WritePreview(ctx, "p1", []byte("webp"), "image/webp"))
	rc, err := d.OpenPreview(ctx, "p1")
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "webp", string(raw))

	_, err = d.Save(ctx, KindThumbs, "p1", "t.webp", strings.NewReader("thumb"), 5, "image/webp")
	require.NoError(t, err)
	rc, info, err := d.Open(ctx, "p1", KindThumbs, "t.webp")
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, "image/webp", info.ContentType)

	require.NoError(t, d.RemoveProject(ctx, "p1"))
	_, err = os.Stat(filepath.Join(d.Root(), "projects", "p1"))
	assert.True(t, os.IsNotExist(err))
}

func TestBucketTrashPathAndSplit(t *testing.T) {
	b := (&Bucket{}).ForUser("u1")
	trash := b.TrashPath("p1", KindAssets, "assets/u1/projects/p1/assets/a.png")
	assert.Equal(t, "assets/u1/projects/p1/trash/assets/a.png", trash)

	bucket, key, err := splitObjectPath(trash)
	require.NoError(t, err)
	assert.Equal(t, "assets", bucket)
	assert.Equal(t, "u1/projects/p1/trash/assets/a.png", key)

	_, _, err = splitObjectPath("nokey")
	assert.Error(t, err)
}

func TestCleanNameAndTypes(t *testing.T) {
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := CleanName(bad)
		assert.ErrorIs(t, err, ErrInvalidName, bad)
	}
	name, err := CleanName(" ok.png ")
	require.NoError(t, err)
	assert.Equal(t, "ok.png", name)

	assert.Equal(t, "image/jpeg", ContentTypeFor("X.JPG"))
	assert.Equal(t, ".svg", ExtensionFor("image/svg+xml"))
	assert.Equal(t, "", ExtensionFor("text/plain"))
}
