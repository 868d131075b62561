package materializer

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestSanitizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"../../etc/passwd",
		"My Document: Notes!",
		"a/b/../c",
		"  leading and trailing  ",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(once)
		require.Equal(t, once, twice, "input %q", in)
	}
}

func TestSanitizeRejectsPathEscape(t *testing.T) {
	out := Sanitize("../../etc/passwd")
	require.NotContains(t, out, "..")
}

func TestSanitizeEmptyFallsBackToUntitled(t *testing.T) {
	require.Equal(t, "untitled", Sanitize("   "))
	require.Equal(t, "untitled", Sanitize("../.."))
}

func TestWriteCreatesFileWithFrontmatter(t *testing.T) {
	fs := afero.NewMemMapFs()
	var notified string
	m := New(Config{Fs: fs, StorageRoot: "/store", Notify: func(_ context.Context, ownerID string) { notified = ownerID }})

	fullPath, err := m.Write(context.Background(), "owner-1", Frontmatter{ID: "doc-1", Title: "My Doc", UpdatedAt: time.Now()}, "notes/my doc", "body text")
	require.NoError(t, err)
	require.Equal(t, "owner-1", notified)

	data, err := afero.ReadFile(fs, fullPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "id: doc-1")
	require.Contains(t, string(data), "body text")
}

func TestMoveRenamesExistingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(Config{Fs: fs, StorageRoot: "/store"})

	_, err := m.Write(context.Background(), "owner-1", Frontmatter{ID: "doc-1", Title: "Old"}, "old-name", "body")
	require.NoError(t, err)

	require.NoError(t, m.Move(context.Background(), "owner-1", "old-name", "new-name"))

	exists, err := afero.Exists(fs, "/store/owner-1/old-name.md")
	require.NoError(t, err)
	require.False(t, exists)

	exists, err = afero.Exists(fs, "/store/owner-1/new-name.md")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestMoveOfNonexistentFileIsNoop(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(Config{Fs: fs, StorageRoot: "/store"})
	require.NoError(t, m.Move(context.Background(), "owner-1", "ghost", "new"))
}

func TestWriteAttachmentStoresUnderAttachmentsDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(Config{Fs: fs, StorageRoot: "/store"})

	p, err := m.WriteAttachment(context.Background(), "owner-1", "doc-1", "photo.png", []byte("binary"))
	require.NoError(t, err)
	require.Equal(t, "/store/owner-1/attachments/doc-1/photo.png", p)

	data, err := afero.ReadFile(fs, p)
	require.NoError(t, err)
	require.Equal(t, "binary", string(data))
}
