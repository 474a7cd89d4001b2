package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/deepwiki-go/repochat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSnapshotStore_RoundTrip(t *testing.T) {
	store, err := NewFileSnapshotStore(filepath.Join(t.TempDir(), "databases"))
	require.NoError(t, err)
	ctx := context.Background()

	snap := &Snapshot{
		RepoID:     "owner_repo",
		SourcePath: "/tmp/owner_repo",
		Embedder:   "fake",
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
		Documents: []models.Document{
			{ID: "a.go#0", Text: "package a", MetaData: models.Metadata{FilePath: "a.go", FileType: "go", IsCode: true, TokenCount: 3}, Vector: []float32{0.25, -1, 3.5}},
			{ID: "b.md#0", Text: "# B", MetaData: models.Metadata{FilePath: "b.md", FileType: "md"}, Vector: []float32{1, 2, 3}},
		},
	}
	require.NoError(t, store.Save(ctx, snap))

	loaded, err := store.Load(ctx, "owner_repo")
	require.NoError(t, err)
	assert.Equal(t, snap.Documents, loaded.Documents)
	assert.Equal(t, snap.SourcePath, loaded.SourcePath)
	assert.True(t, snap.CreatedAt.Equal(loaded.CreatedAt))

	projects, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "owner_repo", projects[0].ID)
	assert.Equal(t, store.SnapshotPath("owner_repo"), projects[0].Path)
	assert.Positive(t, projects[0].SizeBytes)

	entries, err := os.ReadDir(filepath.Dir(store.SnapshotPath("owner_repo")))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileSnapshotStore_Missing(t *testing.T) {
	store, err := NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "nothing")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestFileSnapshotStore_Corrupt(t *testing.T) {
	store, err := NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.SnapshotPath("broken"), []byte("{not json"), 0o644))

	_, err = store.Load(context.Background(), "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSnapshotNotFound)
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "repochat_owner_repo", CollectionName("owner_repo"))
	assert.Equal(t, "repochat_my_repo_v2", CollectionName("my-repo.v2"))
}
