package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/deepwiki-go/repochat/internal/config"
	"github.com/deepwiki-go/repochat/internal/models"
)

// ErrSnapshotNotFound is returned by Load when nothing was persisted for an id
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotStore persists the embedded documents of one repository. Save
// always overwrites the whole snapshot.
type SnapshotStore interface {
	Load(ctx context.Context, repoID string) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	List(ctx context.Context) ([]models.ProcessedProject, error)
	Close() error
}

// Snapshot is the persisted form of a repository index
type Snapshot struct {
	RepoID     string            `json:"repo_id"`
	SourcePath string            `json:"source_path"`
	Embedder   string            `json:"embedder"`
	CreatedAt  time.Time         `json:"created_at"`
	Documents  []models.Document `json:"documents"`
}

// NewSnapshotStore returns the store selected by storage.backend
func NewSnapshotStore(ctx context.Context, cfg *config.Config) (SnapshotStore, error) {
	switch cfg.Storage.Backend {
	case "milvus":
		return NewMilvusSnapshotStore(ctx, cfg)
	default:
		return NewFileSnapshotStore(cfg.DatabasesDir())
	}
}

// FileSnapshotStore keeps one JSON file per repository identifier
type FileSnapshotStore struct {
	basePath string
}

// NewFileSnapshotStore creates the store, creating basePath if needed
func NewFileSnapshotStore(basePath string) (*FileSnapshotStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &FileSnapshotStore{basePath: basePath}, nil
}

// SnapshotPath is the file holding the snapshot for repoID
func (s *FileSnapshotStore) SnapshotPath(repoID string) string {
	return filepath.Join(s.basePath, repoID+".json")
}

// Load reads the snapshot for repoID
func (s *FileSnapshotStore) Load(_ context.Context, repoID string) (*Snapshot, error) {
	data, err := os.ReadFile(s.SnapshotPath(repoID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", repoID, err)
	}
	return &snap, nil
}

// Save writes the snapshot to a temp file and renames it into place, so
// concurrent readers see either the old or the new snapshot.
func (s *FileSnapshotStore) Save(_ context.Context, snap *Snapshot) error {
	if err := os.MkdirAll(s.basePath, 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(s.basePath, snap.RepoID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.SnapshotPath(snap.RepoID)); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// List describes every persisted snapshot, newest first
func (s *FileSnapshotStore) List(_ context.Context) ([]models.ProcessedProject, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("read snapshot directory: %w", err)
	}

	var projects []models.ProcessedProject
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		projects = append(projects, models.ProcessedProject{
			ID:        strings.TrimSuffix(name, ".json"),
			Path:      filepath.Join(s.basePath, name),
			SizeBytes: info.Size(),
			Modified:  info.ModTime().UnixMilli(),
		})
	}

	sort.Slice(projects, func(i, j int) bool {
		return projects[i].Modified > projects[j].Modified
	})
	return projects, nil
}

func (s *FileSnapshotStore) Close() error { return nil }
