package data

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/deepwiki-go/repochat/internal/config"
	"github.com/deepwiki-go/repochat/internal/models"
	"github.com/deepwiki-go/repochat/pkg/utils"
)

// IndexRequest identifies the repository to index and how to filter it
type IndexRequest struct {
	Location string
	Kind     models.RepoKind
	Token    string
	Filters  FileFilters
}

// RepositoryIndex is the in-memory state kept per repository identifier
type RepositoryIndex struct {
	RepoID       string
	SourcePath   string
	SnapshotPath string
	Documents    []models.Document
}

// DatabaseManager fetches, loads, chunks, embeds and persists repositories,
// and serves later requests from the persisted snapshot.
type DatabaseManager struct {
	config   *config.Config
	fetcher  RepositoryFetcher
	embedder Embedder
	splitter *TextSplitter
	store    SnapshotStore
	locker   BuildLocker
	scheme   utils.TokenScheme

	mu      sync.RWMutex
	indexes map[string]*RepositoryIndex
}

// NewDatabaseManager wires the index pipeline together
func NewDatabaseManager(cfg *config.Config, fetcher RepositoryFetcher, embedder Embedder, store SnapshotStore, locker BuildLocker) *DatabaseManager {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &DatabaseManager{
		config:   cfg,
		fetcher:  fetcher,
		embedder: embedder,
		splitter: NewTextSplitter(cfg),
		store:    store,
		locker:   locker,
		scheme:   utils.SchemeFor(cfg.IsOllamaEmbedder()),
		indexes:  make(map[string]*RepositoryIndex),
	}
}

// Embedder returns the embedder used for indexing; queries must use it too.
func (dm *DatabaseManager) Embedder() Embedder { return dm.embedder }

// GetOrBuildIndex returns the validated, embedded documents for a
// repository. A usable snapshot short-circuits the whole build. A build that
// ends with no valid document returns ErrNoValidDocuments and persists
// nothing.
func (dm *DatabaseManager) GetOrBuildIndex(ctx context.Context, req IndexRequest) (*RepositoryIndex, error) {
	repoID := RepoIdentifier(req.Location, req.Kind)
	if repoID == "" {
		return nil, fmt.Errorf("cannot derive repository identifier from %q", req.Location)
	}

	if idx := dm.cached(repoID); idx != nil {
		return idx, nil
	}
	if idx := dm.loadSnapshot(ctx, repoID); idx != nil {
		return idx, nil
	}

	release, err := dm.locker.Lock(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("wait for index build of %s: %w", repoID, err)
	}
	defer release()

	// another builder may have finished while we waited
	if idx := dm.loadSnapshot(ctx, repoID); idx != nil {
		return idx, nil
	}
	return dm.build(ctx, repoID, req)
}

func (dm *DatabaseManager) cached(repoID string) *RepositoryIndex {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.indexes[repoID]
}

func (dm *DatabaseManager) remember(idx *RepositoryIndex) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.indexes[idx.RepoID] = idx
}

// loadSnapshot returns nil on any miss; corrupt, empty or foreign-embedder
// snapshots are logged and rebuilt.
func (dm *DatabaseManager) loadSnapshot(ctx context.Context, repoID string) *RepositoryIndex {
	snap, err := dm.store.Load(ctx, repoID)
	if errors.Is(err, ErrSnapshotNotFound) {
		return nil
	}
	if err != nil {
		log.Printf("Failed to load snapshot for %s, rebuilding: %v", repoID, err)
		return nil
	}

	if want := dm.embedder.ModelName(); snap.Embedder != want {
		log.Printf("Snapshot for %s was embedded with %q, not %q, rebuilding", repoID, snap.Embedder, want)
		return nil
	}

	docs := ValidateAndFilter(snap.Documents)
	if len(docs) == 0 {
		log.Printf("Snapshot for %s has no valid documents, rebuilding", repoID)
		return nil
	}

	log.Printf("Loaded %d documents for %s from snapshot", len(docs), repoID)
	idx := &RepositoryIndex{
		RepoID:       repoID,
		SourcePath:   snap.SourcePath,
		SnapshotPath: dm.snapshotPath(repoID),
		Documents:    docs,
	}
	dm.remember(idx)
	return idx
}

func (dm *DatabaseManager) build(ctx context.Context, repoID string, req IndexRequest) (*RepositoryIndex, error) {
	start := time.Now()

	sourcePath, err := dm.fetcher.FetchRepository(ctx, req.Location, req.Kind, req.Token)
	if err != nil {
		return nil, err
	}

	documents, err := LoadDocuments(sourcePath, dm.scheme, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	chunks := dm.splitter.SplitDocuments(documents)
	log.Printf("Split %d documents into %d chunks", len(documents), len(chunks))

	embedded, err := EmbedDocuments(ctx, chunks, dm.embedder, EmbedOptions{
		BatchSize: dm.config.Embedder.BatchSize,
		Workers:   dm.config.Embedder.Workers,
	})
	if err != nil {
		return nil, err
	}

	valid := ValidateAndFilter(embedded)
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoValidDocuments, repoID)
	}

	snap := &Snapshot{
		RepoID:     repoID,
		SourcePath: sourcePath,
		Embedder:   dm.embedder.ModelName(),
		CreatedAt:  time.Now(),
		Documents:  valid,
	}
	if err := dm.store.Save(ctx, snap); err != nil {
		log.Printf("Warning: failed to persist snapshot for %s: %v", repoID, err)
	}

	idx := &RepositoryIndex{
		RepoID:       repoID,
		SourcePath:   sourcePath,
		SnapshotPath: dm.snapshotPath(repoID),
		Documents:    valid,
	}
	dm.remember(idx)

	log.Printf("Indexed %s: %d documents in %s", repoID, len(valid), time.Since(start).Round(time.Millisecond))
	return idx, nil
}

func (dm *DatabaseManager) snapshotPath(repoID string) string {
	if fs, ok := dm.store.(*FileSnapshotStore); ok {
		return fs.SnapshotPath(repoID)
	}
	return CollectionName(repoID)
}

// Reset forgets the in-memory index for repoID. The snapshot stays on disk.
func (dm *DatabaseManager) Reset(repoID string) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	_, ok := dm.indexes[repoID]
	delete(dm.indexes, repoID)
	return ok
}

// ListProcessed describes every persisted snapshot
func (dm *DatabaseManager) ListProcessed(ctx context.Context) ([]models.ProcessedProject, error) {
	return dm.store.List(ctx)
}
