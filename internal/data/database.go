package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/deepwiki-go/repochat/internal/config"
	"github.com/deepwiki-go/repochat/internal/models"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	collectionPrefix = "repochat_"
	milvusBatchSize  = 1000
	maxVarCharLength = "65535"
)

var collectionNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]`)

// MilvusSnapshotStore keeps one Milvus collection per repository identifier.
// Retrieval stays in memory; Milvus only stores and returns the snapshot.
type MilvusSnapshotStore struct {
	milvusClient client.Client
	address      string
}

// collectionInfo is stored as the collection description
type collectionInfo struct {
	RepoID     string `json:"repo_id"`
	SourcePath string `json:"source_path"`
	Embedder   string `json:"embedder"`
	CreatedAt  int64  `json:"created_at"`
}

// NewMilvusSnapshotStore connects to milvus.address
func NewMilvusSnapshotStore(ctx context.Context, cfg *config.Config) (*MilvusSnapshotStore, error) {
	log.Printf("Connecting to Milvus at %s", cfg.Milvus.Address)
	milvusClient, err := client.NewClient(ctx, client.Config{
		Address: cfg.Milvus.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Milvus: %w", err)
	}
	return &MilvusSnapshotStore{milvusClient: milvusClient, address: cfg.Milvus.Address}, nil
}

// CollectionName maps a repository identifier to a valid collection name
func CollectionName(repoID string) string {
	return collectionPrefix + collectionNameSanitizer.ReplaceAllString(repoID, "_")
}

// Save drops any previous collection for the repository, then inserts the
// documents in order under a fresh FLAT index.
func (m *MilvusSnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	if len(snap.Documents) == 0 {
		return errors.New("refusing to save an empty snapshot")
	}
	name := CollectionName(snap.RepoID)
	dim := len(snap.Documents[0].Vector)

	has, err := m.milvusClient.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check if collection exists: %w", err)
	}
	if has {
		if err := m.milvusClient.DropCollection(ctx, name); err != nil {
			return fmt.Errorf("failed to drop collection '%s': %w", name, err)
		}
	}

	info, err := json.Marshal(collectionInfo{
		RepoID:     snap.RepoID,
		SourcePath: snap.SourcePath,
		Embedder:   snap.Embedder,
		CreatedAt:  snap.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return err
	}

	schema := &entity.Schema{
		CollectionName: name,
		Description:    string(info),
		AutoID:         false,
		Fields: []*entity.Field{
			{Name: "seq", DataType: entity.FieldTypeInt64, PrimaryKey: true, AutoID: false},
			{Name: "file_path", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": maxVarCharLength}},
			{Name: "text", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": maxVarCharLength}},
			{Name: "metadata_json", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": maxVarCharLength}},
			{Name: "embedding", DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": fmt.Sprintf("%d", dim)}},
		},
	}
	if err := m.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection '%s': %w", name, err)
	}

	if err := m.fill(ctx, name, dim, snap.Documents); err != nil {
		// no partial collection may outlive a failed save
		if dropErr := m.milvusClient.DropCollection(ctx, name); dropErr != nil {
			log.Printf("Failed to drop partial collection '%s': %v", name, dropErr)
		}
		return err
	}

	log.Printf("Saved %d documents to Milvus collection '%s'", len(snap.Documents), name)
	return nil
}

// fill inserts docs in batches, then flushes, indexes and loads the
// collection.
func (m *MilvusSnapshotStore) fill(ctx context.Context, name string, dim int, docs []models.Document) error {
	for start := 0; start < len(docs); start += milvusBatchSize {
		end := start + milvusBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		if err := m.insertBatch(ctx, name, dim, start, docs[start:end]); err != nil {
			return err
		}
	}

	if err := m.milvusClient.Flush(ctx, name, false); err != nil {
		return fmt.Errorf("failed to flush collection '%s': %w", name, err)
	}

	index, err := entity.NewIndexFlat(entity.L2)
	if err != nil {
		return fmt.Errorf("failed to create FLAT index parameters: %w", err)
	}
	if err := m.milvusClient.CreateIndex(ctx, name, "embedding", index, false); err != nil {
		return fmt.Errorf("failed to create index on 'embedding': %w", err)
	}
	if err := m.milvusClient.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("failed to load collection '%s': %w", name, err)
	}
	return nil
}

func (m *MilvusSnapshotStore) insertBatch(ctx context.Context, name string, dim, offset int, docs []models.Document) error {
	seqs := make([]int64, len(docs))
	paths := make([]string, len(docs))
	texts := make([]string, len(docs))
	metas := make([]string, len(docs))
	vectors := make([][]float32, len(docs))

	for i, doc := range docs {
		if len(doc.Vector) != dim {
			return fmt.Errorf("%w: document %d", ErrDimensionMismatch, offset+i)
		}
		metadataBytes, err := json.Marshal(struct {
			ID string `json:"id"`
			models.Metadata
		}{doc.ID, doc.MetaData})
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for '%s': %w", doc.MetaData.FilePath, err)
		}
		seqs[i] = int64(offset + i)
		paths[i] = doc.MetaData.FilePath
		texts[i] = doc.Text
		metas[i] = string(metadataBytes)
		vectors[i] = doc.Vector
	}

	_, err := m.milvusClient.Insert(ctx, name, "",
		entity.NewColumnInt64("seq", seqs),
		entity.NewColumnVarChar("file_path", paths),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("metadata_json", metas),
		entity.NewColumnFloatVector("embedding", dim, vectors),
	)
	if err != nil {
		return fmt.Errorf("failed to insert documents %d..%d into '%s': %w", offset, offset+len(docs), name, err)
	}
	return nil
}

// Load pages through the collection by seq and restores document order.
func (m *MilvusSnapshotStore) Load(ctx context.Context, repoID string) (*Snapshot, error) {
	name := CollectionName(repoID)

	has, err := m.milvusClient.HasCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check if collection exists: %w", err)
	}
	if !has {
		return nil, ErrSnapshotNotFound
	}

	coll, err := m.milvusClient.DescribeCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to describe collection '%s': %w", name, err)
	}
	var info collectionInfo
	if coll.Schema != nil {
		if err := json.Unmarshal([]byte(coll.Schema.Description), &info); err != nil {
			return nil, fmt.Errorf("collection '%s' has no snapshot description: %w", name, err)
		}
	}
	if info.RepoID != repoID {
		return nil, fmt.Errorf("collection '%s' belongs to %q, not %q", name, info.RepoID, repoID)
	}

	if err := m.milvusClient.LoadCollection(ctx, name, false); err != nil {
		return nil, fmt.Errorf("failed to load collection '%s': %w", name, err)
	}

	var docs []models.Document
	for start := 0; ; start += milvusBatchSize {
		expr := fmt.Sprintf("seq >= %d && seq < %d", start, start+milvusBatchSize)
		results, err := m.milvusClient.Query(ctx, name, []string{}, expr,
			[]string{"seq", "text", "metadata_json", "embedding"})
		if err != nil {
			return nil, fmt.Errorf("Milvus query on '%s' failed: %w", name, err)
		}
		page, err := decodeQueryPage(results)
		if err != nil {
			return nil, fmt.Errorf("collection '%s': %w", name, err)
		}
		docs = append(docs, page...)
		if len(page) < milvusBatchSize {
			break
		}
	}

	return &Snapshot{
		RepoID:     info.RepoID,
		SourcePath: info.SourcePath,
		Embedder:   info.Embedder,
		CreatedAt:  time.UnixMilli(info.CreatedAt),
		Documents:  docs,
	}, nil
}

func decodeQueryPage(results client.ResultSet) ([]models.Document, error) {
	if results.Len() == 0 {
		return nil, nil
	}

	seqCol, ok1 := results.GetColumn("seq").(*entity.ColumnInt64)
	textCol, ok2 := results.GetColumn("text").(*entity.ColumnVarChar)
	metaCol, ok3 := results.GetColumn("metadata_json").(*entity.ColumnVarChar)
	vecCol, ok4 := results.GetColumn("embedding").(*entity.ColumnFloatVector)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, errors.New("query result columns have unexpected types")
	}

	seqs, texts, metas, vectors := seqCol.Data(), textCol.Data(), metaCol.Data(), vecCol.Data()
	if len(texts) != len(seqs) || len(metas) != len(seqs) || len(vectors) != len(seqs) {
		return nil, errors.New("query result columns have different lengths")
	}

	type row struct {
		seq int64
		doc models.Document
	}
	rows := make([]row, len(seqs))
	for i := range seqs {
		var meta struct {
			ID string `json:"id"`
			models.Metadata
		}
		if err := json.Unmarshal([]byte(metas[i]), &meta); err != nil {
			return nil, fmt.Errorf("decode metadata of row %d: %w", seqs[i], err)
		}
		rows[i] = row{seq: seqs[i], doc: models.Document{
			ID:       meta.ID,
			Text:     texts[i],
			MetaData: meta.Metadata,
			Vector:   vectors[i],
		}}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	docs := make([]models.Document, len(rows))
	for i, r := range rows {
		docs[i] = r.doc
	}
	return docs, nil
}

// List describes every repochat collection
func (m *MilvusSnapshotStore) List(ctx context.Context) ([]models.ProcessedProject, error) {
	collections, err := m.milvusClient.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	var projects []models.ProcessedProject
	for _, c := range collections {
		if !strings.HasPrefix(c.Name, collectionPrefix) {
			continue
		}
		project := models.ProcessedProject{
			ID:   strings.TrimPrefix(c.Name, collectionPrefix),
			Path: "milvus://" + m.address + "/" + c.Name,
		}
		if coll, err := m.milvusClient.DescribeCollection(ctx, c.Name); err == nil && coll.Schema != nil {
			var info collectionInfo
			if json.Unmarshal([]byte(coll.Schema.Description), &info) == nil {
				project.ID = info.RepoID
				project.Modified = info.CreatedAt
			}
		}
		projects = append(projects, project)
	}

	sort.Slice(projects, func(i, j int) bool {
		return projects[i].Modified > projects[j].Modified
	})
	return projects, nil
}

// Close cleans up the Milvus connection
func (m *MilvusSnapshotStore) Close() error {
	if m.milvusClient == nil {
		return nil
	}
	log.Println("Milvus connection closed.")
	return m.milvusClient.Close()
}
