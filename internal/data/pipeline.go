package data

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/deepwiki-go/repochat/internal/models"
	"github.com/deepwiki-go/repochat/pkg/utils"
	"github.com/sourcegraph/conc/iter"
)

// EmbedOptions tunes EmbedDocuments
type EmbedOptions struct {
	// BatchSize is the number of chunks per call for batch-capable embedders
	BatchSize int
	// Workers bounds concurrent calls for single-item embedders
	Workers int
}

// EmbedDocuments attaches a vector to every chunk it can. Failed batches and
// failed items are logged and dropped. An error is returned only when the
// backend could not be reached for any call.
func EmbedDocuments(ctx context.Context, chunks []models.Document, embedder Embedder, opts EmbedOptions) ([]models.Document, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	if embedder.SupportsBatch() {
		return embedBatches(ctx, chunks, embedder, opts.BatchSize)
	}
	return embedSingly(ctx, chunks, embedder, opts.Workers)
}

func embedBatches(ctx context.Context, chunks []models.Document, embedder Embedder, batchSize int) ([]models.Document, error) {
	var (
		out         []models.Document
		succeeded   int
		unreachable error
	)

	total := (len(chunks) + batchSize - 1) / batchSize
	for start := 0; start < len(chunks); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, doc := range batch {
			texts[i] = doc.Text
		}

		vectors, err := embedder.Embed(ctx, texts)
		if err == nil && len(vectors) != len(batch) {
			err = fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(batch))
		}
		if err != nil {
			log.Printf("Warning: embedding batch %d/%d failed, dropping %d chunks: %v",
				start/batchSize+1, total, len(batch), err)
			if errors.Is(err, ErrEmbedderUnavailable) {
				unreachable = err
			}
			continue
		}
		succeeded++

		for i, doc := range batch {
			doc.Vector = vectors[i]
			out = append(out, doc)
		}
		utils.Debugf("Embedded batch %d/%d", start/batchSize+1, total)
	}

	if succeeded == 0 && unreachable != nil {
		return nil, fmt.Errorf("embed documents: %w", unreachable)
	}
	return out, nil
}

type itemResult struct {
	vector []float32
	err    error
}

func embedSingly(ctx context.Context, chunks []models.Document, embedder Embedder, workers int) ([]models.Document, error) {
	mapper := iter.Mapper[models.Document, itemResult]{MaxGoroutines: workers}
	results := mapper.Map(chunks, func(doc *models.Document) itemResult {
		if err := ctx.Err(); err != nil {
			return itemResult{err: err}
		}
		vectors, err := embedder.Embed(ctx, []string{doc.Text})
		if err != nil {
			return itemResult{err: err}
		}
		if len(vectors) == 0 {
			return itemResult{err: errors.New("empty embedding response")}
		}
		return itemResult{vector: vectors[0]}
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		out          []models.Document
		expectedSize int
		unreachable  error
	)
	for i, res := range results {
		doc := chunks[i]
		if res.err != nil {
			log.Printf("Warning: failed to embed chunk %d of %s: %v", i, doc.MetaData.FilePath, res.err)
			if errors.Is(res.err, ErrEmbedderUnavailable) {
				unreachable = res.err
			}
			continue
		}
		if len(res.vector) == 0 {
			log.Printf("Warning: empty embedding for chunk %d of %s", i, doc.MetaData.FilePath)
			continue
		}
		if expectedSize == 0 {
			expectedSize = len(res.vector)
		} else if len(res.vector) != expectedSize {
			log.Printf("Warning: embedding size %d for %s differs from expected %d, dropping",
				len(res.vector), doc.MetaData.FilePath, expectedSize)
			continue
		}
		doc.Vector = res.vector
		out = append(out, doc)
	}

	if len(out) == 0 && unreachable != nil {
		return nil, fmt.Errorf("embed documents: %w", unreachable)
	}
	return out, nil
}
