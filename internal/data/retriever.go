package data

import (
	"fmt"
	"math"
	"sort"

	"github.com/deepwiki-go/repochat/internal/models"
)

// ScoredIndex is one retrieval hit: the position of the document in the
// index and its cosine similarity to the query.
type ScoredIndex struct {
	Index int
	Score float32
}

// Retriever is an exact nearest-neighbour index over embedded documents
type Retriever struct {
	docs  []models.Document
	norms []float64
	dim   int
	topK  int
}

// NewRetriever builds a retriever. All vectors must share one dimension.
func NewRetriever(docs []models.Document, topK int) (*Retriever, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyIndex
	}
	if topK <= 0 {
		topK = 20
	}

	dim := len(docs[0].Vector)
	norms := make([]float64, len(docs))
	for i, doc := range docs {
		if len(doc.Vector) == 0 || len(doc.Vector) != dim {
			return nil, fmt.Errorf("%w: document %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(doc.Vector), dim)
		}
		norms[i] = norm(doc.Vector)
	}

	return &Retriever{docs: docs, norms: norms, dim: dim, topK: topK}, nil
}

// Len returns the number of indexed documents
func (r *Retriever) Len() int { return len(r.docs) }

// Document returns the indexed document at i
func (r *Retriever) Document(i int) models.Document { return r.docs[i] }

// Query ranks documents by descending similarity and returns at most topK
// hits. Equal scores keep index order so results are deterministic.
func (r *Retriever) Query(vector []float32) ([]ScoredIndex, error) {
	if len(vector) != r.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(vector), r.dim)
	}

	qNorm := norm(vector)
	scored := make([]ScoredIndex, len(r.docs))
	for i, doc := range r.docs {
		scored[i] = ScoredIndex{Index: i, Score: cosineSimilarity(vector, doc.Vector, qNorm, r.norms[i])}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > r.topK {
		scored = scored[:r.topK]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32, normA, normB float64) float32 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (normA * normB))
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
