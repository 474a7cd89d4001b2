package data

import (
	"testing"

	"github.com/deepwiki-go/repochat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vecDoc(path string, v ...float32) models.Document {
	return models.Document{Text: path, MetaData: models.Metadata{FilePath: path}, Vector: v}
}

func TestRetriever_RanksByCosine(t *testing.T) {
	docs := []models.Document{
		vecDoc("x", 1, 0),
		vecDoc("y", 0, 1),
		vecDoc("xy", 1, 1),
		vecDoc("-x", -1, 0),
	}
	r, err := NewRetriever(docs, 3)
	require.NoError(t, err)

	hits, err := r.Query([]float32{2, 0.1})
	require.NoError(t, err)

	require.Len(t, hits, 3)
	assert.Equal(t, []int{0, 2, 1}, []int{hits[0].Index, hits[1].Index, hits[2].Index})
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.Equal(t, "x", r.Document(hits[0].Index).MetaData.FilePath)
}

func TestRetriever_DeterministicTies(t *testing.T) {
	docs := []models.Document{
		vecDoc("a", 1, 0),
		vecDoc("b", 2, 0),
		vecDoc("c", 0, 1),
		vecDoc("d", 3, 0),
	}
	r, err := NewRetriever(docs, 10)
	require.NoError(t, err)

	first, err := r.Query([]float32{1, 0})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.Query([]float32{1, 0})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, []int{0, 1, 3, 2}, []int{first[0].Index, first[1].Index, first[2].Index, first[3].Index})
}

func TestNewRetriever_Errors(t *testing.T) {
	_, err := NewRetriever(nil, 5)
	assert.ErrorIs(t, err, ErrEmptyIndex)

	_, err = NewRetriever([]models.Document{vecDoc("a", 1, 0), vecDoc("b", 1, 0, 0)}, 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = NewRetriever([]models.Document{{Text: "no vector"}}, 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestRetriever_QueryDimensionMismatch(t *testing.T) {
	r, err := NewRetriever([]models.Document{vecDoc("a", 1, 0)}, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	_, err = r.Query([]float32{1, 0, 0})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
