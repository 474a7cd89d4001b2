package data

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedDocuments_Batches(t *testing.T) {
	emb := &fakeEmbedder{batch: true, vec: lengthVector(4)}
	chunks := docsWithTexts("a", "bb", "ccc", "dddd", "eeeee")

	out, err := EmbedDocuments(context.Background(), chunks, emb, EmbedOptions{BatchSize: 2})
	require.NoError(t, err)

	require.Len(t, out, 5)
	assert.Equal(t, 3, emb.callCount())
	for i, doc := range out {
		assert.Equal(t, chunks[i].Text, doc.Text)
		assert.Equal(t, float32(len(doc.Text)), doc.Vector[0])
	}
	assert.False(t, chunks[0].HasVector(), "input chunks are not mutated")
}

func TestEmbedDocuments_FailedBatchDropped(t *testing.T) {
	emb := &fakeEmbedder{
		batch: true,
		vec:   lengthVector(4),
		fail:  map[string]error{"ccc": errors.New("rate limited")},
	}
	chunks := docsWithTexts("a", "bb", "ccc", "dddd", "eeeee")

	out, err := EmbedDocuments(context.Background(), chunks, emb, EmbedOptions{BatchSize: 2})
	require.NoError(t, err)

	var texts []string
	for _, d := range out {
		texts = append(texts, d.Text)
	}
	assert.Equal(t, []string{"a", "bb", "eeeee"}, texts)
}

func TestEmbedDocuments_SingleItemExpectedSize(t *testing.T) {
	emb := &fakeEmbedder{
		vec: func(text string) []float32 {
			if text == "odd" {
				return make([]float32, 128)
			}
			return make([]float32, 256)
		},
		fail: map[string]error{"broken": errors.New("bad input")},
	}
	chunks := docsWithTexts("first", "odd", "broken", "second")

	out, err := EmbedDocuments(context.Background(), chunks, emb, EmbedOptions{Workers: 3})
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Text)
	assert.Equal(t, "second", out[1].Text)
	assert.Equal(t, 4, emb.callCount())
	for _, call := range emb.calls {
		assert.Len(t, call, 1)
	}
}

func TestEmbedDocuments_Unreachable(t *testing.T) {
	unreachable := fmt.Errorf("%w: %v", ErrEmbedderUnavailable, errUnreachable)
	chunks := docsWithTexts("a", "b")

	t.Run("single", func(t *testing.T) {
		emb := &fakeEmbedder{vec: lengthVector(2), fail: map[string]error{"a": unreachable, "b": unreachable}}
		_, err := EmbedDocuments(context.Background(), chunks, emb, EmbedOptions{})
		assert.ErrorIs(t, err, ErrEmbedderUnavailable)
	})

	t.Run("batch", func(t *testing.T) {
		emb := &fakeEmbedder{batch: true, vec: lengthVector(2), fail: map[string]error{"a": unreachable}}
		_, err := EmbedDocuments(context.Background(), chunks, emb, EmbedOptions{})
		assert.ErrorIs(t, err, ErrEmbedderUnavailable)
	})

	t.Run("partial outage is absorbed", func(t *testing.T) {
		emb := &fakeEmbedder{vec: lengthVector(2), fail: map[string]error{"a": unreachable}}
		out, err := EmbedDocuments(context.Background(), chunks, emb, EmbedOptions{})
		require.NoError(t, err)
		assert.Len(t, out, 1)
	})
}

func TestEmbedDocuments_Empty(t *testing.T) {
	out, err := EmbedDocuments(context.Background(), nil, &fakeEmbedder{}, EmbedOptions{})
	assert.NoError(t, err)
	assert.Empty(t, out)
}
