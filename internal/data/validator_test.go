package data

import (
	"fmt"
	"testing"

	"github.com/deepwiki-go/repochat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndFilter_MajorityWins(t *testing.T) {
	var docs []models.Document
	for i := 0; i < 9; i++ {
		docs = append(docs, docWithDim(256, fmt.Sprintf("f%d.go", i)))
	}
	docs = append(docs, docWithDim(128, "odd.go"))

	valid := ValidateAndFilter(docs)

	require.Len(t, valid, 9)
	for _, d := range valid {
		assert.Len(t, d.Vector, 256)
		assert.NotEqual(t, "odd.go", d.MetaData.FilePath)
	}
}

func TestValidateAndFilter_TieGoesToFirstSeen(t *testing.T) {
	docs := []models.Document{
		docWithDim(64, "a"),
		docWithDim(32, "b"),
		docWithDim(32, "c"),
		docWithDim(64, "d"),
	}

	valid := ValidateAndFilter(docs)
	assert.Equal(t, []string{"a", "d"}, filePaths(valid))
}

func TestValidateAndFilter_DropsMissingVectors(t *testing.T) {
	docs := []models.Document{
		{Text: "no vector"},
		{Text: "empty vector", Vector: []float32{}},
		docWithDim(8, "ok"),
	}

	valid := ValidateAndFilter(docs)
	assert.Equal(t, []string{"ok"}, filePaths(valid))
}

func TestValidateAndFilter_NothingUsable(t *testing.T) {
	assert.Empty(t, ValidateAndFilter(nil))
	assert.Empty(t, ValidateAndFilter([]models.Document{{Text: "x"}}))
}

func TestValidateAndFilter_Properties(t *testing.T) {
	inputs := [][]int{
		{3, 3, 3},
		{1, 2, 3, 4},
		{5, 0, 5, 7, 7, 7},
		{0, 0},
		{2},
	}
	for _, dims := range inputs {
		t.Run(fmt.Sprint(dims), func(t *testing.T) {
			var docs []models.Document
			for i, d := range dims {
				if d == 0 {
					docs = append(docs, models.Document{Text: fmt.Sprint(i)})
					continue
				}
				docs = append(docs, docWithDim(d, fmt.Sprint(i)))
			}

			valid := ValidateAndFilter(docs)
			assert.LessOrEqual(t, len(valid), len(docs))

			sizes := map[int]bool{}
			for _, d := range valid {
				sizes[len(d.Vector)] = true
			}
			assert.LessOrEqual(t, len(sizes), 1)

			hasVector := false
			for _, d := range dims {
				hasVector = hasVector || d > 0
			}
			assert.Equal(t, hasVector, len(valid) > 0)
		})
	}
}
