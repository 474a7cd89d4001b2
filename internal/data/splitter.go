package data

import (
	"fmt"
	"strings"

	"github.com/deepwiki-go/repochat/internal/config"
	"github.com/deepwiki-go/repochat/internal/models"
	"github.com/deepwiki-go/repochat/pkg/utils"
)

// TextSplitter cuts documents into overlapping windows
type TextSplitter struct {
	splitBy string
	size    int
	overlap int
	scheme  utils.TokenScheme
}

// NewTextSplitter creates a splitter from the text_splitter config section
func NewTextSplitter(cfg *config.Config) *TextSplitter {
	return &TextSplitter{
		splitBy: cfg.TextSplitter.SplitBy,
		size:    cfg.TextSplitter.ChunkSize,
		overlap: cfg.TextSplitter.ChunkOverlap,
		scheme:  utils.SchemeFor(cfg.IsOllamaEmbedder()),
	}
}

// SplitDocuments replaces every document by its chunks. Metadata is copied
// and token counts are recomputed per chunk.
func (s *TextSplitter) SplitDocuments(docs []models.Document) []models.Document {
	var chunks []models.Document
	for _, doc := range docs {
		for i, text := range s.SplitText(doc.Text) {
			meta := doc.MetaData
			meta.TokenCount = utils.CountTokens(text, s.scheme)
			chunks = append(chunks, models.Document{
				ID:       fmt.Sprintf("%s#%d", doc.MetaData.FilePath, i),
				Text:     text,
				MetaData: meta,
			})
		}
	}
	return chunks
}

// SplitText splits text into chunks
func (s *TextSplitter) SplitText(text string) []string {
	if s.splitBy == "line" {
		return s.splitLines(text)
	}
	return splitWords(text, s.size, s.overlap)
}

// splitWords windows the word sequence; the last window may be shorter.
func splitWords(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := size - overlap
	if step < 1 {
		step = 1
	}

	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// splitLines packs whole lines until the word budget is reached, carrying
// the last overlap lines into the next chunk.
func (s *TextSplitter) splitLines(text string) []string {
	var chunks []string
	var current []string
	currentLength := 0

	for _, line := range strings.Split(text, "\n") {
		lineWords := len(strings.Fields(line))
		if currentLength+lineWords > s.size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n"))

			if s.overlap > 0 && len(current) > s.overlap {
				current = append([]string(nil), current[len(current)-s.overlap:]...)
			} else {
				current = nil
			}
			currentLength = 0
			for _, l := range current {
				currentLength += len(strings.Fields(l))
			}
		}
		current = append(current, line)
		currentLength += lineWords
	}

	if len(current) > 0 && strings.TrimSpace(strings.Join(current, "")) != "" {
		chunks = append(chunks, strings.Join(current, "\n"))
	}
	return chunks
}
