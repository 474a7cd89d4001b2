package data

import (
	"log"

	"github.com/deepwiki-go/repochat/internal/models"
)

// ValidateAndFilter keeps only documents whose vector has the most common
// length. Ties go to the length seen first. Documents without a vector are
// dropped. The result is empty, never an error, when nothing is usable.
func ValidateAndFilter(docs []models.Document) []models.Document {
	counts := make(map[int]int)
	var order []int
	for _, doc := range docs {
		if !doc.HasVector() {
			continue
		}
		n := len(doc.Vector)
		if counts[n] == 0 {
			order = append(order, n)
		}
		counts[n]++
	}

	if len(order) == 0 {
		log.Printf("Warning: no documents with valid embeddings found")
		return nil
	}

	target := order[0]
	for _, n := range order[1:] {
		if counts[n] > counts[target] {
			target = n
		}
	}
	if len(order) > 1 {
		log.Printf("Found embedding sizes %v, keeping size %d", counts, target)
	}

	valid := make([]models.Document, 0, counts[target])
	for _, doc := range docs {
		if len(doc.Vector) == target {
			valid = append(valid, doc)
		}
	}

	if dropped := len(docs) - len(valid); dropped > 0 {
		log.Printf("Embedding validation dropped %d of %d documents", dropped, len(docs))
	}
	return valid
}
