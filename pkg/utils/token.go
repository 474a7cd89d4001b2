// pkg/utils/token.go
package utils

import (
	"log"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// MaxEmbeddingTokens is the input limit of the embedding models in use
const MaxEmbeddingTokens = 8192

// TokenScheme selects the tokenizer used for counting
type TokenScheme int

const (
	// SchemeDefault matches the primary (OpenAI) embedding model
	SchemeDefault TokenScheme = iota
	// SchemeGeneric is used for local or alternate embedding backends
	SchemeGeneric
)

const (
	defaultEmbeddingModel = "text-embedding-3-small"
	genericEncoding       = "cl100k_base"
)

type encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
}

// TokenCounter counts tokens with tiktoken, falling back to len/4 whenever a
// tokenizer cannot be loaded or fails.
type TokenCounter struct {
	load func(TokenScheme) (encoder, error)

	mu       sync.Mutex
	encoders map[TokenScheme]encoder
	failed   map[TokenScheme]bool
}

// NewTokenCounter returns a counter backed by tiktoken encodings.
func NewTokenCounter() *TokenCounter {
	return newTokenCounter(loadTiktoken)
}

func newTokenCounter(load func(TokenScheme) (encoder, error)) *TokenCounter {
	return &TokenCounter{
		load:     load,
		encoders: make(map[TokenScheme]encoder),
		failed:   make(map[TokenScheme]bool),
	}
}

func loadTiktoken(scheme TokenScheme) (encoder, error) {
	if scheme == SchemeDefault {
		if enc, err := tiktoken.EncodingForModel(defaultEmbeddingModel); err == nil {
			return enc, nil
		}
	}
	enc, err := tiktoken.GetEncoding(genericEncoding)
	if err != nil {
		return nil, err
	}
	return enc, nil
}

var defaultCounter = NewTokenCounter()

// CountTokens counts tokens with the shared counter.
func CountTokens(text string, scheme TokenScheme) int {
	return defaultCounter.Count(text, scheme)
}

// SchemeFor picks the scheme matching the active embedder.
func SchemeFor(ollama bool) TokenScheme {
	if ollama {
		return SchemeGeneric
	}
	return SchemeDefault
}

// Count returns the token count of text. It never fails.
func (c *TokenCounter) Count(text string, scheme TokenScheme) (n int) {
	enc := c.encoder(scheme)
	if enc == nil {
		return approxTokens(text)
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Tokenizer failed, using approximation: %v", r)
			n = approxTokens(text)
		}
	}()
	return len(enc.Encode(text, nil, nil))
}

func (c *TokenCounter) encoder(scheme TokenScheme) encoder {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encoders[scheme]; ok {
		return enc
	}
	if c.failed[scheme] {
		return nil
	}
	enc, err := c.load(scheme)
	if err != nil || enc == nil {
		log.Printf("Failed to load tokenizer, counting by length: %v", err)
		c.failed[scheme] = true
		return nil
	}
	c.encoders[scheme] = enc
	return enc
}

func approxTokens(text string) int {
	return len(text) / 4
}
