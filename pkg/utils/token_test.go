package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type wordEncoder struct{}

func (wordEncoder) Encode(text string, _ []string, _ []string) []int {
	return make([]int, len(strings.Fields(text)))
}

type panickingEncoder struct{}

func (panickingEncoder) Encode(string, []string, []string) []int {
	panic("boom")
}

func TestTokenCounter_UsesEncoder(t *testing.T) {
	c := newTokenCounter(func(TokenScheme) (encoder, error) { return wordEncoder{}, nil })

	assert.Equal(t, 3, c.Count("one two three", SchemeDefault))
	assert.Equal(t, 0, c.Count("", SchemeGeneric))
}

func TestTokenCounter_Fallbacks(t *testing.T) {
	tests := []struct {
		name string
		load func(TokenScheme) (encoder, error)
	}{
		{"load error", func(TokenScheme) (encoder, error) { return nil, errors.New("offline") }},
		{"encoder panics", func(TokenScheme) (encoder, error) { return panickingEncoder{}, nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTokenCounter(tt.load)
			for _, text := range []string{"", "abc", "abcd", strings.Repeat("x", 4001)} {
				n := c.Count(text, SchemeDefault)
				assert.GreaterOrEqual(t, n, 0)
				assert.Equal(t, len(text)/4, n)
			}
		})
	}
}

func TestTokenCounter_LoadsOncePerScheme(t *testing.T) {
	calls := 0
	c := newTokenCounter(func(TokenScheme) (encoder, error) {
		calls++
		return nil, errors.New("offline")
	})
	c.Count("a b c d", SchemeDefault)
	c.Count("a b c d", SchemeDefault)
	c.Count("a b c d", SchemeGeneric)
	assert.Equal(t, 2, calls)
}

func TestSchemeFor(t *testing.T) {
	assert.Equal(t, SchemeGeneric, SchemeFor(true))
	assert.Equal(t, SchemeDefault, SchemeFor(false))
}
