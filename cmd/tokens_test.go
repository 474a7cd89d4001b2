package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokensCommand_Stdin(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader("hello world"))
	rootCmd.SetArgs([]string{"tokens", "-"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "default: ")
	assert.Contains(t, out.String(), "generic: ")
	assert.Contains(t, out.String(), "limit:   8192")
}

func TestTokensCommand_MissingFile(t *testing.T) {
	rootCmd.SetArgs([]string{"tokens", "/definitely/not/here.txt"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	assert.Error(t, rootCmd.Execute())
}
