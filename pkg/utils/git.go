// pkg/utils/git.go
package utils

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const tokenMask = "***TOKEN***"

// CloneOptions configures a shallow clone
type CloneOptions struct {
	// Token is scrubbed from any error output
	Token string
	// Proxy, when set, is exported as http_proxy/https_proxy to git
	Proxy string
}

// CloneRepo shallow-clones cloneURL into localPath. The URL may already carry
// credentials; they never appear in the returned error.
func CloneRepo(ctx context.Context, cloneURL, localPath string, opts CloneOptions) error {
	if _, err := exec.LookPath("git"); err != nil {
		return fmt.Errorf("git is not installed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth=1", "--single-branch", cloneURL, localPath)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if opts.Proxy != "" {
		cmd.Env = append(cmd.Env,
			"http_proxy="+opts.Proxy, "https_proxy="+opts.Proxy,
			"HTTP_PROXY="+opts.Proxy, "HTTPS_PROXY="+opts.Proxy)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(output))
		if ctx.Err() != nil {
			msg = fmt.Sprintf("%s (%v)", msg, ctx.Err())
		}
		return fmt.Errorf("error during cloning: %s", ScrubToken(msg, opts.Token))
	}
	return nil
}

// ScrubToken replaces every occurrence of token in s.
func ScrubToken(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, tokenMask)
}

// IsPopulatedDir reports whether path is a directory with at least one entry.
func IsPopulatedDir(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) > 0
}

// DirSize sums the sizes of regular files under root, skipping .git.
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// FindFiles recursively finds all files with the given extension, in
// lexical walk order.
func FindFiles(root string, ext string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) && path != root {
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ext) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
