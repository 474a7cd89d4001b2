package data

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/deepwiki-go/repochat/internal/config"
	"github.com/deepwiki-go/repochat/internal/models"
	"github.com/deepwiki-go/repochat/pkg/utils"
)

var (
	// CodeExtensions are loaded first and may be larger than documentation
	CodeExtensions = []string{".py", ".js", ".ts", ".java", ".cpp", ".c", ".h", ".hpp", ".go", ".rs",
		".jsx", ".tsx", ".html", ".css", ".php", ".swift", ".cs"}
	// DocExtensions are loaded after code files
	DocExtensions = []string{".md", ".txt", ".rst", ".json", ".yaml", ".yml"}

	DefaultExcludedDirs = []string{
		"./.venv/", "./venv/", "./env/", "./virtualenv/",
		"./node_modules/", "./bower_components/", "./jspm_packages/",
		"./.git/", "./.svn/", "./.hg/", "./.bzr/",
		"./__pycache__/", "./.pytest_cache/", "./.mypy_cache/", "./.ruff_cache/", "./.coverage/",
		"./dist/", "./build/", "./out/", "./target/", "./bin/", "./obj/",
		"./docs/", "./_docs/", "./site-docs/", "./_site/",
		"./.idea/", "./.vscode/", "./.vs/", "./.eclipse/", "./.settings/",
		"./logs/", "./log/", "./tmp/", "./temp/",
	}

	DefaultExcludedFiles = []string{
		"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "npm-shrinkwrap.json",
		"poetry.lock", "Pipfile.lock", "requirements.txt.lock", "Cargo.lock", "composer.lock",
		".lock", ".DS_Store", "Thumbs.db", "desktop.ini", "*.lnk",
		".env", ".env.*", "*.env", "*.cfg", "*.ini", ".flaskenv",
		".gitignore", ".gitattributes", ".gitmodules", ".github", ".gitlab-ci.yml",
		".prettierrc", ".eslintrc", ".eslintignore", ".stylelintrc", ".editorconfig",
		".jshintrc", ".pylintrc", ".flake8", "mypy.ini", "pyproject.toml",
		"tsconfig.json", "webpack.config.js", "babel.config.js", "rollup.config.js",
		"jest.config.js", "karma.conf.js", "vite.config.js", "next.config.js",
		"*.min.js", "*.min.css", "*.bundle.js", "*.bundle.css",
		"*.map", "*.gz", "*.zip", "*.tar", "*.tgz", "*.rar",
		"*.pyc", "*.pyo", "*.pyd", "*.so", "*.dll", "*.class", "*.exe", "*.o", "*.a",
		"*.jpg", "*.jpeg", "*.png", "*.gif", "*.ico", "*.svg", "*.webp",
		"*.mp3", "*.mp4", "*.wav", "*.avi", "*.mov", "*.webm",
		"*.csv", "*.tsv", "*.xls", "*.xlsx", "*.db", "*.sqlite", "*.sqlite3",
		"*.pdf", "*.docx", "*.pptx",
	}
)

// FileFilters decides which files are loaded. When either included list is
// non-empty the filter works in inclusion mode and ignores the excluded lists.
type FileFilters struct {
	ExcludedDirs  []string
	ExcludedFiles []string
	IncludedDirs  []string
	IncludedFiles []string
}

// ResolveFilters unions the built-in deny-lists, the configured additions and
// the caller's additions. Included lists are taken from the caller only.
func ResolveFilters(cfg *config.Config, custom FileFilters) FileFilters {
	return FileFilters{
		ExcludedDirs:  unionStrings(DefaultExcludedDirs, cfg.FileFilters.ExcludedDirs, custom.ExcludedDirs),
		ExcludedFiles: unionStrings(DefaultExcludedFiles, cfg.FileFilters.ExcludedFiles, custom.ExcludedFiles),
		IncludedDirs:  unionStrings(custom.IncludedDirs),
		IncludedFiles: unionStrings(custom.IncludedFiles),
	}
}

func (f FileFilters) inclusionMode() bool {
	return len(f.IncludedDirs) > 0 || len(f.IncludedFiles) > 0
}

// ShouldProcess applies the filter to a path relative to the repository root.
func (f FileFilters) ShouldProcess(relPath string) bool {
	segments := strings.Split(filepath.ToSlash(filepath.Clean(relPath)), "/")
	name := segments[len(segments)-1]

	if f.inclusionMode() {
		for _, dir := range f.IncludedDirs {
			if containsSegment(segments, cleanDirPattern(dir)) {
				return true
			}
		}
		for _, pattern := range f.IncludedFiles {
			if name == pattern || strings.HasSuffix(name, pattern) || globMatch(pattern, name) {
				return true
			}
		}
		return false
	}

	for _, dir := range f.ExcludedDirs {
		if containsSegment(segments, cleanDirPattern(dir)) {
			return false
		}
	}
	for _, pattern := range f.ExcludedFiles {
		if name == pattern || globMatch(pattern, name) {
			return false
		}
	}
	return true
}

// cleanDirPattern turns "./node_modules/" into "node_modules". Leading dots of
// the directory name itself are kept so ".git" still matches ".git".
func cleanDirPattern(dir string) string {
	dir = strings.TrimSpace(filepath.ToSlash(dir))
	dir = strings.TrimPrefix(dir, "./")
	return strings.Trim(dir, "/")
}

func containsSegment(segments []string, dir string) bool {
	if dir == "" {
		return false
	}
	// multi-segment entries like "src/generated" match a contiguous run
	want := strings.Split(dir, "/")
	for i := 0; i+len(want) <= len(segments); i++ {
		match := true
		for j, w := range want {
			if segments[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func globMatch(pattern, name string) bool {
	if !strings.ContainsAny(pattern, "*?[") {
		return false
	}
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// isImplementation is false for test files and app entry points
func isImplementation(relPath string) bool {
	base := filepath.Base(relPath)
	return !strings.HasPrefix(base, "test_") &&
		!strings.HasPrefix(base, "app_") &&
		!strings.Contains(strings.ToLower(relPath), "test")
}

// LoadDocuments walks root and returns one Document per qualifying file: all
// code files (grouped by extension) followed by all documentation files.
func LoadDocuments(root string, scheme utils.TokenScheme, filters FileFilters) ([]models.Document, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("read repository root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository root %s is not a directory", root)
	}

	if filters.inclusionMode() {
		log.Printf("Using inclusion mode: dirs=%v files=%v", filters.IncludedDirs, filters.IncludedFiles)
	}
	log.Printf("Reading documents from %s", root)

	var documents []models.Document
	for _, group := range []struct {
		exts   []string
		isCode bool
		limit  int
	}{
		{CodeExtensions, true, utils.MaxEmbeddingTokens * 10},
		{DocExtensions, false, utils.MaxEmbeddingTokens},
	} {
		for _, ext := range group.exts {
			files, err := utils.FindFiles(root, ext)
			if err != nil {
				log.Printf("Failed to list %s files: %v", ext, err)
				continue
			}
			for _, filePath := range files {
				doc, ok := loadFile(root, filePath, ext, group.isCode, group.limit, scheme, filters)
				if ok {
					documents = append(documents, doc)
				}
			}
		}
	}

	log.Printf("Found %d documents", len(documents))
	return documents, nil
}

func loadFile(root, filePath, ext string, isCode bool, limit int, scheme utils.TokenScheme, filters FileFilters) (models.Document, bool) {
	relPath, err := filepath.Rel(root, filePath)
	if err != nil {
		log.Printf("Failed to get relative path for %s: %v", filePath, err)
		return models.Document{}, false
	}
	if !filters.ShouldProcess(relPath) {
		return models.Document{}, false
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		log.Printf("Warning: skipping unreadable file %s: %v", relPath, err)
		return models.Document{}, false
	}
	if !utf8.Valid(content) {
		log.Printf("Warning: skipping %s: not valid UTF-8", relPath)
		return models.Document{}, false
	}

	text := string(content)
	tokenCount := utils.CountTokens(text, scheme)
	if tokenCount > limit {
		log.Printf("Skipping large file %s: token count (%d) exceeds limit (%d)", relPath, tokenCount, limit)
		return models.Document{}, false
	}

	relSlash := filepath.ToSlash(relPath)
	return models.Document{
		Text: text,
		MetaData: models.Metadata{
			FilePath:         relSlash,
			FileType:         strings.TrimPrefix(ext, "."),
			IsCode:           isCode,
			IsImplementation: isCode && isImplementation(relSlash),
			Title:            relSlash,
			TokenCount:       tokenCount,
		},
	}, true
}

// ParseFilterList splits a newline separated, possibly URL encoded list.
func ParseFilterList(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if decoded, err := url.PathUnescape(line); err == nil {
			line = decoded
		}
		out = append(out, line)
	}
	return out
}

func unionStrings(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
