// internal/rag/rag.go
package rag

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/deepwiki-go/repochat/internal/config"
	"github.com/deepwiki-go/repochat/internal/data"
	"github.com/deepwiki-go/repochat/internal/models"
	"github.com/deepwiki-go/repochat/pkg/utils"
)

// MaxQueryTokens is the size above which the last message is answered
// without retrieval.
const MaxQueryTokens = 8000

// OverflowApology is the final fragment when even the context-free prompt is
// rejected.
const OverflowApology = "\nI apologize, but your request is too large for me to process. Please try a shorter query or break it into smaller parts."

// errorPrefix starts every inline error fragment
const errorPrefix = "\nError: "

var (
	ErrNoMessages         = errors.New("no messages provided")
	ErrLastMessageNotUser = errors.New("last message must be from the user")
	ErrInvalidRequest     = errors.New("invalid request")
)

// IsInputError reports whether err was caused by the request itself.
func IsInputError(err error) bool {
	return errors.Is(err, ErrNoMessages) ||
		errors.Is(err, ErrLastMessageNotUser) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrProviderNotRegistered)
}

// IndexProvider serves the embedded documents of a repository
type IndexProvider interface {
	GetOrBuildIndex(ctx context.Context, req data.IndexRequest) (*data.RepositoryIndex, error)
	Embedder() data.Embedder
}

// FileSource reads a single file from a hosted repository
type FileSource interface {
	FetchFile(ctx context.Context, repoURL, filePath string, kind models.RepoKind, token string) (string, error)
}

// RAG answers questions about a repository with retrieval augmented
// generation.
type RAG struct {
	config    *config.Config
	indexes   IndexProvider
	files     FileSource
	providers *ProviderRegistry

	countTokens func(string, utils.TokenScheme) int

	mu         sync.Mutex
	retrievers map[string]cachedRetriever
}

type cachedRetriever struct {
	index     *data.RepositoryIndex
	retriever *data.Retriever
}

// NewRAG creates an orchestrator over the given index, file source and
// provider registry.
func NewRAG(cfg *config.Config, indexes IndexProvider, files FileSource, providers *ProviderRegistry) *RAG {
	return &RAG{
		config:      cfg,
		indexes:     indexes,
		files:       files,
		providers:   providers,
		countTokens: utils.CountTokens,
		retrievers:  make(map[string]cachedRetriever),
	}
}

// turn is everything resolved for one request before generation starts
type turn struct {
	req       models.ChatCompletionRequest
	kind      models.RepoKind
	generator Generator
	params    GenerateParams
	index     *data.RepositoryIndex
}

// Chat validates the request, prepares the repository index and starts
// streaming the answer. Input and indexing errors are returned directly;
// once streaming has started every failure arrives as an inline fragment.
// The channel is closed when the answer is complete or ctx is done.
func (r *RAG) Chat(ctx context.Context, req models.ChatCompletionRequest) (<-chan string, error) {
	t, err := r.prepare(req)
	if err != nil {
		return nil, err
	}

	custom := data.FileFilters{
		ExcludedDirs:  data.ParseFilterList(req.ExcludedDirs),
		ExcludedFiles: data.ParseFilterList(req.ExcludedFiles),
		IncludedDirs:  data.ParseFilterList(req.IncludedDirs),
		IncludedFiles: data.ParseFilterList(req.IncludedFiles),
	}
	t.index, err = r.indexes.GetOrBuildIndex(ctx, data.IndexRequest{
		Location: req.RepoURL,
		Kind:     t.kind,
		Token:    req.Token,
		Filters:  data.ResolveFilters(r.config, custom),
	})
	if err != nil {
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		r.answer(ctx, t, out)
	}()
	return out, nil
}

func (r *RAG) prepare(req models.ChatCompletionRequest) (*turn, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}
	if req.Messages[len(req.Messages)-1].Role != RoleUser {
		return nil, ErrLastMessageNotUser
	}
	if strings.TrimSpace(req.RepoURL) == "" {
		return nil, fmt.Errorf("%w: repo_url is required", ErrInvalidRequest)
	}
	kind, err := models.ParseRepoKind(req.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	gen, err := r.providers.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = gen.DefaultModel()
	}
	return &turn{
		req:       req,
		kind:      kind,
		generator: gen,
		params: GenerateParams{
			Model:       model,
			Temperature: r.config.Generator.Temperature,
			TopP:        r.config.Generator.TopP,
		},
	}, nil
}

func (r *RAG) answer(ctx context.Context, t *turn, out chan<- string) {
	req := t.req
	memory := MemoryFromMessages(req.Messages)

	research, messages := AnalyzeResearch(req.Messages)
	if research.Enabled {
		log.Printf("Deep Research request detected - iteration %d", research.Iteration)
	}
	query := messages[len(messages)-1].Content

	scheme := utils.SchemeFor(t.generator.Name() == "ollama")
	tooLarge := false
	if tokens := r.countTokens(stripMarker(req.Messages[len(req.Messages)-1].Content), scheme); tokens > MaxQueryTokens {
		log.Printf("Warning: request exceeds recommended token limit (%d > %d), skipping retrieval", tokens, MaxQueryTokens)
		tooLarge = true
	}

	contextText := ""
	if !tooLarge {
		ragQuery := query
		if req.FilePath != "" {
			ragQuery = "Contexts related to " + req.FilePath
		}
		docs, err := r.retrieve(ctx, t.index, ragQuery)
		if err != nil {
			log.Printf("Error in retrieval, answering without context: %v", err)
		}
		contextText = FormatContext(docs)
	}

	systemPrompt, err := SystemPrompt(RepoInfo{
		RepoType: t.kind.DisplayName(),
		RepoURL:  req.RepoURL,
		RepoName: RepoName(req.RepoURL),
		Language: r.config.LanguageName(req.Language),
	}, research)
	if err != nil {
		emit(ctx, out, errorPrefix+err.Error())
		return
	}

	fileContent := ""
	if req.FilePath != "" && t.kind != models.RepoLocal {
		content, err := r.files.FetchFile(ctx, req.RepoURL, req.FilePath, t.kind, req.Token)
		if err != nil {
			log.Printf("Error retrieving file content for %s: %v", req.FilePath, err)
		} else {
			fileContent = content
		}
	}

	parts := PromptParts{
		SystemPrompt: systemPrompt,
		History:      memory.FormattedHistory(),
		FilePath:     req.FilePath,
		FileContent:  fileContent,
		Context:      contextText,
		Query:        query,
	}
	r.generate(ctx, t, parts, out)
}

// retrieve embeds the query and returns the best matching chunks.
func (r *RAG) retrieve(ctx context.Context, idx *data.RepositoryIndex, query string) ([]models.Document, error) {
	retriever, err := r.retrieverFor(idx)
	if err != nil {
		return nil, err
	}
	vectors, err := r.indexes.Embedder().Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, errors.New("embedder returned no query vector")
	}
	hits, err := retriever.Query(vectors[0])
	if err != nil {
		return nil, err
	}

	docs := make([]models.Document, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, retriever.Document(h.Index))
	}
	utils.Debugf("Retrieved %d documents for %q", len(docs), query)
	return docs, nil
}

// Forget drops the cached retriever of a repository so its documents can be
// released after an index reset.
func (r *RAG) Forget(repoID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.retrievers, repoID)
}

func (r *RAG) retrieverFor(idx *data.RepositoryIndex) (*data.Retriever, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.retrievers[idx.RepoID]; ok && c.index == idx {
		return c.retriever, nil
	}
	retriever, err := data.NewRetriever(idx.Documents, r.config.Retriever.TopK)
	if err != nil {
		return nil, fmt.Errorf("build retriever for %s: %w", idx.RepoID, err)
	}
	r.retrievers[idx.RepoID] = cachedRetriever{index: idx, retriever: retriever}
	return retriever, nil
}

// generate streams the answer, retrying once without retrieved context when
// the model reports the prompt as too large.
func (r *RAG) generate(ctx context.Context, t *turn, parts PromptParts, out chan<- string) {
	err := r.relay(ctx, t, BuildPrompt(parts), out)
	if err == nil || ctx.Err() != nil {
		return
	}
	if !IsContextOverflow(err) {
		log.Printf("Error in streaming response from %s: %v", t.generator.Name(), err)
		emit(ctx, out, errorPrefix+err.Error())
		return
	}

	log.Printf("Token limit exceeded on %s, retrying without context", t.generator.Name())
	if err := r.relay(ctx, t, BuildFallbackPrompt(parts), out); err != nil && ctx.Err() == nil {
		log.Printf("Error in fallback streaming response: %v", err)
		emit(ctx, out, OverflowApology)
	}
}

// relay forwards one generation to out. The call is bounded by the generate
// timeout; a timeout is reported as an error, cancellation of ctx is not.
func (r *RAG) relay(ctx context.Context, t *turn, prompt string, out chan<- string) error {
	genCtx, cancel := context.WithTimeout(ctx, r.config.Timeouts.Generate)
	defer cancel()

	fragments, err := t.generator.Generate(genCtx, prompt, t.params)
	if err != nil {
		return err
	}
	for {
		select {
		case f, ok := <-fragments:
			if !ok {
				if genCtx.Err() != nil && ctx.Err() == nil {
					return fmt.Errorf("%s generation timed out after %s", t.generator.Name(), r.config.Timeouts.Generate)
				}
				return nil
			}
			if f.Err != nil {
				return f.Err
			}
			if !emit(ctx, out, f.Text) {
				return ctx.Err()
			}
		case <-genCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%s generation timed out after %s", t.generator.Name(), r.config.Timeouts.Generate)
		}
	}
}

func emit(ctx context.Context, out chan<- string, s string) bool {
	select {
	case out <- s:
		return true
	case <-ctx.Done():
		return false
	}
}
