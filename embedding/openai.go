package embedding

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hupe1980/vecsearch/index"
)

// Dimensions of the OpenAI embedding models at their default size.
var openAIDimensions = map[openai.EmbeddingModel]int{
	openai.SmallEmbedding3: 1536,
	openai.LargeEmbedding3: 3072,
	openai.AdaEmbeddingV2:  1536,
}

// OpenAIOptions configures an OpenAI embedder.
type OpenAIOptions struct {
	// APIKey is sent as bearer token. The caller supplies it; the embedder
	// does not read the environment.
	APIKey string
	// Model defaults to text-embedding-3-small.
	Model string
	// Dimensions shortens the embeddings of text-embedding-3 models. Zero
	// keeps the model default; it is required for models of unknown size.
	Dimensions int
	// BaseURL overrides the API endpoint, e.g. for a compatible gateway.
	BaseURL string
	// HTTPClient overrides the HTTP client.
	HTTPClient *http.Client
	// Logger receives request failures.
	Logger *slog.Logger
}

// OpenAI embeds text with the OpenAI embeddings API.
type OpenAI struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimension  int
	dimensions int
	logger     *slog.Logger
}

// NewOpenAI creates an OpenAI embedder.
func NewOpenAI(optFns ...func(o *OpenAIOptions)) (*OpenAI, error) {
	opts := OpenAIOptions{
		Model: string(openai.SmallEmbedding3),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("embedding: openai api key is required")
	}
	if opts.Dimensions < 0 {
		return nil, fmt.Errorf("embedding: invalid dimensions %d", opts.Dimensions)
	}

	model := openai.EmbeddingModel(opts.Model)
	dim := opts.Dimensions
	if dim == 0 {
		var ok bool
		if dim, ok = openAIDimensions[model]; !ok {
			return nil, fmt.Errorf("embedding: dimensions required for model %q", opts.Model)
		}
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &OpenAI{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimension:  dim,
		dimensions: opts.Dimensions,
		logger:     logger,
	}, nil
}

// Dimension implements Embedder.
func (o *OpenAI) Dimension() int { return o.dimension }

// Embed implements Embedder.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements BatchEmbedder with one API request.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      o.model,
		Dimensions: o.dimensions,
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "openai embedding failed", "model", o.model, "texts", len(texts), "error", err)
		return nil, fmt.Errorf("embedding: openai: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d for %d texts", ErrEmptyResponse, len(resp.Data), len(texts))
	}

	data := slices.Clone(resp.Data)
	slices.SortFunc(data, func(a, b openai.Embedding) int { return cmp.Compare(a.Index, b.Index) })

	out := make([][]float32, len(data))
	for i, d := range data {
		if err := index.ValidateVector(o.dimension, d.Embedding); err != nil {
			return nil, fmt.Errorf("embedding: openai text %d: %w", i, err)
		}
		out[i] = d.Embedding
	}
	return out, nil
}
