package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// EmbeddingDimensions matches the vector(768) column on transcript entries.
const EmbeddingDimensions = 768

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type OpenAIEmbedder struct {
	client openai.Client
	model  string
	dim    int
}

func NewOpenAIEmbedder(apiKey, baseURL, model string) *OpenAIEmbedder {
	if model == "" {
		model = openai.EmbeddingModelTextEmbedding3Small
	}
	return &OpenAIEmbedder{
		client: newOpenAIClient(apiKey, baseURL),
		model:  model,
		dim:    EmbeddingDimensions,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          e.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions:     openai.Int(int64(e.dim)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= int64(len(texts)) {
			return nil, fmt.Errorf("unexpected embedding index %d for batch size %d", item.Index, len(texts))
		}
		v := make([]float32, len(item.Embedding))
		for i, f := range item.Embedding {
			v[i] = float32(f)
		}
		vecs[item.Index] = v
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}
	return vecs, nil
}
