package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"

	"github.com/dentalchat-ai/platform/pkg/logging"
)

var retrieverTracer = otel.Tracer("dentalchat.internal.knowledge.pinecone")

type embeddingClient interface {
	CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Embedder turns text into a query vector with the OpenAI embeddings API.
type Embedder struct {
	client embeddingClient
	model  string
}

// NewEmbedder creates an embedder.
func NewEmbedder(client embeddingClient, model string) *Embedder {
	if client == nil {
		panic("knowledge: embedding client cannot be nil")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &Embedder{client: client, model: model}
}

// Embed returns the embedding vector for a single input.
func (e *Embedder) Embed(ctx context.Context, input string) ([]float32, error) {
	req := &openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{input},
	}
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("knowledge: embed query: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("knowledge: embedding response empty")
	}
	return resp.Data[0].Embedding, nil
}

// EmbedBatch returns embedding vectors for multiple inputs in one call.
func (e *Embedder) EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	req := &openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: inputs,
	}
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("knowledge: embed batch: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, errors.New("knowledge: embedding response size mismatch")
	}
	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

// PineconeClient is a minimal client for the Pinecone serverless query API.
type PineconeClient struct {
	apiKey     string
	indexHost  string
	httpClient *http.Client
}

// NewPineconeClient creates a Pinecone index client.
func NewPineconeClient(apiKey, indexHost string, httpClient *http.Client) (*PineconeClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("knowledge: pinecone API key is required")
	}
	indexHost = strings.TrimRight(strings.TrimSpace(indexHost), "/")
	if indexHost == "" {
		return nil, errors.New("knowledge: pinecone index host is required")
	}
	if !strings.HasPrefix(indexHost, "http") {
		indexHost = "https://" + indexHost
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &PineconeClient{apiKey: apiKey, indexHost: indexHost, httpClient: httpClient}, nil
}

type pineconeQueryRequest struct {
	Namespace       string    `json:"namespace,omitempty"`
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type pineconeQueryResponse struct {
	Matches []struct {
		ID       string            `json:"id"`
		Score    float64           `json:"score"`
		Metadata map[string]string `json:"metadata"`
	} `json:"matches"`
}

// Query returns the metadata text of the topK nearest vectors in a
// namespace.
func (c *PineconeClient) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]string, error) {
	body, err := json.Marshal(pineconeQueryRequest{
		Namespace:       namespace,
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.indexHost+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("knowledge: build query request: %w", err)
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge: query index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("knowledge: pinecone returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var result pineconeQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("knowledge: decode query response: %w", err)
	}

	snippets := make([]string, 0, len(result.Matches))
	for _, match := range result.Matches {
		if text, ok := match.Metadata["text"]; ok && text != "" {
			snippets = append(snippets, text)
		}
	}
	return snippets, nil
}

// PineconeRetriever embeds the query and searches the client's namespace in
// a Pinecone index.
type PineconeRetriever struct {
	embedder *Embedder
	index    *PineconeClient
	topK     int
	logger   *logging.Logger
}

var _ Retriever = (*PineconeRetriever)(nil)

// NewPineconeRetriever wires the embed-then-search retriever.
func NewPineconeRetriever(embedder *Embedder, index *PineconeClient, topK int, logger *logging.Logger) *PineconeRetriever {
	if embedder == nil {
		panic("knowledge: embedder cannot be nil")
	}
	if index == nil {
		panic("knowledge: pinecone client cannot be nil")
	}
	if topK <= 0 {
		topK = 3
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PineconeRetriever{embedder: embedder, index: index, topK: topK, logger: logger}
}

// Retrieve embeds the query and returns the best matching snippets from the
// client's namespace.
func (r *PineconeRetriever) Retrieve(ctx context.Context, clientID, query string) ([]string, error) {
	ctx, span := retrieverTracer.Start(ctx, "knowledge.retrieve")
	defer span.End()

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	snippets, err := r.index.Query(ctx, clientID, vector, r.topK)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return snippets, nil
}
