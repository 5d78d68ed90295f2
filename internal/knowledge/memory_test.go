package knowledge

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddingClient maps known strings to fixed vectors so similarity
// ordering is deterministic.
type fakeEmbeddingClient struct {
	vectors map[string][]float32
}

func (f *fakeEmbeddingClient) CreateEmbeddings(_ context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	req := request.Convert()
	inputs, _ := req.Input.([]string)
	resp := openai.EmbeddingResponse{}
	for _, input := range inputs {
		vec, ok := f.vectors[input]
		if !ok {
			vec = []float32{0, 0, 1}
		}
		resp.Data = append(resp.Data, openai.Embedding{Embedding: vec})
	}
	return resp, nil
}

func TestMemoryStoreRetrievesByRelevance(t *testing.T) {
	client := &fakeEmbeddingClient{vectors: map[string][]float32{
		"We offer teeth whitening.":     {1, 0, 0},
		"Parking is behind the office.": {0, 1, 0},
		"how much is whitening?":        {0.9, 0.1, 0},
	}}
	store := NewMemoryStore(NewEmbedder(client, ""), 1, nil)

	err := store.AddDocuments(context.Background(), "clinic-1", []string{
		"We offer teeth whitening.",
		"Parking is behind the office.",
	})
	require.NoError(t, err)

	snippets, err := store.Retrieve(context.Background(), "clinic-1", "how much is whitening?")
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "We offer teeth whitening.", snippets[0])
}

func TestMemoryStoreIsolatesTenants(t *testing.T) {
	client := &fakeEmbeddingClient{vectors: map[string][]float32{
		"Clinic A pricing.": {1, 0, 0},
		"anything":          {1, 0, 0},
	}}
	store := NewMemoryStore(NewEmbedder(client, ""), 3, nil)

	require.NoError(t, store.AddDocuments(context.Background(), "clinic-a", []string{"Clinic A pricing."}))

	snippets, err := store.Retrieve(context.Background(), "clinic-b", "anything")
	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestMemoryStoreSharedDocumentsVisibleToAll(t *testing.T) {
	client := &fakeEmbeddingClient{vectors: map[string][]float32{
		"Brush twice a day.": {1, 0, 0},
		"hygiene tips":       {1, 0, 0},
	}}
	store := NewMemoryStore(NewEmbedder(client, ""), 3, nil)

	require.NoError(t, store.AddDocuments(context.Background(), "", []string{"Brush twice a day."}))

	snippets, err := store.Retrieve(context.Background(), "clinic-a", "hygiene tips")
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "Brush twice a day.", snippets[0])
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Zero(t, cosineSimilarity(nil, nil))
}
