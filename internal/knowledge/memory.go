package knowledge

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/dentalchat-ai/platform/pkg/logging"
)

// MemoryStore keeps embedded documents in memory and retrieves by cosine
// similarity. It backs local development and tests when no Pinecone index is
// configured. Documents stored under the empty client id are visible to
// every tenant.
type MemoryStore struct {
	embedder *Embedder
	topK     int
	logger   *logging.Logger

	mu   sync.RWMutex
	docs map[string][]memoryDocument
}

type memoryDocument struct {
	content   string
	embedding []float32
}

var _ Retriever = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory knowledge store.
func NewMemoryStore(embedder *Embedder, topK int, logger *logging.Logger) *MemoryStore {
	if embedder == nil {
		panic("knowledge: embedder cannot be nil")
	}
	if topK <= 0 {
		topK = 3
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryStore{
		embedder: embedder,
		topK:     topK,
		logger:   logger,
		docs:     make(map[string][]memoryDocument),
	}
}

// AddDocuments embeds and stores contents for a client.
func (s *MemoryStore) AddDocuments(ctx context.Context, clientID string, contents []string) error {
	if len(contents) == 0 {
		return nil
	}
	vectors, err := s.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, vector := range vectors {
		s.docs[clientID] = append(s.docs[clientID], memoryDocument{
			content:   contents[i],
			embedding: vector,
		})
	}
	return nil
}

// Retrieve returns the topK documents for a client plus shared docs.
func (s *MemoryStore) Retrieve(ctx context.Context, clientID, query string) ([]string, error) {
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var candidates []memoryDocument
	candidates = append(candidates, s.docs[clientID]...)
	if clientID != "" {
		candidates = append(candidates, s.docs[""]...)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	type scored struct {
		score   float64
		content string
	}
	results := make([]scored, 0, len(candidates))
	for _, doc := range candidates {
		results = append(results, scored{
			score:   cosineSimilarity(queryVec, doc.embedding),
			content: doc.content,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	limit := s.topK
	if len(results) < limit {
		limit = len(results)
	}
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = results[i].content
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
