package service

import (
	"context"
	"strings"
	"testing"

	"study-buddy-go/internal/chunker"
	"study-buddy-go/internal/index"
	"study-buddy-go/internal/index/memory"
	"study-buddy-go/pkg/embedding"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// topicEmbedder 按关键词把文本映射到固定方向的向量，模拟语义空间。
type topicEmbedder struct {
	topics map[string][]float32
	other  []float32
}

func (e *topicEmbedder) embed(text string) []float32 {
	for keyword, v := range e.topics {
		if strings.Contains(strings.ToLower(text), keyword) {
			return embedding.Normalize(v)
		}
	}
	return embedding.Normalize(e.other)
}

func (e *topicEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *topicEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *topicEmbedder) Dimensions() int { return len(e.other) }

// 摄取一篇短文档后，相关问题的相关度必须高于无关问题。
func TestIngestThenRetrieveRelevance(t *testing.T) {
	ck, err := chunker.New(chunker.Config{Size: 1000, Overlap: 200})
	require.NoError(t, err)
	embedder := &topicEmbedder{
		topics: map[string][]float32{
			"photosynthesis": {1, 0.2, 0},
			"france":         {0, 0.2, 1},
		},
		other: []float32{0.5, 1, 0.5},
	}
	store := memory.New(3)
	repo := &fakeChunkRepo{}
	ingest := NewIngestService(ck, embedder, store, repo, 8)
	retrieval := NewRetrievalService(embedder, store, retrievalCfg())

	text := "Photosynthesis is the process by which green plants convert light energy into chemical energy."
	count, err := ingest.Ingest(context.Background(), "bio-1", "bio.pdf", text, nil)
	require.NoError(t, err)
	require.Equal(t, 1, count, "短于块大小的文本只产生一块")

	related, err := retrieval.Retrieve(context.Background(), "What is photosynthesis?", nil, 3)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, "bio.pdf", related[0].DocumentName)
	assert.Equal(t, "bio-1_chunk_0", related[0].ChunkID)

	unrelated, err := retrieval.Retrieve(context.Background(), "What is the capital of France?", nil, 3)
	require.NoError(t, err)
	require.Len(t, unrelated, 1)

	assert.Greater(t, related[0].RelevanceScore, unrelated[0].RelevanceScore)
}

// 两篇文档各自分块入库，删掉一篇后检索只剩另一篇。
func TestIngestTwoDocumentsThenRemoveOne(t *testing.T) {
	ck, err := chunker.New(chunker.Config{Size: 1000, Overlap: 200})
	require.NoError(t, err)
	embedder := &fakeEmbedder{dims: 4}
	store := memory.New(4)
	repo := &fakeChunkRepo{}
	ingest := NewIngestService(ck, embedder, store, repo, 8)

	textA := strings.Repeat("a", 10200)
	textB := strings.Repeat("b", 500)

	countA, err := ingest.Ingest(context.Background(), "doc-a", "a.txt", textA, nil)
	require.NoError(t, err)
	// ceil((10200-1000)/800)+1 = 13
	assert.Equal(t, 13, countA)

	countB, err := ingest.Ingest(context.Background(), "doc-b", "b.txt", textB, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, countB)

	total, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 14, total)

	require.NoError(t, ingest.Remove(context.Background(), "doc-a"))

	hits, err := store.Search(context.Background(), deterministicVector(textB, 4), 20, index.Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-b", hits[0].Entry.DocumentID)

	// 重新摄取恢复原有条目数，不泄漏不重复
	countA, err = ingest.Ingest(context.Background(), "doc-a", "a.txt", textA, nil)
	require.NoError(t, err)
	assert.Equal(t, 13, countA)
	total, err = store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 14, total)
}
