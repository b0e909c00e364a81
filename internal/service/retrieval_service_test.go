package service

import (
	"context"
	"testing"

	"study-buddy-go/internal/config"
	"study-buddy-go/internal/index"
	"study-buddy-go/internal/index/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStore 记录 Search 的入参，转发给内层实现。
type recordingStore struct {
	index.Store
	lastK      int
	lastFilter index.Filter
}

func (r *recordingStore) Search(ctx context.Context, vector []float32, k int, filter index.Filter) ([]index.Hit, error) {
	r.lastK = k
	r.lastFilter = filter
	return r.Store.Search(ctx, vector, k, filter)
}

// fixedEmbedder 对所有查询返回同一个向量。
type fixedEmbedder struct {
	vector []float32
}

func (f *fixedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fixedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vector, nil
}

func (f *fixedEmbedder) Dimensions() int { return len(f.vector) }

func retrievalCfg() config.RetrievalConfig {
	return config.RetrievalConfig{
		ChunkSize:          1000,
		ChunkOverlap:       200,
		DefaultNumContexts: 4,
		MaxNumContexts:     10,
	}
}

func seedStore(t *testing.T, entries []index.Entry) *memory.Store {
	t.Helper()
	store := memory.New(2)
	require.NoError(t, store.Upsert(context.Background(), entries))
	return store
}

func TestRetrieveEmptyQuestion(t *testing.T) {
	svc := NewRetrievalService(&fixedEmbedder{vector: []float32{1, 0}}, memory.New(2), retrievalCfg())

	_, err := svc.Retrieve(context.Background(), "  \t\n ", nil, 4)
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestRetrieveDefaultAndMaxNumContexts(t *testing.T) {
	rec := &recordingStore{Store: memory.New(2)}
	svc := NewRetrievalService(&fixedEmbedder{vector: []float32{1, 0}}, rec, retrievalCfg())

	_, err := svc.Retrieve(context.Background(), "什么是细胞?", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.lastK, "未指定时使用默认值")

	_, err = svc.Retrieve(context.Background(), "什么是细胞?", nil, 25)
	require.NoError(t, err)
	assert.Equal(t, 10, rec.lastK, "超限时按上限截断")

	_, err = svc.Retrieve(context.Background(), "什么是细胞?", []string{"doc-1"}, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.lastK)
	assert.Equal(t, []string{"doc-1"}, rec.lastFilter.DocumentIDs)
}

func TestRetrieveScoreNormalization(t *testing.T) {
	store := seedStore(t, []index.Entry{
		{ChunkID: "a_chunk_0", DocumentID: "a", FileName: "bio.pdf", Page: 1, Text: "同向", Vector: []float32{1, 0}},
		{ChunkID: "b_chunk_0", DocumentID: "b", FileName: "cook.pdf", Page: 1, Text: "正交", Vector: []float32{0, 1}},
		{ChunkID: "c_chunk_0", DocumentID: "c", FileName: "law.pdf", Page: 1, Text: "反向", Vector: []float32{-1, 0}},
	})
	svc := NewRetrievalService(&fixedEmbedder{vector: []float32{1, 0}}, store, retrievalCfg())

	results, err := svc.Retrieve(context.Background(), "同向的内容", nil, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// (cos+1)/2: 同向=1, 正交=0.5, 反向=0，且按相关度降序
	assert.Equal(t, "a_chunk_0", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].RelevanceScore, 1e-9)
	assert.InDelta(t, 0.5, results[1].RelevanceScore, 1e-9)
	assert.InDelta(t, 0.0, results[2].RelevanceScore, 1e-9)

	for _, r := range results {
		assert.GreaterOrEqual(t, r.RelevanceScore, 0.0)
		assert.LessOrEqual(t, r.RelevanceScore, 1.0)
	}
}

func TestRetrieveCarriesSourceMetadata(t *testing.T) {
	store := seedStore(t, []index.Entry{
		{ChunkID: "doc-1_chunk_7", DocumentID: "doc-1", ChunkIndex: 7, FileName: "bio.pdf", Page: 3,
			Text: "线粒体是细胞的能量工厂。", Vector: []float32{1, 0}},
	})
	svc := NewRetrievalService(&fixedEmbedder{vector: []float32{1, 0}}, store, retrievalCfg())

	results, err := svc.Retrieve(context.Background(), "细胞的能量来自哪里?", []string{"doc-1"}, 4)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "bio.pdf", r.DocumentName)
	assert.Equal(t, "doc-1_chunk_7", r.ChunkID)
	assert.Equal(t, 3, r.Page)
	assert.Equal(t, "doc-1", r.DocumentID)
	assert.Equal(t, "线粒体是细胞的能量工厂。", r.Text)
}

func TestRetrieveDocumentFilter(t *testing.T) {
	store := seedStore(t, []index.Entry{
		{ChunkID: "a_chunk_0", DocumentID: "a", FileName: "bio.pdf", Vector: []float32{1, 0}},
		{ChunkID: "b_chunk_0", DocumentID: "b", FileName: "cook.pdf", Vector: []float32{1, 0}},
	})
	svc := NewRetrievalService(&fixedEmbedder{vector: []float32{1, 0}}, store, retrievalCfg())

	results, err := svc.Retrieve(context.Background(), "查询", []string{"b"}, 4)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b_chunk_0", results[0].ChunkID)
}

func TestRetrieveEmptyIndex(t *testing.T) {
	svc := NewRetrievalService(&fixedEmbedder{vector: []float32{1, 0}}, memory.New(2), retrievalCfg())

	results, err := svc.Retrieve(context.Background(), "任何问题", nil, 4)
	require.NoError(t, err)
	assert.Empty(t, results)
}
