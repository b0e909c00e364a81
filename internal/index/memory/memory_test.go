package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"study-buddy-go/internal/index"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(chunkID, documentID string, vector []float32) index.Entry {
	return index.Entry{ChunkID: chunkID, DocumentID: documentID, Vector: vector}
}

func TestUpsertDimensionMismatch(t *testing.T) {
	store := New(3)

	err := store.Upsert(context.Background(), []index.Entry{entry("a_chunk_0", "a", []float32{1, 0})})
	require.Error(t, err)
	assert.ErrorIs(t, err, index.ErrWrite)

	// 整批被拒绝，不留部分写入
	n, _ := store.Count(context.Background())
	assert.Zero(t, n)
}

func TestSearchDimensionMismatch(t *testing.T) {
	store := New(3)

	_, err := store.Search(context.Background(), []float32{1, 0}, 4, index.Filter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, index.ErrQuery)
}

func TestSearchRankingAndTopK(t *testing.T) {
	store := New(2)
	require.NoError(t, store.Upsert(context.Background(), []index.Entry{
		entry("a_chunk_0", "a", []float32{0, 1}),    // 正交
		entry("a_chunk_1", "a", []float32{1, 0}),    // 同向
		entry("b_chunk_0", "b", []float32{-1, 0}),   // 反向
		entry("b_chunk_1", "b", []float32{0.6, 0.8}), // 斜向
	}))

	hits, err := store.Search(context.Background(), []float32{1, 0}, 3, index.Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "a_chunk_1", hits[0].Entry.ChunkID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, "b_chunk_1", hits[1].Entry.ChunkID)
	assert.InDelta(t, 0.6, hits[1].Score, 1e-9)
	assert.Equal(t, "a_chunk_0", hits[2].Entry.ChunkID)
	assert.InDelta(t, 0.0, hits[2].Score, 1e-9)
}

func TestSearchTieBreakByInsertionOrder(t *testing.T) {
	store := New(2)
	// 三条同向向量，相似度完全相同
	require.NoError(t, store.Upsert(context.Background(), []index.Entry{
		entry("c_chunk_0", "c", []float32{1, 0}),
		entry("a_chunk_0", "a", []float32{1, 0}),
		entry("b_chunk_0", "b", []float32{1, 0}),
	}))

	for i := 0; i < 5; i++ {
		hits, err := store.Search(context.Background(), []float32{1, 0}, 3, index.Filter{})
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, "c_chunk_0", hits[0].Entry.ChunkID)
		assert.Equal(t, "a_chunk_0", hits[1].Entry.ChunkID)
		assert.Equal(t, "b_chunk_0", hits[2].Entry.ChunkID)
	}
}

func TestUpsertReplacementKeepsOrder(t *testing.T) {
	store := New(2)
	require.NoError(t, store.Upsert(context.Background(), []index.Entry{
		entry("a_chunk_0", "a", []float32{1, 0}),
		entry("b_chunk_0", "b", []float32{1, 0}),
	}))
	// 重写第一条，插入序号应保留
	require.NoError(t, store.Upsert(context.Background(), []index.Entry{
		entry("a_chunk_0", "a", []float32{1, 0}),
	}))

	n, _ := store.Count(context.Background())
	assert.Equal(t, 2, n)

	hits, err := store.Search(context.Background(), []float32{1, 0}, 2, index.Filter{})
	require.NoError(t, err)
	assert.Equal(t, "a_chunk_0", hits[0].Entry.ChunkID, "重复写入不改变并列排序位置")
}

func TestSearchFilter(t *testing.T) {
	store := New(2)
	require.NoError(t, store.Upsert(context.Background(), []index.Entry{
		entry("a_chunk_0", "a", []float32{1, 0}),
		entry("b_chunk_0", "b", []float32{1, 0}),
		entry("c_chunk_0", "c", []float32{1, 0}),
	}))

	hits, err := store.Search(context.Background(), []float32{1, 0}, 10, index.Filter{DocumentIDs: []string{"a", "c"}})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a_chunk_0", hits[0].Entry.ChunkID)
	assert.Equal(t, "c_chunk_0", hits[1].Entry.ChunkID)
}

func TestSearchEmptyIndexAndZeroK(t *testing.T) {
	store := New(2)

	hits, err := store.Search(context.Background(), []float32{1, 0}, 4, index.Filter{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, store.Upsert(context.Background(), []index.Entry{
		entry("a_chunk_0", "a", []float32{1, 0}),
	}))
	hits, err = store.Search(context.Background(), []float32{1, 0}, 0, index.Filter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeleteByDocument(t *testing.T) {
	store := New(2)
	require.NoError(t, store.Upsert(context.Background(), []index.Entry{
		entry("a_chunk_0", "a", []float32{1, 0}),
		entry("a_chunk_1", "a", []float32{0, 1}),
		entry("b_chunk_0", "b", []float32{1, 0}),
	}))

	require.NoError(t, store.DeleteByDocument(context.Background(), "a"))

	n, _ := store.Count(context.Background())
	assert.Equal(t, 1, n)
	hits, err := store.Search(context.Background(), []float32{1, 0}, 10, index.Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b_chunk_0", hits[0].Entry.ChunkID)

	// 删除不存在的文档是 no-op
	require.NoError(t, store.DeleteByDocument(context.Background(), "missing"))
	n, _ = store.Count(context.Background())
	assert.Equal(t, 1, n)
}

func TestConcurrentReadWrite(t *testing.T) {
	store := New(2)
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			docID := fmt.Sprintf("doc-%d", w)
			for i := 0; i < 50; i++ {
				_ = store.Upsert(context.Background(), []index.Entry{
					entry(fmt.Sprintf("%s_chunk_%d", docID, i), docID, []float32{1, 0}),
				})
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				hits, err := store.Search(context.Background(), []float32{1, 0}, 10, index.Filter{})
				assert.NoError(t, err)
				// 查询看到的是一致的快照，命中数不超过 k
				assert.LessOrEqual(t, len(hits), 10)
			}
		}()
	}
	wg.Wait()

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200, n)
}
