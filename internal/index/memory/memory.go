// Package memory 提供了基于内存的向量索引实现：暴力余弦相似度检索。
// 单租户、中小规模语料（数十到数千个分块）下这是默认后端，
// 排序结果在相同数据上完全可复现。
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"study-buddy-go/internal/index"
)

// record 在索引记录之外附带一个插入序号，用于相似度相同时的稳定排序。
type record struct {
	entry index.Entry
	seq   uint64
}

// Store 是内存向量索引。写操作持独占锁，查询持共享锁并在稳定
// 快照上进行；不同文档的写入互不干扰各自的记录。
type Store struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]*record // ChunkID -> record
	order     []string           // 按插入顺序排列的 ChunkID
	nextSeq   uint64
}

var _ index.Store = (*Store)(nil)

// New 创建一个内存索引。dimension 在索引的生命周期内固定不变，
// 由 Embedding 模型配置决定。
func New(dimension int) *Store {
	return &Store{
		dimension: dimension,
		records:   make(map[string]*record),
	}
}

// Upsert 插入或替换记录。替换已有 ChunkID 时保留其原始插入序号，
// 因此重复写入不影响并列时的排序位置。
func (s *Store) Upsert(_ context.Context, entries []index.Entry) error {
	for i := range entries {
		if len(entries[i].Vector) != s.dimension {
			return fmt.Errorf("%w: 分块 %s 向量维度 %d 与索引维度 %d 不符",
				index.ErrWrite, entries[i].ChunkID, len(entries[i].Vector), s.dimension)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range entries {
		e := entries[i]
		if existing, ok := s.records[e.ChunkID]; ok {
			existing.entry = e
			continue
		}
		s.records[e.ChunkID] = &record{entry: e, seq: s.nextSeq}
		s.order = append(s.order, e.ChunkID)
		s.nextSeq++
	}
	return nil
}

// DeleteByDocument 删除属于指定文档的全部记录。没有记录时为 no-op。
func (s *Store) DeleteByDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	for _, chunkID := range s.order {
		rec := s.records[chunkID]
		if rec.entry.DocumentID == documentID {
			delete(s.records, chunkID)
			continue
		}
		kept = append(kept, chunkID)
	}
	s.order = kept
	return nil
}

// Search 对全部满足过滤条件的记录计算余弦相似度，返回 Top-K。
// 空索引或无匹配时返回空切片。
func (s *Store) Search(_ context.Context, vector []float32, k int, filter index.Filter) ([]index.Hit, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: 查询向量维度 %d 与索引维度 %d 不符",
			index.ErrQuery, len(vector), s.dimension)
	}
	if k <= 0 {
		return []index.Hit{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		hit index.Hit
		seq uint64
	}
	candidates := make([]scored, 0, len(s.order))
	for _, chunkID := range s.order {
		rec := s.records[chunkID]
		if !filter.Matches(&rec.entry) {
			continue
		}
		candidates = append(candidates, scored{
			hit: index.Hit{Entry: rec.entry, Score: cosineSimilarity(vector, rec.entry.Vector)},
			seq: rec.seq,
		})
	}

	// 相似度降序；并列时先插入者优先，保证确定性
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].hit.Score != candidates[j].hit.Score {
			return candidates[i].hit.Score > candidates[j].hit.Score
		}
		return candidates[i].seq < candidates[j].seq
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	hits := make([]index.Hit, 0, k)
	for i := 0; i < k; i++ {
		hits = append(hits, candidates[i].hit)
	}
	return hits, nil
}

// Count 返回索引内的记录总数。
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), nil
}

// cosineSimilarity 计算两个向量的余弦相似度，累加使用 float64 以减小误差。
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
