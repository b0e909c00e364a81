// Package index 定义了向量索引的存储契约。
// 索引以分块 ID 为键存储向量与来源元数据，支持幂等写入、按文档删除
// 和带元数据过滤的 k 近邻查询。
package index

import (
	"context"
	"errors"
)

// ErrWrite 表示存储层在写入（Upsert/DeleteByDocument）时失败。
// 写入操作是幂等的，调用方可以安全重试。
var ErrWrite = errors.New("index: 写入失败")

// ErrQuery 表示存储层在查询时失败。调用方应将其视为"没有可用结果"，
// 绝不把部分结果与错误状态混在一起返回。
var ErrQuery = errors.New("index: 查询失败")

// Entry 是索引中的一条记录：分块向量加上来源元数据。
type Entry struct {
	// ChunkID 是记录的唯一键，Upsert 以它去重。
	ChunkID    string
	DocumentID string
	ChunkIndex int
	FileName   string
	Page       int
	StartChar  int
	EndChar    int
	Text       string
	Vector     []float32
}

// Filter 约束查询范围。零值表示不过滤。
type Filter struct {
	// DocumentIDs 非空时，查询仅返回属于这些文档的记录。
	DocumentIDs []string
}

// Matches 判断一条记录是否满足过滤条件。
func (f Filter) Matches(e *Entry) bool {
	if len(f.DocumentIDs) == 0 {
		return true
	}
	for _, id := range f.DocumentIDs {
		if e.DocumentID == id {
			return true
		}
	}
	return false
}

// Hit 是一次查询命中的记录及其与查询向量的余弦相似度。
type Hit struct {
	Entry Entry
	// Score 是原始余弦相似度，取值范围 [-1, 1]。
	Score float64
}

// Store 是向量索引后端需要实现的接口。
//
// 不变式：对同一文档先 DeleteByDocument 再重新 Upsert 相同分块后，
// 该文档的记录数与最初一致——删除与插入不得泄漏或产生重复记录。
type Store interface {
	// Upsert 插入或替换记录，以 ChunkID 为键。重复写入同一 ChunkID
	// 最终只保留一条携带最新向量与元数据的记录。
	Upsert(ctx context.Context, entries []Entry) error

	// DeleteByDocument 删除属于指定文档的全部记录。
	// 文档没有任何记录时不视为错误。
	DeleteByDocument(ctx context.Context, documentID string) error

	// Search 返回与查询向量余弦相似度最高的至多 k 条记录，按相似度
	// 降序排列；相似度相同时先插入的记录排在前面，保证相同数据下
	// 结果跨进程可复现。空索引返回空序列而非错误。
	Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error)

	// Count 返回当前索引内的记录总数。
	Count(ctx context.Context) (int, error)
}
