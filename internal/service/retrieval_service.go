package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"study-buddy-go/internal/config"
	"study-buddy-go/internal/index"
	"study-buddy-go/internal/model"
	"study-buddy-go/pkg/embedding"
	"study-buddy-go/pkg/log"
)

// ErrEmptyQuestion 表示查询文本为空或只含空白符。
var ErrEmptyQuestion = errors.New("查询内容不能为空")

// RetrievalService 定义了向量检索操作的接口。
// 相关度统一归一化为 [0,1]：score = (cosine+1)/2。
type RetrievalService interface {
	Retrieve(ctx context.Context, question string, documentIDs []string, numContexts int) ([]model.RetrievalResult, error)
}

type retrievalService struct {
	embedder embedding.Client
	store    index.Store
	cfg      config.RetrievalConfig
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
func NewRetrievalService(embedder embedding.Client, store index.Store, cfg config.RetrievalConfig) RetrievalService {
	return &retrievalService{embedder: embedder, store: store, cfg: cfg}
}

// Retrieve 向量化查询文本并返回 Top-K 相关分块。
// numContexts 为 0 时使用默认值，超过上限时按上限截断。
func (s *retrievalService) Retrieve(ctx context.Context, question string, documentIDs []string, numContexts int) ([]model.RetrievalResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	k := numContexts
	if k <= 0 {
		k = s.cfg.DefaultNumContexts
	}
	if s.cfg.MaxNumContexts > 0 && k > s.cfg.MaxNumContexts {
		k = s.cfg.MaxNumContexts
	}

	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}

	hits, err := s.store.Search(ctx, vector, k, index.Filter{DocumentIDs: documentIDs})
	if err != nil {
		return nil, err
	}
	log.Infof("[Retrieval] 命中 %d 条分块, k=%d, 过滤文档数=%d", len(hits), k, len(documentIDs))

	results := make([]model.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, model.RetrievalResult{
			Source: model.Source{
				DocumentName:   h.Entry.FileName,
				ChunkID:        h.Entry.ChunkID,
				Page:           h.Entry.Page,
				RelevanceScore: normalizeScore(h.Score),
			},
			DocumentID: h.Entry.DocumentID,
			Text:       h.Entry.Text,
		})
	}
	return results, nil
}

// normalizeScore 把余弦相似度 [-1,1] 映射到 [0,1]，并夹紧浮点越界。
func normalizeScore(cosine float64) float64 {
	score := (cosine + 1) / 2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
