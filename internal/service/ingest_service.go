// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"

	"study-buddy-go/internal/chunker"
	"study-buddy-go/internal/index"
	"study-buddy-go/internal/model"
	"study-buddy-go/internal/repository"
	"study-buddy-go/pkg/embedding"
	"study-buddy-go/pkg/log"
)

// IngestService 定义了把文档文本写入向量索引的操作接口。
type IngestService interface {
	// Ingest 对文本分块、向量化并写入索引，返回分块数量。
	// 任何一步失败都会回滚该文档的已写入状态。
	Ingest(ctx context.Context, documentID, fileName, text string, anchors []chunker.PageAnchor) (int, error)
	// Remove 从索引和分块表中清除指定文档。
	Remove(ctx context.Context, documentID string) error
}

type ingestService struct {
	chunker   *chunker.Chunker
	embedder  embedding.Client
	store     index.Store
	chunkRepo repository.ChunkRepository
	batchSize int
}

// NewIngestService 创建一个新的 IngestService 实例。
// batchSize 控制一次向量化并写入索引的分块数量。
func NewIngestService(ck *chunker.Chunker, embedder embedding.Client, store index.Store, chunkRepo repository.ChunkRepository, batchSize int) IngestService {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &ingestService{
		chunker:   ck,
		embedder:  embedder,
		store:     store,
		chunkRepo: chunkRepo,
		batchSize: batchSize,
	}
}

// Ingest 执行 分块 → 落库 → 批量向量化 → 写入索引 的完整流程。
func (s *ingestService) Ingest(ctx context.Context, documentID, fileName, text string, anchors []chunker.PageAnchor) (int, error) {
	chunks, err := s.chunker.Split(documentID, text, anchors)
	if err != nil {
		return 0, err
	}
	log.Infof("[Ingest] 文档 %s 分块完成, 共 %d 块", documentID, len(chunks))

	// 重新摄取时先清掉旧状态，保证幂等
	if err := s.Remove(ctx, documentID); err != nil {
		return 0, fmt.Errorf("清理文档旧状态失败: %w", err)
	}

	rows := make([]model.DocumentChunk, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, model.DocumentChunk{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.Index,
			Text:       c.Text,
			Page:       c.Page,
			StartChar:  c.StartChar,
			EndChar:    c.EndChar,
		})
	}
	if err := s.chunkRepo.BatchCreate(rows); err != nil {
		return 0, fmt.Errorf("写入分块记录失败: %w", err)
	}

	// 分批向量化并写入索引，批次之间响应取消
	for start := 0; start < len(chunks); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			s.rollback(documentID)
			return 0, err
		}

		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			s.rollback(documentID)
			return 0, err
		}

		entries := make([]index.Entry, len(batch))
		for i, c := range batch {
			entries[i] = index.Entry{
				ChunkID:    c.ID,
				DocumentID: c.DocumentID,
				ChunkIndex: c.Index,
				FileName:   fileName,
				Page:       c.Page,
				StartChar:  c.StartChar,
				EndChar:    c.EndChar,
				Text:       c.Text,
				Vector:     vectors[i],
			}
		}
		if err := s.store.Upsert(ctx, entries); err != nil {
			s.rollback(documentID)
			return 0, err
		}
	}

	log.Infof("[Ingest] 文档 %s 已写入索引, 共 %d 块", documentID, len(chunks))
	return len(chunks), nil
}

// Remove 清除指定文档在索引和分块表中的全部记录。
func (s *ingestService) Remove(ctx context.Context, documentID string) error {
	if err := s.store.DeleteByDocument(ctx, documentID); err != nil {
		return err
	}
	return s.chunkRepo.DeleteByDocumentID(documentID)
}

// rollback 尽力清除半成品状态，失败只记日志。
func (s *ingestService) rollback(documentID string) {
	// 使用后台上下文：即使摄取被取消，回滚也要完成
	if err := s.Remove(context.Background(), documentID); err != nil {
		log.Errorf("[Ingest] 回滚文档 %s 失败: %v", documentID, err)
	}
}
