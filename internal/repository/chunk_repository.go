package repository

import (
	"study-buddy-go/internal/model"

	"gorm.io/gorm"
)

// ChunkRepository 接口定义了文本分块记录的持久化操作。
type ChunkRepository interface {
	BatchCreate(chunks []model.DocumentChunk) error
	FindByDocumentID(documentID string) ([]model.DocumentChunk, error)
	DeleteByDocumentID(documentID string) error
	CountAll() (int64, error)
}

// chunkRepository 是 ChunkRepository 接口的 GORM 实现。
type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

// BatchCreate 批量写入分块记录。
func (r *chunkRepository) BatchCreate(chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.CreateInBatches(chunks, 100).Error
}

// FindByDocumentID 返回指定文档的全部分块，按分块序号排序。
func (r *chunkRepository) FindByDocumentID(documentID string) ([]model.DocumentChunk, error) {
	var chunks []model.DocumentChunk
	err := r.db.Where("document_id = ?", documentID).
		Order("chunk_index ASC").Find(&chunks).Error
	return chunks, err
}

// DeleteByDocumentID 删除指定文档的全部分块记录。
func (r *chunkRepository) DeleteByDocumentID(documentID string) error {
	return r.db.Where("document_id = ?", documentID).Delete(&model.DocumentChunk{}).Error
}

// CountAll 统计分块总数。
func (r *chunkRepository) CountAll() (int64, error) {
	var count int64
	err := r.db.Model(&model.DocumentChunk{}).Count(&count).Error
	return count, err
}
