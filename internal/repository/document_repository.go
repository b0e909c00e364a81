// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"
	"time"

	"study-buddy-go/internal/model"

	"gorm.io/gorm"
)

// ErrDocumentNotFound 表示按 ID 查询的文档不存在。
var ErrDocumentNotFound = errors.New("文档不存在")

// DocumentRepository 接口定义了文档元数据的持久化操作。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByDocumentID(documentID string) (*model.Document, error)
	FindAll() ([]model.Document, error)
	UpdateStatus(documentID string, status string) error
	MarkProcessed(documentID string, status string, chunkCount int) error
	Delete(documentID string) error
	CountByStatus(status string) (int64, error)
	LastUploadTime() (*time.Time, error)
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 在数据库中创建一条新的文档记录。
func (r *documentRepository) Create(doc *model.Document) error {
	if time.Time(doc.UploadedAt).IsZero() {
		doc.UploadedAt = model.LocalTime(time.Now())
	}
	return r.db.Create(doc).Error
}

// FindByDocumentID 根据文档 ID 检索文档记录。
func (r *documentRepository) FindByDocumentID(documentID string) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("document_id = ?", documentID).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// FindAll 返回全部文档记录，按上传时间倒序。
func (r *documentRepository) FindAll() ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Order("uploaded_at DESC").Find(&docs).Error
	return docs, err
}

// UpdateStatus 更新文档的处理状态。
func (r *documentRepository) UpdateStatus(documentID string, status string) error {
	return r.db.Model(&model.Document{}).
		Where("document_id = ?", documentID).
		Update("status", status).Error
}

// MarkProcessed 记录处理结束的终态，附带分块数量和处理时间。
func (r *documentRepository) MarkProcessed(documentID string, status string, chunkCount int) error {
	now := time.Now()
	return r.db.Model(&model.Document{}).
		Where("document_id = ?", documentID).
		Updates(map[string]interface{}{
			"status":       status,
			"chunk_count":  chunkCount,
			"processed_at": &now,
		}).Error
}

// Delete 删除文档记录。
func (r *documentRepository) Delete(documentID string) error {
	return r.db.Where("document_id = ?", documentID).Delete(&model.Document{}).Error
}

// CountByStatus 统计指定状态的文档数量，status 为空时统计全部。
func (r *documentRepository) CountByStatus(status string) (int64, error) {
	var count int64
	query := r.db.Model(&model.Document{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Count(&count).Error
	return count, err
}

// LastUploadTime 返回最近一次上传的时间，没有文档时返回 nil。
func (r *documentRepository) LastUploadTime() (*time.Time, error) {
	var doc model.Document
	err := r.db.Order("uploaded_at DESC").First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	t := time.Time(doc.UploadedAt)
	return &t, nil
}
