// Package model 定义了与数据库表对应的 Go 结构体以及 API 传输对象。
package model

import "time"

// 文档处理状态。
const (
	DocStatusUploading  = "uploading"
	DocStatusProcessing = "processing"
	DocStatusReady      = "ready"
	DocStatusFailed     = "failed"
)

// Document 定义了 documents 表的 ORM 模型。
// 它记录了上传文档的元数据和处理状态。
type Document struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"-"`
	DocumentID  string     `gorm:"type:varchar(36);not null;uniqueIndex;column:document_id" json:"documentId"`
	FileMD5     string     `gorm:"type:varchar(32);not null;index" json:"fileMd5"`
	FileName    string     `gorm:"type:varchar(255);not null" json:"fileName"`
	TotalSize   int64      `gorm:"not null" json:"totalSize"`
	Status      string     `gorm:"type:varchar(20);not null;default:'uploading'" json:"status"`
	ChunkCount  int        `gorm:"not null;default:0" json:"chunkCount"`
	UploadedAt  LocalTime  `gorm:"column:uploaded_at;type:datetime;not null" json:"uploadedAt"`
	ProcessedAt *time.Time `gorm:"default:null" json:"processedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}
