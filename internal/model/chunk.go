package model

// DocumentChunk 对应于数据库中的 document_chunks 表。
// 每行保存一个文本分块的内容及其在原文中的位置，
// 向量本身只存在于索引后端，不落库。
type DocumentChunk struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	ChunkID    string `gorm:"type:varchar(64);not null;uniqueIndex;column:chunk_id"`
	DocumentID string `gorm:"type:varchar(36);not null;index;column:document_id"`
	ChunkIndex int    `gorm:"not null;column:chunk_index"`
	Text       string `gorm:"type:text;column:text_content"`
	Page       int    `gorm:"not null;default:1"`
	StartChar  int    `gorm:"not null;column:start_char"`
	EndChar    int    `gorm:"not null;column:end_char"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}
