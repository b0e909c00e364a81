package model

// QueryRequest 是 /api/v1/query 与 /api/v1/search 的请求体。
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
	// DocumentIDs 为空时在全部文档中检索。
	DocumentIDs []string `json:"documentIds"`
	// NumContexts 为 0 时使用配置中的默认值。
	NumContexts int    `json:"numContexts"`
	SessionID   string `json:"sessionId"`
}

// Source 描述了答案引用的单个文本分块。
// RelevanceScore 是归一化到 [0,1] 的相关度。
type Source struct {
	DocumentName   string  `json:"documentName"`
	ChunkID        string  `json:"chunkId"`
	Page           int     `json:"page"`
	RelevanceScore float64 `json:"relevanceScore"`
}

// RetrievalResult 是检索服务返回的单条命中，包含原文内容。
type RetrievalResult struct {
	Source
	DocumentID string `json:"documentId"`
	Text       string `json:"text"`
}

// QueryResponse 是 /api/v1/query 的响应体。
type QueryResponse struct {
	Answer           string   `json:"answer"`
	Sources          []Source `json:"sources"`
	QueryTimeSeconds float64  `json:"queryTimeSeconds"`
}

// UploadResponse 是 /api/v1/upload 的响应体。
type UploadResponse struct {
	DocumentID string `json:"documentId"`
	FileName   string `json:"fileName"`
	Status     string `json:"status"`
}

// DocumentDetail 是单个文档的详情，附带原始文件的临时下载链接。
type DocumentDetail struct {
	Document
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// SystemStats 是 /api/v1/stats 的响应体。
type SystemStats struct {
	TotalDocuments    int    `json:"totalDocuments"`
	TotalChunks       int    `json:"totalChunks"`
	TotalQueries      int64  `json:"totalQueries"`
	IndexedVectors    int    `json:"indexedVectors"`
	VectorStoreStatus string `json:"vectorStoreStatus"`
	LastUploadTime    string `json:"lastUploadTime,omitempty"`
}
