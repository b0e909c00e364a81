package service

import (
	"context"
	"time"

	"study-buddy-go/internal/config"
	"study-buddy-go/internal/index"
	"study-buddy-go/internal/model"
	"study-buddy-go/internal/repository"
	"study-buddy-go/pkg/log"
	"study-buddy-go/pkg/storage"
)

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	ListDocuments() ([]model.Document, error)
	GetDocument(documentID string) (*model.DocumentDetail, error)
	DeleteDocument(ctx context.Context, documentID string) error
	GetStats(ctx context.Context) (*model.SystemStats, error)
}

// 下载链接有效期
const downloadURLExpiry = time.Hour

// presignDownloadURL 供测试替换预签名实现。
var presignDownloadURL = storage.GetPresignedURL

type documentService struct {
	documentRepo  repository.DocumentRepository
	chunkRepo     repository.ChunkRepository
	statsRepo     repository.StatsRepository
	ingestService IngestService
	store         index.Store
	minioCfg      config.MinIOConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(documentRepo repository.DocumentRepository, chunkRepo repository.ChunkRepository, statsRepo repository.StatsRepository, ingestService IngestService, store index.Store, minioCfg config.MinIOConfig) DocumentService {
	return &documentService{
		documentRepo:  documentRepo,
		chunkRepo:     chunkRepo,
		statsRepo:     statsRepo,
		ingestService: ingestService,
		store:         store,
		minioCfg:      minioCfg,
	}
}

// ListDocuments 获取全部文档列表。
func (s *documentService) ListDocuments() ([]model.Document, error) {
	return s.documentRepo.FindAll()
}

// GetDocument 获取单个文档的元数据，并附带原始文件的临时下载链接。
func (s *documentService) GetDocument(documentID string) (*model.DocumentDetail, error) {
	doc, err := s.documentRepo.FindByDocumentID(documentID)
	if err != nil {
		return nil, err
	}

	detail := &model.DocumentDetail{Document: *doc}
	objectName := storage.DocumentObjectName(documentID, doc.FileName)
	url, err := presignDownloadURL(s.minioCfg.BucketName, objectName, downloadURLExpiry)
	if err != nil {
		// 下载链接是附加信息，生成失败不影响元数据返回
		log.Warnf("[Document] 生成下载链接失败, DocumentID: %s, error: %v", documentID, err)
	} else {
		detail.DownloadURL = url
	}
	return detail, nil
}

// DeleteDocument 删除一个文档：索引、分块记录、对象存储和元数据。
func (s *documentService) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := s.documentRepo.FindByDocumentID(documentID)
	if err != nil {
		return err
	}

	if err := s.ingestService.Remove(ctx, documentID); err != nil {
		return err
	}

	if err := storage.RemoveDocument(ctx, s.minioCfg.BucketName, documentID, doc.FileName); err != nil {
		// 对象可能已不存在，继续删除元数据
		log.Warnf("[Document] 删除对象失败: %s/%s: %v", documentID, doc.FileName, err)
	}

	return s.documentRepo.Delete(documentID)
}

// GetStats 汇总文档数、分块数、查询次数与最近上传时间。
func (s *documentService) GetStats(ctx context.Context) (*model.SystemStats, error) {
	totalDocs, err := s.documentRepo.CountByStatus("")
	if err != nil {
		return nil, err
	}
	totalChunks, err := s.chunkRepo.CountAll()
	if err != nil {
		return nil, err
	}
	totalQueries, err := s.statsRepo.GetQueryCount(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.SystemStats{
		TotalDocuments: int(totalDocs),
		TotalChunks:    int(totalChunks),
		TotalQueries:   totalQueries,
	}
	if vectors, err := s.store.Count(ctx); err != nil {
		log.Warnf("[Document] 向量索引不可用: %v", err)
		stats.VectorStoreStatus = "unavailable"
	} else {
		stats.IndexedVectors = vectors
		stats.VectorStoreStatus = "healthy"
	}
	if last, err := s.documentRepo.LastUploadTime(); err == nil && last != nil {
		stats.LastUploadTime = last.Format("2006-01-02 15:04:05")
	}
	return stats, nil
}
