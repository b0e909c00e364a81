package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"study-buddy-go/internal/config"
	"study-buddy-go/internal/model"
	"study-buddy-go/internal/repository"
	"study-buddy-go/pkg/kafka"
	"study-buddy-go/pkg/log"
	"study-buddy-go/pkg/storage"
	"study-buddy-go/pkg/tasks"

	"github.com/google/uuid"
)

// 上传校验失败的错误，由 handler 映射为 400。
var (
	ErrFileTooLarge    = errors.New("文件大小超出限制")
	ErrUnsupportedType = errors.New("不支持的文件类型")
)

// UploadService 接口定义了文档上传相关的业务操作。
type UploadService interface {
	Upload(ctx context.Context, fileHeader *multipart.FileHeader) (*model.UploadResponse, error)
}

type uploadService struct {
	documentRepo repository.DocumentRepository
	uploadCfg    config.UploadConfig
	minioCfg     config.MinIOConfig
}

// NewUploadService 创建一个新的 UploadService 实例。
func NewUploadService(documentRepo repository.DocumentRepository, uploadCfg config.UploadConfig, minioCfg config.MinIOConfig) UploadService {
	return &uploadService{
		documentRepo: documentRepo,
		uploadCfg:    uploadCfg,
		minioCfg:     minioCfg,
	}
}

// Upload 校验文件、写入对象存储、创建元数据并投递摄取任务。
// 同名或同内容文件重复上传会生成新的文档，互不影响。
func (s *uploadService) Upload(ctx context.Context, fileHeader *multipart.FileHeader) (*model.UploadResponse, error) {
	fileName := filepath.Base(fileHeader.Filename)
	if err := s.validate(fileName, fileHeader.Size); err != nil {
		return nil, err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("打开上传文件失败: %w", err)
	}
	defer file.Close()

	// 上传上限 50MB，直接读入内存计算 MD5
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件失败: %w", err)
	}
	sum := md5.Sum(data)
	fileMD5 := hex.EncodeToString(sum[:])

	documentID := uuid.NewString()
	if err := storage.PutDocument(ctx, s.minioCfg.BucketName, documentID, fileName,
		bytes.NewReader(data), int64(len(data)), contentTypeFor(fileName)); err != nil {
		return nil, fmt.Errorf("写入对象存储失败: %w", err)
	}

	doc := &model.Document{
		DocumentID: documentID,
		FileMD5:    fileMD5,
		FileName:   fileName,
		TotalSize:  int64(len(data)),
		Status:     model.DocStatusProcessing,
	}
	if err := s.documentRepo.Create(doc); err != nil {
		return nil, fmt.Errorf("创建文档记录失败: %w", err)
	}

	task := tasks.DocumentIngestTask{
		DocumentID: documentID,
		FileMD5:    fileMD5,
		FileName:   fileName,
		ObjectName: storage.DocumentObjectName(documentID, fileName),
	}
	if err := kafka.ProduceIngestTask(task); err != nil {
		// 投递失败时标记文档失败，避免停留在 processing
		_ = s.documentRepo.UpdateStatus(documentID, model.DocStatusFailed)
		return nil, fmt.Errorf("投递摄取任务失败: %w", err)
	}

	log.Infof("[Upload] 文档已接收: %s (%s, %d bytes)", fileName, documentID, len(data))
	return &model.UploadResponse{
		DocumentID: documentID,
		FileName:   fileName,
		Status:     model.DocStatusProcessing,
	}, nil
}

// validate 检查文件扩展名与大小限制。
func (s *uploadService) validate(fileName string, size int64) error {
	maxBytes := int64(s.uploadCfg.MaxFileSizeMB) * 1024 * 1024
	if size > maxBytes {
		return fmt.Errorf("%w: %d bytes, 上限 %dMB", ErrFileTooLarge, size, s.uploadCfg.MaxFileSizeMB)
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	for _, allowed := range s.uploadCfg.AllowedTypes {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: .%s", ErrUnsupportedType, ext)
}

func contentTypeFor(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".md":
		return "text/markdown"
	default:
		return "text/plain"
	}
}
