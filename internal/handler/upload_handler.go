// Package handler 包含了所有 Gin 的 HTTP 处理函数。
package handler

import (
	"errors"
	"net/http"

	"study-buddy-go/internal/service"
	"study-buddy-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UploadHandler 结构体定义了文档上传相关的处理器。
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// Upload 是处理文档上传请求的 Gin 处理函数。
func (h *UploadHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		log.Warnf("[UploadHandler] 请求缺少 file 字段: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 file 字段"})
		return
	}
	log.Infof("[UploadHandler] 收到上传请求, FileName: %s, Size: %d", fileHeader.Filename, fileHeader.Size)

	resp, err := h.uploadService.Upload(c.Request.Context(), fileHeader)
	if err != nil {
		if errors.Is(err, service.ErrFileTooLarge) || errors.Is(err, service.ErrUnsupportedType) {
			log.Warnf("[UploadHandler] 上传校验失败: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Errorf("[UploadHandler] 上传处理失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "上传失败"})
		return
	}

	log.Infof("[UploadHandler] 上传成功, DocumentID: %s", resp.DocumentID)
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": resp, "message": "success"})
}
