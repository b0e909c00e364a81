package handler

import (
	"errors"
	"net/http"

	"study-buddy-go/internal/repository"
	"study-buddy-go/internal/service"
	"study-buddy-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 结构体定义了文档管理相关的处理器。
type DocumentHandler struct {
	documentService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// List 返回全部文档的元数据列表。
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documentService.ListDocuments()
	if err != nil {
		log.Errorf("[DocumentHandler] 获取文档列表失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取文档列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": docs, "message": "success"})
}

// Get 返回单个文档的元数据，可用于轮询处理状态。
func (h *DocumentHandler) Get(c *gin.Context) {
	documentID := c.Param("documentId")
	doc, err := h.documentService.GetDocument(documentID)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
			return
		}
		log.Errorf("[DocumentHandler] 获取文档失败, DocumentID: %s, error: %v", documentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取文档失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": doc, "message": "success"})
}

// Delete 删除一个文档及其索引数据。
func (h *DocumentHandler) Delete(c *gin.Context) {
	documentID := c.Param("documentId")
	log.Infof("[DocumentHandler] 收到删除请求, DocumentID: %s", documentID)

	if err := h.documentService.DeleteDocument(c.Request.Context(), documentID); err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
			return
		}
		log.Errorf("[DocumentHandler] 删除文档失败, DocumentID: %s, error: %v", documentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除文档失败"})
		return
	}

	log.Infof("[DocumentHandler] 文档已删除, DocumentID: %s", documentID)
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success"})
}

// Stats 返回系统运行统计。
func (h *DocumentHandler) Stats(c *gin.Context) {
	stats, err := h.documentService.GetStats(c.Request.Context())
	if err != nil {
		log.Errorf("[DocumentHandler] 获取统计信息失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取统计信息失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": stats, "message": "success"})
}
