package handler

import (
	"errors"
	"net/http"
	"strconv"

	"study-buddy-go/internal/model"
	"study-buddy-go/internal/service"
	"study-buddy-go/pkg/embedding"
	"study-buddy-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// QueryHandler 结构体定义了问答与检索相关的处理器。
type QueryHandler struct {
	answerService    service.AnswerService
	retrievalService service.RetrievalService
}

// NewQueryHandler 创建一个新的 QueryHandler 实例。
func NewQueryHandler(answerService service.AnswerService, retrievalService service.RetrievalService) *QueryHandler {
	return &QueryHandler{
		answerService:    answerService,
		retrievalService: retrievalService,
	}
}

// Query 是处理问答请求的 Gin 处理函数：检索上下文并生成答案。
func (h *QueryHandler) Query(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[QueryHandler] 请求体解析失败: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}
	log.Infof("[QueryHandler] 收到问答请求, question 长度: %d, numContexts: %d", len(req.Question), req.NumContexts)

	resp, err := h.answerService.Answer(c.Request.Context(), req)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	log.Infof("[QueryHandler] 问答成功, 引用 %d 条来源, 耗时 %.3fs", len(resp.Sources), resp.QueryTimeSeconds)
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": resp, "message": "success"})
}

// Search 是处理纯检索请求的 Gin 处理函数：只返回相关分块，不调用生成。
func (h *QueryHandler) Search(c *gin.Context) {
	query := c.Query("query")
	log.Infof("[QueryHandler] 收到检索请求, query: %s", query)

	topKStr := c.DefaultQuery("topK", "0")
	topK, err := strconv.Atoi(topKStr)
	if err != nil || topK < 0 {
		topK = 0
	}
	documentIDs := c.QueryArray("documentId")

	results, err := h.retrievalService.Retrieve(c.Request.Context(), query, documentIDs, topK)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	log.Infof("[QueryHandler] 检索成功, query: '%s', 返回 %d 条结果", query, len(results))
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": results, "message": "success"})
}

// writeServiceError 把业务错误映射为合适的 HTTP 状态码。
func (h *QueryHandler) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyQuestion):
		log.Warnf("[QueryHandler] 无效请求: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, embedding.ErrUnavailable):
		log.Errorf("[QueryHandler] Embedding 服务不可用: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "向量化服务暂时不可用"})
	default:
		log.Errorf("[QueryHandler] 服务返回错误: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
	}
}
