package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"study-buddy-go/internal/model"
	"study-buddy-go/internal/service"
	"study-buddy-go/pkg/embedding"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAnswerService 可编排返回值。
type fakeAnswerService struct {
	resp *model.QueryResponse
	err  error
}

func (f *fakeAnswerService) Answer(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeAnswerService) StreamResponse(ctx context.Context, req model.QueryRequest, ws *websocket.Conn, shouldStop func() bool) error {
	return f.err
}

func (f *fakeAnswerService) ClearConversation(ctx context.Context, sessionID string) error {
	return f.err
}

// fakeRetrievalService 记录入参并返回预设结果。
type fakeRetrievalService struct {
	results  []model.RetrievalResult
	err      error
	lastK    int
	lastDocs []string
}

func (f *fakeRetrievalService) Retrieve(ctx context.Context, question string, documentIDs []string, numContexts int) ([]model.RetrievalResult, error) {
	f.lastK = numContexts
	f.lastDocs = documentIDs
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func setupRouter(answerSvc service.AnswerService, retrievalSvc service.RetrievalService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewQueryHandler(answerSvc, retrievalSvc)
	r := gin.New()
	r.POST("/api/v1/query", h.Query)
	r.GET("/api/v1/search", h.Search)
	return r
}

func TestQueryHappyPath(t *testing.T) {
	answerSvc := &fakeAnswerService{resp: &model.QueryResponse{
		Answer: "线粒体是细胞的能量工厂。",
		Sources: []model.Source{
			{DocumentName: "bio.pdf", ChunkID: "doc-1_chunk_7", Page: 3, RelevanceScore: 0.93},
		},
		QueryTimeSeconds: 0.42,
	}}
	r := setupRouter(answerSvc, &fakeRetrievalService{})

	body, _ := json.Marshal(model.QueryRequest{Question: "细胞的能量来自哪里?"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data model.QueryResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "线粒体是细胞的能量工厂。", resp.Data.Answer)
	require.Len(t, resp.Data.Sources, 1)
	assert.Equal(t, "bio.pdf", resp.Data.Sources[0].DocumentName)
	assert.InDelta(t, 0.93, resp.Data.Sources[0].RelevanceScore, 1e-9)
}

func TestQueryMissingQuestion(t *testing.T) {
	r := setupRouter(&fakeAnswerService{}, &fakeRetrievalService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryEmptyQuestionMapsTo400(t *testing.T) {
	answerSvc := &fakeAnswerService{err: service.ErrEmptyQuestion}
	r := setupRouter(answerSvc, &fakeRetrievalService{})

	body, _ := json.Marshal(model.QueryRequest{Question: "   "})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryEmbeddingUnavailableMapsTo503(t *testing.T) {
	answerSvc := &fakeAnswerService{err: fmt.Errorf("查询向量化失败: %w", embedding.ErrUnavailable)}
	r := setupRouter(answerSvc, &fakeRetrievalService{})

	body, _ := json.Marshal(model.QueryRequest{Question: "任何问题"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSearchPassesParameters(t *testing.T) {
	retrievalSvc := &fakeRetrievalService{results: []model.RetrievalResult{
		{Source: model.Source{ChunkID: "a_chunk_0", RelevanceScore: 0.8}, DocumentID: "a", Text: "内容"},
	}}
	r := setupRouter(&fakeAnswerService{}, retrievalSvc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?query=细胞&topK=6&documentId=a&documentId=b", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 6, retrievalSvc.lastK)
	assert.Equal(t, []string{"a", "b"}, retrievalSvc.lastDocs)
}

func TestSearchEmptyQueryMapsTo400(t *testing.T) {
	retrievalSvc := &fakeRetrievalService{err: service.ErrEmptyQuestion}
	r := setupRouter(&fakeAnswerService{}, retrievalSvc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?query=", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
