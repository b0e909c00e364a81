package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"study-buddy-go/internal/config"
	"study-buddy-go/internal/model"
	"study-buddy-go/internal/repository"
	"study-buddy-go/pkg/llm"
	"study-buddy-go/pkg/log"

	"github.com/gorilla/websocket"
)

// AnswerService 定义了基于检索上下文生成答案的操作接口。
type AnswerService interface {
	// Answer 检索上下文并一次性生成完整答案。
	Answer(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error)
	// StreamResponse 检索上下文并把答案流式写入 websocket。
	StreamResponse(ctx context.Context, req model.QueryRequest, ws *websocket.Conn, shouldStop func() bool) error
	// ClearConversation 清空一个会话的对话历史。
	ClearConversation(ctx context.Context, sessionID string) error
}

type answerService struct {
	retrievalService RetrievalService
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
	statsRepo        repository.StatsRepository
	promptCfg        config.LLMPromptConfig
	genCfg           config.LLMGenerationConfig
}

// NewAnswerService 创建一个新的 AnswerService 实例。
func NewAnswerService(retrievalService RetrievalService, llmClient llm.Client, conversationRepo repository.ConversationRepository, statsRepo repository.StatsRepository, cfg config.LLMConfig) AnswerService {
	return &answerService{
		retrievalService: retrievalService,
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
		statsRepo:        statsRepo,
		promptCfg:        cfg.Prompt,
		genCfg:           cfg.Generation,
	}
}

// Answer 协调 检索 → 生成 → 保存对话 的完整问答流程。
func (s *answerService) Answer(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error) {
	started := time.Now()

	results, err := s.retrievalService.Retrieve(ctx, req.Question, req.DocumentIDs, req.NumContexts)
	if err != nil {
		return nil, err
	}

	messages, err := s.composeMessages(ctx, req, results)
	if err != nil {
		return nil, err
	}

	answer, err := s.llmClient.Complete(ctx, messages, s.buildGenerationParams())
	if err != nil {
		return nil, fmt.Errorf("生成答案失败: %w", err)
	}

	s.afterAnswer(req, answer)

	sources := make([]model.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, r.Source)
	}
	return &model.QueryResponse{
		Answer:           answer,
		Sources:          sources,
		QueryTimeSeconds: time.Since(started).Seconds(),
	}, nil
}

// StreamResponse 协调 RAG 流程并流式传输 LLM 响应。
func (s *answerService) StreamResponse(ctx context.Context, req model.QueryRequest, ws *websocket.Conn, shouldStop func() bool) error {
	results, err := s.retrievalService.Retrieve(ctx, req.Question, req.DocumentIDs, req.NumContexts)
	if err != nil {
		return fmt.Errorf("failed to retrieve context: %w", err)
	}

	messages, err := s.composeMessages(ctx, req, results)
	if err != nil {
		return err
	}

	// 拦截 websocket writer 以捕获完整答案，并包装为 JSON 分块
	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	if err := s.llmClient.StreamChatMessages(ctx, messages, s.buildGenerationParams(), interceptor); err != nil {
		return err
	}

	sendCompletion(ws)
	if fullAnswer := answerBuilder.String(); len(fullAnswer) > 0 {
		s.afterAnswer(req, fullAnswer)
	}
	return nil
}

// ClearConversation 删除会话的全部历史，后续提问从空上下文开始。
func (s *answerService) ClearConversation(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.conversationRepo.DeleteConversation(ctx, sessionID); err != nil {
		return fmt.Errorf("清空对话历史失败: %w", err)
	}
	log.Infof("[Answer] 对话历史已清空, session: %s", sessionID)
	return nil
}

// composeMessages 构建 system 上下文消息、历史和本轮提问。
func (s *answerService) composeMessages(ctx context.Context, req model.QueryRequest, results []model.RetrievalResult) ([]llm.Message, error) {
	systemMsg := s.buildSystemMessage(s.buildContextText(results))

	var history []model.ChatMessage
	if req.SessionID != "" {
		var err error
		history, err = s.conversationRepo.GetConversationHistory(ctx, req.SessionID)
		if err != nil {
			log.Errorf("Failed to load conversation history: %v", err)
			history = []model.ChatMessage{}
		}
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemMsg})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: req.Question})
	return messages, nil
}

// buildContextText 把检索命中拼装为带编号和来源标注的上下文文本。
func (s *answerService) buildContextText(results []model.RetrievalResult) string {
	if len(results) == 0 {
		return ""
	}
	var contextBuilder strings.Builder
	for i, r := range results {
		fileLabel := r.DocumentName
		if fileLabel == "" {
			fileLabel = "unknown"
		}
		contextBuilder.WriteString(fmt.Sprintf("[%d] (%s, 第%d页) %s\n", i+1, fileLabel, r.Page, r.Text))
	}
	return contextBuilder.String()
}

func (s *answerService) buildSystemMessage(contextText string) string {
	rules := s.promptCfg.Rules
	refStart := s.promptCfg.RefStart
	if refStart == "" {
		refStart = "<<REF>>"
	}
	refEnd := s.promptCfg.RefEnd
	if refEnd == "" {
		refEnd = "<<END>>"
	}

	var sys strings.Builder
	if rules != "" {
		sys.WriteString(rules)
		sys.WriteString("\n\n")
	}
	sys.WriteString(refStart)
	sys.WriteString("\n")
	if contextText != "" {
		sys.WriteString(contextText)
	} else {
		noRes := s.promptCfg.NoResultText
		if noRes == "" {
			noRes = "（本轮无检索结果）"
		}
		sys.WriteString(noRes)
		sys.WriteString("\n")
	}
	sys.WriteString(refEnd)
	return sys.String()
}

// afterAnswer 保存对话历史并累加查询计数。
// 使用后台上下文：即使原始请求被取消，也要保存成功生成的答案。
func (s *answerService) afterAnswer(req model.QueryRequest, answer string) {
	ctx := context.Background()
	if req.SessionID != "" {
		if err := s.addMessageToConversation(ctx, req.SessionID, req.Question, answer); err != nil {
			log.Errorf("Failed to save conversation history: %v", err)
		}
	}
	if err := s.statsRepo.IncrementQueryCount(ctx); err != nil {
		log.Errorf("Failed to increment query count: %v", err)
	}
}

// addMessageToConversation 是一个用于管理 Redis 中对话历史的辅助函数。
func (s *answerService) addMessageToConversation(ctx context.Context, sessionID, question, answer string) error {
	history, err := s.conversationRepo.GetConversationHistory(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get conversation history: %w", err)
	}

	now := time.Now()
	history = append(history,
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)
	return s.conversationRepo.UpdateConversationHistory(ctx, sessionID, history)
}

func (s *answerService) buildGenerationParams() *llm.GenerationParams {
	var gp llm.GenerationParams
	if s.genCfg.Temperature != 0 {
		t := s.genCfg.Temperature
		gp.Temperature = &t
	}
	if s.genCfg.TopP != 0 {
		p := s.genCfg.TopP
		gp.TopP = &p
	}
	if s.genCfg.MaxTokens != 0 {
		m := s.genCfg.MaxTokens
		gp.MaxTokens = &m
	}
	if gp.Temperature == nil && gp.TopP == nil && gp.MaxTokens == nil {
		return nil
	}
	return &gp
}

// wsWriterInterceptor 是对 websocket.Conn 的封装，用于捕获写入的消息。
type wsWriterInterceptor struct {
	conn       *websocket.Conn
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws *websocket.Conn) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}
