package llm

import (
	"context"
	"errors"
	"fmt"

	"study-buddy-go/internal/config"
	"study-buddy-go/pkg/log"
)

// ErrNoProvider 表示没有配置任何可用的模型提供商。
var ErrNoProvider = errors.New("llm: 未配置任何模型提供商")

// fallbackClient 按配置顺序在多个提供商间降级。
// 主提供商网络故障、限流或 5xx 时尝试下一个，其余错误立即上抛。
type fallbackClient struct {
	names   []string
	clients []Client
}

// NewFallbackClient 根据配置创建带降级能力的 LLM 客户端。
func NewFallbackClient(cfg config.LLMConfig) Client {
	fc := &fallbackClient{}
	for _, p := range cfg.Providers {
		fc.names = append(fc.names, p.Name)
		fc.clients = append(fc.clients, NewProviderClient(p, cfg.Generation))
	}
	return fc
}

// newFallbackFrom 供测试注入假的提供商客户端。
func newFallbackFrom(names []string, clients []Client) Client {
	return &fallbackClient{names: names, clients: clients}
}

// Complete 依次尝试各提供商，返回第一个成功的回答。
func (f *fallbackClient) Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	if len(f.clients) == 0 {
		return "", ErrNoProvider
	}
	var lastErr error
	for i, c := range f.clients {
		answer, err := c.Complete(ctx, messages, gen)
		if err == nil {
			return answer, nil
		}
		if !isRetriable(err) {
			return "", err
		}
		log.Warnf("[LLM] 提供商 '%s' 不可用，尝试降级: %v", f.names[i], err)
		lastErr = err
	}
	return "", fmt.Errorf("所有模型提供商均不可用: %w", lastErr)
}

// StreamChatMessages 依次尝试各提供商进行流式输出。
// 一旦某个提供商开始写出内容，就不再降级，失败直接上抛。
func (f *fallbackClient) StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error {
	if len(f.clients) == 0 {
		return ErrNoProvider
	}
	var lastErr error
	for i, c := range f.clients {
		tw := &trackingWriter{inner: writer}
		err := c.StreamChatMessages(ctx, messages, gen, tw)
		if err == nil {
			return nil
		}
		if tw.wrote || !isRetriable(err) {
			return err
		}
		log.Warnf("[LLM] 提供商 '%s' 不可用，尝试降级: %v", f.names[i], err)
		lastErr = err
	}
	return fmt.Errorf("所有模型提供商均不可用: %w", lastErr)
}

// trackingWriter 记录是否已向下游写出过内容。
type trackingWriter struct {
	inner MessageWriter
	wrote bool
}

func (w *trackingWriter) WriteMessage(messageType int, data []byte) error {
	w.wrote = true
	return w.inner.WriteMessage(messageType, data)
}
