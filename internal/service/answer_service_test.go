package service

import (
	"context"
	"errors"
	"testing"

	"study-buddy-go/internal/config"
	"study-buddy-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConversationRepo 是内存版的 ConversationRepository。
type fakeConversationRepo struct {
	histories map[string][]model.ChatMessage
	deleteErr error
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{histories: map[string][]model.ChatMessage{}}
}

func (f *fakeConversationRepo) GetConversationHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	return f.histories[sessionID], nil
}

func (f *fakeConversationRepo) UpdateConversationHistory(ctx context.Context, sessionID string, messages []model.ChatMessage) error {
	f.histories[sessionID] = messages
	return nil
}

func (f *fakeConversationRepo) DeleteConversation(ctx context.Context, sessionID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.histories, sessionID)
	return nil
}

func TestClearConversation(t *testing.T) {
	repo := newFakeConversationRepo()
	repo.histories["s-1"] = []model.ChatMessage{
		{Role: "user", Content: "什么是光合作用?"},
		{Role: "assistant", Content: "光合作用是……"},
	}
	repo.histories["s-2"] = []model.ChatMessage{{Role: "user", Content: "保留"}}
	svc := NewAnswerService(nil, nil, repo, nil, config.LLMConfig{})

	require.NoError(t, svc.ClearConversation(context.Background(), "s-1"))

	// 只清目标会话
	assert.Empty(t, repo.histories["s-1"])
	assert.Len(t, repo.histories["s-2"], 1)
}

func TestClearConversationEmptySession(t *testing.T) {
	repo := newFakeConversationRepo()
	svc := NewAnswerService(nil, nil, repo, nil, config.LLMConfig{})

	assert.NoError(t, svc.ClearConversation(context.Background(), ""))
}

func TestClearConversationPropagatesError(t *testing.T) {
	repo := newFakeConversationRepo()
	repo.deleteErr = errors.New("redis 连接失败")
	svc := NewAnswerService(nil, nil, repo, nil, config.LLMConfig{})

	err := svc.ClearConversation(context.Background(), "s-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "清空对话历史失败")
}
