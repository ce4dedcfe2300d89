package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"OpenMCP-Dialog/internal/dialog"
)

// MemoryStore 以进程内映射保存会话，进程退出后数据即丢失。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ensure 返回会话，不存在时懒创建。调用方需持有写锁。
func (m *MemoryStore) ensure(id string) *Session {
	sess, ok := m.sessions[id]
	if !ok {
		now := m.now()
		state := NewState()
		state.Timestamp = now
		sess = &Session{ID: id, CreatedAt: now, State: state}
		m.sessions[id] = sess
	}
	return sess
}

func (m *MemoryStore) writable(id string) (*Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errEmptyID
	}
	return m.ensure(id), nil
}

// Get 实现 Store 接口，返回会话的深拷贝。
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.writable(id)
	if err != nil {
		return nil, err
	}
	return cloneSession(sess), nil
}

// State 返回当前状态的拷贝。
func (m *MemoryStore) State(_ context.Context, id string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.writable(id)
	if err != nil {
		return State{}, err
	}
	return sess.State.Clone(), nil
}

// History 返回最近 limit 条消息，limit<=0 时返回全部。
func (m *MemoryStore) History(_ context.Context, id string, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.writable(id)
	if err != nil {
		return nil, err
	}
	msgs := sess.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	for i, msg := range msgs {
		out[i] = cloneMessage(msg)
	}
	return out, nil
}

// AppendMessage 追加一条消息。
func (m *MemoryStore) AppendMessage(_ context.Context, id string, role Role, content string) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.writable(id)
	if err != nil {
		return Message{}, err
	}
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		State:     sess.State.Clone(),
		Timestamp: m.now(),
	}
	sess.Messages = append(sess.Messages, msg)
	return cloneMessage(msg), nil
}

// AppendIntentBatch 追加一轮检测到的意图。
func (m *MemoryStore) AppendIntentBatch(_ context.Context, id string, intents []dialog.Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.writable(id)
	if err != nil {
		return err
	}
	sess.IntentBatches = append(sess.IntentBatches, IntentBatch{
		ID:        uuid.NewString(),
		Intents:   cloneIntents(intents),
		State:     sess.State.Clone(),
		Timestamp: m.now(),
	})
	return nil
}

// AppendToolCall 追加一次工具调用记录。
func (m *MemoryStore) AppendToolCall(_ context.Context, id, tool string, args map[string]any, result any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.writable(id)
	if err != nil {
		return err
	}
	sess.ToolCalls = append(sess.ToolCalls, ToolCallRecord{
		ID:        uuid.NewString(),
		Tool:      tool,
		Args:      dialog.CloneArgs(args),
		Result:    result,
		State:     sess.State.Clone(),
		Timestamp: m.now(),
	})
	return nil
}

// AppendClarification 追加一次参数追问记录。
func (m *MemoryStore) AppendClarification(_ context.Context, id, intent string, missing []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.writable(id)
	if err != nil {
		return err
	}
	sess.Clarifications = append(sess.Clarifications, ClarificationRecord{
		ID:        uuid.NewString(),
		Intent:    intent,
		Missing:   append([]string{}, missing...),
		State:     sess.State.Clone(),
		Timestamp: m.now(),
	})
	return nil
}

// SetState 合并更新状态。更新先作用在副本上，违反不变式时整体拒绝。
func (m *MemoryStore) SetState(_ context.Context, id string, updates ...Update) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.writable(id)
	if err != nil {
		return State{}, err
	}
	next := sess.State.Clone()
	for _, update := range updates {
		if update != nil {
			update(&next)
		}
	}
	if err := validateState(next); err != nil {
		return sess.State.Clone(), err
	}
	next.Timestamp = m.now()
	sess.State = next
	return next.Clone(), nil
}

// ResetState 将状态恢复为空闲。
func (m *MemoryStore) ResetState(_ context.Context, id string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.writable(id)
	if err != nil {
		return State{}, err
	}
	state := NewState()
	state.Timestamp = m.now()
	sess.State = state
	return state.Clone(), nil
}

// MarkCompleted 记录上一个任务已完成。
func (m *MemoryStore) MarkCompleted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.writable(id)
	if err != nil {
		return err
	}
	sess.State.LastCompleted = true
	sess.State.Timestamp = m.now()
	return nil
}

// ConsumeCompleted 读取并清除完成标记。
func (m *MemoryStore) ConsumeCompleted(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.writable(id)
	if err != nil {
		return false, err
	}
	completed := sess.State.LastCompleted
	if completed {
		sess.State.LastCompleted = false
		sess.State.Timestamp = m.now()
	}
	return completed, nil
}

func cloneSession(sess *Session) *Session {
	clone := &Session{
		ID:             sess.ID,
		CreatedAt:      sess.CreatedAt,
		Messages:       make([]Message, len(sess.Messages)),
		IntentBatches:  make([]IntentBatch, len(sess.IntentBatches)),
		ToolCalls:      make([]ToolCallRecord, len(sess.ToolCalls)),
		Clarifications: make([]ClarificationRecord, len(sess.Clarifications)),
		State:          sess.State.Clone(),
	}
	for i, msg := range sess.Messages {
		clone.Messages[i] = cloneMessage(msg)
	}
	for i, batch := range sess.IntentBatches {
		batch.Intents = cloneIntents(batch.Intents)
		batch.State = batch.State.Clone()
		clone.IntentBatches[i] = batch
	}
	for i, call := range sess.ToolCalls {
		call.Args = dialog.CloneArgs(call.Args)
		call.State = call.State.Clone()
		clone.ToolCalls[i] = call
	}
	for i, rec := range sess.Clarifications {
		rec.Missing = append([]string{}, rec.Missing...)
		rec.State = rec.State.Clone()
		clone.Clarifications[i] = rec
	}
	return clone
}

func cloneMessage(msg Message) Message {
	msg.State = msg.State.Clone()
	return msg
}

func cloneIntents(intents []dialog.Intent) []dialog.Intent {
	out := make([]dialog.Intent, len(intents))
	for i, intent := range intents {
		intent.Args = dialog.CloneArgs(intent.Args)
		out[i] = intent
	}
	return out
}
