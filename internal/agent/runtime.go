package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// 状态中约定的键名。
const (
	StateRoomID         = "roomId"
	StateUserID         = "userId"
	StateRecentMessages = "recentMessages"
)

// Message 是宿主转交给动作的一条聊天消息。
type Message struct {
	ID        string `json:"id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	RoomID    string `json:"room_id,omitempty"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

// State 是宿主组装的会话上下文，提示词模板从中取值。
type State map[string]string

// RecentMessages 返回最近消息的渲染文本。
func (s State) RecentMessages() string {
	return s[StateRecentMessages]
}

// Runtime 是动作依赖的宿主能力：读取设置与组装会话状态。
type Runtime interface {
	Setting(key string) string
	ComposeState(ctx context.Context, msg Message) (State, error)
	UpdateRecentMessageState(ctx context.Context, state State) (State, error)
}

const defaultHistoryDepth = 10

// MemoryRuntime 在内存中按房间保存消息，供守护进程与测试使用。
type MemoryRuntime struct {
	mu       sync.RWMutex
	settings map[string]string
	rooms    map[string][]Message
	depth    int
}

// NewMemoryRuntime 创建内存宿主，depth 为组装状态时保留的最近消息条数。
func NewMemoryRuntime(settings map[string]string, depth int) *MemoryRuntime {
	if depth <= 0 {
		depth = defaultHistoryDepth
	}
	copied := make(map[string]string, len(settings))
	for k, v := range settings {
		copied[k] = v
	}
	return &MemoryRuntime{
		settings: copied,
		rooms:    make(map[string][]Message),
		depth:    depth,
	}
}

// Setting 读取一项运行时设置，不存在时返回空串。
func (r *MemoryRuntime) Setting(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings[key]
}

// SetSetting 写入一项运行时设置。
func (r *MemoryRuntime) SetSetting(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[key] = value
}

// Remember 把消息追加到所属房间，并补齐 ID 与时间。
func (r *MemoryRuntime) Remember(msg Message) Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rememberLocked(msg)
}

func (r *MemoryRuntime) rememberLocked(msg Message) Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = time.Now().Unix()
	}
	room := msg.RoomID
	for _, existing := range r.rooms[room] {
		if existing.ID == msg.ID {
			return existing
		}
	}
	r.rooms[room] = append(r.rooms[room], msg)
	return msg
}

// ComposeState 记录消息并以房间内最近的消息组装状态。
func (r *MemoryRuntime) ComposeState(ctx context.Context, msg Message) (State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	msg = r.rememberLocked(msg)
	return State{
		StateRoomID:         msg.RoomID,
		StateUserID:         msg.UserID,
		StateRecentMessages: r.renderLocked(msg.RoomID),
	}, nil
}

// UpdateRecentMessageState 刷新已有状态中的最近消息，其余键保持不变。
func (r *MemoryRuntime) UpdateRecentMessageState(ctx context.Context, state State) (State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	updated := make(State, len(state)+1)
	for k, v := range state {
		updated[k] = v
	}
	updated[StateRecentMessages] = r.renderLocked(state[StateRoomID])
	return updated, nil
}

// Messages 返回房间内的全部消息副本。
func (r *MemoryRuntime) Messages(roomID string) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Message, len(r.rooms[roomID]))
	copy(out, r.rooms[roomID])
	return out
}

func (r *MemoryRuntime) renderLocked(roomID string) string {
	messages := r.rooms[roomID]
	if len(messages) > r.depth {
		messages = messages[len(messages)-r.depth:]
	}
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		speaker := m.UserID
		if speaker == "" {
			speaker = "user"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, m.Text))
	}
	return strings.Join(lines, "\n")
}
