package task

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	xerrors "OpenMCP-Ankr/internal/errors"
)

// MemoryStore 把任务保存在进程内，用于单机部署与测试。读写都复制任务，调用方拿到的副本可随意修改。
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewMemoryStore 创建空的 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*Task)}
}

func (m *MemoryStore) Create(_ context.Context, task *Task) error {
	switch {
	case task == nil:
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	case task.ID == "":
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[task.ID]; exists {
		return ErrTaskConflict
	}
	task.UpdatedAt = time.Now().Unix()
	if task.CreatedAt == 0 {
		task.CreatedAt = task.UpdatedAt
	}
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if task, ok := m.tasks[id]; ok {
		return cloneTask(task), nil
	}
	return nil, ErrTaskNotFound
}

// update 在写锁内修改任务并刷新 UpdatedAt；fn 返回错误时不刷新。
func (m *MemoryStore) update(id string, fn func(*Task) error) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if err := fn(task); err != nil {
		return cloneTask(task), err
	}
	task.UpdatedAt = time.Now().Unix()
	return cloneTask(task), nil
}

// Claim 把待处理任务置为运行中并累加尝试次数。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Task, error) {
	return m.update(id, func(task *Task) error {
		switch {
		case task.Status == StatusSucceeded:
			return ErrTaskCompleted
		case task.Status == StatusRunning:
			return ErrTaskConflict
		case task.Attempts >= task.MaxRetries:
			return ErrTaskExhausted
		}
		task.Status = StatusRunning
		task.Attempts++
		task.LastError, task.ErrorCode = "", ""
		return nil
	})
}

func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, result ExecutionResult) error {
	_, err := m.update(id, func(task *Task) error {
		task.Status = StatusSucceeded
		task.Result = cloneResult(&result)
		task.LastError, task.ErrorCode = "", ""
		return nil
	})
	return err
}

// MarkFailed 记录失败；terminal 为 false 时任务回到 pending 等待重投。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	_, err := m.update(id, func(task *Task) error {
		task.Status = StatusPending
		if terminal {
			task.Status = StatusFailed
		}
		task.LastError, task.ErrorCode = lastError, string(code)
		return nil
	})
	return err
}

func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()
	matched := m.filter(opts)

	slices.SortFunc(matched, func(a, b *Task) int {
		byTime := cmp.Or(cmp.Compare(b.UpdatedAt, a.UpdatedAt), cmp.Compare(b.CreatedAt, a.CreatedAt))
		if opts.Order == SortByUpdatedAsc {
			byTime = -byTime
		}
		return cmp.Or(byTime, strings.Compare(a.ID, b.ID))
	})

	start := min(opts.Offset, len(matched))
	end := min(start+opts.Limit, len(matched))
	return matched[start:end], nil
}

func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (TaskStats, error) {
	opts.applyDefaults()
	var stats TaskStats
	for _, task := range m.filter(opts) {
		stats.add(task)
	}
	return stats, nil
}

// filter 返回命中过滤条件的任务副本。
func (m *MemoryStore) filter(opts ListOptions) []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		if matchesListFilters(task, opts) {
			matched = append(matched, cloneTask(task))
		}
	}
	return matched
}

func (m *MemoryStore) Close() error { return nil }

func cloneTask(task *Task) *Task {
	clone := *task
	clone.Result = cloneResult(task.Result)
	clone.Metadata = cloneMetadata(task.Metadata)
	return &clone
}

func matchesListFilters(task *Task, opts ListOptions) bool {
	switch {
	case len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, task.Status),
		opts.Action != "" && task.Action != opts.Action,
		opts.RoomID != "" && task.RoomID != opts.RoomID,
		opts.UserID != "" && task.UserID != opts.UserID,
		opts.ErrorCode != "" && task.ErrorCode != opts.ErrorCode,
		opts.UpdatedGTE > 0 && task.UpdatedAt < opts.UpdatedGTE,
		opts.UpdatedLTE > 0 && task.UpdatedAt > opts.UpdatedLTE,
		opts.HasResult != nil && taskHasResult(task) != *opts.HasResult:
		return false
	}
	return opts.Query == "" || strings.Contains(searchText(task), strings.ToLower(opts.Query))
}

// searchText 是自由文本查询匹配的范围：动作名、原始消息与交付文本。
func searchText(task *Task) string {
	text := task.Action + "\n" + task.Input
	if task.Result != nil {
		text += "\n" + task.Result.Text
	}
	return strings.ToLower(text)
}

func taskHasResult(task *Task) bool {
	return task != nil && task.Result != nil && task.Result.Text != ""
}

var _ Store = (*MemoryStore)(nil)
