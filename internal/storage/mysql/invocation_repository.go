package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// InvocationRecord 表示一次动作调用的落库结构。
type InvocationRecord struct {
	ID         string `json:"id"`
	Action     string `json:"action"`
	Method     string `json:"method"`
	RoomID     string `json:"room_id"`
	UserID     string `json:"user_id"`
	Input      string `json:"input"`
	Request    string `json:"request"`
	Text       string `json:"text"`
	Outcome    string `json:"outcome"`
	LastStage  string `json:"last_stage"`
	ErrorCode  string `json:"error_code"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  int64  `json:"created_at"`
}

// InvocationRepository 抽象调用历史的持久化接口。
type InvocationRepository interface {
	Save(ctx context.Context, record InvocationRecord) error
	ListLatest(ctx context.Context, limit int) ([]InvocationRecord, error)
}

const memoryHistoryLimit = 512

// MemoryInvocationRepository 使用本地 JSON 行文件模拟 MySQL 的效果，方便迭代开发。
type MemoryInvocationRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []InvocationRecord
}

// NewMemoryInvocationRepository 创建一个文件备份的内存仓库。
func NewMemoryInvocationRepository(dataDir string) (*MemoryInvocationRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo := &MemoryInvocationRepository{dataFile: filepath.Join(dataDir, "invocations.log")}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录调用结果。
func (m *MemoryInvocationRepository) Save(_ context.Context, record InvocationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开调用日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化调用记录失败: %w", err)
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入调用日志失败: %w", err)
	}

	m.records = append([]InvocationRecord{record}, m.records...)
	if len(m.records) > memoryHistoryLimit {
		m.records = m.records[:memoryHistoryLimit]
	}
	return nil
}

// ListLatest 返回最近的调用记录，按时间倒序排列。
func (m *MemoryInvocationRepository) ListLatest(_ context.Context, limit int) ([]InvocationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	results := make([]InvocationRecord, limit)
	copy(results, m.records[:limit])
	return results, nil
}

func (m *MemoryInvocationRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取调用日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var restored []InvocationRecord
	for scanner.Scan() {
		var record InvocationRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append([]InvocationRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析调用日志失败: %w", err)
	}

	if len(restored) > memoryHistoryLimit {
		restored = restored[:memoryHistoryLimit]
	}
	m.records = restored
	return nil
}

// SQLInvocationRepository 使用真实的 MySQL 数据库存储调用历史。
type SQLInvocationRepository struct {
	db *sql.DB
}

// NewSQLInvocationRepository 创建连接池并执行迁移。
func NewSQLInvocationRepository(ctx context.Context, cfg Config) (*SQLInvocationRepository, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &SQLInvocationRepository{db: db}, nil
}

// NewSQLInvocationRepositoryWithDB 复用已有连接池。
func NewSQLInvocationRepositoryWithDB(db *sql.DB) *SQLInvocationRepository {
	return &SQLInvocationRepository{db: db}
}

// Save 将调用记录写入 MySQL。
func (s *SQLInvocationRepository) Save(ctx context.Context, record InvocationRecord) error {
	const stmt = `INSERT INTO action_invocations
    (id, action, method, room_id, user_id, input, request, response_text, outcome, last_stage, error_code, error_message, duration_ms, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		record.ID,
		record.Action,
		record.Method,
		record.RoomID,
		record.UserID,
		record.Input,
		record.Request,
		record.Text,
		record.Outcome,
		record.LastStage,
		record.ErrorCode,
		record.Error,
		record.DurationMs,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("写入调用记录失败: %w", err)
	}
	return nil
}

// ListLatest 查询最近的若干条调用记录。
func (s *SQLInvocationRepository) ListLatest(ctx context.Context, limit int) ([]InvocationRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, action, method, room_id, user_id, input, request, response_text, outcome, last_stage, error_code, error_message, duration_ms, created_at
    FROM action_invocations ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询调用记录失败: %w", err)
	}
	defer rows.Close()

	var records []InvocationRecord
	for rows.Next() {
		var (
			record                      InvocationRecord
			request, text, errorMessage sql.NullString
		)
		if err := rows.Scan(&record.ID, &record.Action, &record.Method, &record.RoomID, &record.UserID, &record.Input,
			&request, &text, &record.Outcome, &record.LastStage, &record.ErrorCode, &errorMessage,
			&record.DurationMs, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析调用记录失败: %w", err)
		}
		record.Request = request.String
		record.Text = text.String
		record.Error = errorMessage.String
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历调用记录失败: %w", err)
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLInvocationRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
