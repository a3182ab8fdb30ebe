package task

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "OpenMCP-Ankr/internal/errors"
	storage "OpenMCP-Ankr/internal/storage/mysql"
)

// MySQL 错误号 1062: Duplicate entry。
const errDuplicateEntry = 1062

const (
	taskColumns = `id, action, input, room_id, user_id, metadata, status, attempts, max_retries,
        last_error, error_code, result_text, result_payload, created_at, updated_at`

	insertTaskSQL = `INSERT INTO task_states
        (id, action, input, room_id, user_id, metadata, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)`

	// 只有 pending/failed 且仍有剩余次数的任务可以被领取。
	claimTaskSQL = `UPDATE task_states
        SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`

	succeedTaskSQL = `UPDATE task_states
        SET status = ?, result_text = ?, result_payload = ?, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ?`

	failTaskSQL = `UPDATE task_states SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`

	statsSQL = `SELECT COUNT(*),
        COALESCE(SUM(status = ?), 0),
        COALESCE(SUM(status = ? AND attempts > 0), 0),
        COALESCE(SUM(status = ?), 0),
        COALESCE(SUM(status = ?), 0),
        COALESCE(SUM(status = ?), 0),
        COALESCE(MIN(updated_at), 0),
        COALESCE(MAX(updated_at), 0)
        FROM task_states`
)

// MySQLStore 把任务状态保存在 task_states 表，表结构由内嵌迁移维护。
type MySQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQLStore 建立连接池并执行迁移。
func NewMySQLStore(ctx context.Context, cfg storage.Config) (*MySQLStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}
	db, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}
	return NewMySQLStoreWithDB(db), nil
}

// NewMySQLStoreWithDB 复用已有连接池，调用方负责迁移。
func NewMySQLStoreWithDB(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db, now: time.Now}
}

func (s *MySQLStore) Create(ctx context.Context, task *Task) error {
	if task == nil || strings.TrimSpace(task.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	metadata, err := encodeJSON(task.Metadata, len(task.Metadata) == 0)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码任务 metadata 失败")
	}
	task.CreatedAt = s.now().Unix()
	task.UpdatedAt = task.CreatedAt

	_, err = s.db.ExecContext(ctx, insertTaskSQL,
		task.ID, task.Action, task.Input, task.RoomID, task.UserID, metadata,
		string(task.Status), task.Attempts, task.MaxRetries, task.CreatedAt, task.UpdatedAt,
	)
	var mysqlErr *mysql.MySQLError
	switch {
	case err == nil:
		return nil
	case stdErrors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry:
		return ErrTaskConflict
	default:
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入任务失败")
	}
}

func (s *MySQLStore) Get(ctx context.Context, id string) (*Task, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM task_states WHERE id = ?`, id))
	switch {
	case stdErrors.Is(err, sql.ErrNoRows):
		return nil, ErrTaskNotFound
	case err != nil:
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务失败")
	}
	return task, nil
}

// Claim 以条件更新领取任务；没有行被更新时读回任务说明原因。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Task, error) {
	res, err := s.db.ExecContext(ctx, claimTaskSQL,
		string(StatusRunning), s.now().Unix(), id, string(StatusPending), string(StatusFailed))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务状态失败")
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}

	task, err := s.Get(ctx, id)
	if err != nil || claimed > 0 {
		return task, err
	}
	switch {
	case task.Status == StatusSucceeded:
		return task, ErrTaskCompleted
	case task.Status != StatusRunning && task.Attempts >= task.MaxRetries:
		return task, ErrTaskExhausted
	default:
		return task, ErrTaskConflict
	}
}

func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, result ExecutionResult) error {
	payload, err := encodeJSON(storedPayload{Request: result.Request, Response: result.Response},
		len(result.Request) == 0 && len(result.Response) == 0)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码任务结果失败")
	}
	return s.updateOne(ctx, "标记任务成功失败", succeedTaskSQL,
		string(StatusSucceeded), result.Text, payload, s.now().Unix(), id)
}

// MarkFailed 记录失败；terminal 为 false 时任务回到 pending 等待重投。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	status := StatusPending
	if terminal {
		status = StatusFailed
	}
	return s.updateOne(ctx, "标记任务失败失败", failTaskSQL,
		string(status), lastError, string(code), s.now().Unix(), id)
}

// updateOne 执行针对单个任务的更新，没有命中行时返回 ErrTaskNotFound。
func (s *MySQLStore) updateOne(ctx context.Context, failure, stmt string, args ...any) error {
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, failure)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()
	where, args := whereClause(opts)
	direction := "DESC"
	if opts.Order == SortByUpdatedAsc {
		direction = "ASC"
	}
	query := fmt.Sprintf("SELECT %s FROM task_states%s ORDER BY updated_at %[3]s, created_at %[3]s, id %[3]s LIMIT ? OFFSET ?",
		taskColumns, where, direction)

	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务列表失败")
	}
	defer rows.Close()

	tasks := make([]*Task, 0, opts.Limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务记录失败")
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务失败")
	}
	return tasks, nil
}

// Stats 先取状态计数，再按动作与状态分组。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (TaskStats, error) {
	opts.applyDefaults()
	where, filterArgs := whereClause(opts)

	statusArgs := []any{string(StatusPending), string(StatusPending), string(StatusRunning), string(StatusSucceeded), string(StatusFailed)}
	var stats TaskStats
	err := s.db.QueryRowContext(ctx, statsSQL+where, append(statusArgs, filterArgs...)...).Scan(
		&stats.Total, &stats.Pending, &stats.Retrying, &stats.Running, &stats.Succeeded, &stats.Failed,
		&stats.OldestUpdatedAt, &stats.NewestUpdatedAt,
	)
	if err != nil {
		return TaskStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务统计失败")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT action, status, COUNT(*) FROM task_states`+where+` GROUP BY action, status`, filterArgs...)
	if err != nil {
		return TaskStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询动作统计失败")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			action, status string
			count          int
		)
		if err := rows.Scan(&action, &status, &count); err != nil {
			return TaskStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析动作统计失败")
		}
		stats.addAction(action, Status(status), count)
	}
	if err := rows.Err(); err != nil {
		return TaskStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历动作统计失败")
	}
	return stats, nil
}

func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// scanTask 同时服务 *sql.Row 与 *sql.Rows。
func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	var (
		task                                          Task
		status                                        string
		metadata, lastError, errorCode, text, payload sql.NullString
	)
	if err := row.Scan(
		&task.ID, &task.Action, &task.Input, &task.RoomID, &task.UserID, &metadata,
		&status, &task.Attempts, &task.MaxRetries, &lastError, &errorCode,
		&text, &payload, &task.CreatedAt, &task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	task.Status = Status(status)
	task.LastError = lastError.String
	task.ErrorCode = errorCode.String
	if err := decodeJSON(metadata, &task.Metadata); err != nil {
		return nil, fmt.Errorf("解析任务 metadata 失败: %w", err)
	}

	if text.String == "" && payload.String == "" {
		return &task, nil
	}
	var stored storedPayload
	if err := decodeJSON(payload, &stored); err != nil {
		return nil, fmt.Errorf("解析任务结果失败: %w", err)
	}
	task.Result = &ExecutionResult{Text: text.String, Request: stored.Request, Response: stored.Response}
	return &task, nil
}

// storedPayload 是 result_payload 列的 JSON 结构。
type storedPayload struct {
	Request  map[string]any  `json:"request,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// encodeJSON 在 empty 为 true 时写入 NULL。
func encodeJSON(v any, empty bool) (sql.NullString, error) {
	if empty {
		return sql.NullString{}, nil
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}

// decodeJSON 对 NULL 或空白列不做任何事。
func decodeJSON(raw sql.NullString, dst any) error {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), dst)
}

// whereClause 返回以 " WHERE " 开头的条件，没有过滤时为空串。
func whereClause(opts ListOptions) (string, []any) {
	clause, args := buildFilterClause(opts)
	if clause == "" {
		return "", args
	}
	return " WHERE " + clause, args
}

// buildFilterClause 把 ListOptions 翻译为 AND 连接的条件，空字段不参与过滤。
func buildFilterClause(opts ListOptions) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, values ...any) {
		conditions = append(conditions, cond)
		args = append(args, values...)
	}

	if n := len(opts.Statuses); n > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", n), ",")
		statuses := make([]any, n)
		for i, status := range opts.Statuses {
			statuses[i] = string(status)
		}
		add("status IN ("+placeholders+")", statuses...)
	}
	for _, eq := range [][2]string{
		{"action", opts.Action},
		{"room_id", opts.RoomID},
		{"user_id", opts.UserID},
		{"error_code", opts.ErrorCode},
	} {
		if eq[1] != "" {
			add(eq[0]+" = ?", eq[1])
		}
	}
	if opts.UpdatedGTE > 0 {
		add("updated_at >= ?", opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		add("updated_at <= ?", opts.UpdatedLTE)
	}
	if opts.HasResult != nil {
		op := "="
		if *opts.HasResult {
			op = "<>"
		}
		add("COALESCE(result_text, '') " + op + " ''")
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		add("(action LIKE ? OR input LIKE ? OR result_text LIKE ?)", pattern, pattern, pattern)
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
