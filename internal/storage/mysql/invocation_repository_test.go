package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"

	"OpenMCP-Ankr/internal/storage/mysqltest"
)

func TestMemoryInvocationRepositoryPersists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := NewMemoryInvocationRepository(dir)
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}

	ctx := context.Background()
	first := InvocationRecord{ID: "a", Action: "GET_TOKEN_PRICE_ANKR", Method: "GetTokenPrice", Outcome: "delivered", CreatedAt: 1}
	second := InvocationRecord{ID: "b", Action: "GET_CURRENCIES_ANKR", Method: "GetCurrencies", Outcome: "failed", ErrorCode: "API_ERROR", CreatedAt: 2}
	for _, record := range []InvocationRecord{first, second} {
		if err := repo.Save(ctx, record); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	list, err := repo.ListLatest(ctx, 1)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != "b" {
		t.Fatalf("unexpected list result: %+v", list)
	}

	reopened, err := NewMemoryInvocationRepository(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	restored, _ := reopened.ListLatest(ctx, 0)
	if len(restored) != 2 || restored[0].ID != "b" || restored[1].ErrorCode != "" {
		t.Fatalf("unexpected restored records: %+v", restored)
	}
}

const (
	insertInvocation = `INSERT INTO action_invocations
    (id, action, method, room_id, user_id, input, request, response_text, outcome, last_stage, error_code, error_message, duration_ms, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	selectLatestInvocations = `SELECT id, action, method, room_id, user_id, input, request, response_text, outcome, last_stage, error_code, error_message, duration_ms, created_at
    FROM action_invocations ORDER BY created_at DESC, id DESC LIMIT ?`
)

var invocationColumns = []string{"id", "action", "method", "room_id", "user_id", "input", "request", "response_text", "outcome", "last_stage", "error_code", "error_message", "duration_ms", "created_at"}

func TestSQLInvocationRepositorySave(t *testing.T) {
	t.Parallel()

	record := InvocationRecord{ID: "id-1", Action: "GET_TOKEN_PRICE_ANKR", Method: "GetTokenPrice", Input: "eth price", Outcome: "delivered", LastStage: "delivered", DurationMs: 42, CreatedAt: 1}
	db := mysqltest.Open(t, mysqltest.Exec(insertInvocation, 1).WithArgs(
		"id-1", "GET_TOKEN_PRICE_ANKR", "GetTokenPrice", "", "", "eth price", "", "", "delivered", "delivered", "", "", int64(42), int64(1),
	))
	repo := NewSQLInvocationRepositoryWithDB(db)
	if err := repo.Save(context.Background(), record); err != nil {
		t.Fatalf("save failed: %v", err)
	}
}

func TestSQLInvocationRepositoryListLatest(t *testing.T) {
	t.Parallel()

	db := mysqltest.Open(t, mysqltest.Query(selectLatestInvocations, invocationColumns,
		[]driver.Value{"b", "GET_CURRENCIES_ANKR", "GetCurrencies", "room", "", "top coins", nil, nil, "failed", "failed", "API_ERROR", "Failed to fetch GetCurrencies data", int64(12), int64(20)},
		[]driver.Value{"a", "GET_TOKEN_PRICE_ANKR", "GetTokenPrice", "room", "", "eth price", `{"blockchain":"eth"}`, "Current token price on eth:", "delivered", "delivered", "", nil, int64(30), int64(10)},
	))

	repo := NewSQLInvocationRepositoryWithDB(db)
	list, err := repo.ListLatest(context.Background(), 2)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "b" || list[0].Error != "Failed to fetch GetCurrencies data" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list[1].Request != `{"blockchain":"eth"}` || list[1].Error != "" {
		t.Fatalf("null columns should scan as empty strings: %+v", list[1])
	}
}

func TestRunMigrationsAppliesOnlyPendingVersions(t *testing.T) {
	t.Parallel()

	files, err := loadMigrationFiles()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(files) != 3 || files[0].version != "0001" || files[1].version != "0002" || files[2].version != "0003" {
		t.Fatalf("unexpected migration order: %+v", files)
	}
	if len(files[2].statements) != 3 {
		t.Fatalf("index migration should hold three statements: %+v", files[2].statements)
	}

	steps := []mysqltest.Step{
		mysqltest.Exec(createMigrationsTable, 0),
		mysqltest.Query(`SELECT version FROM schema_migrations`, []string{"version"}, []driver.Value{"0001"}, []driver.Value{"0002"}),
		mysqltest.Begin(),
	}
	for _, stmt := range files[2].statements {
		steps = append(steps, mysqltest.Exec(stmt, 0))
	}
	steps = append(steps,
		mysqltest.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, 1),
		mysqltest.Commit(),
	)

	if err := runMigrations(context.Background(), mysqltest.Open(t, steps...)); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func TestMigrationRollbackOnFailure(t *testing.T) {
	t.Parallel()

	files, err := loadMigrationFiles()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	db := mysqltest.Open(t,
		mysqltest.Begin(),
		mysqltest.FailExec(files[0].statements[0], errors.New("syntax error")),
		mysqltest.Rollback(),
	)

	err = applyMigration(context.Background(), db, files[0])
	if err == nil || !strings.Contains(err.Error(), files[0].name) {
		t.Fatalf("expected migration failure naming the file, got %v", err)
	}
}
