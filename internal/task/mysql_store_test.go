package task

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/go-cmp/cmp"

	xerrors "OpenMCP-Ankr/internal/errors"
	"OpenMCP-Ankr/internal/storage/mysqltest"
)

const fixedUnix = int64(1_700_000_000)

var taskColumnNames = []string{"id", "action", "input", "room_id", "user_id", "metadata", "status", "attempts", "max_retries",
	"last_error", "error_code", "result_text", "result_payload", "created_at", "updated_at"}

const selectTaskByID = `SELECT ` + taskColumns + ` FROM task_states WHERE id = ?`

func scriptedStore(t *testing.T, steps ...mysqltest.Step) *MySQLStore {
	t.Helper()
	store := NewMySQLStoreWithDB(mysqltest.Open(t, steps...))
	store.now = func() time.Time { return time.Unix(fixedUnix, 0) }
	return store
}

func TestMySQLStoreCreate(t *testing.T) {
	store := scriptedStore(t,
		mysqltest.Exec(insertTaskSQL, 1).WithArgs(
			"t-1", "GET_CURRENCIES_ANKR", "currencies on eth", "room-1", "", `{"source":"chat"}`,
			"pending", 0, 3, fixedUnix, fixedUnix,
		),
		mysqltest.FailExec(insertTaskSQL, &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 't-1'"}),
		mysqltest.FailExec(insertTaskSQL, errors.New("connection reset")),
	)
	ctx := context.Background()
	newTask := func() *Task {
		return &Task{ID: "t-1", Action: "GET_CURRENCIES_ANKR", Input: "currencies on eth", RoomID: "room-1",
			Metadata: map[string]any{"source": "chat"}, Status: StatusPending, MaxRetries: 3}
	}

	created := newTask()
	if err := store.Create(ctx, created); err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.CreatedAt != fixedUnix || created.UpdatedAt != fixedUnix {
		t.Fatalf("timestamps not stamped: %+v", created)
	}
	if err := store.Create(ctx, newTask()); !xerrors.Is(err, CodeTaskConflict) {
		t.Fatalf("duplicate key should map to conflict, got %v", err)
	}
	if err := store.Create(ctx, newTask()); !xerrors.Is(err, xerrors.CodeStorageFailure) {
		t.Fatalf("driver failure should map to storage failure, got %v", err)
	}
	if err := store.Create(ctx, &Task{ID: "  "}); !xerrors.Is(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("blank id should be rejected before touching the database, got %v", err)
	}
}

func TestMySQLStoreClaim(t *testing.T) {
	succeeded := []driver.Value{"t-1", "GET_TOKEN_PRICE_ANKR", "price of eth", "room-1", "", nil, "succeeded", int64(1), int64(3),
		"", "", "Current token price on eth: 2.5000", `{"request":{"blockchain":"eth"}}`, int64(10), int64(20)}
	running := []driver.Value{"t-2", "GET_TOKEN_PRICE_ANKR", "price of bsc", "", "", nil, "running", int64(2), int64(3),
		"", "", nil, nil, int64(10), int64(30)}

	store := scriptedStore(t,
		mysqltest.Exec(claimTaskSQL, 0).WithArgs("running", fixedUnix, "t-1", "pending", "failed"),
		mysqltest.Query(selectTaskByID, taskColumnNames, succeeded).WithArgs("t-1"),
		mysqltest.Exec(claimTaskSQL, 1).WithArgs("running", fixedUnix, "t-2", "pending", "failed"),
		mysqltest.Query(selectTaskByID, taskColumnNames, running).WithArgs("t-2"),
		mysqltest.Exec(claimTaskSQL, 0),
		mysqltest.Query(selectTaskByID, taskColumnNames),
	)
	ctx := context.Background()

	done, err := store.Claim(ctx, "t-1")
	if !xerrors.Is(err, CodeTaskCompleted) {
		t.Fatalf("succeeded task should not be claimed, got %v", err)
	}
	if done.Result == nil || done.Result.Request["blockchain"] != "eth" {
		t.Fatalf("stored result should be decoded: %+v", done.Result)
	}

	claimed, err := store.Claim(ctx, "t-2")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 2 || claimed.Result != nil {
		t.Fatalf("unexpected claimed task: %+v", claimed)
	}

	if _, err := store.Claim(ctx, "gone"); !xerrors.Is(err, CodeTaskNotFound) {
		t.Fatalf("missing task should report not found, got %v", err)
	}
}

func TestMySQLStoreMarkFailed(t *testing.T) {
	store := scriptedStore(t,
		mysqltest.Exec(failTaskSQL, 1).WithArgs("pending", "Error in GetCurrencies: rate limited", "API_ERROR", fixedUnix, "t-1"),
		mysqltest.Exec(failTaskSQL, 0).WithArgs("failed", "boom", "API_ERROR", fixedUnix, "missing"),
	)
	ctx := context.Background()

	if err := store.MarkFailed(ctx, "t-1", xerrors.CodeAPI, "Error in GetCurrencies: rate limited", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkFailed(ctx, "missing", xerrors.CodeAPI, "boom", true); !xerrors.Is(err, CodeTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMySQLStoreListAppliesFilters(t *testing.T) {
	row := []driver.Value{"t-9", "GET_TOKEN_PRICE_ANKR", "price of eth", "room-1", "user-1", `{"source":"chat"}`, "failed", int64(3), int64(3),
		"Error in GetTokenPrice: Failed to fetch GetTokenPrice data", "API_ERROR", nil, nil, int64(5), int64(6)}
	store := scriptedStore(t,
		mysqltest.Query(`SELECT `+taskColumns+` FROM task_states WHERE status IN (?) AND action = ?
            ORDER BY updated_at ASC, created_at ASC, id ASC LIMIT ? OFFSET ?`, taskColumnNames, row).
			WithArgs("failed", "GET_TOKEN_PRICE_ANKR", 5, 0),
	)

	tasks, err := store.List(context.Background(), BuildListOptions(
		WithStatuses(StatusFailed),
		WithAction("get_token_price_ankr"),
		WithLimit(5),
		WithSortOrder(SortByUpdatedAsc),
	))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []*Task{{
		ID: "t-9", Action: "GET_TOKEN_PRICE_ANKR", Input: "price of eth", RoomID: "room-1", UserID: "user-1",
		Metadata: map[string]any{"source": "chat"}, Status: StatusFailed, Attempts: 3, MaxRetries: 3,
		LastError: "Error in GetTokenPrice: Failed to fetch GetTokenPrice data", ErrorCode: "API_ERROR",
		CreatedAt: 5, UpdatedAt: 6,
	}}
	if diff := cmp.Diff(want, tasks); diff != "" {
		t.Fatalf("unexpected tasks (-want +got):\n%s", diff)
	}
}

func TestMySQLStoreStatsGroupsByAction(t *testing.T) {
	store := scriptedStore(t,
		mysqltest.Query(statsSQL+` WHERE room_id = ?`,
			[]string{"total", "pending", "retrying", "running", "succeeded", "failed", "oldest", "newest"},
			[]driver.Value{int64(4), int64(1), int64(1), int64(0), int64(2), int64(1), int64(100), int64(200)},
		).WithArgs("pending", "pending", "running", "succeeded", "failed", "room-1"),
		mysqltest.Query(`SELECT action, status, COUNT(*) FROM task_states WHERE room_id = ? GROUP BY action, status`,
			[]string{"action", "status", "count"},
			[]driver.Value{"GET_TOKEN_PRICE_ANKR", "succeeded", int64(2)},
			[]driver.Value{"GET_TOKEN_PRICE_ANKR", "pending", int64(1)},
			[]driver.Value{"GET_CURRENCIES_ANKR", "failed", int64(1)},
		).WithArgs("room-1"),
	)

	stats, err := store.Stats(context.Background(), BuildListOptions(WithRoom(" room-1 ")))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := TaskStats{
		Total: 4, Pending: 1, Retrying: 1, Succeeded: 2, Failed: 1,
		ByAction: map[string]ActionStats{
			"GET_TOKEN_PRICE_ANKR": {Total: 3, Succeeded: 2},
			"GET_CURRENCIES_ANKR":  {Total: 1, Failed: 1},
		},
		OldestUpdatedAt: 100,
		NewestUpdatedAt: 200,
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Fatalf("unexpected stats (-want +got):\n%s", diff)
	}
}
