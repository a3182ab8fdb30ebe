// Package mysqltest provides a scripted database/sql driver for exercising
// SQL code paths without a MySQL server. Each Step names the statement a
// test expects next, and the returned *sql.DB fails any other call.
package mysqltest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
)

type callKind string

const (
	stepExec     callKind = "exec"
	stepQuery    callKind = "query"
	stepBegin    callKind = "begin"
	stepCommit   callKind = "commit"
	stepRollback callKind = "rollback"
)

// Step is one expected call. An empty SQL matches any statement.
type Step struct {
	kind     callKind
	sql      string
	columns  []string
	values   [][]driver.Value
	affected int64
	err      error
	args     []driver.Value
	checkArg bool
}

// WithArgs also requires the call's arguments to equal args after the
// standard driver conversion, so an int matches an int64.
func (s Step) WithArgs(args ...any) Step {
	s.checkArg = true
	s.args = make([]driver.Value, len(args))
	for i, arg := range args {
		v, err := driver.DefaultParameterConverter.ConvertValue(arg)
		if err != nil {
			panic(fmt.Sprintf("mysqltest: unsupported argument %#v: %v", arg, err))
		}
		s.args[i] = v
	}
	return s
}

// Exec expects a statement and reports affected rows.
func Exec(query string, affected int64) Step {
	return Step{kind: stepExec, sql: query, affected: affected}
}

// FailExec expects a statement and fails it with err.
func FailExec(query string, err error) Step {
	return Step{kind: stepExec, sql: query, err: err}
}

// Query expects a query and returns the given rows.
func Query(query string, columns []string, values ...[]driver.Value) Step {
	return Step{kind: stepQuery, sql: query, columns: columns, values: values}
}

// Begin, Commit and Rollback expect transaction control.
func Begin() Step    { return Step{kind: stepBegin} }
func Commit() Step   { return Step{kind: stepCommit} }
func Rollback() Step { return Step{kind: stepRollback} }

// script replays steps in order. It is both the Connector and the Driver.
type script struct {
	mu    sync.Mutex
	steps []Step
	pos   int
}

// Open returns a database that accepts exactly steps, in order. Cleanup
// closes it and fails the test if any step never ran.
func Open(t testing.TB, steps ...Step) *sql.DB {
	t.Helper()
	s := &script{steps: steps}
	db := sql.OpenDB(s)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
		if left := s.remaining(); left > 0 {
			t.Errorf("%d scripted calls never happened", left)
		}
	})
	return db
}

func (s *script) take(kind callKind, query string, args []driver.NamedValue) (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.steps) {
		return Step{}, fmt.Errorf("unscripted %s %q", kind, squash(query))
	}
	next := s.steps[s.pos]
	if next.kind != kind {
		return Step{}, fmt.Errorf("call %d: scripted %s, got %s", s.pos, next.kind, kind)
	}
	if next.sql != "" && squash(next.sql) != squash(query) {
		return Step{}, fmt.Errorf("call %d: scripted %q, got %q", s.pos, squash(next.sql), squash(query))
	}
	if next.checkArg {
		got := make([]driver.Value, len(args))
		for i, arg := range args {
			got[i] = arg.Value
		}
		if !reflect.DeepEqual(next.args, got) {
			return Step{}, fmt.Errorf("call %d: scripted args %v, got %v", s.pos, next.args, got)
		}
	}
	s.pos++
	return next, next.err
}

func (s *script) remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps) - s.pos
}

func (s *script) Connect(context.Context) (driver.Conn, error) { return scriptConn{s}, nil }
func (s *script) Driver() driver.Driver                        { return s }
func (s *script) Open(string) (driver.Conn, error)             { return scriptConn{s}, nil }

type scriptConn struct{ *script }

func (c scriptConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepared statements are not scripted: %s", query)
}

func (c scriptConn) Close() error { return nil }

func (c scriptConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c scriptConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if _, err := c.take(stepBegin, "", nil); err != nil {
		return nil, err
	}
	return scriptTx{c.script}, nil
}

func (c scriptConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	st, err := c.take(stepExec, query, args)
	if err != nil {
		return nil, err
	}
	return driver.RowsAffected(st.affected), nil
}

func (c scriptConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	st, err := c.take(stepQuery, query, args)
	if err != nil {
		return nil, err
	}
	return &scriptRows{columns: st.columns, values: st.values}, nil
}

type scriptTx struct{ *script }

func (tx scriptTx) Commit() error {
	_, err := tx.take(stepCommit, "", nil)
	return err
}

func (tx scriptTx) Rollback() error {
	_, err := tx.take(stepRollback, "", nil)
	return err
}

type scriptRows struct {
	columns []string
	values  [][]driver.Value
}

func (r *scriptRows) Columns() []string { return r.columns }
func (r *scriptRows) Close() error      { return nil }

func (r *scriptRows) Next(dest []driver.Value) error {
	if len(r.values) == 0 {
		return io.EOF
	}
	copy(dest, r.values[0])
	r.values = r.values[1:]
	return nil
}

// squash collapses whitespace so indentation does not affect matching.
func squash(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
