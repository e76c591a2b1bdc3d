// Package executor runs validated statements against the backing store and
// shapes the outcome into query results.
package executor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/koustreak/dataagent/internal/database"
	"github.com/koustreak/dataagent/internal/errs"
	"github.com/koustreak/dataagent/internal/logger"
	"github.com/koustreak/dataagent/internal/model"
)

// Executor runs statements. Implementations never fail the caller: every
// problem is reported inside the returned result or info map.
type Executor interface {
	// ExecuteQuery runs a statement expected to return rows.
	ExecuteQuery(ctx context.Context, sql string, params map[string]any) *model.QueryResult

	// ExecuteUpdate runs a mutation and reports the affected row count.
	ExecuteUpdate(ctx context.Context, sql string, params map[string]any) *model.QueryResult

	// IsReady is a lightweight liveness probe.
	IsReady(ctx context.Context) bool

	// DatabaseInfo describes the engine, or degrades to {error, ready}.
	DatabaseInfo(ctx context.Context) map[string]any
}

// SQLExecutor implements Executor over a database.DB.
type SQLExecutor struct {
	db           database.DB
	log          *logger.Logger
	queryTimeout time.Duration
}

// New creates an executor. A zero queryTimeout leaves deadlines to the caller.
func New(db database.DB, log *logger.Logger, queryTimeout time.Duration) *SQLExecutor {
	if log == nil {
		log = logger.Nop()
	}
	return &SQLExecutor{db: db, log: log.Component("executor"), queryTimeout: queryTimeout}
}

func (e *SQLExecutor) ExecuteQuery(ctx context.Context, sql string, params map[string]any) *model.QueryResult {
	start := time.Now()

	stmt, args, err := BindNamed(sql, params, e.db.Dialect())
	if err != nil {
		return e.fail(start, "Error executing query: ", sql, err)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	rows, err := e.db.Query(ctx, stmt, args...)
	if err != nil {
		return e.fail(start, "Error executing query: ", sql, err)
	}
	data, err := database.ScanRows(rows)
	if err != nil {
		return e.fail(start, "Error executing query: ", sql, err)
	}

	elapsed := time.Since(start)
	e.log.DebugWith("query executed", map[string]any{"rows": len(data), "elapsed_ms": elapsed.Milliseconds()})

	return &model.QueryResult{
		Success:       true,
		Data:          data,
		RowCount:      len(data),
		ExecutionTime: elapsed,
		ExecutedAt:    time.Now(),
		Metadata: &model.QueryMetadata{
			Query:      sql,
			Parameters: params,
			Kind:       model.KindSelect,
		},
	}
}

func (e *SQLExecutor) ExecuteUpdate(ctx context.Context, sql string, params map[string]any) *model.QueryResult {
	start := time.Now()

	stmt, args, err := BindNamed(sql, params, e.db.Dialect())
	if err != nil {
		return e.fail(start, "Error executing update: ", sql, err)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	res, err := e.db.Exec(ctx, stmt, args...)
	if err != nil {
		return e.fail(start, "Error executing update: ", sql, err)
	}

	kind := Classify(sql)
	affected := res.RowsAffected
	meta := &model.QueryMetadata{
		Query:        sql,
		Parameters:   params,
		Kind:         kind,
		AffectedRows: &affected,
	}
	if kind == model.KindInsert && res.HasLastInsertID {
		meta.GeneratedKeys = []any{res.LastInsertID}
	}

	elapsed := time.Since(start)
	e.log.DebugWith("update executed", map[string]any{"kind": string(kind), "affected": affected, "elapsed_ms": elapsed.Milliseconds()})

	return &model.QueryResult{
		Success:       true,
		Data:          []map[string]any{},
		RowCount:      int(affected),
		ExecutionTime: elapsed,
		ExecutedAt:    time.Now(),
		Metadata:      meta,
	}
}

// IsReady runs SELECT 1.
func (e *SQLExecutor) IsReady(ctx context.Context) bool {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	row, err := e.db.QueryRow(ctx, "SELECT 1")
	if err != nil {
		return false
	}
	var one int
	if err := row.Scan(&one); err != nil {
		e.log.WarnWith("readiness probe failed", err, nil)
		return false
	}
	return one == 1
}

func (e *SQLExecutor) DatabaseInfo(ctx context.Context) map[string]any {
	info, err := e.db.Info(ctx)
	if err != nil {
		return map[string]any{
			"error": "Unable to retrieve database info: " + Reason(err),
			"ready": e.IsReady(ctx),
		}
	}
	return map[string]any{
		"productName":    info.Product,
		"productVersion": info.Version,
		"driverName":     info.Driver,
		"url":            info.URL,
		"dialect":        e.db.Dialect().String(),
	}
}

// Tables lists the physical tables of the backing store.
func (e *SQLExecutor) Tables(ctx context.Context) ([]string, error) {
	return e.db.ListTables(ctx)
}

func (e *SQLExecutor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.queryTimeout)
}

func (e *SQLExecutor) fail(start time.Time, prefix, sql string, err error) *model.QueryResult {
	e.log.ErrorWith("statement failed", err, map[string]any{"kind": string(Classify(sql))})
	return model.FailedResult(start, prefix+Reason(err))
}

// Reason renders err for a result message without the kind prefix.
func Reason(err error) string {
	var e *errs.Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	if e.Cause == nil || strings.Contains(e.Message, e.Cause.Error()) {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}
