package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// MySQL stores ledger records in the request_ledger and
// capability_daily_stats tables (see migrations/).
type MySQL struct {
	db *sql.DB
}

func NewMySQL(db *sql.DB) *MySQL {
	return &MySQL{db: db}
}

type dailyStats struct {
	date         string
	capability   string
	requestCount uint64
	failureCount uint64
	totalTimeMs  int64
	inputBytes   int64
	outputBytes  int64
}

func (m *MySQL) SaveRecords(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	requestSQL, requestVals := buildRequestInsert(records)
	statsSQL, statsVals := buildStatsUpsert(records)

	return ExecuteTransaction(ctx, m.db, []func(*sql.Tx) error{
		func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, requestSQL, requestVals...); err != nil {
				return fmt.Errorf("failed to save requests: %w", err)
			}
			return nil
		},
		func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, statsSQL, statsVals...); err != nil {
				return fmt.Errorf("failed to save daily stats: %w", err)
			}
			return nil
		},
	})
}

func buildRequestInsert(records []Record) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO request_ledger (
		request_id, capability, outcome, status_code,
		duration_ms, input_bytes, output_bytes, created_at
	) VALUES `)
	vals := make([]any, 0, len(records)*8)
	for i, r := range records {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
		vals = append(vals,
			r.RequestID, r.Capability, r.Outcome, r.StatusCode,
			r.Duration.Milliseconds(), r.InputBytes, r.OutputBytes, r.CreatedAt,
		)
	}
	return sb.String(), vals
}

func buildStatsUpsert(records []Record) (string, []any) {
	aggregated := map[string]*dailyStats{}
	var order []string
	for _, r := range records {
		date := r.CreatedAt.UTC().Format("2006-01-02")
		key := date + "/" + r.Capability
		s, ok := aggregated[key]
		if !ok {
			s = &dailyStats{date: date, capability: r.Capability}
			aggregated[key] = s
			order = append(order, key)
		}
		s.requestCount++
		if r.Outcome != "ok" {
			s.failureCount++
		}
		s.totalTimeMs += r.Duration.Milliseconds()
		s.inputBytes += r.InputBytes
		s.outputBytes += r.OutputBytes
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO capability_daily_stats (
		date, capability, request_count, failure_count, total_time, input_bytes, output_bytes
	) VALUES `)
	vals := make([]any, 0, len(order)*7)
	for i, key := range order {
		s := aggregated[key]
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		vals = append(vals, s.date, s.capability, s.requestCount, s.failureCount, s.totalTimeMs, s.inputBytes, s.outputBytes)
	}
	sb.WriteString(` ON DUPLICATE KEY UPDATE
		request_count = request_count + VALUES(request_count),
		failure_count = failure_count + VALUES(failure_count),
		total_time = total_time + VALUES(total_time),
		input_bytes = input_bytes + VALUES(input_bytes),
		output_bytes = output_bytes + VALUES(output_bytes)`)
	return sb.String(), vals
}

// ExecuteTransaction executes one transaction with one or multiple database executions.
func ExecuteTransaction(ctx context.Context, writeDB *sql.DB, fns []func(*sql.Tx) error) error {
	tx, err := writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, fn := range fns {
		if err := fn(tx); err != nil {
			return fmt.Errorf("failed to execute transaction function: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
