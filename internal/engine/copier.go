package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"db-sync/internal/datasource"
	"db-sync/internal/dialect"

	"github.com/rs/zerolog"
)

// TableCopier is the default Copier. In replace mode it deletes the
// destination rows and inserts the source rows inside one destination
// transaction. In batch mode it appends rows past the destination's highest
// batch key, one transaction per batch.
type TableCopier struct {
	Source      dialect.Dialect
	Destination dialect.Dialect
	Logger      zerolog.Logger
}

func (c *TableCopier) Copy(ctx context.Context, task *SyncTask, conns Conns) ([]string, error) {
	fields := task.SharedFields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields to copy")
	}
	if task.Opts.InBatches {
		return c.copyInBatches(ctx, task, conns, fields)
	}
	return c.copyReplace(ctx, task, conns, fields)
}

func (c *TableCopier) copyReplace(ctx context.Context, task *SyncTask, conns Conns, fields []string) ([]string, error) {
	var notices []string
	srcTable := c.Source.QualifiedTable(task.Table.Schema, task.Table.Name)
	dstTable := c.Destination.QualifiedTable(task.Table.Schema, task.Table.Name)

	err := conns.destinationTx(ctx, func(dst datasource.Querier) error {
		var triggers []string
		if task.Opts.DisableUserTriggers {
			for _, tr := range task.UserTriggers() {
				stmt, err := c.Destination.DisableTriggerStatement(task.Table.Schema, task.Table.Name, tr.Name)
				if err != nil {
					return err
				}
				if _, err := dst.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("disable trigger %s: %w", tr.Name, err)
				}
				triggers = append(triggers, tr.Name)
			}
		}

		del := "DELETE FROM " + dstTable + whereClause(task.Opts.Where)
		if _, err := dst.ExecContext(ctx, del); err != nil {
			return fmt.Errorf("delete: %w", err)
		}

		query := fmt.Sprintf("SELECT %s FROM %s%s", c.columnList(c.Source, fields), srcTable, whereClause(task.Opts.Where))
		n, _, err := c.transfer(ctx, conns.Source, dst, task, fields, query, nil, -1)
		if err != nil {
			return err
		}
		if n == 0 {
			notices = append(notices, "Source table is empty")
		}
		c.Logger.Debug().Str("table", task.Table.String()).Int("rows", n).Msg("copied")

		for _, name := range triggers {
			stmt, err := c.Destination.EnableTriggerStatement(task.Table.Schema, task.Table.Name, name)
			if err != nil {
				return err
			}
			if _, err := dst.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("enable trigger %s: %w", name, err)
			}
		}
		return nil
	})
	return notices, err
}

func (c *TableCopier) copyInBatches(ctx context.Context, task *SyncTask, conns Conns, fields []string) ([]string, error) {
	key := task.Opts.BatchKey
	if key == "" {
		key = DefaultBatchKey
	}
	keyIdx := slices.Index(fields, key)
	if keyIdx < 0 {
		return nil, fmt.Errorf("batch key %q is not a shared column", key)
	}
	size := task.Opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	srcTable := c.Source.QualifiedTable(task.Table.Schema, task.Table.Name)
	dstTable := c.Destination.QualifiedTable(task.Table.Schema, task.Table.Name)

	var last any
	if err := conns.Destination.QueryRowContext(ctx,
		fmt.Sprintf("SELECT MAX(%s) FROM %s", c.Destination.QuoteIdent(key), dstTable)).Scan(&last); err != nil {
		return nil, fmt.Errorf("read max %s: %w", key, err)
	}

	total := 0
	for {
		conds := []string{c.Source.QuoteIdent(key) + " IS NOT NULL"}
		var args []any
		if last != nil {
			conds = []string{c.Source.QuoteIdent(key) + " > " + c.Source.Placeholder(0)}
			args = append(args, normalizeValue(last, ""))
		}
		if task.Opts.Where != "" {
			conds = append(conds, "("+task.Opts.Where+")")
		}
		query := c.Source.LimitQuery(fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
			c.columnList(c.Source, fields), srcTable, strings.Join(conds, " AND "), c.Source.QuoteIdent(key)), size)

		var n int
		var batchLast any
		err := conns.destinationTx(ctx, func(dst datasource.Querier) error {
			var err error
			n, batchLast, err = c.transfer(ctx, conns.Source, dst, task, fields, query, args, keyIdx)
			return err
		})
		if err != nil {
			return nil, err
		}
		total += n
		if n > 0 {
			last = batchLast
		}
		c.Logger.Debug().Str("table", task.Table.String()).Int("rows", n).Int("total", total).Msg("batch copied")
		if n < size {
			break
		}
		if task.Opts.Sleep > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(task.Opts.Sleep):
			}
		}
	}

	if total == 0 {
		return []string{"No new rows"}, nil
	}
	return nil, nil
}

// transfer streams query results from src and inserts them into dst. It
// returns the row count and, when keyIdx >= 0, the last key value seen.
func (c *TableCopier) transfer(ctx context.Context, src, dst datasource.Querier, task *SyncTask, fields []string, query string, args []any, keyIdx int) (int, any, error) {
	rows, err := src.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, nil, fmt.Errorf("select: %w", err)
	}
	defer rows.Close()

	types := make([]string, len(fields))
	for i, f := range fields {
		for _, col := range task.ToColumns {
			if col.Name == f {
				types[i] = col.Type
			}
		}
	}

	insert := c.Destination.InsertQuery(c.Destination.QualifiedTable(task.Table.Schema, task.Table.Name), fields)
	values := make([]any, len(fields))
	ptrs := make([]any, len(fields))
	for i := range values {
		ptrs[i] = &values[i]
	}

	n := 0
	var last any
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return n, last, fmt.Errorf("scan: %w", err)
		}
		args := make([]any, len(values))
		for i, v := range values {
			args[i] = normalizeValue(v, types[i])
		}
		if _, err := dst.ExecContext(ctx, insert, args...); err != nil {
			return n, last, fmt.Errorf("insert: %w", err)
		}
		if keyIdx >= 0 {
			last = args[keyIdx]
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, last, fmt.Errorf("read rows: %w", err)
	}
	return n, last, nil
}

func (c *TableCopier) columnList(d dialect.Dialect, fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = d.QuoteIdent(f)
	}
	return strings.Join(quoted, ", ")
}

func whereClause(pred string) string {
	if strings.TrimSpace(pred) == "" {
		return ""
	}
	return " WHERE " + pred
}

// normalizeValue turns driver byte slices into strings unless the
// destination column is binary; text-like values come back as []byte from
// several drivers.
func normalizeValue(v any, colType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	t := strings.ToLower(colType)
	if strings.Contains(t, "bytea") || strings.Contains(t, "blob") || strings.Contains(t, "binary") || strings.Contains(t, "raw") {
		return b
	}
	return string(b)
}

var _ Copier = (*TableCopier)(nil)
