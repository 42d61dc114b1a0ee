package schema

import (
	"context"
	"database/sql"
	"fmt"

	"db-sync/internal/dialect"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Probe runs read-only catalog queries. Each map is built from exactly one
// query so it reflects a single snapshot.
type Probe struct {
	d dialect.Dialect
}

func NewProbe(d dialect.Dialect) *Probe {
	return &Probe{d: d}
}

func (p *Probe) Dialect() dialect.Dialect { return p.d }

// Tables lists every base table visible to the connection.
func (p *Probe) Tables(ctx context.Context, q Querier) ([]TableRef, error) {
	var tables []TableRef
	err := p.scan(ctx, q, "tables", p.d.TablesQuery(), nil, func(rows *sql.Rows) error {
		var t TableRef
		if err := rows.Scan(schemaName{&t.Schema}, &t.Name); err != nil {
			return err
		}
		tables = append(tables, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

// Columns maps each requested table to its columns ordered by name.
// Tables without columns in the catalog have no entry.
func (p *Probe) Columns(ctx context.Context, q Querier, tables []TableRef) (map[TableRef][]Column, error) {
	want := tableSet(tables)
	out := make(map[TableRef][]Column)
	query, args := p.d.ColumnsQuery(qualifiedNames(tables))
	err := p.scan(ctx, q, "columns", query, args, func(rows *sql.Rows) error {
		var t TableRef
		var c Column
		if err := rows.Scan(schemaName{&t.Schema}, &t.Name, &c.Name, &c.Type); err != nil {
			return err
		}
		if want[t] {
			out[t] = append(out[t], c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Triggers maps each requested table to its triggers.
func (p *Probe) Triggers(ctx context.Context, q Querier, tables []TableRef) (map[TableRef][]Trigger, error) {
	want := tableSet(tables)
	out := make(map[TableRef][]Trigger)
	query, args := p.d.TriggersQuery(qualifiedNames(tables))
	err := p.scan(ctx, q, "triggers", query, args, func(rows *sql.Rows) error {
		var t TableRef
		var tr Trigger
		if err := rows.Scan(schemaName{&t.Schema}, &t.Name, &tr.Name, &tr.Internal, &tr.Enabled, &tr.TiedToConstraint); err != nil {
			return err
		}
		if want[t] {
			out[t] = append(out[t], tr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NonDeferrableConstraints maps each requested table to the names of its
// foreign keys that are not deferrable.
func (p *Probe) NonDeferrableConstraints(ctx context.Context, q Querier, tables []TableRef) (map[TableRef][]string, error) {
	want := tableSet(tables)
	out := make(map[TableRef][]string)
	query, args := p.d.NonDeferrableConstraintsQuery(qualifiedNames(tables))
	err := p.scan(ctx, q, "non-deferrable constraints", query, args, func(rows *sql.Rows) error {
		var t TableRef
		var name string
		if err := rows.Scan(schemaName{&t.Schema}, &t.Name, &name); err != nil {
			return err
		}
		if want[t] {
			out[t] = append(out[t], name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NonDeferrableReferences lists the non-deferrable foreign keys declared on
// tables outside the requested set that reference it. Dialects without the
// query return nothing.
func (p *Probe) NonDeferrableReferences(ctx context.Context, q Querier, tables []TableRef) ([]ConstraintRef, error) {
	query, args := p.d.NonDeferrableReferencesQuery(qualifiedNames(tables))
	if query == "" {
		return nil, nil
	}
	var refs []ConstraintRef
	err := p.scan(ctx, q, "non-deferrable references", query, args, func(rows *sql.Rows) error {
		var c ConstraintRef
		if err := rows.Scan(schemaName{&c.Table.Schema}, &c.Table.Name, &c.Name); err != nil {
			return err
		}
		refs = append(refs, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// IsManagedPlatform reports whether the vendor settings namespace of a
// managed hosting platform is present.
func (p *Probe) IsManagedPlatform(ctx context.Context, q Querier) (bool, error) {
	query := p.d.ManagedPlatformQuery()
	if query == "" {
		return false, nil
	}
	found := false
	err := p.scan(ctx, q, "managed platform", query, nil, func(*sql.Rows) error {
		found = true
		return nil
	})
	return found, err
}

func (p *Probe) scan(ctx context.Context, q Querier, label, query string, args []any, fn func(*sql.Rows) error) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return &MetadataQueryError{Query: label, Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return &MetadataQueryError{Query: label, Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return &MetadataQueryError{Query: label, Err: err}
	}
	return nil
}

// schemaName scans a catalog schema column. NULL reads as the empty schema,
// which dialects use for the connection's own database or user.
type schemaName struct{ dst *string }

func (s schemaName) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s.dst = ""
	case string:
		*s.dst = v
	case []byte:
		*s.dst = string(v)
	default:
		return fmt.Errorf("unexpected schema value of type %T", src)
	}
	return nil
}

func tableSet(tables []TableRef) map[TableRef]bool {
	set := make(map[TableRef]bool, len(tables))
	for _, t := range tables {
		set[t] = true
	}
	return set
}
