package schema

import (
	"context"
	"fmt"
)

// CatalogResolver resolves table selections against the source and
// destination catalogs.
type CatalogResolver struct {
	source      Querier
	destination Querier
	sourceProbe *Probe
	destProbe   *Probe
}

func NewCatalogResolver(source Querier, sourceProbe *Probe, destination Querier, destProbe *Probe) *CatalogResolver {
	return &CatalogResolver{
		source:      source,
		destination: destination,
		sourceProbe: sourceProbe,
		destProbe:   destProbe,
	}
}

// Resolve parses table names. An empty selection means every source table.
func (r *CatalogResolver) Resolve(ctx context.Context, names []string) ([]TableRef, error) {
	if len(names) == 0 {
		tables, err := r.sourceProbe.Tables(ctx, r.source)
		if err != nil {
			return nil, err
		}
		if len(tables) == 0 {
			return nil, fmt.Errorf("no tables found in source")
		}
		return tables, nil
	}

	seen := make(map[TableRef]bool, len(names))
	tables := make([]TableRef, 0, len(names))
	for _, n := range names {
		t, err := ParseTableRef(n, r.sourceProbe.Dialect().DefaultSchema())
		if err != nil {
			return nil, err
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		tables = append(tables, t)
	}
	return tables, nil
}

// MissingTables returns the tables absent from the destination, in input order.
func (r *CatalogResolver) MissingTables(ctx context.Context, tables []TableRef) ([]TableRef, error) {
	return missing(ctx, r.destProbe, r.destination, tables)
}

// Notes returns table level notes, keyed by table.
func (r *CatalogResolver) Notes(ctx context.Context, tables []TableRef) (map[TableRef][]string, error) {
	absent, err := missing(ctx, r.sourceProbe, r.source, tables)
	if err != nil {
		return nil, err
	}
	notes := make(map[TableRef][]string, len(absent))
	for _, t := range absent {
		notes[t] = append(notes[t], "Table does not exist in source")
	}
	return notes, nil
}

func missing(ctx context.Context, p *Probe, q Querier, tables []TableRef) ([]TableRef, error) {
	existing, err := p.Tables(ctx, q)
	if err != nil {
		return nil, err
	}
	exists := tableSet(existing)
	var out []TableRef
	for _, t := range tables {
		if !exists[t] {
			out = append(out, t)
		}
	}
	return out, nil
}
