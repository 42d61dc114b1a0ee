package schema

import (
	"context"
	"database/sql"
)

// Dependencies maps each requested table to the requested tables it
// references through foreign keys. Self references are dropped.
func (p *Probe) Dependencies(ctx context.Context, q Querier, tables []TableRef) (map[TableRef][]TableRef, error) {
	want := tableSet(tables)
	out := make(map[TableRef][]TableRef)
	query, args := p.d.ForeignKeysQuery(qualifiedNames(tables))
	err := p.scan(ctx, q, "foreign keys", query, args, func(rows *sql.Rows) error {
		var t, ref TableRef
		if err := rows.Scan(schemaName{&t.Schema}, &t.Name, schemaName{&ref.Schema}, &ref.Name); err != nil {
			return err
		}
		if want[t] && want[ref] && t != ref {
			out[t] = append(out[t], ref)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SortByDependencies orders tables so referenced tables come first.
// Cycles are broken with a score: fewer unprocessed dependencies win, and
// tables that take part in a two-table cycle get a boost.
func SortByDependencies(tables []TableRef, deps map[TableRef][]TableRef) []TableRef {
	sorted := make([]TableRef, 0, len(tables))
	processed := make(map[TableRef]bool, len(tables))

	for len(sorted) < len(tables) {
		added := false

		// Pass 1: Add tables whose dependencies are fully satisfied
		for _, t := range tables {
			if processed[t] {
				continue
			}
			ready := true
			for _, dep := range deps[t] {
				if !processed[dep] {
					ready = false
					break
				}
			}
			if ready {
				sorted = append(sorted, t)
				processed[t] = true
				added = true
			}
		}
		if added {
			continue
		}

		// Pass 2: cycle. Pick the best candidate and break it.
		var best TableRef
		bestScore := 0
		found := false
		for _, t := range tables {
			if processed[t] {
				continue
			}
			score := 0
			circular := false
			for _, dep := range deps[t] {
				if processed[dep] {
					continue
				}
				score -= 100
				for _, back := range deps[dep] {
					if back == t {
						circular = true
					}
				}
			}
			if circular {
				score += 500
			}
			// first wins on ties, keeping input order stable
			if !found || score > bestScore {
				best, bestScore, found = t, score, true
			}
		}
		if !found {
			break
		}
		sorted = append(sorted, best)
		processed[best] = true
	}

	return sorted
}
