package schema

import (
	"fmt"
	"strings"
)

// TableRef identifies a table by schema and name. It is comparable and used
// as a map key.
type TableRef struct {
	Schema string
	Name   string
}

func (t TableRef) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// ParseTableRef splits "schema.table". A bare name gets defaultSchema.
func ParseTableRef(s, defaultSchema string) (TableRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TableRef{}, fmt.Errorf("empty table name")
	}
	schemaName, name, ok := strings.Cut(s, ".")
	if !ok {
		return TableRef{Schema: defaultSchema, Name: s}, nil
	}
	if schemaName == "" || name == "" || strings.Contains(name, ".") {
		return TableRef{}, fmt.Errorf("invalid table name %q", s)
	}
	return TableRef{Schema: schemaName, Name: name}, nil
}

func qualifiedNames(tables []TableRef) []string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.String()
	}
	return names
}

type Column struct {
	Name string
	Type string
}

// Trigger describes a trigger on a destination table.
type Trigger struct {
	Name string
	// Internal triggers are created by the database itself, e.g. for foreign keys.
	Internal bool
	Enabled  bool
	// TiedToConstraint is set for triggers that enforce a constraint.
	TiedToConstraint bool
}

// IsIntegrity reports whether the trigger is a database created, enabled
// trigger enforcing a constraint. User defined constraint triggers are tied
// to a constraint too but are not internal.
func (t Trigger) IsIntegrity() bool {
	return t.Internal && t.TiedToConstraint && t.Enabled
}

// IsUser reports whether the trigger is an enabled, user defined trigger.
func (t Trigger) IsUser() bool {
	return !t.Internal && !t.TiedToConstraint && t.Enabled
}

// ConstraintRef names a constraint by its owning table.
type ConstraintRef struct {
	Table TableRef
	Name  string
}

func (c ConstraintRef) String() string {
	return c.Table.String() + "." + c.Name
}
