package engine

import "time"

// RunOptions controls a whole sync run.
type RunOptions struct {
	// Jobs is the requested worker count; 0 means not requested.
	Jobs                int
	FailFast            bool
	InBatches           bool
	Debug               bool
	DisableUserTriggers bool
	DisableIntegrity    bool
	DisableIntegrityV2  bool
	DeferConstraints    bool
	DeferConstraintsV2  bool
	// DependencyOrder dispatches referenced tables before referencing ones.
	DependencyOrder bool
}

// TaskOptions are the per-table copy settings.
type TaskOptions struct {
	// Where is a raw SQL predicate limiting the rows replaced and copied.
	Where               string
	DisableUserTriggers bool
	InBatches           bool
	BatchSize           int
	BatchKey            string
	Sleep               time.Duration
}

const (
	DefaultBatchSize = 10000
	DefaultBatchKey  = "id"
)
