package schema

import "fmt"

// MetadataQueryError reports a failed catalog query. Callers must not act on
// partial metadata.
type MetadataQueryError struct {
	Query string
	Err   error
}

func (e *MetadataQueryError) Error() string {
	return fmt.Sprintf("metadata query %s failed: %v", e.Query, e.Err)
}

func (e *MetadataQueryError) Unwrap() error { return e.Err }
