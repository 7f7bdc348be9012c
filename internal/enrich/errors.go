package enrich

import "fmt"

// PreconditionError reports an enrichment request rejected before any
// external call or persistent write happened.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

// ExternalDataError reports an unreachable, non-success, or structurally
// invalid response from the lookup source.
type ExternalDataError struct {
	Reason string
	Cause  error
}

func (e *ExternalDataError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return e.Reason
}

func (e *ExternalDataError) Unwrap() error {
	return e.Cause
}
