package ingest

import (
	"errors"
	"fmt"
)

// ErrStorage marks failures of the storage collaborator. Its wrapped text
// may contain connection details and is never stored as a source warning.
var ErrStorage = errors.New("storage failure")

// RejectKind classifies why an alert did not produce a stored record.
type RejectKind int

const (
	Malformed RejectKind = iota
	MissingRequiredField
	Expired
	PrivateScope
	NoGeographicData
	StorageFailure
)

var rejectKindNames = map[RejectKind]string{
	Malformed:            "malformed",
	MissingRequiredField: "missing_required_field",
	Expired:              "expired",
	PrivateScope:         "private_scope",
	NoGeographicData:     "no_geographic_data",
	StorageFailure:       "storage_failure",
}

func (k RejectKind) String() string {
	if name, ok := rejectKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// silent reports whether the kind is an expected outcome rather than a problem.
func (k RejectKind) silent() bool {
	return k == Expired || k == PrivateScope
}

// RejectError is returned for an alert that was dropped.
type RejectError struct {
	Kind    RejectKind
	AlertID string
	Err     error
}

func (e *RejectError) Error() string {
	id := e.AlertID
	if id == "" {
		id = "<unknown>"
	}
	if e.Err == nil {
		return fmt.Sprintf("alert %s rejected: %s", id, e.Kind)
	}
	return fmt.Sprintf("alert %s rejected: %s: %v", id, e.Kind, e.Err)
}

func (e *RejectError) Unwrap() error { return e.Err }

func reject(kind RejectKind, alertID string, err error) *RejectError {
	return &RejectError{Kind: kind, AlertID: alertID, Err: err}
}
