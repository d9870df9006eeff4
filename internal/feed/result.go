// Package feed fetches alerts from upstream sources. Each source dialect has
// an Adapter that turns the raw upstream response into canonical CAP
// payloads plus a change-detection signal.
package feed

import (
	"context"
	"time"
)

// Status is the outcome of one fetch.
type Status int

const (
	// Fetched means the upstream returned content, possibly with zero alerts.
	Fetched Status = iota
	// NotModified means the conditional request matched the stored validator.
	NotModified
	// Failed means the primary fetch could not be completed.
	Failed
)

func (s Status) String() string {
	switch s {
	case Fetched:
		return "fetched"
	case NotModified:
		return "not_modified"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Request describes one fetch for one source.
type Request struct {
	SourceID  string
	URL       string
	Validator string
	// Known maps stored alert ids to their sent time, for dialects that can
	// recognise unchanged alerts before downloading them.
	Known map[string]time.Time
}

// Payload is one raw CAP document and where it came from.
type Payload struct {
	Data      []byte
	SourceURL string
}

// Result is the outcome of Adapter.Fetch.
type Result struct {
	Status   Status
	Payloads []Payload
	// Unchanged lists alert ids the adapter recognised as already stored.
	Unchanged []string
	// Validator is the new cache validator, empty when none was returned.
	Validator string
	// Warnings are per-entry soft failures.
	Warnings []string
	Err      error
}

// Adapter fetches one source dialect.
type Adapter interface {
	Fetch(ctx context.Context, req Request) Result
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc func(ctx context.Context, req Request) Result

// Fetch calls f.
func (f AdapterFunc) Fetch(ctx context.Context, req Request) Result { return f(ctx, req) }

func failed(err error) Result {
	return Result{Status: Failed, Err: err}
}

func notModified() Result {
	return Result{Status: NotModified}
}

func (r *Result) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
