package remote

import (
	"context"
	"encoding/json"
)

// Worker build terminal states
const (
	WorkerSucceeded = "succeeded"
	WorkerFailed    = "failed"
	WorkerCanceled  = "canceled"
)

// WorkerResult is the serialized outcome a worker build hands back across
// the process boundary: its terminal status and the workflow document it
// produced, if any.
type WorkerResult struct {
	Status   string          `json:"status"`
	Document json.RawMessage `json:"document,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// WorkerBuild is a dispatched worker build in flight. Await blocks until
// the build reaches a terminal state; Cancel requests best-effort remote
// cancellation and never guarantees the build stops.
type WorkerBuild interface {
	Await(ctx context.Context) (*WorkerResult, error)
	Cancel(ctx context.Context) error
}

// Dispatcher starts worker builds on remote hosts. The transport is an
// external collaborator: the orchestration core only needs dispatch, await
// and cancel.
type Dispatcher interface {
	// Dispatch starts a worker build on the host, feeding it the serialized
	// build input document
	Dispatch(ctx context.Context, host Host, input []byte) (WorkerBuild, error)
}
