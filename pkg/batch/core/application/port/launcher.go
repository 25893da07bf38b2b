// Package port declares the boundaries between the engine and external collaborators.
package port

import (
	"context"
)

// LaunchRequest is the payload sent to the external process endpoint.
type LaunchRequest struct {
	ExecutionID string `json:"executionId"`
	RunID       string `json:"runId"`
	Type        string `json:"type"`
	CallbackURL string `json:"callbackUrl"`
}

// Launcher dispatches an external long-running process.
// A nil error means the endpoint accepted the request; it says nothing about completion.
type Launcher interface {
	Dispatch(ctx context.Context, req LaunchRequest) error
}
