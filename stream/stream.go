package stream

import (
	"context"
	"fmt"
	"iter"

	"github.com/BaSui01/flowcore/types"
	"github.com/BaSui01/flowcore/workflow"
)

// Frame statuses that bracket a run.
const (
	StatusStarted  = "started"
	StatusComplete = "complete"
	StatusError    = "error"
)

// Frame is a control frame sent before and after the steps.
type Frame struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Sink receives a run trace as it is produced.
type Sink interface {
	Send(ctx context.Context, v any) error
}

// Forward sends a started frame, then every step in order, then a complete
// or error frame. It returns the run error, or the first send error.
func Forward(ctx context.Context, seq iter.Seq2[workflow.Step, error], sink Sink) error {
	if err := sink.Send(ctx, Frame{Status: StatusStarted}); err != nil {
		return fmt.Errorf("send started frame: %w", err)
	}
	for step, err := range seq {
		if err != nil {
			if serr := sink.Send(ctx, Frame{Status: StatusError, Detail: Detail(err)}); serr != nil {
				return fmt.Errorf("send error frame: %w", serr)
			}
			return err
		}
		if err := sink.Send(ctx, step); err != nil {
			return fmt.Errorf("send step %s: %w", step.NodeID, err)
		}
	}
	if err := sink.Send(ctx, Frame{Status: StatusComplete}); err != nil {
		return fmt.Errorf("send complete frame: %w", err)
	}
	return nil
}

// Detail is the client-facing text of a run error. Server-side failures
// are not described.
func Detail(err error) string {
	if types.IsClientError(err) {
		e, _ := types.AsError(err)
		return e.Message
	}
	return "server error"
}
