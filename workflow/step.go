package workflow

import (
	"iter"
)

// StepStatus is the terminal state of a node within one run.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepSkipped StepStatus = "skipped"
	StepError   StepStatus = "error"
)

// SkipReason explains a skipped step.
type SkipReason string

const (
	// SkipNoUpstream means the node has incoming edges but none fired.
	SkipNoUpstream SkipReason = "no_upstream"
	// SkipCondition means the node's own guard evaluated false.
	SkipCondition SkipReason = "condition"
)

// Step is one entry of a run trace.
type Step struct {
	NodeID   string     `json:"node_id"`
	ToolType string     `json:"tool"`
	Output   any        `json:"output,omitempty"`
	Status   StepStatus `json:"status"`
	Reason   SkipReason `json:"reason,omitempty"`
}

// RunStatusComplete is the status of a consolidated run that finished.
const RunStatusComplete = "complete"

// Result is a consolidated run: outputs of the nodes that executed.
type Result struct {
	Steps  map[string]any `json:"steps"`
	Status string         `json:"status"`
}

// Collect drains a trace into a Result. Skipped steps carry no output and
// are left out. The first error stops collection.
func Collect(seq iter.Seq2[Step, error]) (*Result, []Step, error) {
	result := &Result{Steps: make(map[string]any)}
	var trace []Step
	for step, err := range seq {
		if err != nil {
			return nil, trace, err
		}
		trace = append(trace, step)
		if step.Status == StepSuccess {
			result.Steps[step.NodeID] = step.Output
		}
	}
	result.Status = RunStatusComplete
	return result, trace, nil
}
