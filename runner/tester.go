package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"
)

// maxDiffLines bounds the diff returned by Tester.
const maxDiffLines = 100

// TestStatus is the verdict of an agent test.
type TestStatus string

const (
	TestPass TestStatus = "pass"
	TestFail TestStatus = "fail"
)

// TestResult is the outcome of comparing a run against its expected output.
type TestResult struct {
	Status        TestStatus     `json:"status"`
	Diff          string         `json:"diff"`
	Actual        map[string]any `json:"actual"`
	DiffTruncated bool           `json:"diff_truncated,omitempty"`
}

// Tester runs a workflow and compares its consolidated result with an
// expected document. Slice order is ignored.
type Tester struct {
	exec   Executor
	logger *zap.Logger
}

// NewTester creates a Tester.
func NewTester(exec Executor, logger *zap.Logger) *Tester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tester{exec: exec, logger: logger.With(zap.String("component", "agent_tester"))}
}

// Run executes ownerID's workflow with input and diffs it against expected.
func (t *Tester) Run(ctx context.Context, ownerID string, input, expected map[string]any) (*TestResult, error) {
	result, err := t.exec.Run(ctx, ownerID, input, "")
	if err != nil {
		return nil, err
	}
	actual, err := toDocument(result)
	if err != nil {
		return nil, fmt.Errorf("normalize result: %w", err)
	}
	want, err := toDocument(expected)
	if err != nil {
		return nil, fmt.Errorf("normalize expected output: %w", err)
	}

	diff := cmp.Diff(want, actual, cmpopts.EquateEmpty(), cmpopts.SortSlices(lessJSON))
	out := &TestResult{Status: TestPass, Actual: actual}
	if diff != "" {
		out.Status = TestFail
		lines := strings.Split(strings.TrimRight(diff, "\n"), "\n")
		if len(lines) > maxDiffLines {
			lines = lines[:maxDiffLines]
			out.DiffTruncated = true
		}
		out.Diff = strings.Join(lines, "\n")
	}
	t.logger.Debug("agent test finished",
		zap.String("owner_id", ownerID),
		zap.String("status", string(out.Status)))
	return out, nil
}

// toDocument maps v onto plain JSON values so numbers compare as float64.
func toDocument(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func lessJSON(a, b any) bool {
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return string(ja) < string(jb)
}
