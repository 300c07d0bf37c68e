package workflow

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/internal/metrics"
	"github.com/BaSui01/flowcore/types"
	"github.com/BaSui01/flowcore/workflow/condition"
)

const instrumentationName = "github.com/BaSui01/flowcore/workflow"

// Dispatcher performs the work for a step type on behalf of an owner.
type Dispatcher interface {
	Invoke(ctx context.Context, ownerID, stepType string, input map[string]any) (any, error)
}

// ContextAssembler builds the memory context for a run.
type ContextAssembler interface {
	Assemble(ctx context.Context, subjectID, latestMessage string, chatK, semanticK int) ([]types.Message, error)
}

// ExecutorConfig holds the run limits.
type ExecutorConfig struct {
	MaxSteps           int
	ConditionMaxLength int
	ChatK              int
	SemanticK          int
}

// DefaultExecutorConfig returns the default limits.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxSteps:           25,
		ConditionMaxLength: condition.DefaultMaxLength,
		ChatK:              10,
		SemanticK:          5,
	}
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithConfig overrides the run limits.
func WithConfig(cfg ExecutorConfig) ExecutorOption {
	return func(e *Executor) { e.cfg = cfg }
}

// WithMemory enables memory assembly for owners that opted in.
func WithMemory(a ContextAssembler) ExecutorOption {
	return func(e *Executor) { e.memory = a }
}

// WithTracer sets the tracer used for per-node spans.
func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = t }
}

// WithMetrics records run and step metrics.
func WithMetrics(c *metrics.Collector) ExecutorOption {
	return func(e *Executor) { e.metrics = c }
}

// Executor runs stored workflows node by node in topological order.
// It holds no per-run state and is safe for concurrent runs.
type Executor struct {
	store      Store
	dispatcher Dispatcher
	memory     ContextAssembler
	cfg        ExecutorConfig
	tracer     trace.Tracer
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(store Store, dispatcher Dispatcher, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		store:      store,
		dispatcher: dispatcher,
		cfg:        DefaultExecutorConfig(),
		logger:     logger.With(zap.String("component", "workflow_executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(instrumentationName)
	}
	return e
}

// runState is created once per run and never shared.
type runState struct {
	log         *zap.Logger
	ownerID     string
	graph       *Graph
	order       []string
	nodes       map[string]*Node
	incoming    map[string][]Edge
	outgoing    map[string][]Edge
	input       map[string]any
	memory      []any
	results     map[string]any
	triggeredBy map[string][]string
}

// Stream returns the lazy trace of one run. Load, validation and memory
// errors are yielded before any step. A failed plugin yields an error step
// and the run continues without firing that node's edges. Any other
// dispatch failure yields an error step followed by the error. The
// sequence is not restartable.
func (e *Executor) Stream(ctx context.Context, ownerID string, input map[string]any, subjectID string) iter.Seq2[Step, error] {
	return func(yield func(Step, error) bool) {
		start := time.Now()
		status := "error"
		defer func() { e.metrics.RecordWorkflowRun(status, time.Since(start)) }()

		run, err := e.prepare(ctx, ownerID, input, subjectID)
		if err != nil {
			yield(Step{}, err)
			return
		}

		run.log.Info("workflow run started",
			zap.String("owner_id", ownerID),
			zap.Int("nodes", len(run.order)),
		)

		for _, id := range run.order {
			if err := ctx.Err(); err != nil {
				status = "cancelled"
				yield(Step{}, fmt.Errorf("workflow run cancelled: %w", err))
				return
			}

			step, err := e.runNode(ctx, run, run.nodes[id])
			if err != nil {
				if step != nil && !yield(*step, nil) {
					return
				}
				yield(Step{}, err)
				return
			}
			if !yield(*step, nil) {
				status = "abandoned"
				return
			}
		}

		status = RunStatusComplete
		run.log.Info("workflow run completed",
			zap.String("owner_id", ownerID),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// Run executes a workflow to completion and consolidates the outputs.
func (e *Executor) Run(ctx context.Context, ownerID string, input map[string]any, subjectID string) (*Result, error) {
	result, _, err := Collect(e.Stream(ctx, ownerID, input, subjectID))
	return result, err
}

// Plan loads, validates and schedules an owner's workflow without running it.
func (e *Executor) Plan(ctx context.Context, ownerID string) (*Definition, []string, error) {
	def, err := e.store.Load(ctx, ownerID)
	if err != nil {
		return nil, nil, fmt.Errorf("load workflow: %w", err)
	}
	if def == nil || def.Graph.Empty() {
		return nil, nil, types.NewBadRequestError(types.ErrExecutorNoWorkflow, "workflow not defined")
	}
	order, err := Schedule(&def.Graph)
	if err != nil {
		return nil, nil, err
	}
	if err := CheckStepLimit(order, e.cfg.MaxSteps); err != nil {
		return nil, nil, err
	}
	return def, order, nil
}

// contextFields tags run logs with the run and trace ids carried by ctx.
func contextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id, ok := types.RunID(ctx); ok {
		fields = append(fields, zap.String("run_id", id))
	}
	if id, ok := types.TraceID(ctx); ok {
		fields = append(fields, zap.String("trace_id", id))
	}
	return fields
}

func (e *Executor) prepare(ctx context.Context, ownerID string, input map[string]any, subjectID string) (*runState, error) {
	def, order, err := e.Plan(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if input == nil {
		input = map[string]any{}
	}

	run := &runState{
		log:         e.logger.With(contextFields(ctx)...),
		ownerID:     ownerID,
		graph:       &def.Graph,
		order:       order,
		nodes:       make(map[string]*Node, len(def.Graph.Nodes)),
		incoming:    make(map[string][]Edge),
		outgoing:    make(map[string][]Edge),
		input:       input,
		memory:      []any{},
		results:     make(map[string]any, len(order)),
		triggeredBy: make(map[string][]string),
	}
	for i := range def.Graph.Nodes {
		run.nodes[def.Graph.Nodes[i].ID] = &def.Graph.Nodes[i]
	}
	for _, edge := range def.Graph.Edges {
		run.incoming[edge.Target] = append(run.incoming[edge.Target], edge)
		run.outgoing[edge.Source] = append(run.outgoing[edge.Source], edge)
	}

	if def.UseMemory {
		if e.memory == nil {
			run.log.Warn("memory enabled but no assembler configured", zap.String("owner_id", ownerID))
		} else {
			if subjectID == "" {
				subjectID = ownerID
			}
			msgs, err := e.memory.Assemble(ctx, subjectID, LatestUserMessage(input), e.cfg.ChatK, e.cfg.SemanticK)
			if err != nil {
				return nil, fmt.Errorf("assemble memory: %w", err)
			}
			run.memory = messagesToAny(msgs)
		}
	}
	return run, nil
}

// runNode processes one node. On a fatal dispatch failure it returns both an
// error step and the error.
func (e *Executor) runNode(ctx context.Context, run *runState, node *Node) (*Step, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.node",
		trace.WithAttributes(
			attribute.String("workflow.owner_id", run.ownerID),
			attribute.String("workflow.node_id", node.ID),
			attribute.String("workflow.node_type", node.Type),
		))
	defer span.End()

	start := time.Now()
	step, err := e.evaluateNode(ctx, run, node)
	if step != nil {
		span.SetAttributes(attribute.String("workflow.step_status", string(step.Status)))
		e.metrics.RecordWorkflowStep(node.Type, string(step.Status), time.Since(start))
	}
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case step != nil && step.Status == StepError:
		span.SetStatus(codes.Error, "tool failed")
	}
	return step, err
}

func (e *Executor) evaluateNode(ctx context.Context, run *runState, node *Node) (*Step, error) {
	log := run.log.With(zap.String("node_id", node.ID), zap.String("tool_type", node.Type))

	if len(run.incoming[node.ID]) > 0 && len(run.triggeredBy[node.ID]) == 0 {
		log.Debug("node skipped, no upstream fired")
		return &Step{NodeID: node.ID, ToolType: node.Type, Status: StepSkipped, Reason: SkipNoUpstream}, nil
	}

	upstream := make(map[string]any, len(run.triggeredBy[node.ID]))
	for _, src := range run.triggeredBy[node.ID] {
		upstream[src] = run.results[src]
	}

	ok, err := e.evalGuard(node.Condition, map[string]any{
		"context":  run.input,
		"memory":   run.memory,
		"upstream": upstream,
	})
	if err != nil {
		return nil, types.NewBadRequestError(types.ErrExecutorBadGuard,
			fmt.Sprintf("node %s has an invalid condition", node.ID)).WithCause(err)
	}
	if !ok {
		log.Debug("node skipped by condition")
		return &Step{NodeID: node.ID, ToolType: node.Type, Status: StepSkipped, Reason: SkipCondition}, nil
	}

	stepInput := map[string]any{
		"context":  run.input,
		"memory":   run.memory,
		"upstream": upstream,
		"config":   node.Data.Clone(),
	}
	owner := run.ownerID
	if node.AgentID != "" {
		owner = node.AgentID
	}

	log.Info("executing node", zap.String("owner_id", owner))
	start := time.Now()
	output, err := e.dispatcher.Invoke(ctx, owner, node.Type, stepInput)
	if err != nil {
		failed := &Step{
			NodeID:   node.ID,
			ToolType: node.Type,
			Output:   map[string]any{"error": err.Error()},
			Status:   StepError,
		}
		if types.IsSandboxError(err) {
			// outgoing edges stay unfired so descendants skip with no_upstream
			log.Warn("plugin failed, node marked as error",
				zap.Duration("duration", time.Since(start)), zap.Error(err))
			return failed, nil
		}
		log.Error("node dispatch failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return failed, err
	}
	log.Debug("node completed", zap.Duration("duration", time.Since(start)))
	run.results[node.ID] = output

	for _, edge := range run.outgoing[node.ID] {
		fire, err := e.evalGuard(edge.Condition, map[string]any{"output": output})
		if err != nil {
			log.Warn("edge condition failed, edge does not fire",
				zap.String("edge_id", edge.ID),
				zap.String("target", edge.Target),
				zap.Error(err),
			)
			continue
		}
		if fire && !slices.Contains(run.triggeredBy[edge.Target], node.ID) {
			run.triggeredBy[edge.Target] = append(run.triggeredBy[edge.Target], node.ID)
		}
	}

	return &Step{NodeID: node.ID, ToolType: node.Type, Output: output, Status: StepSuccess}, nil
}

func (e *Executor) evalGuard(expr string, vars map[string]any) (bool, error) {
	compiled, err := condition.CompileWithLimit(expr, e.cfg.ConditionMaxLength)
	if err != nil {
		return false, err
	}
	return compiled.Evaluate(vars)
}

// LatestUserMessage picks the message used as the memory similarity key:
// input["message"], or else the last user entry of input["messages"].
func LatestUserMessage(input map[string]any) string {
	if msg, ok := input["message"].(string); ok && msg != "" {
		return msg
	}
	switch msgs := input["messages"].(type) {
	case []types.Message:
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == types.RoleUser {
				return msgs[i].Content
			}
		}
	case []any:
		for i := len(msgs) - 1; i >= 0; i-- {
			m, ok := msgs[i].(map[string]any)
			if !ok || m["role"] != string(types.RoleUser) {
				continue
			}
			if content, ok := m["content"].(string); ok {
				return content
			}
		}
	}
	return ""
}

func messagesToAny(msgs []types.Message) []any {
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]any{"role": string(m.Role), "content": m.Content})
	}
	return out
}
