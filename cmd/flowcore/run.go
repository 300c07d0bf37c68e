package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/BaSui01/flowcore/stream"
	"github.com/BaSui01/flowcore/workflow"
)

// =============================================================================
// ▶️ run 命令
// =============================================================================

type runFlags struct {
	common    commonFlags
	agentID   string
	tenantID  string
	input     string
	inputFile string
	session   string
	graphFile string
	memory    bool
	trace     bool
}

func runWorkflow(args []string, stdout io.Writer) error {
	var f runFlags
	fs := newFlagSet("run", &f.common)
	fs.StringVar(&f.agentID, "agent", "", "Agent ID whose stored workflow runs")
	fs.StringVar(&f.tenantID, "tenant", "", "Tenant the agent belongs to")
	fs.StringVar(&f.input, "input", "", "Run input as a JSON object")
	fs.StringVar(&f.inputFile, "input-file", "", "File holding the run input (- for stdin)")
	fs.StringVar(&f.session, "session", "", "Memory subject; defaults to the agent")
	fs.StringVar(&f.graphFile, "workflow", "", "Run a workflow file (JSON or YAML) instead of a stored agent")
	fs.BoolVar(&f.memory, "memory", false, "Assemble memory for --workflow runs")
	fs.BoolVar(&f.trace, "trace", false, "Print every step as a JSON line instead of the consolidated result")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if f.agentID == "" && f.graphFile == "" {
		return fmt.Errorf("run: one of --agent or --workflow is required: %w", errUsage)
	}

	input, err := readObject(f.input, f.inputFile)
	if err != nil {
		return err
	}

	a, err := openApp(f.common)
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = withTenant(ctx, f.tenantID)

	exec, ownerID := a.executor, f.agentID
	if f.graphFile != "" {
		exec, ownerID, err = a.fileExecutor(f.graphFile, f.memory)
		if err != nil {
			return err
		}
	}

	// 存储的 agent 且无需轨迹时走带日志的运行
	if f.graphFile == "" && !f.trace && f.session == "" {
		result, err := a.logged.Run(ctx, ownerID, input)
		if err != nil {
			return err
		}
		return printJSON(stdout, result)
	}

	seq := exec.Stream(ctx, ownerID, input, f.session)
	if f.trace {
		return stream.Forward(ctx, seq, newJSONLinesSink(stdout))
	}
	result, _, err := workflow.Collect(seq)
	if err != nil {
		return err
	}
	return printJSON(stdout, result)
}

// fileOwner 是文件工作流在内存存储中的 owner
const fileOwner = "file"

// fileExecutor 构造仅运行单个文件工作流的执行器
func (a *app) fileExecutor(path string, useMemory bool) (*workflow.Executor, string, error) {
	g, err := workflow.LoadGraphFile(path)
	if err != nil {
		return nil, "", err
	}
	ms := workflow.NewMemoryStore()
	if err := ms.Save(context.Background(), fileOwner, *g); err != nil {
		return nil, "", err
	}
	ms.SetUseMemory(fileOwner, useMemory)
	return a.newExecutor(ms, false), fileOwner, nil
}
