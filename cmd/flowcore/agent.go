package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/BaSui01/flowcore/workflow"
)

// =============================================================================
// 🤖 agent 命令
// =============================================================================

func runAgent(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("agent: subcommand required (create, workflow, show, memory, logs): %w", errUsage)
	}
	switch args[0] {
	case "create":
		return agentCreate(args[1:], stdout)
	case "workflow":
		return agentWorkflow(args[1:], stdout)
	case "show":
		return agentShow(args[1:], stdout)
	case "memory":
		return agentMemory(args[1:], stdout)
	case "logs":
		return agentLogs(args[1:], stdout)
	default:
		return fmt.Errorf("agent: unknown subcommand %q: %w", args[0], errUsage)
	}
}

func agentCreate(args []string, stdout io.Writer) error {
	var cf commonFlags
	var tenantID, name string
	fs := newFlagSet("agent create", &cf)
	fs.StringVar(&tenantID, "tenant", "", "Owning tenant")
	fs.StringVar(&name, "name", "", "Agent name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("agent create", "tenant", tenantID, "name", name); err != nil {
		return err
	}

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.shutdown()

	agent, err := a.workflows.CreateAgent(context.Background(), tenantID, name)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, agent.ID)
	return nil
}

// agentWorkflow 校验并保存 agent 的工作流
func agentWorkflow(args []string, stdout io.Writer) error {
	var cf commonFlags
	var agentID, tenantID, file string
	fs := newFlagSet("agent workflow", &cf)
	fs.StringVar(&agentID, "agent", "", "Agent ID")
	fs.StringVar(&tenantID, "tenant", "", "Tenant the agent belongs to")
	fs.StringVar(&file, "file", "", "Workflow file (JSON or YAML)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("agent workflow", "agent", agentID, "file", file); err != nil {
		return err
	}

	g, err := workflow.LoadGraphFile(file)
	if err != nil {
		return err
	}
	order, err := workflow.Schedule(g)
	if err != nil {
		return err
	}

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx := withTenant(context.Background(), tenantID)
	if err := a.workflows.Save(ctx, agentID, *g); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "saved workflow with %d nodes, order: %v\n", len(order), order)
	return nil
}

func agentShow(args []string, stdout io.Writer) error {
	var cf commonFlags
	var agentID, tenantID string
	var asYAML bool
	fs := newFlagSet("agent show", &cf)
	fs.StringVar(&agentID, "agent", "", "Agent ID")
	fs.StringVar(&tenantID, "tenant", "", "Tenant the agent belongs to")
	fs.BoolVar(&asYAML, "yaml", false, "Print YAML instead of JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("agent show", "agent", agentID); err != nil {
		return err
	}

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.shutdown()

	def, err := a.workflows.Load(withTenant(context.Background(), tenantID), agentID)
	if err != nil {
		return err
	}
	if def == nil {
		return fmt.Errorf("agent %s has no workflow", agentID)
	}

	var out string
	if asYAML {
		out, err = def.Graph.ToYAML()
	} else {
		out, err = def.Graph.ToJSON()
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, out)
	fmt.Fprintf(stdout, "use_memory: %t\n", def.UseMemory)
	return nil
}

func agentMemory(args []string, stdout io.Writer) error {
	var cf commonFlags
	var agentID, tenantID string
	var enable bool
	fs := newFlagSet("agent memory", &cf)
	fs.StringVar(&agentID, "agent", "", "Agent ID")
	fs.StringVar(&tenantID, "tenant", "", "Tenant the agent belongs to")
	fs.BoolVar(&enable, "enable", true, "Enable (true) or disable (false) memory assembly")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("agent memory", "agent", agentID); err != nil {
		return err
	}

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.shutdown()

	if err := a.workflows.SetUseMemory(withTenant(context.Background(), tenantID), agentID, enable); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "use_memory: %t\n", enable)
	return nil
}

func agentLogs(args []string, stdout io.Writer) error {
	var cf commonFlags
	var agentID string
	var limit int
	fs := newFlagSet("agent logs", &cf)
	fs.StringVar(&agentID, "agent", "", "Agent ID")
	fs.IntVar(&limit, "limit", 20, "Number of runs to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("agent logs", "agent", agentID); err != nil {
		return err
	}

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.shutdown()

	logs, err := a.logs.Recent(context.Background(), agentID, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tDURATION\tSTARTED")
	for _, l := range logs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			l.ID, l.Status, strconv.FormatInt(l.DurationMS, 10)+"ms",
			l.StartedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
