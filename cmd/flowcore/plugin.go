package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/BaSui01/flowcore/store"
)

// =============================================================================
// 🔌 plugin 命令
// =============================================================================

func runPlugin(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("plugin: subcommand required (add, list, enable, disable, delete): %w", errUsage)
	}
	switch args[0] {
	case "add":
		return pluginAdd(args[1:], stdout)
	case "list":
		return pluginList(args[1:], stdout)
	case "enable":
		return pluginSetActive(args[1:], stdout, true)
	case "disable":
		return pluginSetActive(args[1:], stdout, false)
	case "delete":
		return pluginDelete(args[1:], stdout)
	default:
		return fmt.Errorf("plugin: unknown subcommand %q: %w", args[0], errUsage)
	}
}

func pluginAdd(args []string, stdout io.Writer) error {
	var cf commonFlags
	var in store.NewPlugin
	var file string
	fs := newFlagSet("plugin add", &cf)
	fs.StringVar(&in.TenantID, "tenant", "", "Owning tenant")
	fs.StringVar(&in.Name, "name", "", "Plugin name; defaults to the file name")
	fs.StringVar(&in.Description, "description", "", "Plugin description")
	fs.StringVar(&in.CreatedBy, "created-by", "", "Author user ID")
	fs.StringVar(&file, "file", "", "Lua source file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("plugin add", "tenant", in.TenantID, "file", file); err != nil {
		return err
	}
	code, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	in.Code = string(code)
	if in.Name == "" {
		in.Name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.shutdown()

	p, err := a.plugins.Create(context.Background(), in)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, p.ID)
	return nil
}

func pluginList(args []string, stdout io.Writer) error {
	var cf commonFlags
	var tenantID string
	fs := newFlagSet("plugin list", &cf)
	fs.StringVar(&tenantID, "tenant", "", "Tenant whose active plugins are listed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("plugin list", "tenant", tenantID); err != nil {
		return err
	}

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.shutdown()

	plugins, err := a.plugins.ListActive(context.Background(), tenantID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCREATED\tDESCRIPTION")
	for _, p := range plugins {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.CreatedAt.Format(time.RFC3339), p.Description)
	}
	return tw.Flush()
}

func pluginSetActive(args []string, stdout io.Writer, active bool) error {
	var cf commonFlags
	var pluginID string
	fs := newFlagSet("plugin enable", &cf)
	fs.StringVar(&pluginID, "id", "", "Plugin ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("plugin", "id", pluginID); err != nil {
		return err
	}

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.shutdown()

	if err := a.plugins.SetActive(context.Background(), pluginID, active); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s active: %t\n", pluginID, active)
	return nil
}

func pluginDelete(args []string, stdout io.Writer) error {
	var cf commonFlags
	var pluginID string
	fs := newFlagSet("plugin delete", &cf)
	fs.StringVar(&pluginID, "id", "", "Plugin ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("plugin delete", "id", pluginID); err != nil {
		return err
	}

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.shutdown()

	if err := a.plugins.Delete(context.Background(), pluginID); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s deleted\n", pluginID)
	return nil
}
