package main

import (
	"context"
	"fmt"
	"io"

	"github.com/BaSui01/flowcore/runner"
)

// errTestFailed 表示运行结果与期望不一致
var errTestFailed = fmt.Errorf("agent test failed")

func runTest(args []string, stdout io.Writer) error {
	var (
		cf                           commonFlags
		agentID, tenantID            string
		input, inputFile             string
		expectedInline, expectedFile string
	)
	fs := newFlagSet("test", &cf)
	fs.StringVar(&agentID, "agent", "", "Agent ID to test")
	fs.StringVar(&tenantID, "tenant", "", "Tenant the agent belongs to")
	fs.StringVar(&input, "input", "", "Run input as a JSON object")
	fs.StringVar(&inputFile, "input-file", "", "File holding the run input")
	fs.StringVar(&expectedInline, "expected", "", "Expected result as a JSON object")
	fs.StringVar(&expectedFile, "expected-file", "", "File holding the expected result")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("test", "agent", agentID); err != nil {
		return err
	}

	in, err := readObject(input, inputFile)
	if err != nil {
		return err
	}
	expected, err := readObject(expectedInline, expectedFile)
	if err != nil {
		return err
	}

	a, err := openApp(cf)
	if err != nil {
		return err
	}
	defer a.shutdown()

	res, err := a.tester.Run(withTenant(context.Background(), tenantID), agentID, in, expected)
	if err != nil {
		return err
	}
	if err := printJSON(stdout, res); err != nil {
		return err
	}
	if res.Status != runner.TestPass {
		return errTestFailed
	}
	return nil
}
