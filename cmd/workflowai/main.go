// Package main provides the workflowai CLI.
//
// Usage:
//
//	workflowai [global options] <command> [options]
//
// Commands:
//   - run: run an agent on an input file and print the run
//   - models: list the models available to an agent schema
//   - completions: print the LLM completions of a run
//
// Configuration is read from the WORKFLOWAI_* environment variables and an
// optional --config file.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/inercia/go-workflowai/pkg/workflowai"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "workflowai",
		Usage:          "Run WorkflowAI agents from the command line",
		Version:        workflowai.Version,
		Flags:          globalFlags(),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			runCommand(),
			modelsCommand(),
			completionsCommand(),
		},
	}
}

// exitErrHandler prints the error and exits, keeping the code of cli.Exit errors.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
