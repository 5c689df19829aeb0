package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/inercia/go-workflowai/pkg/version"
	"github.com/inercia/go-workflowai/pkg/workflowai"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Configuration file (yaml, json or toml)",
		},
		&cli.StringFlag{
			Name:  "api-key",
			Usage: "API key, overrides WORKFLOWAI_API_KEY",
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "Run endpoint, overrides WORKFLOWAI_API_URL",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Log requests and retries to stderr",
		},
	}
}

func agentFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "agent",
			Aliases:  []string{"a"},
			Usage:    "Agent id",
			Required: true,
		},
		&cli.IntFlag{
			Name:     "schema-id",
			Aliases:  []string{"s"},
			Usage:    "Schema id of the agent",
			Required: true,
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run an agent on an input file",
		ArgsUsage: " ",
		Flags: append(agentFlags(),
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "Input file in JSON or YAML, - for stdin",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Model overriding the version's one",
			},
			&cli.StringFlag{
				Name:  "version",
				Usage: "Version: an environment (dev, staging, production) or an iteration number",
			},
			&cli.BoolFlag{
				Name:  "stream",
				Usage: "Print outputs as they are streamed",
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Total attempts per request",
				Value: 1,
			},
		),
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}

	input, err := readInput(c.String("input"), c.App.Reader)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	agent, err := workflowai.NewAgent[map[string]any, map[string]any](client, c.String("agent"),
		workflowai.WithSchemaID(c.Int("schema-id")))
	if err != nil {
		return err
	}

	opts := []workflowai.RunOption{workflowai.WithMaxRetryCount(c.Int("max-retries"))}
	if m := c.String("model"); m != "" {
		opts = append(opts, workflowai.WithModel(m))
	}
	if v := c.String("version"); v != "" {
		ref, err := parseVersion(v)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		opts = append(opts, workflowai.WithVersion(ref))
	}

	out := c.App.Writer
	if !c.Bool("stream") {
		run, err := agent.Run(c.Context, input, opts...)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, run.Format())
		return nil
	}

	var last *workflowai.Run[map[string]any]
	for run, err := range agent.Stream(c.Context, input, opts...) {
		if err != nil {
			return err
		}
		last = run
		if run.Output != nil {
			data, _ := json.Marshal(*run.Output)
			fmt.Fprintf(out, "%s\n", data)
		}
	}
	if last != nil {
		fmt.Fprintln(out, last.Format())
	}
	return nil
}

func modelsCommand() *cli.Command {
	return &cli.Command{
		Name:   "models",
		Usage:  "List the models available to an agent schema",
		Flags:  agentFlags(),
		Action: modelsAction,
	}
}

func modelsAction(c *cli.Context) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}

	models, err := client.ListModels(c.Context, c.String("agent"), c.Int("schema-id"))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tAVG COST\tSTATUS")
	for _, m := range models {
		provider := ""
		if m.Metadata != nil {
			provider = m.Metadata.ProviderName
		}
		cost := "-"
		if m.AverageCostPerRunUSD != nil {
			cost = fmt.Sprintf("$ %.5f", *m.AverageCostPerRunUSD)
		}
		status := "supported"
		switch {
		case !m.Supported():
			status = *m.IsNotSupportedReason
		case m.IsDefault:
			status = "default"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Name, provider, cost, status)
	}
	return w.Flush()
}

func completionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "completions",
		Usage: "Print the LLM completions of a run",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "agent",
				Aliases:  []string{"a"},
				Usage:    "Agent id",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "run-id",
				Aliases:  []string{"r"},
				Usage:    "Run id",
				Required: true,
			},
		},
		Action: completionsAction,
	}
}

func completionsAction(c *cli.Context) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}

	completions, err := client.FetchCompletions(c.Context, c.String("agent"), c.String("run-id"))
	if err != nil {
		return err
	}
	printCompletions(c.App.Writer, completions)
	return nil
}

func printCompletions(w io.Writer, completions []workflowai.Completion) {
	for i, completion := range completions {
		fmt.Fprintf(w, "Completion %d\n", i+1)
		for _, m := range completion.Messages {
			fmt.Fprintf(w, "  [%s] %s\n", m.Role, describeMessage(m))
		}
		if completion.Response != nil {
			fmt.Fprintf(w, "  => %s\n", *completion.Response)
		}
		if cost := completion.Usage.CompletionCostUSD; cost != nil {
			fmt.Fprintf(w, "  completion cost: $ %.5f\n", *cost)
		}
	}
}

func describeMessage(m workflowai.Message) string {
	switch {
	case m.Parts != nil:
		parts := make([]string, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch v := p.(type) {
			case workflowai.TextContent:
				parts = append(parts, v.Text)
			case workflowai.DocumentContent:
				parts = append(parts, "<document "+v.URL+">")
			case workflowai.ImageContent:
				parts = append(parts, "<image "+v.URL+">")
			case workflowai.AudioContent:
				parts = append(parts, "<audio "+v.URL+">")
			}
		}
		return strings.Join(parts, " ")
	case m.Object != nil:
		return fmt.Sprintf("%v", m.Object)
	}
	return m.Text
}

// newClient builds a client from the environment, the --config file and the
// global flags, in increasing order of precedence.
func newClient(c *cli.Context) (*workflowai.Client, error) {
	cfg, err := workflowai.LoadConfig(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}
	if key := c.String("api-key"); key != "" {
		cfg.APIKey = key
	}
	if u := c.String("url"); u != "" {
		cfg.URL = u
	}

	level := zapcore.WarnLevel
	if c.Bool("verbose") {
		level = zapcore.DebugLevel
	}
	logCfg := zap.NewProductionConfig()
	logCfg.Level = zap.NewAtomicLevelAt(level)
	logCfg.Encoding = "console"
	logger, err := logCfg.Build()
	if err != nil {
		return nil, err
	}

	opts := []workflowai.Option{workflowai.WithLogger(logger.Named("workflowai"))}
	if c.Bool("verbose") {
		opts = append(opts, workflowai.WithMiddleware(workflowai.NewLoggingMiddleware(logger.Named("http"))))
	}
	return workflowai.NewClient(cfg, opts...)
}

// parseVersion reads an environment alias or an iteration number.
func parseVersion(value string) (version.Reference, error) {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		if n <= 0 {
			return version.Reference{}, fmt.Errorf("invalid version %q", value)
		}
		return version.Iteration(n), nil
	}
	switch value {
	case version.Dev, version.Staging, version.Production:
		return version.Alias(value), nil
	}
	return version.Reference{}, fmt.Errorf("invalid version %q: expected dev, staging, production or an iteration number", value)
}

// readInput loads a JSON or YAML document. JSON being valid YAML, both are
// read by the YAML decoder.
func readInput(path string, stdin io.Reader) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return decodeInput(data)
}
