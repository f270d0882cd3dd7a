// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"github.com/xkilldash9x/demoqa-e2e/internal/observability"
	"github.com/xkilldash9x/demoqa-e2e/internal/service"
	"github.com/xkilldash9x/demoqa-e2e/internal/steps"
)

// errScenariosFailed is returned when the suite ran to completion but at least one
// scenario failed. main maps it to exit code 1.
var errScenariosFailed = errors.New("one or more scenarios failed")

type runOptions struct {
	strict bool
}

func newRunCmd(factory service.ComponentFactory) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the scenario suite against the target.",
		Long: `Runs the feature files (the embedded suite by default) against the configured
target and writes the configured reports.

Examples:
  e2e run --tags @api
  e2e run --headless=false --concurrency 2 --junit reports/junit.xml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runSuite(ctx, cfg, factory, opts, cmd.OutOrStdout(), observability.GetLogger())
		},
	}

	cmd.Flags().String("tags", "", "godog tag expression, e.g. '@api && ~@slow'")
	cmd.Flags().String("format", "pretty", "godog output format (pretty, progress, cucumber, junit)")
	cmd.Flags().String("features", "", "comma separated feature paths (default: embedded features)")
	cmd.Flags().Int("concurrency", 4, "maximum actors running at once")
	cmd.Flags().Bool("headless", true, "run browsers headless")
	cmd.Flags().String("base-url", "", "target base URL")
	cmd.Flags().String("junit", "", "write a JUnit report to this path")
	cmd.Flags().String("json", "", "write a JSON report to this path ('stdout' for standard output)")
	cmd.Flags().String("metrics", "", "write Prometheus metrics in textfile format to this path")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "fail on pending or undefined steps")

	bindFlag(cmd, "tags", "engine.tags")
	bindFlag(cmd, "format", "engine.format")
	bindFlag(cmd, "features", "engine.features_path")
	bindFlag(cmd, "concurrency", "engine.actor_concurrency")
	bindFlag(cmd, "headless", "browser.headless")
	bindFlag(cmd, "base-url", "target.base_url")
	bindFlag(cmd, "junit", "report.junit_path")
	bindFlag(cmd, "json", "report.json_path")
	bindFlag(cmd, "metrics", "report.metrics_textfile")
	return cmd
}

// runSuite wires the run components, executes the suite and prints a verdict summary.
func runSuite(ctx context.Context, cfg config.Interface, factory service.ComponentFactory, opts runOptions, out io.Writer, logger *zap.Logger) error {
	logger = logger.Named("run")
	components, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize run components: %w", err)
	}

	engine := cfg.Engine()
	logger.Info("Starting scenario suite.",
		zap.String("target", cfg.Target().BaseURL),
		zap.String("tags", engine.Tags),
		zap.Int("actor_concurrency", engine.ActorConcurrency))

	status := steps.Run(ctx, components.Runtime, steps.SuiteOptions{
		Paths:  splitPaths(engine.FeaturesPath),
		Tags:   engine.Tags,
		Format: engine.Format,
		Output: out,
		Strict: opts.strict,
	})
	verdicts := components.Runtime.Verdicts()

	// Reports and history are flushed before the summary is printed.
	components.Shutdown()
	printSummary(out, verdicts)

	if ctx.Err() != nil {
		return fmt.Errorf("run interrupted: %w", ctx.Err())
	}
	if status != 0 {
		return errScenariosFailed
	}
	return nil
}

func splitPaths(raw string) []string {
	var paths []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func printSummary(w io.Writer, verdicts []schemas.Verdict) {
	passed := 0
	for _, v := range verdicts {
		if v.Passed {
			passed++
		}
	}
	fmt.Fprintf(w, "\n%d scenarios: %d passed, %d failed\n", len(verdicts), passed, len(verdicts)-passed)
	for _, v := range verdicts {
		if v.Passed {
			continue
		}
		fmt.Fprintf(w, "FAIL %s (run %s)\n", v.Scenario, v.RunID)
		for _, o := range v.Failures() {
			fmt.Fprintf(w, "  %s [%s] %s\n", o.Actor, o.Code, o.Reason)
			if o.Diagnostics.Screenshot != "" {
				fmt.Fprintf(w, "    screenshot: %s\n", o.Diagnostics.Screenshot)
			}
		}
	}
}

// IsScenarioFailure reports whether err means the suite ran but scenarios failed.
func IsScenarioFailure(err error) bool {
	return errors.Is(err, errScenariosFailed)
}
