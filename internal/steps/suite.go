// internal/steps/suite.go
package steps

import (
	"context"
	"embed"
	"io"
	"os"

	"github.com/cucumber/godog"
)

// Features are the scenarios shipped with the binary.
//
//go:embed features/*.feature
var Features embed.FS

// SuiteOptions selects and formats the scenarios to run.
type SuiteOptions struct {
	// Paths on disk. Empty runs the embedded features.
	Paths       []string
	Tags        string
	Format      string
	Output      io.Writer
	Concurrency int
	Strict      bool
}

// GodogOptions translates opts into godog options with ctx as the base context of
// every scenario.
func (o SuiteOptions) GodogOptions(ctx context.Context) *godog.Options {
	out := o.Output
	if out == nil {
		out = os.Stdout
	}
	format := o.Format
	if format == "" {
		format = "pretty"
	}
	concurrency := o.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	opts := &godog.Options{
		Format:         format,
		Tags:           o.Tags,
		Output:         out,
		Concurrency:    concurrency,
		Strict:         o.Strict,
		DefaultContext: ctx,
		Paths:          o.Paths,
	}
	if len(o.Paths) == 0 {
		opts.FS = Features
		opts.Paths = []string{"features"}
	}
	return opts
}

// Run executes the suite and returns godog's exit status: 0 when every scenario passed.
func Run(ctx context.Context, rt *Runtime, opts SuiteOptions) int {
	suite := godog.TestSuite{
		Name:                "demoqa-e2e",
		ScenarioInitializer: rt.InitializeScenario,
		Options:             opts.GodogOptions(ctx),
	}
	return suite.Run()
}
