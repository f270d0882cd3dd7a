// File: cmd/history.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"github.com/xkilldash9x/demoqa-e2e/internal/observability"
	"github.com/xkilldash9x/demoqa-e2e/internal/service"
	"github.com/xkilldash9x/demoqa-e2e/internal/store"
)

var errHistoryDisabled = errors.New("verdict history requires database.url (or E2E_DATABASE_URL)")

// historyStore is the read side of the verdict store.
type historyStore interface {
	History(ctx context.Context, scenario string, limit int) ([]store.RunSummary, error)
	OutcomesByRunID(ctx context.Context, runID string) ([]schemas.Outcome, error)
}

// storeProvider opens the history store. The returned func releases it.
type storeProvider interface {
	Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (historyStore, func(), error)
}

type defaultStoreProvider struct{}

// NewStoreProvider returns the provider backed by the configured Postgres database.
func NewStoreProvider() storeProvider { return defaultStoreProvider{} }

func (defaultStoreProvider) Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (historyStore, func(), error) {
	if cfg.URL == "" {
		return nil, nil, errHistoryDisabled
	}
	dbStore, pool, err := service.InitializeStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return dbStore, pool.Close, nil
}

type historyOptions struct {
	scenario string
	limit    int
	runID    string
}

func newHistoryCmd(provider storeProvider) *cobra.Command {
	var opts historyOptions
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Lists recorded scenario verdicts.",
		Long: `Lists the latest recorded runs, or the actor outcomes of one run with --run-id.

Examples:
  e2e history --limit 5
  e2e history --scenario "Login with the stored fixture"
  e2e history --run-id 01J9Z0V5M4Q7T8D3C2B1A0XYZW`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger().Named("history")
			hs, release, err := provider.Open(ctx, cfg.Database(), logger)
			if err != nil {
				return fmt.Errorf("failed to open verdict history: %w", err)
			}
			defer release()
			return printHistory(ctx, hs, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.scenario, "scenario", "", "only list runs of this scenario")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().StringVar(&opts.runID, "run-id", "", "show the outcomes of one run")
	cmd.Flags().String("database-url", "", "postgres connection string")
	bindFlag(cmd, "database-url", "database.url")
	return cmd
}

func printHistory(ctx context.Context, hs historyStore, opts historyOptions, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if opts.runID != "" {
		outcomes, err := hs.OutcomesByRunID(ctx, opts.runID)
		if err != nil {
			return err
		}
		if len(outcomes) == 0 {
			return fmt.Errorf("no outcomes recorded for run %s", opts.runID)
		}
		fmt.Fprintln(tw, "ACTOR\tSTATUS\tREQUIRED\tCODE\tREASON")
		for _, o := range outcomes {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", o.Actor, o.Status, o.Required, o.Code, o.Reason)
		}
		return tw.Flush()
	}

	runs, err := hs.History(ctx, opts.scenario, opts.limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}
	fmt.Fprintln(tw, "RUN\tSCENARIO\tRESULT\tSTARTED\tDURATION\tTAGS")
	for _, r := range runs {
		result := "failed"
		if r.Passed {
			result = "passed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RunID, r.Scenario, result,
			r.StartedAt.UTC().Format(time.RFC3339),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
			strings.Join(r.Tags, " "))
	}
	return tw.Flush()
}
