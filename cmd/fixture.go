// File: cmd/fixture.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/actor"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"github.com/xkilldash9x/demoqa-e2e/internal/fixture"
	"github.com/xkilldash9x/demoqa-e2e/internal/observability"
	"github.com/xkilldash9x/demoqa-e2e/internal/orchestrator"
	"github.com/xkilldash9x/demoqa-e2e/internal/service"
	"github.com/xkilldash9x/demoqa-e2e/internal/session"
)

func newFixtureCmd(factory service.ComponentFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Manages the shared credentials fixture.",
	}
	cmd.PersistentFlags().String("fixture", "", "path of the credentials fixture")
	_ = cmd.PersistentFlags().SetAnnotation("fixture", viperKeyAnnotation, []string{"fixture.path"})

	var fresh bool
	register := &cobra.Command{
		Use:   "register",
		Short: "Registers the fixture account over the HTTP API.",
		Long: `Registers the account stored in the fixture, creating the fixture first when it
does not exist. An account that is already registered is accepted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return registerFixture(ctx, cfg, factory, fresh, cmd.OutOrStdout(), observability.GetLogger())
		},
	}
	register.Flags().BoolVar(&fresh, "fresh", false, "generate new credentials even when a fixture exists")

	show := &cobra.Command{
		Use:   "show",
		Short: "Prints the stored fixture with the password masked.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return showFixture(cfg, cmd.OutOrStdout())
		},
	}

	var force bool
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Writes fresh random credentials to the fixture file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return generateFixture(cfg, force, cmd.OutOrStdout())
		},
	}
	generate.Flags().BoolVar(&force, "force", false, "replace an existing fixture")

	cmd.AddCommand(generate, register, show)
	return cmd
}

func registerFixture(ctx context.Context, cfg config.Interface, factory service.ComponentFactory, fresh bool, out io.Writer, logger *zap.Logger) error {
	components, err := factory.Create(ctx, cfg, logger.Named("fixture"))
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown()

	v := components.Orchestrator.Run(ctx, orchestrator.Scenario{
		Name: "fixture register",
		Tags: []string{"@api", "@fixture"},
		Kind: session.KindAPI,
		Actors: []orchestrator.ActorSpec{{
			Task:                actor.RegisterViaAPI{Env: components.Env, Fresh: fresh},
			Mode:                orchestrator.ModeSequential,
			AcceptAlreadyExists: true,
		}},
	})
	if !v.Passed {
		for _, o := range v.Failures() {
			fmt.Fprintf(out, "registration failed: [%s] %s\n", o.Code, o.Reason)
		}
		return fmt.Errorf("fixture registration failed (run %s)", v.RunID)
	}

	creds, _, err := components.Fixture.Load()
	if err != nil {
		return err
	}
	state := "registered"
	if len(v.Outcomes) > 0 && v.Outcomes[0].Status == schemas.StatusAlreadyExists {
		state = "already registered"
	}
	fmt.Fprintf(out, "%s %s (%s)\n", creds.UserName, state, components.Fixture.Path())
	return nil
}

func generateFixture(cfg config.Interface, force bool, out io.Writer) error {
	store, err := fixture.NewStore(cfg.Fixture().Path, observability.GetLogger())
	if err != nil {
		return err
	}
	var creds schemas.Credentials
	if force {
		// A corrupt fixture is replaced rather than read.
		if creds, err = fixture.NewCredentials(); err != nil {
			return err
		}
		if err := store.Save(creds); err != nil {
			return err
		}
	} else {
		var created bool
		creds, created, err = store.LoadOrCreate(fixture.NewCredentials)
		if err != nil {
			return err
		}
		if !created {
			return fmt.Errorf("fixture %s already exists (use --force to replace it)", store.Path())
		}
	}
	fmt.Fprintf(out, "wrote %s for %s\n", store.Path(), creds.UserName)
	return nil
}

func showFixture(cfg config.Interface, out io.Writer) error {
	store, err := fixture.NewStore(cfg.Fixture().Path, observability.GetLogger())
	if err != nil {
		return err
	}
	creds, ok, err := store.Load()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(out, "no fixture at %s\n", store.Path())
		return nil
	}
	fmt.Fprintf(out, "path:     %s\nuserName: %s\npassword: %s\n", store.Path(), creds.UserName, mask(creds.Password))
	return nil
}

// mask keeps the first and last character of secrets longer than four characters.
func mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:1] + strings.Repeat("*", len(secret)-2) + secret[len(secret)-1:]
}
