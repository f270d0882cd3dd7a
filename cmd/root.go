// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"github.com/xkilldash9x/demoqa-e2e/internal/observability"
	"github.com/xkilldash9x/demoqa-e2e/internal/service"
)

// EnvPrefix prefixes every environment override, e.g. E2E_TARGET_BASE_URL.
const EnvPrefix = "E2E"

// viperKeyAnnotation maps a command flag onto a configuration key.
const viperKeyAnnotation = "viper-key"

type contextKey string

const configKey contextKey = "config"

// NewRootCommand builds the command tree. Each call returns an independent tree.
func NewRootCommand() *cobra.Command {
	return newRootCmd(service.NewComponentFactory(), NewStoreProvider())
}

func newRootCmd(factory service.ComponentFactory, provider storeProvider) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           "e2e",
		Short:         "Runs the demoqa.com end to end scenarios.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			// 1. Configuration sources: file, environment, then flags.
			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger())
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger())
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			// 2. Logger.
			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Configuration loaded.", zap.String("version", Version), zap.String("config_file", v.ConfigFileUsed()))

			// 3. Hand the validated config to subcommands.
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./e2e.yaml, then ~/.config/demoqa-e2e/e2e.yaml)")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(newRunCmd(factory))
	cmd.AddCommand(newFixtureCmd(factory))
	cmd.AddCommand(newHistoryCmd(provider))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the command tree with ctx, logging any failure.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		if errors.Is(err, errScenariosFailed) {
			observability.GetLogger().Warn("Run finished with failing scenarios.")
		} else {
			observability.GetLogger().Error("Command execution failed.", zap.Error(err))
		}
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file and environment, and binds annotated flags
// of the executing command onto their keys.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to expand config path %s: %w", cfgFile, err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home + "/.config/demoqa-e2e")
		}
		v.SetConfigName("e2e")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows about.
	_ = v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys, ok := f.Annotations[viperKeyAnnotation]
		if !ok || len(keys) == 0 || !f.Changed {
			return
		}
		if err := v.BindPFlag(keys[0], f); err != nil {
			bindErr = errors.Join(bindErr, err)
		}
	})
	return bindErr
}

// bindFlag marks flag name of cmd as an override of key.
func bindFlag(cmd *cobra.Command, name, key string) {
	_ = cmd.Flags().SetAnnotation(name, viperKeyAnnotation, []string{key})
}

// getConfigFromContext returns the config stored by the root pre-run hook.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in command context")
	}
	return cfg, nil
}
