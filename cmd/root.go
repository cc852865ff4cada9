package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ridoystarlord/schemaengine/config"
	"github.com/ridoystarlord/schemaengine/logging"
	"github.com/ridoystarlord/schemaengine/usererrors"
)

var (
	configPath string

	cfg      *config.Config
	logger   *slog.Logger
	closeLog = func() error { return nil }
)

// boundFlags maps config keys to the flags that override them. Only flags
// the running command knows about are bound.
var boundFlags = map[string]string{
	"logging.level": "log-level",
	"database.url":  "database-url",
	"schema":        "schema",
}

var rootCmd = &cobra.Command{
	Use:   "schemaengine",
	Short: "Schema engine: introspect, diff and migrate SQL databases",
	Long: `schemaengine keeps a declarative schema file and a SQL database in sync.

Examples:

  schemaengine init --provider postgresql
  schemaengine introspect
  schemaengine generate -n add_users
  schemaengine migrate
  schemaengine diagnose
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.LoadEnv(); err != nil {
			return err
		}
		v := viper.New()
		for key, name := range boundFlags {
			if flag := cmd.Flags().Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return err
				}
			}
		}
		loaded, err := config.LoadWith(v, configPath)
		if err != nil {
			return err
		}

		l, closeFn, err := logging.Setup(loaded.Logging.Level, loaded.Logging.Directory)
		if err != nil {
			return err
		}
		closeLog()
		slog.SetDefault(l)
		cfg, logger, closeLog = loaded, l, closeFn
		return nil
	},
}

// Execute runs the CLI
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	closeLog()
	if err != nil {
		red.Fprintln(os.Stderr, "❌", err)
		if known, ok := usererrors.As(err); ok && known.Code == usererrors.CodeFailedMigrationsPresent {
			fmt.Fprintln(os.Stderr, "   Run 'schemaengine migrate --resolve <name>' once the failed migration is fixed")
		}
		os.Exit(1)
	}
}

// Register subcommands
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default schemaengine.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("database-url", "", "Database url, overrides the config file and DATABASE_URL")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(introspectCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(applyStepsCmd)
	rootCmd.AddCommand(listStepsCmd)
}
