package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/koustreak/dataagent/internal/app"
	"github.com/koustreak/dataagent/internal/config"
	"github.com/koustreak/dataagent/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dataagent",
	Short: "Query a database in natural language",
	Long: `dataagent learns entity schemas from compiled types, manifest files and the
live database catalog, then turns natural-language questions into validated,
read-only SQL and runs them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		log = logger.New(&cfg.Log)
		logger.SetGlobal(log)
		return nil
	},
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./dataagent.yaml)")
	pf.String("addr", "", "HTTP listen address")
	pf.String("driver", "", "database driver: postgres, mysql or sqlite")
	pf.String("dsn", "", "database connection string")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("scan", "", "comma-separated discovery scopes")
	pf.String("manifest", "", "entity manifest file (yaml or json)")

	rootCmd.AddCommand(serveCmd, discoverCmd, queryCmd)
}

// openApp builds the agent for one command run.
func openApp(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if _, err := a.Restore(ctx); err != nil {
		log.WarnWith("failed to restore schema snapshot", err, nil)
	}
	return a, nil
}
