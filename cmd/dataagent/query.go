package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koustreak/dataagent/internal/agent"
	"github.com/koustreak/dataagent/internal/errs"
	"github.com/koustreak/dataagent/internal/model"
)

var (
	querySQL     bool
	queryDialect string
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Answer a natural-language question, or run SQL with --sql",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		// Learn the configured scopes first so the translator has context.
		for _, scope := range agent.SplitScopes(cfg.Discovery.ScanPackages) {
			if _, err := a.Service.DiscoverAndLearn(ctx, scope, false); err != nil {
				log.WarnWith("discovery failed", err, map[string]any{"scope": scope})
			}
		}

		text := strings.Join(args, " ")
		var res *model.QueryResult
		if querySQL {
			res = a.Orchestrator.ExecuteSQL(ctx, text, nil)
		} else {
			res = a.Orchestrator.ProcessNaturalLanguage(ctx, text, queryDialect)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
		if !res.Success {
			return errs.New(errs.ErrKindExecution, res.ErrorMessage)
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().BoolVar(&querySQL, "sql", false, "treat the argument as SQL")
	queryCmd.Flags().StringVar(&queryDialect, "dialect", "", "SQL dialect passed to the translator")
}
