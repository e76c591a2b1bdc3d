package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/koustreak/dataagent/internal/agent"
	"github.com/koustreak/dataagent/internal/errs"
	"github.com/koustreak/dataagent/internal/model"
)

var discoverForce bool

var discoverCmd = &cobra.Command{
	Use:   "discover [scope...]",
	Short: "Discover entity schemas and print them as JSON",
	Long: `Discover scans each scope (a Go package path, "db" for the live database or
"db/<schema>") and prints the learned descriptors. Without arguments the
configured discovery.scan_packages are used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scopes := args
		if len(scopes) == 0 {
			scopes = agent.SplitScopes(cfg.Discovery.ScanPackages)
		}
		if len(scopes) == 0 {
			return errs.New(errs.ErrKindInvalidInput, "no scope given and discovery.scan_packages is empty")
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var all []*model.EntityDescriptor
		for _, scope := range scopes {
			ds, err := a.Service.DiscoverAndLearn(ctx, scope, discoverForce)
			if err != nil {
				return err
			}
			all = append(all, ds...)
		}
		if err := a.Save(ctx); err != nil {
			log.WarnWith("failed to save schema snapshot", err, nil)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	},
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverForce, "force", false, "bypass the schema cache")
}
