package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and boot-time discovery",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		// Discovery runs beside the listener so the API answers health
		// checks during the startup delay.
		go func() {
			report := a.StartupRunner().Run(ctx)
			if report.Discovered == 0 {
				return
			}
			if err := a.Save(context.WithoutCancel(ctx)); err != nil {
				log.WarnWith("failed to save schema snapshot", err, nil)
			}
		}()

		srv := a.Server()
		log.InfoWith("http server listening", map[string]any{"addr": cfg.Server.Addr})
		return srv.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
	},
}
