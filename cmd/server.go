package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odit-bit/rcaccelerator/rca"
	"github.com/odit-bit/rcaccelerator/rca/config"
	"github.com/spf13/cobra"
)

func init() {
	ServerCMD.Flags().AddFlagSet(config.ServerFlags())
}

var ServerCMD = cobra.Command{
	Use:   "server",
	Short: "run the rca api server",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.LoadAndValidate(cmd.Flags())
		if err != nil {
			slog.Error("invalid configuration", "error", err)
			return err
		}
		rca.SetupLogging(cfg.Server)
		slog.Debug("configuration", "config", cfg)

		// Handle shutdown properly so nothing leaks.
		otelShutdown, err := rca.InitObservability(ctx, rca.ServiceName, cfg.Observe)
		if err != nil {
			slog.Error("failed init observability", "error", err)
			return err
		}
		defer func() {
			err = errors.Join(err, otelShutdown(context.Background()))
		}()

		srv, err := rca.NewServer(ctx, cfg)
		if err != nil {
			slog.Error("failed init server", "error", err)
			return err
		}
		defer func() {
			err = errors.Join(err, srv.Close())
		}()

		return srv.Start(ctx)
	},
}
