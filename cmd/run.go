package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/illmade-knight/rtview-feed/pkg/feedservice"
	"github.com/illmade-knight/rtview-feed/pkg/rtview"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Subscribe to the feeds and forward every message to the DataServer.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			feedList := a.cfg.Catalog()
			consumer, err := a.cfg.NewConsumer(ctx, feedList, a.logger)
			if err != nil {
				return err
			}
			client, err := rtview.NewClient(a.cfg.ClientConfig(), a.logger)
			if err != nil {
				return err
			}
			svc, err := feedservice.New(a.cfg.ServiceConfig(), feedList, consumer, client, a.logger)
			if err != nil {
				return err
			}
			a.logger.Info().Str("source", a.cfg.Source.Kind).Str("target_url", a.cfg.RTView.TargetURL).Msg("rtviewfeed running")
			return svc.Run(ctx)
		},
	}
}
