package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/illmade-knight/rtview-feed/pkg/feedservice"
	"github.com/illmade-knight/rtview-feed/pkg/rtview"
)

func newDeclareCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "declare",
		Short: "Declare the feed caches on the DataServer and exit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rtview.NewClient(a.cfg.ClientConfig(), a.logger)
			if err != nil {
				return err
			}
			dispatcher := rtview.NewDispatcher(client, a.logger, nil)
			defer dispatcher.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			feedList := a.cfg.Catalog()
			if err := feedservice.DeclareCaches(ctx, dispatcher, feedList); err != nil {
				return err
			}
			for _, f := range feedList {
				fmt.Fprintf(cmd.OutOrStdout(), "declared %s (%s)\n", f.CacheName, f.Name)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for the declarations")
	return cmd
}
