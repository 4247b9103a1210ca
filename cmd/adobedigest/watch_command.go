package main

import (
	"github.com/spf13/cobra"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run scrape then publish on the configured cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, err := ctx.application(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			return application.Watch(cmd.Context())
		},
	}
}
