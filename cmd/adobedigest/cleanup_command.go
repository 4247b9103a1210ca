package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"AdobeDigest/internal/usecase"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var (
		deleteFlag bool
		useAPI     bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Find published posts sharing a title and delete all but the best copy",
		Long: "Groups published posts by title, keeps the copy with the most readable slug " +
			"(then the oldest) and lists the rest. Nothing is deleted without --delete.",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, logger, err := ctx.application(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			cleanup, err := application.Cleanup(useAPI)
			if err != nil {
				return err
			}
			if !useAPI {
				logger.Info("listing from the public feed, which only carries recent posts; use --api for the full list")
			}

			report, err := cleanup.Run(cmd.Context(), usecase.CleanupOptions{Delete: deleteFlag})
			out := cmd.OutOrStdout()
			if rows := cleanupRows(report); len(rows) > 0 {
				fmt.Fprintln(out, renderTable(out, []string{"Title", "Action", "URL", "Reason"}, rows, nil))
			}
			fmt.Fprintln(out, cleanupSummary(report))
			return err
		},
	}

	cmd.Flags().BoolVar(&deleteFlag, "delete", false, "Actually delete duplicates (default is a dry run)")
	cmd.Flags().BoolVar(&useAPI, "api", false, "List posts through the Micropub source query instead of the feed")
	return cmd
}

func cleanupRows(report usecase.CleanupReport) [][]string {
	failed := map[string]string{}
	for _, f := range report.Failures {
		failed[f.URL] = f.Err.Error()
	}

	var rows [][]string
	for _, g := range report.Plan.Groups {
		rows = append(rows, []string{g.Title, "keep", g.Keep.URL, ""})
		for _, d := range g.Delete {
			action := "delete"
			reason := d.Reason
			if msg, ok := failed[d.Post.URL]; ok {
				action = "failed"
				reason = msg
			}
			rows = append(rows, []string{"", action, d.Post.URL, reason})
		}
	}
	return rows
}

func cleanupSummary(report usecase.CleanupReport) string {
	groups := len(report.Plan.Groups)
	if groups == 0 {
		return fmt.Sprintf("no duplicates among %d posts", report.Plan.Posts)
	}
	if report.DryRun {
		return fmt.Sprintf("dry run: would keep %d posts and delete %d duplicates", groups, report.Plan.Deletions())
	}
	summary := fmt.Sprintf("kept %d posts, deleted %d duplicates", groups, report.Deleted)
	if n := len(report.Failures); n > 0 {
		summary += fmt.Sprintf(", %d deletions failed", n)
	}
	return summary
}
