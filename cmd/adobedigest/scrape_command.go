package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"AdobeDigest/internal/identity"
	"AdobeDigest/internal/usecase"
)

func newScrapeCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetch every configured source and write markdown posts for new or changed items",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, err := ctx.application(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			report, err := application.Scraper().Run(cmd.Context(), usecase.ScrapeOptions{Force: force})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rows := scrapeRows(report); len(rows) > 0 {
				fmt.Fprintln(out, renderTable(out, []string{"ID", "Source", "Result", "Path"}, rows, nil))
			}
			fmt.Fprintf(out, "fetched %d, new %d, updated %d, unchanged %d, duplicate %d, failed %d\n",
				report.Fetched,
				report.Count(identity.VerdictNew),
				report.Count(identity.VerdictUpdated),
				report.Count(identity.VerdictUnchanged),
				report.Count(identity.VerdictDuplicate),
				len(report.Failed()),
			)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Ignore known identifiers and re-emit everything")
	return cmd
}

// scrapeRows lists every item that was written, failed or caught by the title guard.
func scrapeRows(report usecase.ScrapeReport) [][]string {
	var rows [][]string
	for _, it := range report.Items {
		switch {
		case it.Err != nil:
			rows = append(rows, []string{it.ID, it.Source, "failed", it.Err.Error()})
		case it.Verdict == identity.VerdictUnchanged:
		case it.Verdict == identity.VerdictDuplicate:
			rows = append(rows, []string{it.ID, it.Source, it.Verdict.String(), it.Title})
		default:
			result := it.Verdict.String()
			if !it.Written {
				result += " (same bytes)"
			}
			rows = append(rows, []string{it.ID, it.Source, result, it.Path})
		}
	}
	return rows
}
