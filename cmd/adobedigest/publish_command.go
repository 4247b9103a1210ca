package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"AdobeDigest/internal/textutil"
	"AdobeDigest/internal/usecase"
)

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		updates []string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Post local markdown files the blog does not have yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, err := ctx.application(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			publisher, err := application.Publisher()
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = application.PublishLimit()
			}

			report, err := publisher.Run(cmd.Context(), usecase.PublishOptions{Limit: limit, Update: updates})
			out := cmd.OutOrStdout()
			if rows := publishRows(report); len(rows) > 0 {
				fmt.Fprintln(out, renderTable(out, []string{"ID", "Action", "Status", "Result"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
			}
			fmt.Fprintf(out, "local %d, pending %d, succeeded %d of %d, newly tracked %d\n",
				report.Local, report.Pending, report.Succeeded(), len(report.Items), report.Confirmed)
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum posts to publish (defaults to microblog.publish_limit)")
	cmd.Flags().StringArrayVar(&updates, "update", nil, "Replace the live post for this identifier instead of publishing (repeatable)")
	return cmd
}

func publishRows(report usecase.PublishReport) [][]string {
	rows := make([][]string, 0, len(report.Items))
	for _, it := range report.Items {
		status, result := "ok", it.URL
		if it.Err != nil {
			status = "error"
			if it.Status != 0 {
				status = strconv.Itoa(it.Status)
			}
			result = it.Err.Error()
			if it.Body != "" {
				result = textutil.Ellipsize(it.Body, 120)
			}
		}
		rows = append(rows, []string{it.ID, it.Action, status, result})
	}
	return rows
}
