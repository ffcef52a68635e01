package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newJobsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger periodic jobs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs with their last outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := opts.client().do(cmd.Context(), http.MethodGet, "/api/jobs", nil)
			if err != nil {
				return err
			}
			var resp struct {
				Jobs []struct {
					Name      string    `json:"name"`
					Schedule  string    `json:"schedule"`
					Next      time.Time `json:"next"`
					Runs      int       `json:"runs"`
					Failures  int       `json:"failures"`
					LastError string    `json:"last_error"`
				} `json:"jobs"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("decode jobs: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSCHEDULE\tRUNS\tFAILED\tNEXT\tLAST ERROR")
			for _, j := range resp.Jobs {
				next := "-"
				if !j.Next.IsZero() {
					next = j.Next.Local().Format(time.TimeOnly)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", j.Name, j.Schedule, j.Runs, j.Failures, next, j.LastError)
			}
			return tw.Flush()
		},
	}

	run := &cobra.Command{
		Use:   "run <name>",
		Short: "Run a job now, e.g. x-poll",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := opts.client().do(cmd.Context(), http.MethodPost, "/api/jobs/"+url.PathEscape(args[0])+"/run", nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(body))
			return nil
		},
	}

	cmd.AddCommand(list, run)
	return cmd
}
