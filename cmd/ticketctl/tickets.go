package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

func newTicketsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "List, show and update tickets",
	}
	cmd.AddCommand(newTicketsListCmd(opts), newTicketsShowCmd(opts), newTicketsUpdateCmd(opts))
	return cmd
}

func newTicketsListCmd(opts *globalOptions) *cobra.Command {
	var (
		status, category, priority, source, query string
		limit, offset                             int
		asJSON                                    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tickets, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			for k, v := range map[string]string{
				"status": status, "category": category, "priority": priority,
				"source": source, "q": query,
			} {
				if v != "" {
					q.Set(k, v)
				}
			}
			q.Set("limit", strconv.Itoa(limit))
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}

			body, err := opts.client().do(cmd.Context(), http.MethodGet, "/api/tickets?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			if asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(body))
				return nil
			}

			var resp struct {
				Tickets []*protocol.Ticket `json:"tickets"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("decode tickets: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tPRIORITY\tSOURCE\tCREATED\tNAME\tSUBJECT")
			for _, t := range resp.Tickets {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					t.ID, t.Status, t.Priority, t.Source,
					t.CreatedAt.Format("2006-01-02 15:04"), t.Name, truncate(t.Subject, 40))
			}
			return tw.Flush()
		},
	}
	f := cmd.Flags()
	f.StringVar(&status, "status", "", "Filter by status (new|in-progress|resolved)")
	f.StringVar(&category, "category", "", "Filter by category")
	f.StringVar(&priority, "priority", "", "Filter by priority")
	f.StringVar(&source, "source", "", "Filter by source (web|whatsapp|x|telegram)")
	f.StringVarP(&query, "query", "q", "", "Search name, subject and description")
	f.IntVar(&limit, "limit", 50, "Max results")
	f.IntVar(&offset, "offset", 0, "Skip this many results")
	f.BoolVar(&asJSON, "json", false, "Print raw JSON")
	return cmd
}

func newTicketsShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := opts.client().do(cmd.Context(), http.MethodGet, "/api/tickets/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(body))
			return nil
		},
	}
}

func newTicketsUpdateCmd(opts *globalOptions) *cobra.Command {
	var (
		status, priority string
		sets             []string
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Patch a ticket",
		Example: `  ticketctl tickets update TKT-000042 --status resolved
  ticketctl tickets update TKT-000042 --set assignee=omar`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := map[string]any{}
			if status != "" {
				patch["status"] = status
			}
			if priority != "" {
				patch["priority"] = priority
			}
			for _, kv := range sets {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("--set %q: expected key=value", kv)
				}
				patch[k] = v
			}
			if len(patch) == 0 {
				return fmt.Errorf("nothing to update: pass --status, --priority or --set")
			}

			body, err := opts.client().do(cmd.Context(), http.MethodPatch, "/api/tickets/"+url.PathEscape(args[0]), patch)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(body))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "New status")
	cmd.Flags().StringVar(&priority, "priority", "", "New priority")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Extra field as key=value (repeatable)")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
