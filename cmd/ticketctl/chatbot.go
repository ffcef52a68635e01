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

func newChatbotCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatbot",
		Short: "Control the conversation bot",
	}

	simple := func(use, short, method, path string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				body, err := opts.client().do(cmd.Context(), method, path, nil)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(body))
				return nil
			},
		}
	}

	reset := &cobra.Command{
		Use:   "reset [channel:sender]",
		Short: "Reset one conversation, or all when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/chatbot/reset"
			if len(args) == 1 {
				path += "/" + url.PathEscape(args[0])
			}
			body, err := opts.client().do(cmd.Context(), http.MethodPost, path, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(body))
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List active conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := opts.client().do(cmd.Context(), http.MethodGet, "/api/chatbot/conversations", nil)
			if err != nil {
				return err
			}
			var resp struct {
				Conversations []struct {
					SenderID    string    `json:"sender_id"`
					Channel     string    `json:"channel"`
					DisplayName string    `json:"display_name"`
					Step        string    `json:"step"`
					TicketID    string    `json:"ticket_id"`
					UpdatedAt   time.Time `json:"updated_at"`
				} `json:"conversations"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("decode conversations: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tNAME\tSTEP\tTICKET\tUPDATED")
			for _, c := range resp.Conversations {
				fmt.Fprintf(tw, "%s:%s\t%s\t%s\t%s\t%s\n",
					c.Channel, c.SenderID, c.DisplayName, c.Step, c.TicketID, c.UpdatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(
		simple("status", "Show whether the bot answers and how many conversations are active", http.MethodGet, "/api/chatbot/status"),
		simple("enable", "Start answering messages", http.MethodPost, "/api/chatbot/enable"),
		simple("disable", "Stop answering messages", http.MethodPost, "/api/chatbot/disable"),
		reset,
		list,
	)
	return cmd
}
