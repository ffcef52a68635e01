package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalOptions struct {
	url string
	key string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:          "ticketctl",
		Short:        "Inspect and manage a running ticketd",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.url, "url", envOr("TICKETCTL_URL", "http://localhost:3000"), "ticketd base URL")
	root.PersistentFlags().StringVar(&opts.key, "key", os.Getenv("ADMIN_KEY"), "admin key")

	root.AddCommand(
		newHealthCmd(opts),
		newTicketsCmd(opts),
		newStatsCmd(opts),
		newExportCmd(opts),
		newChatbotCmd(opts),
		newLogsCmd(opts),
		newJobsCmd(opts),
		newConfigCmd(),
		newMigrateCmd(),
	)
	return root
}

func newHealthCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show service health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := opts.client().do(cmd.Context(), http.MethodGet, "/api/health", nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(body))
			return nil
		},
	}
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show ticket counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := opts.client().do(cmd.Context(), http.MethodGet, "/api/stats", nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(body))
			return nil
		},
	}
}

// --- Helpers ---

func (o *globalOptions) client() *apiClient {
	return &apiClient{
		base: strings.TrimRight(o.url, "/"),
		key:  o.key,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func prettyJSON(data []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return string(data)
	}
	return buf.String()
}

func readAllString(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return strings.TrimSpace(string(b))
}
