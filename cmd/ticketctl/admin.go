package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/Meshal1212222/ticket-ticket/internal/config"
	"github.com/Meshal1212222/ticket-ticket/internal/ticket"
)

func newExportCmd(opts *globalOptions) *cobra.Command {
	var format, output, status, since string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download tickets as CSV or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("--format must be csv or json")
			}
			q := url.Values{"format": {format}}
			if status != "" {
				q.Set("status", status)
			}
			if since != "" {
				q.Set("since", since)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			n, err := opts.client().download(cmd.Context(), "/api/export?"+q.Encode(), w)
			if err != nil {
				return err
			}
			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", n, output)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "csv or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().StringVar(&status, "status", "", "Only tickets with this status")
	cmd.Flags().StringVar(&since, "since", "", "Only tickets created after this time (RFC 3339 or unix ms)")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <path>",
		Short: "Check a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(args[0]); err != nil {
				return fmt.Errorf("invalid: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "config is valid")
			return nil
		},
	})
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var databaseURL string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	up := &cobra.Command{
		Use:   "up",
		Short: "Create the database if needed and apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			if err := ticket.EnsureDatabase(databaseURL, logger); err != nil {
				return err
			}
			if err := ticket.MigratePostgres(databaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrate up: ok")
			return nil
		},
	}
	up.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	cmd.AddCommand(up)
	return cmd
}
