package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type logEntry struct {
	Seq       uint64         `json:"seq"`
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Component string         `json:"component"`
	Message   string         `json:"message"`
	Attrs     map[string]any `json:"attrs"`
}

func newLogsCmd(opts *globalOptions) *cobra.Command {
	var (
		level, component, ticketID, contains string
		limit                                int
		follow                               bool
		interval                             time.Duration
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent service logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := opts.client()
			q := url.Values{}
			for k, v := range map[string]string{"level": level, "component": component, "ticket": ticketID, "q": contains} {
				if v != "" {
					q.Set(k, v)
				}
			}
			q.Set("limit", strconv.Itoa(limit))

			var after uint64
			for {
				if after > 0 {
					q.Set("after", strconv.FormatUint(after, 10))
				}
				body, err := client.do(cmd.Context(), http.MethodGet, "/api/logs?"+q.Encode(), nil)
				if err != nil {
					return err
				}
				var entries []logEntry
				if err := json.Unmarshal(body, &entries); err != nil {
					return fmt.Errorf("decode logs: %w", err)
				}
				for _, e := range entries {
					printLogEntry(cmd.OutOrStdout(), e)
					after = max(after, e.Seq)
				}
				if !follow {
					return nil
				}
				select {
				case <-cmd.Context().Done():
					return nil
				case <-time.After(interval):
				}
			}
		},
	}
	f := cmd.Flags()
	f.StringVar(&level, "level", "", "minimum level (debug, info, warn, error)")
	f.StringVar(&component, "component", "", "only this component, e.g. notify")
	f.StringVar(&ticketID, "ticket", "", "only lines about this ticket id")
	f.StringVarP(&contains, "grep", "g", "", "message substring")
	f.IntVarP(&limit, "limit", "n", 50, "newest entries to show")
	f.BoolVarP(&follow, "follow", "f", false, "keep polling for new entries")
	f.DurationVar(&interval, "interval", 2*time.Second, "poll interval with --follow")
	return cmd
}

func printLogEntry(w io.Writer, e logEntry) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s", e.Time.Local().Format("15:04:05"), e.Level)
	if e.Component != "" {
		fmt.Fprintf(&b, " [%s]", e.Component)
	}
	b.WriteString(" " + e.Message)

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	fmt.Fprintln(w, b.String())
}
