// Package notify relays new tickets to messaging channels.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

// Notifier delivers one ticket notification.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, t *protocol.Ticket) error
}

// Result is the outcome of one notifier for one ticket.
type Result struct {
	Notifier string
	Err      error
	Duration time.Duration
}

// OK reports whether delivery succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Dispatcher fans a ticket out to every configured notifier.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. Each notifier gets at most timeout.
func NewDispatcher(notifiers []Notifier, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{
		notifiers: notifiers,
		timeout:   timeout,
		logger:    logger.With("component", "notify"),
	}
}

// Names lists the configured notifiers.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Has reports whether a notifier with name is configured.
func (d *Dispatcher) Has(name string) bool {
	for _, n := range d.notifiers {
		if n.Name() == name {
			return true
		}
	}
	return false
}

// Dispatch sends t through every notifier in order and returns one Result each.
// Failures are logged; callers decide whether they matter.
func (d *Dispatcher) Dispatch(ctx context.Context, t *protocol.Ticket) []Result {
	results := make([]Result, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		nctx, cancel := context.WithTimeout(ctx, d.timeout)
		start := time.Now()
		err := n.Notify(nctx, t)
		cancel()

		res := Result{Notifier: n.Name(), Err: err, Duration: time.Since(start)}
		if err != nil {
			d.logger.Error("notification failed",
				"notifier", res.Notifier,
				"ticket_id", t.ID,
				"error", err,
			)
		} else {
			d.logger.Debug("notification sent",
				"notifier", res.Notifier,
				"ticket_id", t.ID,
				"duration", res.Duration,
			)
		}
		results = append(results, res)
	}
	return results
}
