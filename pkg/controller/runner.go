package controller

import (
	"context"
	"time"

	"github.com/playctl/playctl/pkg/protocol"
)

// tickInterval keeps the loop alive for notification decay and periodic
// bookkeeping; the tick never mutates dispatcher-relevant state.
const tickInterval = 250 * time.Millisecond

// notificationTTL is how long a transient notification stays visible.
const notificationTTL = 5 * time.Second

// Runner is the headless event loop. It owns the Controller's State
// exclusively: inbound protocol records, injected analysis results, and the
// tick are multiplexed here and handled one at a time, so no lock guards the
// State.
type Runner struct {
	Controller *Controller
	Inbound    <-chan protocol.Message

	injected chan protocol.Message
}

func NewRunner(c *Controller, inbound <-chan protocol.Message) *Runner {
	r := &Runner{
		Controller: c,
		Inbound:    inbound,
		injected:   make(chan protocol.Message, 8),
	}
	c.Inject = func(msg protocol.Message) {
		select {
		case r.injected <- msg:
		default:
			c.Logger.Warn("injected event dropped", "kind", protocol.Kind(msg))
		}
	}
	return r
}

// Run processes events until the client disconnects, the inbound channel
// closes, or the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-r.Inbound:
			if !ok {
				return nil
			}
			r.Controller.HandleMessage(ctx, msg)
			if _, done := msg.(protocol.ClientDisconnected); done {
				return nil
			}

		case msg := <-r.injected:
			r.Controller.HandleMessage(ctx, msg)

		case <-ticker.C:
			r.decayNotification()
		}
	}
}

func (r *Runner) decayNotification() {
	s := r.Controller.State
	if s.Notification != "" && time.Since(s.NotificationAt) > notificationTTL {
		s.Notification = ""
	}
}
