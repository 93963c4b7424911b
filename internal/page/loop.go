package page

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cengoxius/ecommerce01/internal/domain"
)

// Outbox collects the navigation requests a controller makes. The transport
// drains it after each action and turns the last route into a redirect.
// It is only touched while the owning Loop holds its lock.
type Outbox struct {
	routes []domain.Route
}

// GoTo records a navigation request.
func (o *Outbox) GoTo(route domain.Route) {
	o.routes = append(o.routes, route)
}

func (o *Outbox) drain() (domain.Route, bool) {
	if len(o.routes) == 0 {
		return "", false
	}
	last := o.routes[len(o.routes)-1]
	o.routes = o.routes[:0]
	return last, true
}

// Loop runs one controller on a single logical thread. Actions and command
// results are applied under one lock; commands execute on their own
// goroutines and never hold it while waiting on a collaborator.
type Loop struct {
	mu       sync.Mutex
	ctrl     *Controller
	outbox   *Outbox
	inflight int
	idle     chan struct{}
}

// NewLoop wires a controller to a fresh outbox and returns its loop.
func NewLoop(products ProductService, cart CartService, identity SessionReader, logger *slog.Logger) *Loop {
	outbox := &Outbox{}
	idle := make(chan struct{})
	close(idle)
	return &Loop{
		ctrl:   NewController(products, cart, identity, outbox, logger),
		outbox: outbox,
		idle:   idle,
	}
}

// Do applies fn to the controller and schedules the command it returns.
// Commands outlive the request that triggered them; only the request's
// values are carried over, not its cancellation.
func (l *Loop) Do(ctx context.Context, fn func(c *Controller) (Cmd, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cmd, err := fn(l.ctrl)
	l.dispatchLocked(context.WithoutCancel(ctx), cmd)
	return err
}

// Read runs fn against the controller without scheduling anything.
func (l *Loop) Read(fn func(c *Controller)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.ctrl)
}

// Navigation returns the most recent route requested since the last call.
func (l *Loop) Navigation() (domain.Route, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outbox.drain()
}

// Settle blocks until no command is in flight or ctx is done.
func (l *Loop) Settle(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Busy reports whether any command is in flight.
func (l *Loop) Busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inflight > 0
}

func (l *Loop) dispatchLocked(ctx context.Context, cmd Cmd) {
	if cmd == nil {
		return
	}
	if l.inflight == 0 {
		l.idle = make(chan struct{})
	}
	l.inflight++
	commandsInFlight.Inc()

	go func() {
		msg := cmd(ctx)

		l.mu.Lock()
		defer l.mu.Unlock()

		if msg != nil {
			l.dispatchLocked(ctx, l.ctrl.Update(msg))
		}
		l.inflight--
		commandsInFlight.Dec()
		if l.inflight == 0 {
			close(l.idle)
		}
	}()
}
