// Package messaging provides the inbound response loop.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
)

// Dispatcher is the routing side consumed by the listener. Satisfied by
// flow.Router.
type Dispatcher interface {
	Dispatch(ctx context.Context, identity, text string) error
}

// Listener drains a Service's inbound responses and feeds each one to the
// flow router. Responses are processed to completion one at a time, so a
// single identity's dispatches never interleave.
type Listener struct {
	service Service
	router  Dispatcher
}

// NewListener creates a Listener wiring a messaging service to the router.
func NewListener(service Service, router Dispatcher) *Listener {
	return &Listener{service: service, router: router}
}

// ProcessResponse routes one inbound message. Dispatch errors are returned;
// routing misses are silent no-ops inside the router.
func (l *Listener) ProcessResponse(ctx context.Context, from, body string) error {
	canonicalFrom, err := l.service.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Error("Listener sender validation failed", "error", err, "from", from)
		return fmt.Errorf("invalid sender: %w", err)
	}
	slog.Debug("Listener processing response", "from", canonicalFrom, "body_length", len(body))
	return l.router.Dispatch(ctx, canonicalFrom, body)
}

// Start begins processing responses from the messaging service.
// This should be called once to start the response processing loop.
func (l *Listener) Start(ctx context.Context) {
	slog.Info("Listener starting response processing")

	go func() {
		defer slog.Info("Listener stopped response processing")

		for {
			select {
			case response, ok := <-l.service.Responses():
				if !ok {
					slog.Debug("Listener responses channel closed")
					return
				}
				if err := l.ProcessResponse(ctx, response.From, response.Body); err != nil {
					slog.Error("Listener failed to process response", "error", err, "from", response.From)
				}

			case <-ctx.Done():
				slog.Debug("Listener stopping due to context cancellation")
				return
			}
		}
	}()
}
