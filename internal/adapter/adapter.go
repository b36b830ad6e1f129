package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/blossomhq/campaign-engine/internal/model"
)

// FailureKind classifies a send failure. Transient failures are retried with
// backoff; permanent failures (invalid address, hard bounce, unsubscribed)
// fail the task immediately.
type FailureKind int

const (
	Transient FailureKind = iota
	Permanent
)

func (k FailureKind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// SendError is the classified failure returned by channel adapters.
type SendError struct {
	Kind   FailureKind
	Reason string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed (%s): %s", e.Kind, e.Reason)
}

// Classify extracts the failure kind from an adapter error. Errors that carry
// no classification (timeouts, transport errors) count as transient.
func Classify(err error) FailureKind {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind
	}
	return Transient
}

// Content is the rendered message handed to an adapter.
type Content struct {
	Subject string
	Body    string
}

// Adapter is the per-channel send primitive. Implementations must be safe for
// concurrent use; the worker bounds throughput, not the adapter.
type Adapter interface {
	Name() string
	Channel() model.Channel
	Ready() bool
	Send(ctx context.Context, to string, content Content, metadata map[string]string) (providerMessageID string, err error)
}

var ErrNoAdapter = errors.New("no adapter for channel")

// Registry routes sends to the adapter registered for a channel.
type Registry struct {
	byChannel map[model.Channel]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[model.Channel]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Channel()] = a
	}
	return &Registry{byChannel: m}
}

func (r *Registry) For(ch model.Channel) (Adapter, error) {
	a, ok := r.byChannel[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, ch)
	}
	return a, nil
}
