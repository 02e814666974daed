// Package notifier defines the outbound delivery capability. Each
// messaging platform provides an implementation; the dispatcher selects
// one by the entry's platform and interprets send failures through the
// transient/permanent taxonomy defined here.
package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwalitptl/engage-scheduler/internal/model"
)

// Notifier performs the actual platform-specific send.
type Notifier interface {
	Send(ctx context.Context, recipient string, content string, metadata model.JSONMap) error
}

// Error classifies a delivery failure. Retryable failures are retried on
// subsequent dispatch cycles; permanent ones terminate the entry.
type Error struct {
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Retryable {
		return fmt.Sprintf("transient delivery failure: %v", e.Err)
	}
	return fmt.Sprintf("permanent delivery failure: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps a failure worth retrying.
func Transient(err error) *Error {
	return &Error{Retryable: true, Err: err}
}

// Permanent wraps a failure that will not succeed on retry.
func Permanent(err error) *Error {
	return &Error{Retryable: false, Err: err}
}

// IsRetryable reports whether the dispatcher should retry the send.
// Unclassified errors (network faults, timeouts) are treated as
// transient.
func IsRetryable(err error) bool {
	var nerr *Error
	if errors.As(err, &nerr) {
		return nerr.Retryable
	}
	return true
}

// Registry maps platforms to their notifier implementations.
type Registry struct {
	notifiers map[model.Platform]Notifier
}

func NewRegistry() *Registry {
	return &Registry{notifiers: make(map[model.Platform]Notifier)}
}

func (r *Registry) Register(platform model.Platform, n Notifier) {
	r.notifiers[platform] = n
}

func (r *Registry) For(platform model.Platform) (Notifier, bool) {
	n, ok := r.notifiers[platform]
	return n, ok
}
