// Package notify broadcasts job lifecycle events to external listeners.
package notify

import (
	"context"
	"errors"
	"time"
)

// Event is a single job state transition.
type Event struct {
	JobID   string    `json:"job_id"`
	State   string    `json:"state"`
	Stage   string    `json:"stage,omitempty"`
	NodeID  string    `json:"node_id,omitempty"`
	NodeOS  string    `json:"node_os,omitempty"`
	Outcome string    `json:"outcome,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Time    time.Time `json:"time"`
}

// Notifier receives job events. Implementations must not block for long;
// the job waits for Notify to return.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Closer is implemented by notifiers that hold connections.
type Closer interface {
	Close() error
}

// Close closes every notifier in m that implements Closer.
func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		if c, ok := n.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Recorder is a Notifier that keeps every event. It is used in tests.
type Recorder struct {
	Events []Event
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, ev Event) error {
	r.Events = append(r.Events, ev)
	return nil
}
