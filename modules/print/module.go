// Package print provides a notifier that writes job events to the console.
package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/specialistvlad/dungeonjob/internal/notify"
	"github.com/specialistvlad/dungeonjob/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the body of a `notifier "print"` block.
type Input struct {
	// Prefix is written before every line.
	Prefix string `hcl:"prefix,optional"`
}

// Notifier prints one line per event.
type Notifier struct {
	mu     sync.Mutex
	out    io.Writer
	prefix string
}

// New returns a Notifier writing to out.
func New(out io.Writer, prefix string) *Notifier {
	return &Notifier{out: out, prefix: prefix}
}

// Notify implements notify.Notifier.
func (n *Notifier) Notify(_ context.Context, ev notify.Event) error {
	fields := map[string]string{
		"stage":   ev.Stage,
		"node":    ev.NodeID,
		"os":      ev.NodeOS,
		"outcome": ev.Outcome,
		"reason":  ev.Reason,
	}
	// Sort keys for consistent output
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	n.mu.Lock()
	defer n.mu.Unlock()
	line := fmt.Sprintf("%s[%s] %s", n.prefix, ev.JobID, ev.State)
	for _, k := range keys {
		line += fmt.Sprintf(" %s=%q", k, fields[k])
	}
	_, err := fmt.Fprintln(n.out, line)
	return err
}

// Register registers the backend with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterNotifier("print", &registry.NotifierFactory{
		NewInput: func() any { return new(Input) },
		Create: func(_ context.Context, input any) (notify.Notifier, error) {
			return New(os.Stdout, input.(*Input).Prefix), nil
		},
	})
}
