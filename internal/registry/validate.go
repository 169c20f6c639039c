package registry

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/specialistvlad/dungeonjob/internal/config"
	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
)

// ValidateRegistry performs a strict parity check between the pipeline and
// the registered Go code: every backend named in the pipeline must exist, and
// every factory must produce a pointer-to-struct input.
func (r *Registry) ValidateRegistry(ctx context.Context, p *config.Pipeline) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for name, f := range r.Pools {
		errs = append(errs, checkFactory("pool", name, f.NewInput, f.Create != nil)...)
	}
	for name, f := range r.Archives {
		errs = append(errs, checkFactory("archive", name, f.NewInput, f.Create != nil)...)
	}
	for name, f := range r.Notifiers {
		errs = append(errs, checkFactory("notifier", name, f.NewInput, f.Create != nil)...)
	}

	if p != nil {
		if p.Pool != nil {
			if _, ok := r.Pools[p.Pool.Type]; !ok {
				errs = append(errs, fmt.Sprintf("pool backend '%s' is not registered (available: %s)", p.Pool.Type, strings.Join(Names(r.Pools), ", ")))
			}
		}
		if p.Archive != nil {
			if _, ok := r.Archives[p.Archive.Type]; !ok {
				errs = append(errs, fmt.Sprintf("archive backend '%s' is not registered (available: %s)", p.Archive.Type, strings.Join(Names(r.Archives), ", ")))
			}
		}
		for _, n := range p.Notifiers {
			if _, ok := r.Notifiers[n.Type]; !ok {
				errs = append(errs, fmt.Sprintf("notifier backend '%s' is not registered (available: %s)", n.Type, strings.Join(Names(r.Notifiers), ", ")))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	logger.Debug("Registry validated.", "pools", len(r.Pools), "archives", len(r.Archives), "notifiers", len(r.Notifiers))
	return nil
}

func checkFactory(kind, name string, newInput func() any, hasCreate bool) []string {
	var errs []string
	if !hasCreate {
		errs = append(errs, fmt.Sprintf("%s '%s': factory has no Create function", kind, name))
	}
	if newInput == nil {
		return append(errs, fmt.Sprintf("%s '%s': factory has no NewInput function", kind, name))
	}
	in := reflect.TypeOf(newInput())
	if in == nil || in.Kind() != reflect.Pointer || in.Elem().Kind() != reflect.Struct {
		errs = append(errs, fmt.Sprintf("%s '%s': NewInput must return a pointer to a struct, got %v", kind, name, in))
	}
	return errs
}
