package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/specialistvlad/dungeonjob/internal/archive"
	"github.com/specialistvlad/dungeonjob/internal/nodepool"
	"github.com/specialistvlad/dungeonjob/internal/notify"
)

// Module is the interface that all backend modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// PoolFactory builds a node pool from a decoded input struct.
type PoolFactory struct {
	// NewInput returns a pointer to the struct the backend block decodes into.
	NewInput func() any
	Create   func(ctx context.Context, input any) (nodepool.Pool, error)
}

// ArchiveFactory builds an artifact store from a decoded input struct.
type ArchiveFactory struct {
	NewInput func() any
	Create   func(ctx context.Context, input any) (archive.Store, error)
}

// NotifierFactory builds a job event notifier from a decoded input struct.
type NotifierFactory struct {
	NewInput func() any
	Create   func(ctx context.Context, input any) (notify.Notifier, error)
}

// Registry holds all the registered backend factories for a single
// application instance.
type Registry struct {
	Pools     map[string]*PoolFactory
	Archives  map[string]*ArchiveFactory
	Notifiers map[string]*NotifierFactory
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		Pools:     make(map[string]*PoolFactory),
		Archives:  make(map[string]*ArchiveFactory),
		Notifiers: make(map[string]*NotifierFactory),
	}
}

// RegisterPool registers a node pool backend.
func (r *Registry) RegisterPool(name string, f *PoolFactory) {
	if _, exists := r.Pools[name]; exists {
		panic(fmt.Sprintf("pool backend with name '%s' already registered", name))
	}
	slog.Debug("Registering pool backend.", "name", name)
	r.Pools[name] = f
}

// RegisterArchive registers an artifact store backend.
func (r *Registry) RegisterArchive(name string, f *ArchiveFactory) {
	if _, exists := r.Archives[name]; exists {
		panic(fmt.Sprintf("archive backend with name '%s' already registered", name))
	}
	slog.Debug("Registering archive backend.", "name", name)
	r.Archives[name] = f
}

// RegisterNotifier registers a job event notifier backend.
func (r *Registry) RegisterNotifier(name string, f *NotifierFactory) {
	if _, exists := r.Notifiers[name]; exists {
		panic(fmt.Sprintf("notifier backend with name '%s' already registered", name))
	}
	slog.Debug("Registering notifier backend.", "name", name)
	r.Notifiers[name] = f
}

// Names returns the sorted keys of a factory map, for error messages.
func Names[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
