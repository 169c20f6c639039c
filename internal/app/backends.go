package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/dungeonjob/internal/archive"
	"github.com/specialistvlad/dungeonjob/internal/config"
	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/inmemorystore"
	"github.com/specialistvlad/dungeonjob/internal/jobstore"
	"github.com/specialistvlad/dungeonjob/internal/nodepool"
	"github.com/specialistvlad/dungeonjob/internal/notify"
	"github.com/specialistvlad/dungeonjob/internal/sqlitestore"
)

// decodeInput allocates a module input and binds the backend block to it.
func (a *App) decodeInput(ctx context.Context, b *config.Backend, newInput func() any) (any, error) {
	input := newInput()
	if err := a.decoder.DecodeBackend(ctx, b, input); err != nil {
		return nil, fmt.Errorf("failed to decode '%s' block at %s: %w", b.Type, b.Source, err)
	}
	return input, nil
}

func (a *App) buildPool(ctx context.Context) (nodepool.Pool, error) {
	b := &a.pipeline.Pool.Backend
	f := a.registry.Pools[b.Type]
	input, err := a.decodeInput(ctx, b, f.NewInput)
	if err != nil {
		return nil, err
	}
	pool, err := f.Create(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool backend '%s': %w", b.Type, err)
	}
	ctxlog.FromContext(ctx).Debug("Pool backend ready.", "type", b.Type)
	return pool, nil
}

func (a *App) buildArchive(ctx context.Context) (archive.Store, error) {
	b := a.pipeline.Archive
	f := a.registry.Archives[b.Type]
	input, err := a.decodeInput(ctx, b, f.NewInput)
	if err != nil {
		return nil, err
	}
	store, err := f.Create(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive backend '%s': %w", b.Type, err)
	}
	ctxlog.FromContext(ctx).Debug("Archive backend ready.", "type", b.Type)
	return store, nil
}

// buildNotifiers returns every configured notifier. Already-created notifiers
// are closed if a later one fails.
func (a *App) buildNotifiers(ctx context.Context) (notify.Multi, error) {
	var out notify.Multi
	for _, b := range a.pipeline.Notifiers {
		f := a.registry.Notifiers[b.Type]
		input, err := a.decodeInput(ctx, b, f.NewInput)
		if err != nil {
			out.Close()
			return nil, err
		}
		n, err := f.Create(ctx, input)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("failed to create notifier backend '%s': %w", b.Type, err)
		}
		out = append(out, n)
	}
	ctxlog.FromContext(ctx).Debug("Notifiers ready.", "count", len(out))
	return out, nil
}

// OpenStore returns the SQLite store at path, or an in-memory store when
// path is empty. The returned close function is never nil on success.
func OpenStore(ctx context.Context, path string) (jobstore.Store, func() error, error) {
	if path == "" {
		return inmemorystore.New(), func() error { return nil }, nil
	}
	s, err := sqlitestore.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}
