package hcl

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/specialistvlad/dungeonjob/internal/config"
	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
)

// Converter is the HCL-specific implementation of the config.Decoder interface.
type Converter struct{}

var _ config.Decoder = (*Converter)(nil)

// NewConverter creates a new HCL converter.
func NewConverter() *Converter {
	return &Converter{}
}

// DecodeBackend decodes the remaining body of a backend block into target
// using its `hcl` struct tags.
func (c *Converter) DecodeBackend(ctx context.Context, b *config.Backend, target any) error {
	logger := ctxlog.FromContext(ctx)

	if rv := reflect.ValueOf(target); rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("backend '%s': decode target must be a pointer to a struct, got %T", b.Type, target)
	}
	s, ok := b.Settings.(*settings)
	if !ok {
		return fmt.Errorf("backend '%s': settings were not loaded from HCL (%T)", b.Type, b.Settings)
	}
	if s.body == nil {
		return nil
	}

	logger.Debug("Decoding backend settings.", "backend", b.Type, "source", b.Source, "target", fmt.Sprintf("%T", target))
	if diags := gohcl.DecodeBody(s.body, s.evalCtx, target); diags.HasErrors() {
		return fmt.Errorf("backend '%s' in %s: %w", b.Type, b.Source, diags)
	}
	return nil
}
