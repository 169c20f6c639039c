package config

import "context"

// Loader is the interface for a format-specific pipeline loader.
type Loader interface {
	// Load reads configuration from the given paths, translates it into the
	// format-agnostic model, and returns a matching Decoder.
	Load(ctx context.Context, paths ...string) (*Pipeline, Decoder, error)
}

// Decoder binds the opaque settings of a backend block to the Go input
// struct of the module that implements the backend.
type Decoder interface {
	// DecodeBackend evaluates the backend's settings and populates target,
	// which must be a pointer to a struct.
	DecodeBackend(ctx context.Context, b *Backend, target any) error
}
