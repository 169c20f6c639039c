// Package config defines the format-agnostic pipeline model for the
// application, along with the core interfaces (Loader, Decoder) for loading
// it and binding backend settings to Go structs.
//
// The `config.Pipeline` tells the app which node pool, archive and notifiers
// to assemble and how the simulator is launched. Concrete implementations of
// the interfaces, such as for HCL, are provided in separate packages.
package config
