// Package registry provides the central "glue" for the module system.
//
// The Registry maps the backend names used in pipeline files (e.g. the
// "redis" in `pool "redis" {}`) to the compiled Go factories that build node
// pools, artifact stores and notifiers. Modules populate it at startup by
// implementing the Module interface.
//
// After the pipeline is loaded the registry is validated against it, so a
// typo in a backend name fails fast instead of in the middle of a job.
package registry
