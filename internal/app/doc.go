// Package app contains the core application logic. It loads the pipeline,
// builds the backends it names, and runs jobs through the sequencer,
// decoupled from any specific entrypoint like a CLI or server.
package app
