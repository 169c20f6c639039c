// Package cli builds the dungeonjob command tree (run, status, serve) on
// cobra. Flags, DUNGEONJOB_* environment variables and an optional YAML
// config file are merged through viper, and every failure leaves the package
// as an *ExitError carrying the process exit code.
package cli
