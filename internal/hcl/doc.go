// Package hcl provides the concrete HCL implementation for the pipeline
// loading and backend decoding interfaces defined in the `config` package.
// It is responsible for file discovery, parsing, translation into the
// format-agnostic model, and binding backend blocks to module input structs.
//
// Every expression is evaluated with an `env` object holding the process
// environment, so secrets stay out of pipeline files:
//
//	archive "s3" {
//	  bucket     = "battle-reports"
//	  secret_key = env.AWS_SECRET_ACCESS_KEY
//	}
package hcl
