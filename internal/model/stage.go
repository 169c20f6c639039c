// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the per-stage bookkeeping the sequencer produces.
//
// Why record the node on every stage?
//
// Consecutive stages of the same job are free to land on different execution
// nodes. Keeping the node ID on each StageResult makes that visible to the
// operator: when a run fails on a node that was never prepared, the job record
// shows it directly.
package model

import "time"

// StageName identifies a node-bound stage of the job.
type StageName string

const (
	StagePrepare StageName = "prepare"
	StageRun     StageName = "run"
)

// StageStatus is the terminal status of a single stage.
type StageStatus string

const (
	StageOK     StageStatus = "ok"
	StageFailed StageStatus = "failed"
)

// StageResult is created by the sequencer after a stage completes and is
// consulted to decide whether the job proceeds.
type StageResult struct {
	Stage         StageName   `json:"stage"`
	NodeID        string      `json:"node_id"`
	NodeOS        string      `json:"node_os"`
	Status        StageStatus `json:"status"`
	ProducedFiles []string    `json:"produced_files,omitempty"`
	Started       time.Time   `json:"started"`
	Finished      time.Time   `json:"finished"`
	Error         string      `json:"error,omitempty"`
	// Output is a bounded tail of the combined stdout/stderr of the stage's
	// process, kept for diagnostics only.
	Output string `json:"output,omitempty"`
}

// Duration returns how long the stage ran.
func (r StageResult) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}
