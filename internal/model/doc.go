// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model holds the plain data exchanged between the stages of a job:
// the per-stage bookkeeping the sequencer records, and the artifact files a
// successful run hands to the publisher.
//
// # Core Concepts
//
//   - StageResult: what happened on one node for one stage, including the
//     node it ran on and a bounded tail of the process output.
//
//   - ArtifactSet: the files one run produced on one node. A set is immutable
//     once built, so the publisher can upload it concurrently.
//
// Why a separate model package?
//
// The sequencer, dispatcher, publisher and job stores all speak these types.
// Keeping them free of behavior avoids import cycles between those packages.
package model
