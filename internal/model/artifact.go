// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the artifacts a simulation run leaves behind.
//
// Why carry the bytes instead of paths?
//
// Paths are only meaningful on the node that produced them. The moment the
// run stage ends the node may be handed to another job, so the dispatcher
// reads the files while it still holds the node and everything downstream
// works on the captured content.
package model

import "sort"

// Artifact is one output file of a simulation run.
type Artifact struct {
	Name string
	Data []byte
}

// ArtifactSet is every output file a single successful run produced on one
// node. It is never mutated after creation.
type ArtifactSet struct {
	NodeID string
	Files  []Artifact
}

// NewArtifactSet builds a set with files sorted by name.
func NewArtifactSet(nodeID string, files []Artifact) *ArtifactSet {
	sorted := append([]Artifact(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &ArtifactSet{NodeID: nodeID, Files: sorted}
}

// Empty reports whether the run produced no files.
func (s *ArtifactSet) Empty() bool {
	return s == nil || len(s.Files) == 0
}

// Names returns the file names in the set.
func (s *ArtifactSet) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Files))
	for _, f := range s.Files {
		names = append(names, f.Name)
	}
	return names
}

// Lookup returns the artifact with the given name.
func (s *ArtifactSet) Lookup(name string) (Artifact, bool) {
	if s == nil {
		return Artifact{}, false
	}
	for _, f := range s.Files {
		if f.Name == name {
			return f, true
		}
	}
	return Artifact{}, false
}
