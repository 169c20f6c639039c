// Package jobstore defines the persistent record of a job's progress.
//
// The sequencer writes a Record after every state transition. Stores are an
// observability surface only: a failed write is logged and never changes the
// outcome of the job.
package jobstore

import (
	"context"
	"errors"
	"time"

	"github.com/specialistvlad/dungeonjob/internal/archive"
	"github.com/specialistvlad/dungeonjob/internal/model"
	"github.com/specialistvlad/dungeonjob/internal/params"
)

// ErrNotFound is returned by Get for an unknown job ID.
var ErrNotFound = errors.New("job not found")

// Record is the latest known state of one job.
type Record struct {
	ID      string                `json:"id"`
	Params  *params.JobParameters `json:"params,omitempty"`
	State   string                `json:"state"`
	Outcome string                `json:"outcome,omitempty"`
	Reason  string                `json:"reason,omitempty"`
	Stages  []model.StageResult   `json:"stages,omitempty"`
	Receipt *archive.Receipt      `json:"receipt,omitempty"`
	Created time.Time             `json:"created"`
	Updated time.Time             `json:"updated"`
}

// Clone returns a deep enough copy that the caller may keep mutating the
// original.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Params != nil {
		p := *r.Params
		c.Params = &p
	}
	c.Stages = append([]model.StageResult(nil), r.Stages...)
	if r.Receipt != nil {
		rc := *r.Receipt
		rc.Keys = append([]string(nil), r.Receipt.Keys...)
		c.Receipt = &rc
	}
	return &c
}

// Terminal reports whether the job has finished.
func (r *Record) Terminal() bool {
	return r.Outcome != ""
}

// Store persists job records.
type Store interface {
	// Save inserts or replaces the record with the same ID.
	Save(ctx context.Context, r *Record) error
	// Get returns the record for id or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)
}
