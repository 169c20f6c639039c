package jobstore

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/dungeonjob/internal/archive"
	"github.com/specialistvlad/dungeonjob/internal/model"
	"github.com/specialistvlad/dungeonjob/internal/params"
	"github.com/stretchr/testify/assert"
)

func sampleRecord() *Record {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Record{
		ID:     "job-1",
		Params: &params.JobParameters{ParticipantName: "Ada", Category: params.CategoryA, Level: 7},
		State:  "Published",
		Stages: []model.StageResult{
			{Stage: model.StagePrepare, NodeID: "lin-1", Status: model.StageOK},
			{Stage: model.StageRun, NodeID: "lin-2", Status: model.StageOK, ProducedFiles: []string{"battle_report.html"}},
		},
		Receipt: &archive.Receipt{JobID: "job-1", NodeID: "lin-2", Keys: []string{"job-1/battle_report.html"}},
		Created: created,
		Updated: created,
	}
}

func TestClone_Independent(t *testing.T) {
	orig := sampleRecord()
	c := orig.Clone()
	if diff := cmp.Diff(orig, c); diff != "" {
		t.Fatalf("clone differs (-orig +clone):\n%s", diff)
	}

	c.Params.Level = 99
	c.Stages[0].NodeID = "win-1"
	c.Receipt.Keys[0] = "other"

	assert.Equal(t, 7, orig.Params.Level)
	assert.Equal(t, "lin-1", orig.Stages[0].NodeID)
	assert.Equal(t, "job-1/battle_report.html", orig.Receipt.Keys[0])
}

func TestClone_Nil(t *testing.T) {
	var r *Record
	assert.Nil(t, r.Clone())
}

func TestTerminal(t *testing.T) {
	r := sampleRecord()
	assert.False(t, r.Terminal())
	r.Outcome = "succeeded"
	assert.True(t, r.Terminal())
}
