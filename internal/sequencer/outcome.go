package sequencer

import (
	"context"
	"errors"

	"github.com/specialistvlad/dungeonjob/internal/archive"
	"github.com/specialistvlad/dungeonjob/internal/dispatch"
	"github.com/specialistvlad/dungeonjob/internal/envprep"
	"github.com/specialistvlad/dungeonjob/internal/nodepool"
	"github.com/specialistvlad/dungeonjob/internal/params"
)

// Outcome is the final classification of a job.
type Outcome string

const (
	OutcomeSucceeded       Outcome = "succeeded"
	OutcomeInvalid         Outcome = "invalid"
	OutcomeNodeUnavailable Outcome = "node_unavailable"
	OutcomePrepFailed      Outcome = "prep_failed"
	OutcomeRunFailed       Outcome = "run_failed"
	OutcomeDegraded        Outcome = "degraded"
	OutcomeCancelled       Outcome = "cancelled"
	OutcomeInternal        Outcome = "internal"
)

// Process exit codes, one per outcome.
const (
	ExitOK              = 0
	ExitInternal        = 1
	ExitInvalid         = 2
	ExitNodeUnavailable = 3
	ExitPrepFailed      = 4
	ExitRunFailed       = 5
	ExitDegraded        = 6
	ExitCancelled       = 7
)

var exitCodes = map[Outcome]int{
	OutcomeSucceeded:       ExitOK,
	OutcomeInvalid:         ExitInvalid,
	OutcomeNodeUnavailable: ExitNodeUnavailable,
	OutcomePrepFailed:      ExitPrepFailed,
	OutcomeRunFailed:       ExitRunFailed,
	OutcomeDegraded:        ExitDegraded,
	OutcomeCancelled:       ExitCancelled,
	OutcomeInternal:        ExitInternal,
}

// ExitCode returns the process exit code for the outcome.
func (o Outcome) ExitCode() int {
	if code, ok := exitCodes[o]; ok {
		return code
	}
	return ExitInternal
}

// Classify maps an error chain onto an Outcome. Cancellation wins over any
// typed error it may be wrapped in.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSucceeded
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeCancelled
	}

	var (
		ve *params.ValidationError
		ue *nodepool.UnavailableError
		pe *envprep.PrepError
		re *dispatch.RunError
		ae *archive.PublishError
	)
	switch {
	case errors.As(err, &ve):
		return OutcomeInvalid
	case errors.As(err, &ue):
		return OutcomeNodeUnavailable
	case errors.As(err, &pe):
		return OutcomePrepFailed
	case errors.As(err, &re):
		return OutcomeRunFailed
	case errors.As(err, &ae):
		return OutcomeDegraded
	default:
		return OutcomeInternal
	}
}
