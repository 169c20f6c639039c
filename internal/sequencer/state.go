package sequencer

// State is a position in the job lifecycle. The lifecycle is strictly
// linear; Failed is reachable from every non-terminal state.
type State string

const (
	StateInit             State = "Init"
	StateValidated        State = "Validated"
	StateNodeBoundPrepare State = "NodeBound(prepare)"
	StatePrepared         State = "Prepared"
	StateNodeBoundRun     State = "NodeBound(run)"
	StateExecuted         State = "Executed"
	StatePublished        State = "Published"
	StateDone             State = "Done"
	StateFailed           State = "Failed"
)

// next lists the only legal successors of each state besides Failed.
var next = map[State]State{
	StateInit:             StateValidated,
	StateValidated:        StateNodeBoundPrepare,
	StateNodeBoundPrepare: StatePrepared,
	StatePrepared:         StateNodeBoundRun,
	StateNodeBoundRun:     StateExecuted,
	StateExecuted:         StatePublished,
	StatePublished:        StateDone,
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// canMove reports whether from → to is a legal transition. Executed may also
// go straight to Done when publication degrades.
func canMove(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	if from == StateExecuted && to == StateDone {
		return true
	}
	return next[from] == to
}
