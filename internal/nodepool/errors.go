package nodepool

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/dungeonjob/internal/platform"
)

// ErrNodeUnavailable is matched by every UnavailableError through errors.Is.
var ErrNodeUnavailable = errors.New("no execution node available")

// UnavailableError reports that no node could satisfy a request, either
// because none matched or because the pool itself could not be listed.
type UnavailableError struct {
	Request platform.Request
	// Err is the underlying pool failure, if any.
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no '%s' node available: %v", e.Request, e.Err)
	}
	return fmt.Sprintf("no '%s' node available", e.Request)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrNodeUnavailable) true for any UnavailableError.
func (e *UnavailableError) Is(target error) bool { return target == ErrNodeUnavailable }
