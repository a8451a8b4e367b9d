package engineclient

import (
	"errors"
	"fmt"
)

// ErrNetwork matches every NetworkError via errors.Is.
var ErrNetwork = errors.New("engine network error")

// NetworkError reports a transport failure (Status == 0) or a non-2xx reply.
type NetworkError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("engine %s: status=%d body=%s", e.Op, e.Status, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("engine %s: request failed", e.Op)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// Transport reports whether the request never produced an HTTP status.
func (e *NetworkError) Transport() bool { return e.Status == 0 }
