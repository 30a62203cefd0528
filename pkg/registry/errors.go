package registry

import "errors"

var (
	// ErrRootUnavailable is returned by Start when the plugin root cannot be read
	ErrRootUnavailable = errors.New("plugin root unavailable")

	// ErrDuplicateID is returned when two directories declare the same plugin id
	ErrDuplicateID = errors.New("duplicate plugin id")
)

// Result is the outcome of an install, update or delete reported to clients
type Result struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewResult builds a Result from an operation outcome
func NewResult(id string, err error) Result {
	if err != nil {
		return Result{Error: err.Error()}
	}
	return Result{ID: id}
}
