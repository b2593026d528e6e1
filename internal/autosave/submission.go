package autosave

import (
	"sync"

	"github.com/google/uuid"
)

// Outcome is how a submission attempt ended.
type Outcome int

const (
	// Pending means the request is still in flight.
	Pending Outcome = iota
	// Aborted means the pre-submit hook refused the attempt.
	Aborted
	// Invalid means the validator rejected the form.
	Invalid
	// Unchanged means the form matched its clean fingerprint and was not dirty.
	Unchanged
	// Persisted means the server confirmed the save.
	Persisted
	// Failed means no response arrived or the server reported an error.
	Failed
)

// String returns a human-readable representation of the Outcome.
func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Aborted:
		return "aborted"
	case Invalid:
		return "invalid"
	case Unchanged:
		return "unchanged"
	case Persisted:
		return "persisted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Submission tracks one attempt to save a form to the server.
type Submission struct {
	id     string
	formID string
	done   chan struct{}

	mu      sync.Mutex
	outcome Outcome
	err     error

	// sent is the fingerprint of the payload on the wire. Guarded by the
	// session lock; empty until the request starts.
	sent string
	// onPersisted callbacks run under the session lock after a confirmed save.
	onPersisted []func()
}

func newSubmission(formID string) *Submission {
	return &Submission{
		id:     uuid.NewString(),
		formID: formID,
		done:   make(chan struct{}),
	}
}

// ID returns the attempt id used in logs and spans.
func (s *Submission) ID() string { return s.id }

// FormID returns the id of the submitted form.
func (s *Submission) FormID() string { return s.formID }

// Done is closed once the outcome is final.
func (s *Submission) Done() <-chan struct{} { return s.done }

// Outcome returns the current outcome.
func (s *Submission) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Err returns the error behind an Invalid or Failed outcome.
func (s *Submission) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Submission) addCallback(fn func()) {
	if fn != nil {
		s.onPersisted = append(s.onPersisted, fn)
	}
}

func (s *Submission) finish(outcome Outcome, err error) {
	s.mu.Lock()
	s.outcome = outcome
	s.err = err
	s.mu.Unlock()
	close(s.done)
}
