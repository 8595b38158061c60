// Package slip defines the routing slip, the per-task cursor recording
// remaining steps, completed steps, and results. The slip is the sole
// coordination artifact of the pipeline: workers decide what to do by
// reading it and hand off to each other by writing it.
package slip

import (
	"fmt"
	"time"

	"github.com/xraph/choreo"
	"github.com/xraph/choreo/id"
	"github.com/xraph/choreo/step"
)

// Slip is the mutable pipeline cursor for a task.
type Slip struct {
	ID        string           `json:"id"`
	TaskID    string           `json:"taskId"`
	Steps     []step.Kind      `json:"steps"`
	Completed []step.Kind      `json:"completed"`
	Results   map[string]int64 `json:"results"`
	Updated   time.Time        `json:"updated"`
}

// New builds a slip for taskID populated with the full step plan. The plan
// must be non-empty, contain only known kinds, and name each kind once.
func New(taskID string, plan []step.Kind, now time.Time) (*Slip, error) {
	if taskID == "" {
		return nil, fmt.Errorf("%w: empty task id", choreo.ErrInvalidPlan)
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("%w: no steps", choreo.ErrInvalidPlan)
	}
	seen := make(map[step.Kind]struct{}, len(plan))
	for _, k := range plan {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: %w: %q", choreo.ErrInvalidPlan, choreo.ErrUnknownStep, string(k))
		}
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("%w: step %q listed twice", choreo.ErrInvalidPlan, k)
		}
		seen[k] = struct{}{}
	}

	steps := make([]step.Kind, len(plan))
	copy(steps, plan)
	return &Slip{
		ID:        id.SlipID(taskID),
		TaskID:    taskID,
		Steps:     steps,
		Completed: []step.Kind{},
		Results:   make(map[string]int64, len(plan)),
		Updated:   now.UTC(),
	}, nil
}

// Terminal reports whether every step has been consumed. A terminal slip
// is never mutated again.
func (s *Slip) Terminal() bool { return len(s.Steps) == 0 }

// Head returns the next eligible step, or false when the slip is terminal.
func (s *Slip) Head() (step.Kind, bool) {
	if s.Terminal() {
		return "", false
	}
	return s.Steps[0], true
}

// Eligible reports whether a worker of kind k may advance the slip.
func (s *Slip) Eligible(k step.Kind) bool {
	head, ok := s.Head()
	return ok && head == k
}

// Advance pops the head step, appends it to Completed, and records its
// result. It returns ErrNotEligible when k is not the head, additionally
// wrapping ErrTerminal when no steps remain.
func (s *Slip) Advance(k step.Kind, result int64, now time.Time) error {
	if s.Terminal() {
		return fmt.Errorf("%w: %w: %s", choreo.ErrNotEligible, choreo.ErrTerminal, s.ID)
	}
	if !s.Eligible(k) {
		return fmt.Errorf("%w: %s on %s", choreo.ErrNotEligible, k, s.ID)
	}
	s.Steps = s.Steps[1:]
	s.Completed = append(s.Completed, k)
	if s.Results == nil {
		s.Results = make(map[string]int64)
	}
	s.Results[string(k)] = result
	s.Updated = now.UTC()
	return nil
}

// Touch refreshes Updated without altering pipeline progress. It is a
// no-op on a terminal slip and reports whether anything changed.
func (s *Slip) Touch(now time.Time) bool {
	if s.Terminal() {
		return false
	}
	s.Updated = now.UTC()
	return true
}

// Stale reports whether the slip is non-terminal and has not been touched
// within window of now.
func (s *Slip) Stale(now time.Time, window time.Duration) bool {
	if s.Terminal() {
		return false
	}
	return now.Sub(s.Updated) > window
}

// Validate checks the slip invariants: steps and completed are disjoint,
// neither repeats a kind, every kind is known, and every result key names
// a completed step.
func (s *Slip) Validate() error {
	if s.ID != id.SlipID(s.TaskID) {
		return fmt.Errorf("%w: id %q does not match task %q", choreo.ErrInvariant, s.ID, s.TaskID)
	}

	completed := make(map[step.Kind]struct{}, len(s.Completed))
	for _, k := range s.Completed {
		if !k.Valid() {
			return fmt.Errorf("%w: unknown completed step %q", choreo.ErrInvariant, string(k))
		}
		if _, dup := completed[k]; dup {
			return fmt.Errorf("%w: step %q completed twice", choreo.ErrInvariant, k)
		}
		completed[k] = struct{}{}
	}

	pending := make(map[step.Kind]struct{}, len(s.Steps))
	for _, k := range s.Steps {
		if !k.Valid() {
			return fmt.Errorf("%w: unknown pending step %q", choreo.ErrInvariant, string(k))
		}
		if _, dup := pending[k]; dup {
			return fmt.Errorf("%w: step %q pending twice", choreo.ErrInvariant, k)
		}
		if _, done := completed[k]; done {
			return fmt.Errorf("%w: step %q both pending and completed", choreo.ErrInvariant, k)
		}
		pending[k] = struct{}{}
	}

	for name := range s.Results {
		if _, done := completed[step.Kind(name)]; !done {
			return fmt.Errorf("%w: result %q for a step that has not completed", choreo.ErrInvariant, name)
		}
	}
	return nil
}

// ConsumedPrefixOf reports whether Completed followed by Steps reproduces
// plan, i.e. Completed is exactly the consumed prefix of the plan.
func (s *Slip) ConsumedPrefixOf(plan []step.Kind) bool {
	if len(s.Completed)+len(s.Steps) != len(plan) {
		return false
	}
	for i, k := range s.Completed {
		if plan[i] != k {
			return false
		}
	}
	for i, k := range s.Steps {
		if plan[len(s.Completed)+i] != k {
			return false
		}
	}
	return true
}
