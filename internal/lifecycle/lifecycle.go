// Package lifecycle holds the pure state transitions of a design request.
// Functions here mutate the entities they are given and nothing else; the
// engine is responsible for loading, persisting and logging.
package lifecycle

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"designflow/internal/domain"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrContentRequired   = fmt.Errorf("%w: feedback content required", ErrInvalidTransition)
	ErrAlreadyAssigned   = fmt.Errorf("%w: request already assigned", ErrInvalidTransition)
	ErrCompletedLocked   = fmt.Errorf("%w: request is completed", ErrInvalidTransition)
)

const DefaultApprovalMessage = "Design Approved."

const (
	IncrementEstimate = "estimate"
	IncrementFlat     = "flat"
)

// CapacityPolicy decides how many hours an assignment adds to a designer's load.
type CapacityPolicy struct {
	Mode      string
	FlatHours float64
}

// Hours returns the load increment for assigning r.
func (p CapacityPolicy) Hours(r domain.DesignRequest) float64 {
	if p.Mode == IncrementFlat {
		return p.FlatHours
	}
	return r.EstimatedHours
}

// Assign binds r to d starting on today and moves it to In Progress.
func Assign(r *domain.DesignRequest, d *domain.Designer, today string, hours float64) error {
	if r.Assigned() {
		return fmt.Errorf("%w (owner %s)", ErrAlreadyAssigned, *r.AssignedTo)
	}
	owner := d.ID
	start := today
	r.AssignedTo = &owner
	r.StartDate = &start
	r.Status = domain.StatusInProgress
	d.AssignedHours += hours
	return nil
}

// Release detaches r from its owner d and returns the hours to d's capacity.
// The status is left untouched; callers assign again or set it explicitly.
func Release(r *domain.DesignRequest, d *domain.Designer, hours float64) {
	r.AssignedTo = nil
	r.StartDate = nil
	if d != nil {
		d.AssignedHours = math.Max(0, d.AssignedHours-hours)
	}
}

// FeedbackOptions carries the policy knobs for RecordFeedback.
type FeedbackOptions struct {
	ApprovalMessage string
	ReopenCompleted bool
}

// RecordFeedback appends fb to r and applies the status change its type implies.
// On error r is left unchanged.
func RecordFeedback(r *domain.DesignRequest, fb domain.Feedback, opts FeedbackOptions) (domain.Feedback, error) {
	if !fb.Type.Valid() {
		return fb, fmt.Errorf("%w: unknown feedback type %q", ErrInvalidTransition, fb.Type)
	}
	if fb.Role == "" {
		fb.Role = domain.RoleClient
	}
	if !fb.Role.Valid() {
		return fb, fmt.Errorf("%w: unknown feedback role %q", ErrInvalidTransition, fb.Role)
	}
	blank := strings.TrimSpace(fb.Content) == ""
	next := r.Status
	switch fb.Type {
	case domain.FeedbackApproval:
		if blank {
			fb.Content = opts.ApprovalMessage
			if fb.Content == "" {
				fb.Content = DefaultApprovalMessage
			}
		}
		next = domain.StatusCompleted
	case domain.FeedbackChangeRequest:
		if blank {
			return fb, ErrContentRequired
		}
		if r.Status == domain.StatusCompleted && !opts.ReopenCompleted {
			return fb, ErrCompletedLocked
		}
		next = domain.StatusInProgress
	case domain.FeedbackGeneral:
		if blank {
			return fb, ErrContentRequired
		}
	}
	r.Feedback = append(r.Feedback, fb)
	r.Status = next
	return fb, nil
}

// SetStatus is the administrative override. It writes the status field only,
// except that an owned request cannot be put back to Pending.
func SetStatus(r *domain.DesignRequest, s domain.Status) error {
	if !s.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, s)
	}
	if s == domain.StatusPending && r.Assigned() {
		return fmt.Errorf("%w: assigned request cannot return to %s", ErrInvalidTransition, s)
	}
	r.Status = s
	return nil
}

// CheckInvariants reports the first structural invariant r violates.
func CheckInvariants(r domain.DesignRequest) error {
	if r.Assigned() != (r.StartDate != nil && *r.StartDate != "") {
		return fmt.Errorf("request %s: owner and start date must be set together", r.ID)
	}
	if r.Status == domain.StatusPending && r.Assigned() {
		return fmt.Errorf("request %s: pending request has an owner", r.ID)
	}
	return nil
}
