package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"designflow/internal/domain"
	"designflow/internal/events"
	"designflow/internal/lifecycle"
	"designflow/internal/oracle"
	"designflow/internal/repo"
)

const reassignMove = "move"

type AssignResult struct {
	Request  domain.DesignRequest `json:"request"`
	Designer domain.Designer      `json:"designer"`
	Hours    float64              `json:"hours"`
}

// Assign binds a request to a designer and charges the designer's capacity.
// It is the only path that sets a request's owner.
func (e Engine) Assign(ctx context.Context, requestID, designerID, actorID string) (AssignResult, error) {
	var res AssignResult
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		req, err := e.Repo.GetRequestTx(ctx, tx, requestID)
		if err != nil {
			return fmt.Errorf("request %s: %w", requestID, err)
		}
		d, err := e.Repo.GetDesignerTx(ctx, tx, designerID)
		if err != nil {
			return fmt.Errorf("designer %s: %w", designerID, err)
		}
		res, err = e.assignTx(ctx, tx, req, d, actorID)
		return err
	})
	if err != nil {
		return AssignResult{}, err
	}
	e.logger().Info("request assigned", "request", res.Request.ID, "designer", res.Designer.ID, "hours", res.Hours)
	return res, nil
}

func (e Engine) assignTx(ctx context.Context, tx *sql.Tx, req domain.DesignRequest, d domain.Designer, actorID string) (AssignResult, error) {
	hours := e.capacityPolicy().Hours(req)
	if req.Assigned() && e.Config.Policies.Assignment.Reassign == reassignMove {
		prevID := *req.AssignedTo
		if prevID == d.ID {
			lifecycle.Release(&req, &d, hours)
		} else {
			prev, err := e.Repo.GetDesignerTx(ctx, tx, prevID)
			switch {
			case errors.Is(err, repo.ErrNotFound):
				lifecycle.Release(&req, nil, hours)
			case err != nil:
				return AssignResult{}, err
			default:
				lifecycle.Release(&req, &prev, hours)
				if err := e.Repo.UpdateDesignerLoad(ctx, tx, prev.ID, prev.AssignedHours); err != nil {
					return AssignResult{}, fmt.Errorf("release designer: %w", err)
				}
			}
		}
		if err := e.appendEvent(ctx, tx, events.RequestReleased, "request", req.ID, actorID, events.EventPayload{
			"designer_id": prevID, "hours": hours,
		}); err != nil {
			return AssignResult{}, err
		}
	}
	if err := lifecycle.Assign(&req, &d, e.today(), hours); err != nil {
		return AssignResult{}, err
	}
	req.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateRequest(ctx, tx, req); err != nil {
		return AssignResult{}, fmt.Errorf("update request: %w", err)
	}
	if err := e.Repo.UpdateDesignerLoad(ctx, tx, d.ID, d.AssignedHours); err != nil {
		return AssignResult{}, fmt.Errorf("update designer: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.RequestAssigned, "request", req.ID, actorID, events.EventPayload{
		"designer_id": d.ID, "hours": hours, "start_date": *req.StartDate, "assigned_hours": d.AssignedHours,
	}); err != nil {
		return AssignResult{}, err
	}
	return AssignResult{Request: req, Designer: d, Hours: hours}, nil
}

// RequestSuggestions asks the oracle to pair pending requests with designers.
// Oracle failures never surface: they are logged and yield no suggestions.
func (e Engine) RequestSuggestions(ctx context.Context) ([]domain.Suggestion, error) {
	designers, err := e.Repo.ListDesigners(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := e.Repo.ListRequests(ctx, repo.RequestFilter{Status: domain.StatusPending})
	if err != nil {
		return nil, err
	}
	if len(designers) == 0 || len(pending) == 0 {
		return []domain.Suggestion{}, nil
	}
	adv := e.Oracle
	if adv == nil {
		adv = oracle.Disabled{}
	}
	dIn := oracle.DesignerInputs(designers)
	rIn := oracle.RequestInputs(pending)
	got, err := adv.SuggestAssignments(ctx, dIn, rIn)
	if err != nil {
		e.logger().Warn("assignment suggestions unavailable", "err", err)
		return []domain.Suggestion{}, nil
	}
	kept := oracle.KeepKnown(got, dIn, rIn)
	if dropped := len(got) - len(kept); dropped > 0 {
		e.logger().Warn("dropped suggestions with unknown ids", "dropped", dropped)
	}
	return kept, nil
}

type ApplyResult struct {
	Applied    bool                  `json:"applied"`
	Reason     string                `json:"reason,omitempty"`
	Suggestion domain.Suggestion     `json:"suggestion"`
	Request    *domain.DesignRequest `json:"request,omitempty"`
	Designer   *domain.Designer      `json:"designer,omitempty"`
}

// ApplySuggestion re-validates s against the store and assigns when the
// request is still pending and both parties exist. Stale suggestions are
// discarded without mutating anything but the event log.
func (e Engine) ApplySuggestion(ctx context.Context, s domain.Suggestion, actorID string) (ApplyResult, error) {
	out := ApplyResult{Suggestion: s}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		reason, req, d, err := e.checkSuggestion(ctx, tx, s)
		if err != nil {
			return err
		}
		if reason != "" {
			out.Reason = reason
			return e.appendEvent(ctx, tx, events.SuggestionDiscarded, "request", s.RequestID, actorID, events.EventPayload{
				"designer_id": s.DesignerID, "reason": reason,
			})
		}
		res, err := e.assignTx(ctx, tx, req, d, actorID)
		if err != nil {
			return err
		}
		out.Applied = true
		out.Request = &res.Request
		out.Designer = &res.Designer
		return e.appendEvent(ctx, tx, events.SuggestionApplied, "request", s.RequestID, actorID, events.EventPayload{
			"designer_id": s.DesignerID, "rationale": s.Rationale,
		})
	})
	if err != nil {
		return ApplyResult{}, err
	}
	if !out.Applied {
		e.logger().Info("suggestion discarded", "request", s.RequestID, "designer", s.DesignerID, "reason", out.Reason)
	}
	return out, nil
}

func (e Engine) checkSuggestion(ctx context.Context, tx *sql.Tx, s domain.Suggestion) (string, domain.DesignRequest, domain.Designer, error) {
	req, err := e.Repo.GetRequestTx(ctx, tx, s.RequestID)
	if errors.Is(err, repo.ErrNotFound) {
		return "request not found", req, domain.Designer{}, nil
	}
	if err != nil {
		return "", req, domain.Designer{}, err
	}
	if req.Status != domain.StatusPending || req.Assigned() {
		return fmt.Sprintf("request is %s", req.Status), req, domain.Designer{}, nil
	}
	d, err := e.Repo.GetDesignerTx(ctx, tx, s.DesignerID)
	if errors.Is(err, repo.ErrNotFound) {
		return "designer not found", req, d, nil
	}
	if err != nil {
		return "", req, d, err
	}
	return "", req, d, nil
}
