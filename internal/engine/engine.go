package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"designflow/internal/config"
	"designflow/internal/domain"
	"designflow/internal/events"
	"designflow/internal/lifecycle"
	"designflow/internal/logging"
	"designflow/internal/oracle"
	"designflow/internal/repo"
)

// ErrInvalidInput marks requests rejected before any state is read.
var ErrInvalidInput = errors.New("invalid input")

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Oracle oracle.Advisor
	Log    *slog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default("design")
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Oracle: oracle.Disabled{},
		Log:    logging.Discard(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) today() string {
	return e.now().UTC().Format(domain.DateLayout)
}

func (e Engine) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logging.Discard()
}

// withTx commits only when fn succeeds.
func (e Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, kind, id, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, evtType, kind, id, actorID, payload)
}

func (e Engine) capacityPolicy() lifecycle.CapacityPolicy {
	c := e.Config.Policies.Capacity
	return lifecycle.CapacityPolicy{Mode: c.Increment, FlatHours: c.FlatHours}
}

func (e Engine) feedbackOptions() lifecycle.FeedbackOptions {
	l := e.Config.Policies.Lifecycle
	return lifecycle.FeedbackOptions{ApprovalMessage: l.ApprovalMessage, ReopenCompleted: l.ReopenCompleted}
}

// DesignerCreateOptions are parameters for creating a designer.
type DesignerCreateOptions struct {
	ID            string
	Name          string
	Role          string
	Avatar        string
	Skills        []string
	CapacityHours float64
	ActorID       string
}

func (e Engine) CreateDesigner(ctx context.Context, opts DesignerCreateOptions) (domain.Designer, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Designer{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if opts.CapacityHours <= 0 {
		return domain.Designer{}, fmt.Errorf("%w: capacity_hours must be positive", ErrInvalidInput)
	}
	if opts.ID == "" {
		opts.ID = "d-" + uuid.NewString()[:8]
	}
	d := domain.Designer{
		ID:            opts.ID,
		Name:          strings.TrimSpace(opts.Name),
		Role:          opts.Role,
		Avatar:        opts.Avatar,
		Skills:        cleanSkills(opts.Skills),
		CapacityHours: opts.CapacityHours,
		CreatedAt:     e.stamp(),
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertDesigner(ctx, tx, d); err != nil {
			return fmt.Errorf("insert designer: %w", err)
		}
		return e.appendEvent(ctx, tx, events.DesignerCreated, "designer", d.ID, opts.ActorID, events.EventPayload{
			"name": d.Name, "capacity_hours": d.CapacityHours,
		})
	})
	if err != nil {
		return domain.Designer{}, err
	}
	return d, nil
}

// cleanSkills trims, drops blanks and de-duplicates, keeping first-seen order.
func cleanSkills(in []string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// RequestDraft is an intake submission. Lifecycle fields are not accepted
// from the submitter.
type RequestDraft struct {
	ID               string
	Title            string
	Client           string
	Requestor        string
	Description      string
	Type             string
	BusinessFunction string
	Priority         domain.Priority
	EstimatedHours   float64
	DueDate          string
	ActorID          string
}

// SubmitRequest stores a new Pending, unassigned request.
func (e Engine) SubmitRequest(ctx context.Context, d RequestDraft) (domain.DesignRequest, error) {
	if strings.TrimSpace(d.Title) == "" {
		return domain.DesignRequest{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if strings.TrimSpace(d.Type) == "" {
		return domain.DesignRequest{}, fmt.Errorf("%w: type is required", ErrInvalidInput)
	}
	if strings.TrimSpace(d.BusinessFunction) == "" {
		return domain.DesignRequest{}, fmt.Errorf("%w: business_function is required", ErrInvalidInput)
	}
	if d.Priority == "" {
		d.Priority = domain.PriorityMedium
	}
	if !d.Priority.Valid() {
		return domain.DesignRequest{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, d.Priority)
	}
	if d.EstimatedHours < 0 {
		return domain.DesignRequest{}, fmt.Errorf("%w: estimated_hours must not be negative", ErrInvalidInput)
	}
	if _, err := time.Parse(domain.DateLayout, d.DueDate); err != nil {
		return domain.DesignRequest{}, fmt.Errorf("%w: due_date must be YYYY-MM-DD", ErrInvalidInput)
	}
	if d.ID == "" {
		d.ID = "r-" + uuid.NewString()[:8]
	}
	now := e.stamp()
	req := domain.DesignRequest{
		ID:               d.ID,
		Title:            strings.TrimSpace(d.Title),
		Client:           d.Client,
		Requestor:        d.Requestor,
		Description:      d.Description,
		Type:             strings.TrimSpace(d.Type),
		BusinessFunction: strings.TrimSpace(d.BusinessFunction),
		Priority:         d.Priority,
		Status:           domain.StatusPending,
		EstimatedHours:   d.EstimatedHours,
		DueDate:          d.DueDate,
		Feedback:         []domain.Feedback{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertRequest(ctx, tx, req); err != nil {
			return fmt.Errorf("insert request: %w", err)
		}
		return e.appendEvent(ctx, tx, events.RequestSubmitted, "request", req.ID, d.ActorID, events.EventPayload{
			"title": req.Title, "type": req.Type, "priority": req.Priority, "due_date": req.DueDate,
		})
	})
	if err != nil {
		return domain.DesignRequest{}, err
	}
	e.logger().Info("request submitted", "request", req.ID, "type", req.Type)
	return req, nil
}

// SetStatus is the administrative status override.
func (e Engine) SetStatus(ctx context.Context, requestID string, status domain.Status, actorID string) (domain.DesignRequest, error) {
	var req domain.DesignRequest
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		req, err = e.Repo.GetRequestTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		from := req.Status
		if err := lifecycle.SetStatus(&req, status); err != nil {
			return err
		}
		req.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateRequest(ctx, tx, req); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		return e.appendEvent(ctx, tx, events.RequestStatus, "request", req.ID, actorID, events.EventPayload{
			"from": from, "to": req.Status,
		})
	})
	if err != nil {
		return domain.DesignRequest{}, err
	}
	return req, nil
}

// FeedbackOptions are parameters for recording feedback.
type FeedbackOptions struct {
	RequestID string
	Type      domain.FeedbackType
	Content   string
	Author    string
	Role      domain.Role
	ActorID   string
}

// RecordFeedback appends a feedback entry and applies the status change its
// type implies.
func (e Engine) RecordFeedback(ctx context.Context, opts FeedbackOptions) (domain.DesignRequest, error) {
	if opts.Author == "" {
		opts.Author = opts.ActorID
	}
	var req domain.DesignRequest
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		req, err = e.Repo.GetRequestTx(ctx, tx, opts.RequestID)
		if err != nil {
			return err
		}
		from := req.Status
		fb, err := lifecycle.RecordFeedback(&req, domain.Feedback{
			ID:      "f-" + uuid.NewString()[:8],
			Author:  opts.Author,
			Role:    opts.Role,
			Content: opts.Content,
			Date:    e.stamp(),
			Type:    opts.Type,
		}, e.feedbackOptions())
		if err != nil {
			return err
		}
		req.UpdatedAt = e.stamp()
		if err := e.Repo.InsertFeedback(ctx, tx, req.ID, fb); err != nil {
			return fmt.Errorf("insert feedback: %w", err)
		}
		if err := e.Repo.UpdateRequest(ctx, tx, req); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		return e.appendEvent(ctx, tx, events.FeedbackRecorded, "request", req.ID, opts.ActorID, events.EventPayload{
			"feedback_id": fb.ID, "type": fb.Type, "from": from, "to": req.Status,
		})
	})
	if err != nil {
		return domain.DesignRequest{}, err
	}
	return req, nil
}
