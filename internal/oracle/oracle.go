// Package oracle talks to the advisory model that proposes assignments and
// writes report summaries. Its output is never trusted: suggestions are
// schema-checked here and re-validated by the engine before use.
package oracle

import (
	"context"
	"errors"

	"designflow/internal/domain"
	"designflow/internal/report"
)

// ErrUnavailable means no oracle is configured.
var ErrUnavailable = errors.New("oracle unavailable")

type DesignerInput struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Skills        []string `json:"skills"`
	AssignedHours float64  `json:"assignedHours"`
}

type RequestInput struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Type           string  `json:"type"`
	EstimatedHours float64 `json:"estimatedHours"`
}

type Advisor interface {
	SuggestAssignments(ctx context.Context, designers []DesignerInput, requests []RequestInput) ([]domain.Suggestion, error)
	Summarize(ctx context.Context, stats report.Stats, period string) (string, error)
}

// Disabled is the advisor used when no provider or key is configured.
type Disabled struct{}

func (Disabled) SuggestAssignments(context.Context, []DesignerInput, []RequestInput) ([]domain.Suggestion, error) {
	return nil, ErrUnavailable
}

func (Disabled) Summarize(context.Context, report.Stats, string) (string, error) {
	return "", ErrUnavailable
}

// Funcs adapts plain functions to Advisor. Nil functions report ErrUnavailable.
type Funcs struct {
	Suggest func(ctx context.Context, designers []DesignerInput, requests []RequestInput) ([]domain.Suggestion, error)
	Summary func(ctx context.Context, stats report.Stats, period string) (string, error)
}

func (f Funcs) SuggestAssignments(ctx context.Context, designers []DesignerInput, requests []RequestInput) ([]domain.Suggestion, error) {
	if f.Suggest == nil {
		return nil, ErrUnavailable
	}
	return f.Suggest(ctx, designers, requests)
}

func (f Funcs) Summarize(ctx context.Context, stats report.Stats, period string) (string, error) {
	if f.Summary == nil {
		return "", ErrUnavailable
	}
	return f.Summary(ctx, stats, period)
}

// DesignerInputs projects designers onto the fields the oracle sees.
func DesignerInputs(designers []domain.Designer) []DesignerInput {
	out := make([]DesignerInput, 0, len(designers))
	for _, d := range designers {
		out = append(out, DesignerInput{ID: d.ID, Name: d.Name, Skills: d.Skills, AssignedHours: d.AssignedHours})
	}
	return out
}

// RequestInputs projects requests onto the fields the oracle sees.
func RequestInputs(requests []domain.DesignRequest) []RequestInput {
	out := make([]RequestInput, 0, len(requests))
	for _, r := range requests {
		out = append(out, RequestInput{ID: r.ID, Title: r.Title, Type: r.Type, EstimatedHours: r.EstimatedHours})
	}
	return out
}
