package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"designflow/internal/domain"
	"designflow/internal/oracle"
	"designflow/internal/repo"
	"designflow/internal/report"
	"designflow/internal/timeline"
)

const (
	InsightsNoKey  = "AI Insights unavailable (No API Key)."
	InsightsFailed = "Could not generate insights."
)

type TimelineOptions struct {
	// Start is a YYYY-MM-DD date; empty means the start of the current week.
	Start string
	Days  int
}

// Timeline lays out every designer's started requests on a day grid.
func (e Engine) Timeline(ctx context.Context, opts TimelineOptions) (timeline.Layout, error) {
	var start time.Time
	if opts.Start == "" {
		wd, err := timeline.ParseWeekday(e.Config.Timeline.WeekStart)
		if err != nil {
			return timeline.Layout{}, err
		}
		start = timeline.WeekStart(e.now().UTC(), wd)
	} else {
		t, err := time.Parse(domain.DateLayout, opts.Start)
		if err != nil {
			return timeline.Layout{}, fmt.Errorf("%w: start must be YYYY-MM-DD", ErrInvalidInput)
		}
		start = t
	}
	days := opts.Days
	if days < 0 {
		return timeline.Layout{}, fmt.Errorf("%w: days must be positive", ErrInvalidInput)
	}
	if days == 0 {
		days = e.Config.Timeline.Days
	}
	designers, err := e.Repo.ListDesigners(ctx)
	if err != nil {
		return timeline.Layout{}, err
	}
	requests, err := e.Repo.ListRequests(ctx, repo.RequestFilter{})
	if err != nil {
		return timeline.Layout{}, err
	}
	return timeline.Build(timeline.NewWindow(start, days), designers, requests, e.Config.Timeline.MinWidth), nil
}

func (e Engine) snapshot(ctx context.Context) ([]domain.DesignRequest, []domain.Designer, error) {
	requests, err := e.Repo.ListRequests(ctx, repo.RequestFilter{})
	if err != nil {
		return nil, nil, err
	}
	designers, err := e.Repo.ListDesigners(ctx)
	if err != nil {
		return nil, nil, err
	}
	return requests, designers, nil
}

// Report returns the aggregate statistics over all requests.
func (e Engine) Report(ctx context.Context) (report.Stats, error) {
	requests, designers, err := e.snapshot(ctx)
	if err != nil {
		return report.Stats{}, err
	}
	return report.BuildStats(requests, designers), nil
}

// Dashboard summarizes the queue with the most recent submissions first.
func (e Engine) Dashboard(ctx context.Context) (report.Dashboard, error) {
	requests, designers, err := e.snapshot(ctx)
	if err != nil {
		return report.Dashboard{}, err
	}
	newest := make([]domain.DesignRequest, len(requests))
	for i, r := range requests {
		newest[len(requests)-1-i] = r
	}
	return report.BuildDashboard(newest, designers), nil
}

// Insights asks the oracle to summarize the report for period. The returned
// text is always displayable; oracle problems become fixed fallback messages.
func (e Engine) Insights(ctx context.Context, period string) (string, error) {
	period = strings.TrimSpace(period)
	if period == "" {
		period = "month"
	}
	stats, err := e.Report(ctx)
	if err != nil {
		return "", err
	}
	adv := e.Oracle
	if adv == nil {
		adv = oracle.Disabled{}
	}
	text, err := adv.Summarize(ctx, stats, period)
	switch {
	case errors.Is(err, oracle.ErrUnavailable):
		return InsightsNoKey, nil
	case err != nil:
		e.logger().Warn("insights unavailable", "period", period, "err", err)
		return InsightsFailed, nil
	}
	return text, nil
}
