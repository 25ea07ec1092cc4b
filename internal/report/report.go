// Package report derives read-only aggregates from request and designer snapshots.
package report

import (
	"math"

	"designflow/internal/domain"
)

type CategoryCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// CountBy groups requests by key. Categories appear in first-seen order and
// only when at least one request carries them.
func CountBy(requests []domain.DesignRequest, key func(domain.DesignRequest) string) []CategoryCount {
	idx := map[string]int{}
	out := []CategoryCount{}
	for _, r := range requests {
		k := key(r)
		if i, ok := idx[k]; ok {
			out[i].Value++
			continue
		}
		idx[k] = len(out)
		out = append(out, CategoryCount{Name: k, Value: 1})
	}
	return out
}

func ByType(requests []domain.DesignRequest) []CategoryCount {
	return CountBy(requests, func(r domain.DesignRequest) string { return r.Type })
}

func ByFunction(requests []domain.DesignRequest) []CategoryCount {
	return CountBy(requests, func(r domain.DesignRequest) string { return r.BusinessFunction })
}

func ByStatus(requests []domain.DesignRequest) []CategoryCount {
	return CountBy(requests, func(r domain.DesignRequest) string { return string(r.Status) })
}

type Utilization struct {
	DesignerID    string  `json:"designer_id"`
	Name          string  `json:"name"`
	AssignedHours float64 `json:"assigned_hours"`
	CapacityHours float64 `json:"capacity_hours"`
	Percent       float64 `json:"percent"`
	OverAllocated bool    `json:"over_allocated"`
}

// Utilizations reports load against capacity. Percent is capped at 100 for
// display; OverAllocated carries the uncapped truth.
func Utilizations(designers []domain.Designer) []Utilization {
	out := make([]Utilization, 0, len(designers))
	for _, d := range designers {
		pct := 0.0
		if d.CapacityHours > 0 {
			pct = math.Min(d.AssignedHours/d.CapacityHours*100, 100)
		}
		out = append(out, Utilization{
			DesignerID:    d.ID,
			Name:          d.Name,
			AssignedHours: d.AssignedHours,
			CapacityHours: d.CapacityHours,
			Percent:       pct,
			OverAllocated: d.OverAllocated(),
		})
	}
	return out
}

type RecentRequest struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Status  domain.Status `json:"status"`
	DueDate string        `json:"due_date"`
}

type Dashboard struct {
	TotalRequests   int             `json:"total_requests"`
	Pending         int             `json:"pending"`
	InProgress      int             `json:"in_progress"`
	DesignersActive int             `json:"designers_active"`
	Recent          []RecentRequest `json:"recent"`
	Team            []Utilization   `json:"team"`
}

const recentLimit = 5

// BuildDashboard summarizes the queue. requests are expected newest first.
func BuildDashboard(requests []domain.DesignRequest, designers []domain.Designer) Dashboard {
	out := Dashboard{
		TotalRequests:   len(requests),
		DesignersActive: len(designers),
		Recent:          []RecentRequest{},
		Team:            Utilizations(designers),
	}
	for i, r := range requests {
		switch r.Status {
		case domain.StatusPending:
			out.Pending++
		case domain.StatusInProgress:
			out.InProgress++
		}
		if i < recentLimit {
			out.Recent = append(out.Recent, RecentRequest{ID: r.ID, Title: r.Title, Status: r.Status, DueDate: r.DueDate})
		}
	}
	return out
}

// Stats is the aggregate handed to the summary oracle.
type Stats struct {
	TypeData      []CategoryCount `json:"typeData"`
	FunctionData  []CategoryCount `json:"functionData"`
	StatusData    []CategoryCount `json:"statusData"`
	Utilization   []Utilization   `json:"utilization"`
	TotalRequests int             `json:"totalRequests"`
}

func BuildStats(requests []domain.DesignRequest, designers []domain.Designer) Stats {
	return Stats{
		TypeData:      ByType(requests),
		FunctionData:  ByFunction(requests),
		StatusData:    ByStatus(requests),
		Utilization:   Utilizations(designers),
		TotalRequests: len(requests),
	}
}
