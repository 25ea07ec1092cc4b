// Package timeline projects started design requests onto a fixed day grid,
// one row per designer.
package timeline

import (
	"fmt"
	"math"
	"strings"
	"time"

	"designflow/internal/domain"
)

const (
	DefaultDays     = 14
	DefaultMinWidth = 0.02
)

// Window is N consecutive calendar days beginning at Start (UTC midnight).
type Window struct {
	Start time.Time
	Days  int
}

// NewWindow normalizes start to its calendar date.
func NewWindow(start time.Time, days int) Window {
	if days <= 0 {
		days = DefaultDays
	}
	return Window{Start: dateOf(start), Days: days}
}

// Dates returns the window's days formatted as YYYY-MM-DD.
func (w Window) Dates() []string {
	out := make([]string, w.Days)
	for i := range out {
		out[i] = w.Start.AddDate(0, 0, i).Format(domain.DateLayout)
	}
	return out
}

// End is the first day after the window.
func (w Window) End() time.Time {
	return w.Start.AddDate(0, 0, w.Days)
}

// WeekStart returns the most recent weekStart day on or before t.
func WeekStart(t time.Time, weekStart time.Weekday) time.Time {
	d := dateOf(t)
	back := (int(d.Weekday()) - int(weekStart) + 7) % 7
	return d.AddDate(0, 0, -back)
}

// ParseWeekday accepts English day names, case-insensitively.
func ParseWeekday(s string) (time.Weekday, error) {
	if s == "" {
		return time.Sunday, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// DaysBetween counts whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(math.Round(dateOf(b).Sub(dateOf(a)).Hours() / 24))
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Bar is a request's horizontal extent in fractional window coordinates.
type Bar struct {
	RequestID      string        `json:"request_id"`
	Title          string        `json:"title"`
	Status         domain.Status `json:"status"`
	EstimatedHours float64       `json:"estimated_hours"`
	OffsetDays     int           `json:"offset_days"`
	DurationDays   int           `json:"duration_days"`
	Left           float64       `json:"left"`
	Width          float64       `json:"width"`
}

type Row struct {
	Designer domain.Designer `json:"designer"`
	Bars     []Bar           `json:"bars"`
}

type Layout struct {
	Start string   `json:"start" format:"date"`
	Days  int      `json:"days"`
	Dates []string `json:"dates"`
	Rows  []Row    `json:"rows"`
}

// Place computes the bar for a request running from start to due inclusive.
// ok is false when nothing of the request falls inside the window.
func Place(w Window, start, due time.Time, minWidth float64) (Bar, bool) {
	offset := DaysBetween(w.Start, start)
	duration := DaysBetween(start, due) + 1
	if offset < 0 {
		duration += offset
		offset = 0
	}
	if duration <= 0 || offset >= w.Days {
		return Bar{}, false
	}
	n := float64(w.Days)
	return Bar{
		OffsetDays:   offset,
		DurationDays: duration,
		Left:         float64(offset) / n,
		Width:        math.Max(float64(duration)/n, minWidth),
	}, true
}

// Build lays out every started request of every designer. Designers keep
// their given order and bars keep request order; overlaps are not packed.
func Build(w Window, designers []domain.Designer, requests []domain.DesignRequest, minWidth float64) Layout {
	if minWidth <= 0 {
		minWidth = DefaultMinWidth
	}
	byOwner := map[string][]domain.DesignRequest{}
	for _, r := range requests {
		if !r.Assigned() || r.StartDate == nil || r.DueDate == "" {
			continue
		}
		byOwner[*r.AssignedTo] = append(byOwner[*r.AssignedTo], r)
	}
	out := Layout{
		Start: w.Start.Format(domain.DateLayout),
		Days:  w.Days,
		Dates: w.Dates(),
		Rows:  make([]Row, 0, len(designers)),
	}
	for _, d := range designers {
		row := Row{Designer: d, Bars: []Bar{}}
		for _, r := range byOwner[d.ID] {
			start, err := time.Parse(domain.DateLayout, *r.StartDate)
			if err != nil {
				continue
			}
			due, err := time.Parse(domain.DateLayout, r.DueDate)
			if err != nil {
				continue
			}
			bar, ok := Place(w, start, due, minWidth)
			if !ok {
				continue
			}
			bar.RequestID = r.ID
			bar.Title = r.Title
			bar.Status = r.Status
			bar.EstimatedHours = r.EstimatedHours
			row.Bars = append(row.Bars, bar)
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}
