package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"designflow/internal/domain"
	"designflow/internal/events"
)

const seedShiftDays = 7

// Seed loads the demo team, six requests in various states and a week of
// shifts, with dates relative to today. It refuses to run on a workspace that
// already has designers.
func (e Engine) Seed(ctx context.Context, actorID string) error {
	n, err := e.Repo.CountDesigners(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: workspace already has %d designers", ErrInvalidInput, n)
	}
	now := e.now().UTC()
	stamp := now.Format(time.RFC3339)
	day := func(offset int) string { return now.AddDate(0, 0, offset).Format(domain.DateLayout) }
	at := func(offset int) string { return now.AddDate(0, 0, offset).Format(time.RFC3339) }
	ptr := func(s string) *string { return &s }

	designers := []domain.Designer{
		{ID: "d1", Name: "Alice Chen", Role: "Senior UI Designer", Avatar: "https://picsum.photos/32/32?random=1", Skills: []string{"Web", "Mobile", "Figma"}, CapacityHours: 40, AssignedHours: 25},
		{ID: "d2", Name: "Bob Smith", Role: "Graphic Designer", Avatar: "https://picsum.photos/32/32?random=2", Skills: []string{"Print", "Branding", "Illustrator"}, CapacityHours: 40, AssignedHours: 38},
		{ID: "d3", Name: "Charlie Kim", Role: "Motion Designer", Avatar: "https://picsum.photos/32/32?random=3", Skills: []string{"Motion", "Video", "After Effects"}, CapacityHours: 35, AssignedHours: 10},
		{ID: "d4", Name: "Diana Prince", Role: "UX Researcher", Avatar: "https://picsum.photos/32/32?random=4", Skills: []string{"Research", "Testing", "Wireframing"}, CapacityHours: 40, AssignedHours: 30},
	}
	requests := []domain.DesignRequest{
		{
			ID: "r1", Title: "Q4 Marketing Campaign Assets", Client: "Marketing Team", Requestor: "Sarah Connor",
			Description: "Need social media banners and email headers for Q4.", Type: "Social Media", BusinessFunction: "Marketing",
			Status: domain.StatusInProgress, Priority: domain.PriorityHigh, AssignedTo: ptr("d1"), DueDate: day(5), EstimatedHours: 12, StartDate: ptr(day(-1)),
			Feedback: []domain.Feedback{
				{ID: "f1", Author: "Sarah Connor", Role: domain.RoleClient, Content: "Can we make the blue a bit more vibrant?", Date: at(-1), Type: domain.FeedbackChangeRequest},
				{ID: "f2", Author: "Alice Chen", Role: domain.RoleDesigner, Content: "Sure, I updated the palette. How does this look?", Date: at(0), Type: domain.FeedbackGeneral},
			},
		},
		{
			ID: "r2", Title: "Annual Report Layout", Client: "Executive Board", Requestor: "John Doe",
			Description: "Layout and design for the annual report PDF.", Type: "Print", BusinessFunction: "Corporate",
			Status: domain.StatusInProgress, Priority: domain.PriorityUrgent, AssignedTo: ptr("d2"), DueDate: day(10), EstimatedHours: 40, StartDate: ptr(day(0)),
		},
		{
			ID: "r3", Title: "Product Demo Video", Client: "Product Team", Requestor: "Mike Ross",
			Description: "30s animated explainer video for the new feature.", Type: "Video", BusinessFunction: "Product",
			Status: domain.StatusPending, Priority: domain.PriorityMedium, DueDate: day(14), EstimatedHours: 20,
		},
		{
			ID: "r4", Title: "Sales Deck Refresh", Client: "Sales Team", Requestor: "Jessica Pearson",
			Description: "Update the master sales deck with new branding.", Type: "Presentation", BusinessFunction: "Sales",
			Status: domain.StatusCompleted, Priority: domain.PriorityLow, AssignedTo: ptr("d1"), DueDate: day(-2), EstimatedHours: 5, StartDate: ptr(day(-5)),
			Feedback: []domain.Feedback{
				{ID: "f3", Author: "Jessica Pearson", Role: domain.RoleClient, Content: "Looks perfect, approved!", Date: at(-2), Type: domain.FeedbackApproval},
			},
		},
		{
			ID: "r5", Title: "Website Hero Refresh", Client: "Web Team", Requestor: "Louis Litt",
			Description: "New hero images for homepage.", Type: "Web Design", BusinessFunction: "Marketing",
			Status: domain.StatusPending, Priority: domain.PriorityHigh, DueDate: day(3), EstimatedHours: 8,
		},
		{
			ID: "r6", Title: "Internal Newsletter Template", Client: "HR", Requestor: "Donna Paulsen",
			Description: "HTML template for monthly HR updates.", Type: "Email", BusinessFunction: "HR",
			Status: domain.StatusPending, Priority: domain.PriorityLow, DueDate: day(7), EstimatedHours: 4,
		},
	}

	return e.withTx(ctx, func(tx *sql.Tx) error {
		for _, d := range designers {
			d.CreatedAt = stamp
			if err := e.Repo.InsertDesigner(ctx, tx, d); err != nil {
				return fmt.Errorf("seed designer %s: %w", d.ID, err)
			}
		}
		for _, r := range requests {
			r.CreatedAt, r.UpdatedAt = stamp, stamp
			if err := e.Repo.InsertRequest(ctx, tx, r); err != nil {
				return fmt.Errorf("seed request %s: %w", r.ID, err)
			}
			for _, fb := range r.Feedback {
				if err := e.Repo.InsertFeedback(ctx, tx, r.ID, fb); err != nil {
					return fmt.Errorf("seed feedback %s: %w", fb.ID, err)
				}
			}
		}
		shifts := 0
		for i := 0; i < seedShiftDays; i++ {
			date := day(i)
			kind := domain.ShiftMorning
			if i > 4 {
				kind = domain.ShiftOff
			}
			for _, d := range designers {
				s := domain.Shift{ID: d.ID + "-" + date, DesignerID: d.ID, Date: date, Type: kind}
				if err := e.Repo.UpsertShift(ctx, tx, s); err != nil {
					return fmt.Errorf("seed shift %s: %w", s.ID, err)
				}
				shifts++
			}
		}
		return e.appendEvent(ctx, tx, events.WorkspaceSeeded, "workspace", "", actorID, events.EventPayload{
			"designers": len(designers), "requests": len(requests), "shifts": shifts,
		})
	})
}
