package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"designflow/internal/domain"
	"designflow/internal/events"
)

// ScheduleShift sets the shift a designer works on a date, replacing any
// previous one.
func (e Engine) ScheduleShift(ctx context.Context, designerID, date string, kind domain.ShiftType, actorID string) (domain.Shift, error) {
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return domain.Shift{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	switch kind {
	case domain.ShiftMorning, domain.ShiftEvening, domain.ShiftFull, domain.ShiftOff:
	default:
		return domain.Shift{}, fmt.Errorf("%w: unknown shift type %q", ErrInvalidInput, kind)
	}
	s := domain.Shift{ID: designerID + "-" + date, DesignerID: designerID, Date: date, Type: kind}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetDesignerTx(ctx, tx, designerID); err != nil {
			return fmt.Errorf("designer %s: %w", designerID, err)
		}
		if err := e.Repo.UpsertShift(ctx, tx, s); err != nil {
			return fmt.Errorf("upsert shift: %w", err)
		}
		return e.appendEvent(ctx, tx, events.ShiftScheduled, "designer", designerID, actorID, events.EventPayload{
			"date": date, "type": kind,
		})
	})
	if err != nil {
		return domain.Shift{}, err
	}
	return s, nil
}
