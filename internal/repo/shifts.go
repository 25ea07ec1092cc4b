package repo

import (
	"context"
	"database/sql"

	"designflow/internal/domain"
)

// UpsertShift replaces the shift a designer works on a date.
func (r Repo) UpsertShift(ctx context.Context, tx *sql.Tx, s domain.Shift) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO shifts(id,designer_id,date,type) VALUES (?,?,?,?)
ON CONFLICT(designer_id,date) DO UPDATE SET type=excluded.type`, s.ID, s.DesignerID, s.Date, s.Type)
	return err
}

// ListShifts returns shifts ordered by date, optionally for one designer.
func (r Repo) ListShifts(ctx context.Context, designerID string) ([]domain.Shift, error) {
	query := `SELECT id,designer_id,date,type FROM shifts`
	var args []any
	if designerID != "" {
		query += ` WHERE designer_id=?`
		args = append(args, designerID)
	}
	query += ` ORDER BY date, designer_id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Shift{}
	for rows.Next() {
		var s domain.Shift
		if err := rows.Scan(&s.ID, &s.DesignerID, &s.Date, &s.Type); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
