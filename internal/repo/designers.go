package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"designflow/internal/domain"
)

const designerColumns = `id,name,role,COALESCE(avatar,''),skills_json,capacity_hours,assigned_hours,created_at`

func (r Repo) InsertDesigner(ctx context.Context, tx *sql.Tx, d domain.Designer) error {
	skills, err := json.Marshal(nonNilStrings(d.Skills))
	if err != nil {
		return fmt.Errorf("marshal skills: %w", err)
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO designers(id,name,role,avatar,skills_json,capacity_hours,assigned_hours,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		d.ID, d.Name, d.Role, nullable(d.Avatar), string(skills), d.CapacityHours, d.AssignedHours, d.CreatedAt)
	return err
}

// UpdateDesignerLoad writes the assigned hours, the only mutable designer field.
func (r Repo) UpdateDesignerLoad(ctx context.Context, tx *sql.Tx, id string, assignedHours float64) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE designers SET assigned_hours=? WHERE id=?`, assignedHours, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r Repo) GetDesigner(ctx context.Context, id string) (domain.Designer, error) {
	return r.GetDesignerTx(ctx, nil, id)
}

func (r Repo) GetDesignerTx(ctx context.Context, tx *sql.Tx, id string) (domain.Designer, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+designerColumns+` FROM designers WHERE id=?`, id)
	d, err := scanDesigner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	return d, err
}

// ListDesigners returns designers in creation order.
func (r Repo) ListDesigners(ctx context.Context) ([]domain.Designer, error) {
	return r.ListDesignersTx(ctx, nil)
}

func (r Repo) ListDesignersTx(ctx context.Context, tx *sql.Tx) ([]domain.Designer, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+designerColumns+` FROM designers ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Designer{}
	for rows.Next() {
		d, err := scanDesigner(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) CountDesigners(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM designers`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDesigner(s scanner) (domain.Designer, error) {
	var d domain.Designer
	var skills string
	if err := s.Scan(&d.ID, &d.Name, &d.Role, &d.Avatar, &skills, &d.CapacityHours, &d.AssignedHours, &d.CreatedAt); err != nil {
		return d, err
	}
	d.Skills = []string{}
	if skills != "" {
		if err := json.Unmarshal([]byte(skills), &d.Skills); err != nil {
			return d, fmt.Errorf("designer %s skills: %w", d.ID, err)
		}
	}
	return d, nil
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
