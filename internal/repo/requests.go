package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"designflow/internal/domain"
)

const requestColumns = `id,title,client,requestor,COALESCE(description,''),type,business_function,priority,status,estimated_hours,due_date,assigned_to,start_date,created_at,updated_at`

type RequestFilter struct {
	Status     domain.Status
	AssignedTo string
}

// InsertRequest stores r without its feedback; use InsertFeedback for those.
func (r Repo) InsertRequest(ctx context.Context, tx *sql.Tx, req domain.DesignRequest) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO requests(id,title,client,requestor,description,type,business_function,priority,status,estimated_hours,due_date,assigned_to,start_date,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		req.ID, req.Title, req.Client, req.Requestor, nullable(req.Description), req.Type, req.BusinessFunction, req.Priority, req.Status,
		req.EstimatedHours, req.DueDate, nullableStringPtr(req.AssignedTo), nullableStringPtr(req.StartDate), req.CreatedAt, req.UpdatedAt)
	return err
}

// UpdateRequest writes the lifecycle fields of req.
func (r Repo) UpdateRequest(ctx context.Context, tx *sql.Tx, req domain.DesignRequest) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE requests SET status=?, assigned_to=?, start_date=?, updated_at=? WHERE id=?`,
		req.Status, nullableStringPtr(req.AssignedTo), nullableStringPtr(req.StartDate), req.UpdatedAt, req.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r Repo) GetRequest(ctx context.Context, id string) (domain.DesignRequest, error) {
	return r.GetRequestTx(ctx, nil, id)
}

// GetRequestTx loads a request with its feedback thread.
func (r Repo) GetRequestTx(ctx context.Context, tx *sql.Tx, id string) (domain.DesignRequest, error) {
	q := r.q(tx)
	req, err := scanRequest(q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return req, ErrNotFound
	}
	if err != nil {
		return req, err
	}
	fb, err := listFeedback(ctx, q, []string{req.ID})
	if err != nil {
		return req, err
	}
	req.Feedback = nonNilFeedback(fb[req.ID])
	return req, nil
}

// ListRequests returns requests in submission order with their feedback.
func (r Repo) ListRequests(ctx context.Context, f RequestFilter) ([]domain.DesignRequest, error) {
	return r.ListRequestsTx(ctx, nil, f)
}

func (r Repo) ListRequestsTx(ctx context.Context, tx *sql.Tx, f RequestFilter) ([]domain.DesignRequest, error) {
	q := r.q(tx)
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	rows, err := q.QueryContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE `+strings.Join(clauses, " AND ")+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, err
	}
	res := []domain.DesignRequest{}
	var ids []string
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, req)
		ids = append(ids, req.ID)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return res, nil
	}
	fb, err := listFeedback(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Feedback = nonNilFeedback(fb[res[i].ID])
	}
	return res, nil
}

// InsertFeedback appends fb to the thread of requestID.
func (r Repo) InsertFeedback(ctx context.Context, tx *sql.Tx, requestID string, fb domain.Feedback) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO feedback(id,request_id,author,role,content,date,type) VALUES (?,?,?,?,?,?,?)`,
		fb.ID, requestID, fb.Author, fb.Role, fb.Content, fb.Date, fb.Type)
	return err
}

func listFeedback(ctx context.Context, q querier, requestIDs []string) (map[string][]domain.Feedback, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(requestIDs)), ",")
	args := make([]any, len(requestIDs))
	for i, id := range requestIDs {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx, `SELECT request_id,id,author,role,content,date,type FROM feedback WHERE request_id IN (`+placeholders+`) ORDER BY rowid`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string][]domain.Feedback{}
	for rows.Next() {
		var reqID string
		var fb domain.Feedback
		if err := rows.Scan(&reqID, &fb.ID, &fb.Author, &fb.Role, &fb.Content, &fb.Date, &fb.Type); err != nil {
			return nil, err
		}
		res[reqID] = append(res[reqID], fb)
	}
	return res, rows.Err()
}

func scanRequest(s scanner) (domain.DesignRequest, error) {
	var req domain.DesignRequest
	var assignedTo, startDate sql.NullString
	err := s.Scan(&req.ID, &req.Title, &req.Client, &req.Requestor, &req.Description, &req.Type, &req.BusinessFunction,
		&req.Priority, &req.Status, &req.EstimatedHours, &req.DueDate, &assignedTo, &startDate, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return req, err
	}
	req.AssignedTo = stringPtr(assignedTo)
	req.StartDate = stringPtr(startDate)
	return req, nil
}

func nonNilFeedback(v []domain.Feedback) []domain.Feedback {
	if v == nil {
		return []domain.Feedback{}
	}
	return v
}
