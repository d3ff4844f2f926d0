package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
)

type staffRepo struct {
	tx pgx.Tx
}

func (r staffRepo) Get(ctx context.Context, id string) (model.Staff, error) {
	var s model.Staff
	err := r.tx.QueryRow(ctx, `
		SELECT id, name, active, updated_at FROM staff WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.Active, &s.UpdatedAt)
	if err != nil {
		return model.Staff{}, notFound(err, "staff", id)
	}
	return s, nil
}

func (r staffRepo) Upsert(ctx context.Context, s model.Staff) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO staff (id, name, active, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
	`, s.ID, s.Name, s.Active, s.UpdatedAt)
	return err
}

type shiftRepo struct {
	tx pgx.Tx
}

func (r shiftRepo) Create(ctx context.Context, s model.Shift) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO shifts (id, shift_date, starts_at, ends_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.Date, s.Start, s.End, s.Status, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: shift %s already exists", model.ErrInvalidArgument, s.ID)
		}
		return err
	}
	for _, a := range s.Assignments {
		_, err := r.tx.Exec(ctx, `
			INSERT INTO shift_assignments (shift_id, staff_id, role)
			VALUES ($1, $2, $3)
			ON CONFLICT (shift_id, staff_id) DO UPDATE SET role = EXCLUDED.role
		`, s.ID, a.StaffID, a.Role)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: staff %s", model.ErrNotFound, a.StaffID)
			}
			return err
		}
	}
	return nil
}

func (r shiftRepo) GetForUpdate(ctx context.Context, id string) (model.Shift, error) {
	var s model.Shift
	err := r.tx.QueryRow(ctx, `
		SELECT id, shift_date, starts_at, ends_at, status, created_at, updated_at
		FROM shifts
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&s.ID, &s.Date, &s.Start, &s.End, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return model.Shift{}, notFound(err, "shift", id)
	}
	assignments, err := r.assignments(ctx, []string{id})
	if err != nil {
		return model.Shift{}, err
	}
	s.Assignments = assignments[id]
	return s, nil
}

func (r shiftRepo) UpdateStatus(ctx context.Context, id string, status model.ShiftStatus, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE shifts SET status = $2, updated_at = $3 WHERE id = $1
	`, id, status, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: shift %s", model.ErrNotFound, id)
	}
	return nil
}

func (r shiftRepo) Overlapping(ctx context.Context, start, end time.Time, statuses []model.ShiftStatus) ([]model.Shift, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	rows, err := r.tx.Query(ctx, `
		SELECT id, shift_date, starts_at, ends_at, status, created_at, updated_at
		FROM shifts
		WHERE status = ANY($3)
			AND starts_at < $2
			AND ends_at > $1
		ORDER BY starts_at, id
	`, start, end, names)
	if err != nil {
		return nil, err
	}
	var (
		out []model.Shift
		ids []string
	)
	for rows.Next() {
		var s model.Shift
		if err := rows.Scan(&s.ID, &s.Date, &s.Start, &s.End, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, s)
		ids = append(ids, s.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	assignments, err := r.assignments(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Assignments = assignments[out[i].ID]
	}
	return out, nil
}

func (r shiftRepo) assignments(ctx context.Context, shiftIDs []string) (map[string][]model.ShiftAssignment, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT shift_id, staff_id, role
		FROM shift_assignments
		WHERE shift_id = ANY($1)
		ORDER BY shift_id, staff_id
	`, shiftIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]model.ShiftAssignment, len(shiftIDs))
	for rows.Next() {
		var (
			shiftID string
			a       model.ShiftAssignment
		)
		if err := rows.Scan(&shiftID, &a.StaffID, &a.Role); err != nil {
			return nil, err
		}
		out[shiftID] = append(out[shiftID], a)
	}
	return out, rows.Err()
}
