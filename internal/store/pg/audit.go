package pg

import (
	"context"
	"fmt"

	"mise.app/internal/model"
)

const defaultActivityLimit = 100

func (s *Store) AppendActivity(ctx context.Context, e model.ActivityEntry) error {
	if s.db == nil {
		return errNoDB
	}
	details, err := encodeDetails(e.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into staff_activity_logs (id, business_id, staff_id, action, performed_by, details, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.BusinessID, nullIfEmpty(e.StaffID), e.Action, e.PerformedBy, details, e.CreatedAt)
	return err
}

func (s *Store) AppendSecurity(ctx context.Context, ev model.SecurityEvent) error {
	if s.db == nil {
		return errNoDB
	}
	details, err := encodeDetails(ev.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into security_audit_log (id, business_id, staff_id, owner_id, tier, event, pin_prefix, details, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ev.ID, nullIfEmpty(ev.BusinessID), nullIfEmpty(ev.StaffID), nullIfEmpty(ev.OwnerID), ev.Tier, ev.Event,
		nullIfEmpty(ev.PinPrefix), details, ev.CreatedAt)
	return err
}

// ListActivity returns newest entries first.
func (s *Store) ListActivity(ctx context.Context, businessID string, f model.ActivityFilter) ([]model.ActivityEntry, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	var (
		query = `select id, business_id, coalesce(staff_id, ''), action, performed_by, details, created_at
			from staff_activity_logs where business_id = $1`
		args = []any{businessID}
	)
	if f.StaffID != "" {
		args = append(args, f.StaffID)
		query += fmt.Sprintf(" and staff_id = $%d", len(args))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		query += fmt.Sprintf(" and action = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" order by created_at desc, id desc limit $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ActivityEntry
	for rows.Next() {
		var (
			e   model.ActivityEntry
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.BusinessID, &e.StaffID, &e.Action, &e.PerformedBy, &raw, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Details, err = decodeDetails(raw); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
