package pg

import (
	"context"
	"database/sql"
	"time"

	"mise.app/internal/model"
	"mise.app/internal/outcome"
)

const sessionColumns = `id, staff_id, business_id, coalesce(signed_in_by, ''), token_hash, signed_in_at,
	signed_out_at, is_active, coalesce(end_reason, '')`

func scanSession(row rowScanner) (model.StaffSession, error) {
	var (
		sess model.StaffSession
		out  sql.NullTime
	)
	if err := row.Scan(&sess.ID, &sess.StaffID, &sess.BusinessID, &sess.SignedInBy, &sess.TokenHash,
		&sess.SignedInAt, &out, &sess.IsActive, &sess.EndReason); err != nil {
		return model.StaffSession{}, err
	}
	if out.Valid {
		t := out.Time
		sess.SignedOutAt = &t
	}
	return sess, nil
}

func (s *Store) CreateSession(ctx context.Context, sess model.StaffSession) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into staff_sessions (id, staff_id, business_id, signed_in_by, token_hash, signed_in_at, is_active)
		values ($1, $2, $3, $4, $5, $6, true)
	`, sess.ID, sess.StaffID, sess.BusinessID, nullIfEmpty(sess.SignedInBy), sess.TokenHash, sess.SignedInAt)
	return writeErr(err)
}

func (s *Store) SessionByID(ctx context.Context, id string) (model.StaffSession, error) {
	if s.db == nil {
		return model.StaffSession{}, errNoDB
	}
	sess, err := scanSession(s.db.QueryRowContext(ctx, `select `+sessionColumns+` from staff_sessions where id = $1`, id))
	if err != nil {
		return model.StaffSession{}, readErr(err, "session_not_found")
	}
	return sess, nil
}

func (s *Store) SessionByTokenHash(ctx context.Context, hash string) (model.StaffSession, error) {
	if s.db == nil {
		return model.StaffSession{}, errNoDB
	}
	sess, err := scanSession(s.db.QueryRowContext(ctx, `select `+sessionColumns+` from staff_sessions where token_hash = $1`, hash))
	if err != nil {
		return model.StaffSession{}, readErr(err, "session_not_found")
	}
	return sess, nil
}

// EndSession only touches active rows, so concurrent terminations settle on
// the first writer's timestamp and reason.
func (s *Store) EndSession(ctx context.Context, id string, at time.Time, reason string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		update staff_sessions set is_active = false, signed_out_at = $2, end_reason = $3
		where id = $1 and is_active
	`, id, at, reason)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `select exists(select 1 from staff_sessions where id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, outcome.NotFound("session_not_found")
	}
	return false, nil
}

func (s *Store) ActiveSessions(ctx context.Context, businessID string) ([]model.StaffSession, error) {
	return s.querySessions(ctx, `select `+sessionColumns+` from staff_sessions
		where business_id = $1 and is_active order by signed_in_at`, businessID)
}

func (s *Store) ActiveSessionsForStaff(ctx context.Context, businessID, staffID string) ([]model.StaffSession, error) {
	return s.querySessions(ctx, `select `+sessionColumns+` from staff_sessions
		where business_id = $1 and staff_id = $2 and is_active order by signed_in_at`, businessID, staffID)
}

func (s *Store) ActiveSessionsBefore(ctx context.Context, cutoff time.Time) ([]model.StaffSession, error) {
	return s.querySessions(ctx, `select `+sessionColumns+` from staff_sessions
		where is_active and signed_in_at <= $1 order by signed_in_at`, cutoff)
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]model.StaffSession, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.StaffSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) CreateAdminSession(ctx context.Context, sess model.AdminSession) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into admin_sessions (id, business_owner_id, token_hash, required_for, created_at, expires_at, is_active)
		values ($1, $2, $3, $4, $5, $6, true)
	`, sess.ID, sess.BusinessOwnerID, sess.TokenHash, sess.RequiredFor, sess.CreatedAt, sess.ExpiresAt)
	return writeErr(err)
}

func (s *Store) AdminSessionByTokenHash(ctx context.Context, hash string) (model.AdminSession, error) {
	if s.db == nil {
		return model.AdminSession{}, errNoDB
	}
	var sess model.AdminSession
	err := s.db.QueryRowContext(ctx, `
		select id, business_owner_id, token_hash, required_for, created_at, expires_at, is_active
		from admin_sessions
		where token_hash = $1
	`, hash).Scan(&sess.ID, &sess.BusinessOwnerID, &sess.TokenHash, &sess.RequiredFor,
		&sess.CreatedAt, &sess.ExpiresAt, &sess.IsActive)
	if err != nil {
		return model.AdminSession{}, readErr(err, "admin_session_not_found")
	}
	return sess, nil
}

func (s *Store) DeactivateAdminSessions(ctx context.Context, ownerID string) (int, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		update admin_sessions set is_active = false where business_owner_id = $1 and is_active
	`, ownerID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
