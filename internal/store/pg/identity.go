package pg

import (
	"context"
	"database/sql"
	"time"

	"mise.app/internal/model"
)

func (s *Store) Account(ctx context.Context, userID string) (model.Account, error) {
	if s.db == nil {
		return model.Account{}, errNoDB
	}
	var a model.Account
	err := s.db.QueryRowContext(ctx, `
		select id, coalesce(email, ''), account_type, created_at
		from accounts
		where id = $1
	`, userID).Scan(&a.ID, &a.Email, &a.AccountType, &a.CreatedAt)
	if err != nil {
		return model.Account{}, readErr(err, "account_not_found")
	}
	return a, nil
}

func (s *Store) BusinessOwner(ctx context.Context, ownerID string) (model.BusinessOwner, error) {
	if s.db == nil {
		return model.BusinessOwner{}, errNoDB
	}
	var (
		o       model.BusinessOwner
		pinHash sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, coalesce(email, ''), account_type, coalesce(business_name, ''), coalesce(business_type, ''),
		       admin_pin_hash, email_verified, created_at, updated_at
		from business_owners
		where id = $1
	`, ownerID).Scan(&o.ID, &o.Email, &o.AccountType, &o.BusinessName, &o.BusinessType,
		&pinHash, &o.EmailVerified, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.BusinessOwner{}, readErr(err, "owner_not_found")
	}
	if pinHash.Valid {
		o.AdminPinHash = &pinHash.String
	}
	return o, nil
}

func (s *Store) PersonalProfile(ctx context.Context, userID string) (model.PersonalProfile, error) {
	if s.db == nil {
		return model.PersonalProfile{}, errNoDB
	}
	var p model.PersonalProfile
	err := s.db.QueryRowContext(ctx, `
		select user_id, coalesce(full_name, ''), created_at
		from personal_profiles
		where user_id = $1
	`, userID).Scan(&p.UserID, &p.FullName, &p.CreatedAt)
	if err != nil {
		return model.PersonalProfile{}, readErr(err, "profile_not_found")
	}
	return p, nil
}

func (s *Store) SetAdminPinHash(ctx context.Context, ownerID, hash string, at time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		update business_owners set admin_pin_hash = $2, updated_at = $3
		where id = $1
	`, ownerID, hash, at)
	if err != nil {
		return err
	}
	return requireRow(res, "owner_not_found")
}
