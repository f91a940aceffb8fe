package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mise.app/internal/model"
	"mise.app/internal/outcome"
)

const staffColumns = `id, business_id, first_name, last_name, coalesce(email, ''), coalesce(username, ''),
	coalesce(phone, ''), pin_hash, role, permissions, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStaff(row rowScanner) (model.Staff, error) {
	var (
		st    model.Staff
		role  string
		perms []byte
	)
	if err := row.Scan(&st.ID, &st.BusinessID, &st.FirstName, &st.LastName, &st.Email, &st.Username,
		&st.Phone, &st.PinHash, &role, &perms, &st.IsActive, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return model.Staff{}, err
	}
	st.Role = model.Role(role)
	st.Permissions = []model.Permission{}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &st.Permissions); err != nil {
			return model.Staff{}, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return st, nil
}

func encodePermissions(perms []model.Permission) ([]byte, error) {
	if perms == nil {
		perms = []model.Permission{}
	}
	return json.Marshal(perms)
}

func (s *Store) CreateStaff(ctx context.Context, st model.Staff) error {
	if s.db == nil {
		return errNoDB
	}
	perms, err := encodePermissions(st.Permissions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into staff (id, business_id, first_name, last_name, email, username, phone,
		                   pin_hash, role, permissions, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, st.ID, st.BusinessID, st.FirstName, st.LastName, nullIfEmpty(st.Email), nullIfEmpty(st.Username),
		nullIfEmpty(st.Phone), st.PinHash, string(st.Role), perms, st.IsActive, st.CreatedAt, st.UpdatedAt)
	return writeErr(err)
}

func (s *Store) StaffByID(ctx context.Context, id string) (model.Staff, error) {
	if s.db == nil {
		return model.Staff{}, errNoDB
	}
	st, err := scanStaff(s.db.QueryRowContext(ctx, `select `+staffColumns+` from staff where id = $1`, id))
	if err != nil {
		return model.Staff{}, readErr(err, "staff_not_found")
	}
	return st, nil
}

// UpdateStaff rewrites every mutable column. business_id is matched, never set.
func (s *Store) UpdateStaff(ctx context.Context, st model.Staff) error {
	if s.db == nil {
		return errNoDB
	}
	perms, err := encodePermissions(st.Permissions)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		update staff
		set first_name = $3, last_name = $4, email = $5, username = $6, phone = $7,
		    pin_hash = $8, role = $9, permissions = $10, is_active = $11, updated_at = $12
		where id = $1 and business_id = $2
	`, st.ID, st.BusinessID, st.FirstName, st.LastName, nullIfEmpty(st.Email), nullIfEmpty(st.Username),
		nullIfEmpty(st.Phone), st.PinHash, string(st.Role), perms, st.IsActive, st.UpdatedAt)
	if err != nil {
		return writeErr(err)
	}
	return requireRow(res, "staff_not_found")
}

func (s *Store) DeleteStaff(ctx context.Context, businessID, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from staff where id = $1 and business_id = $2`, id, businessID)
	if err != nil {
		return err
	}
	return requireRow(res, "staff_not_found")
}

func (s *Store) ListStaff(ctx context.Context, businessID string, f model.StaffFilter) ([]model.Staff, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var (
		where = []string{"business_id = $1"}
		args  = []any{businessID}
		idx   = 2
	)
	if f.Role != "" {
		where = append(where, fmt.Sprintf("role = $%d", idx))
		args = append(args, string(f.Role))
		idx++
	}
	if f.ActiveOnly {
		where = append(where, "is_active")
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		where = append(where, fmt.Sprintf(`(lower(first_name) like $%[1]d or lower(last_name) like $%[1]d
			or lower(coalesce(email, '')) like $%[1]d or lower(coalesce(username, '')) like $%[1]d
			or coalesce(phone, '') like $%[1]d)`, idx))
		args = append(args, "%"+escapeLike(q)+"%")
	}
	rows, err := s.db.QueryContext(ctx, `select `+staffColumns+` from staff where `+
		strings.Join(where, " and ")+` order by created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Staff
	for rows.Next() {
		st, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) FindStaffByIdentifier(ctx context.Context, businessID, identifier string) (model.Staff, error) {
	if s.db == nil {
		return model.Staff{}, errNoDB
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return model.Staff{}, outcome.NotFound("staff_not_found")
	}
	st, err := scanStaff(s.db.QueryRowContext(ctx, `
		select `+staffColumns+`
		from staff
		where business_id = $1
		  and (lower(email) = lower($2) or lower(username) = lower($2) or phone = $2)
		order by created_at
		limit 1
	`, businessID, identifier))
	if err != nil {
		return model.Staff{}, readErr(err, "staff_not_found")
	}
	return st, nil
}

func (s *Store) CountByRole(ctx context.Context, businessID string, role model.Role) (int, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	var n int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from staff where business_id = $1 and role = $2 and is_active
	`, businessID, string(role)).Scan(&n)
	return n, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
