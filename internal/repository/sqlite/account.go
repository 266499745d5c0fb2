package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/codeofclans/internal/model"
	"github.com/sakif/codeofclans/internal/repository"
)

const accountColumns = `id, username, email, first_name, last_name, is_active, is_staff, is_superuser, password_hash, date_joined`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(s rowScanner) (*model.Account, error) {
	var a model.Account
	if err := s.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.FirstName,
		&a.LastName,
		&a.IsActive,
		&a.IsStaff,
		&a.IsSuperuser,
		&a.PasswordHash,
		&a.DateJoined,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAccounts(rows *sql.Rows) ([]model.Account, error) {
	defer rows.Close()

	// Return an empty slice, never nil, so it encodes as [].
	accounts := []model.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating accounts: %w", err)
	}
	return accounts, nil
}

// CreateAccount inserts a and sets its ID. DateJoined defaults to now.
func (db *DB) CreateAccount(ctx context.Context, a *model.Account) error {
	if a.DateJoined.IsZero() {
		a.DateJoined = time.Now().UTC()
	}

	res, err := db.q.ExecContext(ctx,
		`INSERT INTO accounts (username, email, first_name, last_name, is_active, is_staff, is_superuser, password_hash, date_joined)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Username,
		a.Email,
		a.FirstName,
		a.LastName,
		a.IsActive,
		a.IsStaff,
		a.IsSuperuser,
		a.PasswordHash,
		a.DateJoined,
	)
	if err != nil {
		return writeErr(err, "inserting account", "account", a.Username)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading account id: %w", err)
	}
	a.ID = id
	return nil
}

// GetAccountByID retrieves an account by id.
// Returns apperror.ErrNotFound if no account exists with that id.
func (db *DB) GetAccountByID(ctx context.Context, id int64) (*model.Account, error) {
	a, err := scanAccount(db.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if err != nil {
		return nil, readErr(err, "account", strconv.FormatInt(id, 10))
	}
	return a, nil
}

func (db *DB) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	a, err := scanAccount(db.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = ?`, username))
	if err != nil {
		return nil, readErr(err, "account", username)
	}
	return a, nil
}

func (db *DB) FindAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	a, err := scanAccount(db.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ? ORDER BY id LIMIT 1`, email))
	if err != nil {
		return nil, readErr(err, "account", email)
	}
	return a, nil
}

func (db *DB) UsernameExists(ctx context.Context, username string) (bool, error) {
	var n int
	err := db.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE username = ?`, username).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking username %q: %w", username, err)
	}
	return n > 0, nil
}

// UpdateAccount writes every mutable column of a. The password hash and
// join date are left untouched.
func (db *DB) UpdateAccount(ctx context.Context, a *model.Account) error {
	res, err := db.q.ExecContext(ctx,
		`UPDATE accounts
		 SET username = ?, email = ?, first_name = ?, last_name = ?, is_active = ?, is_staff = ?, is_superuser = ?
		 WHERE id = ?`,
		a.Username,
		a.Email,
		a.FirstName,
		a.LastName,
		a.IsActive,
		a.IsStaff,
		a.IsSuperuser,
		a.ID,
	)
	if err != nil {
		return writeErr(err, "updating account", "account", a.Username)
	}
	return requireAffected(res, "account", strconv.FormatInt(a.ID, 10))
}

// DeleteAccount removes the account. Its link, follow edges and check-ins go
// with it through ON DELETE CASCADE; links that named it as referrer keep
// their row with referred_by set to NULL.
func (db *DB) DeleteAccount(ctx context.Context, id int64) error {
	res, err := db.q.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting account %d: %w", id, err)
	}
	return requireAffected(res, "account", strconv.FormatInt(id, 10))
}

// ListAccounts returns accounts newest first.
func (db *DB) ListAccounts(ctx context.Context, opts repository.ListOptions) ([]model.Account, error) {
	opts = opts.Normalize(50, 200)
	rows, err := db.q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY date_joined DESC, id DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing accounts: %w", err)
	}
	return collectAccounts(rows)
}
