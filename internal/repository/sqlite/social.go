package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/codeofclans/internal/model"
	"github.com/sakif/codeofclans/internal/repository"
)

// checkInDateLayout is how check_ins.check_in_date is stored.
const checkInDateLayout = "2006-01-02"

func edgeID(followerID, followingID int64) string {
	return strconv.FormatInt(followerID, 10) + "->" + strconv.FormatInt(followingID, 10)
}

func (db *DB) Follow(ctx context.Context, followerID, followingID int64) error {
	_, err := db.q.ExecContext(ctx,
		`INSERT INTO follows (follower_id, following_id, created_at) VALUES (?, ?, ?)`,
		followerID, followingID, time.Now().UTC())
	if err != nil {
		return writeErr(err, "inserting follow", "follow", edgeID(followerID, followingID))
	}
	return nil
}

func (db *DB) Unfollow(ctx context.Context, followerID, followingID int64) (bool, error) {
	res, err := db.q.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = ? AND following_id = ?`, followerID, followingID)
	if err != nil {
		return false, fmt.Errorf("sqlite: deleting follow %s: %w", edgeID(followerID, followingID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	return n > 0, nil
}

func (db *DB) IsFollowing(ctx context.Context, followerID, followingID int64) (bool, error) {
	var n int
	if err := db.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM follows WHERE follower_id = ? AND following_id = ?`,
		followerID, followingID).Scan(&n); err != nil {
		return false, fmt.Errorf("sqlite: checking follow %s: %w", edgeID(followerID, followingID), err)
	}
	return n > 0, nil
}

func (db *DB) count(ctx context.Context, query string, id int64) (int, error) {
	var n int
	if err := db.q.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting follows for %d: %w", id, err)
	}
	return n, nil
}

func (db *DB) CountFollowers(ctx context.Context, accountID int64) (int, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM follows WHERE following_id = ?`, accountID)
}

func (db *DB) CountFollowing(ctx context.Context, accountID int64) (int, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM follows WHERE follower_id = ?`, accountID)
}

// ListFollowers returns the accounts following accountID, most recent first.
func (db *DB) ListFollowers(ctx context.Context, accountID int64, opts repository.ListOptions) ([]model.Account, error) {
	opts = opts.Normalize(20, 100)
	rows, err := db.q.QueryContext(ctx,
		`SELECT a.id, a.username, a.email, a.first_name, a.last_name, a.is_active, a.is_staff,
		        a.is_superuser, a.password_hash, a.date_joined
		 FROM follows f JOIN accounts a ON a.id = f.follower_id
		 WHERE f.following_id = ?
		 ORDER BY f.created_at DESC, a.id DESC
		 LIMIT ? OFFSET ?`,
		accountID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing followers of %d: %w", accountID, err)
	}
	return collectAccounts(rows)
}

// ListFollowing returns the accounts accountID follows, most recent first.
func (db *DB) ListFollowing(ctx context.Context, accountID int64, opts repository.ListOptions) ([]model.Account, error) {
	opts = opts.Normalize(20, 100)
	rows, err := db.q.QueryContext(ctx,
		`SELECT a.id, a.username, a.email, a.first_name, a.last_name, a.is_active, a.is_staff,
		        a.is_superuser, a.password_hash, a.date_joined
		 FROM follows f JOIN accounts a ON a.id = f.following_id
		 WHERE f.follower_id = ?
		 ORDER BY f.created_at DESC, a.id DESC
		 LIMIT ? OFFSET ?`,
		accountID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing following of %d: %w", accountID, err)
	}
	return collectAccounts(rows)
}

// =========================================================================
// CHECK-INS
// =========================================================================

func scanCheckIn(s rowScanner) (*model.CheckIn, error) {
	var (
		c    model.CheckIn
		date string
	)
	if err := s.Scan(&c.ID, &c.AccountID, &date, &c.StreakDay, &c.XPEarned, &c.CreatedAt); err != nil {
		return nil, err
	}
	d, err := time.Parse(checkInDateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("parsing check-in date %q: %w", date, err)
	}
	c.CheckInDate = d
	return &c, nil
}

// CreateCheckIn inserts c. Only the calendar date of c.CheckInDate is stored.
func (db *DB) CreateCheckIn(ctx context.Context, c *model.CheckIn) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	date := c.CheckInDate.Format(checkInDateLayout)

	res, err := db.q.ExecContext(ctx,
		`INSERT INTO check_ins (account_id, check_in_date, streak_day, xp_earned, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.AccountID, date, c.StreakDay, c.XPEarned, c.CreatedAt)
	if err != nil {
		return writeErr(err, "inserting check-in", "check-in", date)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading check-in id: %w", err)
	}
	c.ID = id
	return nil
}

func (db *DB) LatestCheckIn(ctx context.Context, accountID int64) (*model.CheckIn, error) {
	c, err := scanCheckIn(db.q.QueryRowContext(ctx,
		`SELECT id, account_id, check_in_date, streak_day, xp_earned, created_at
		 FROM check_ins WHERE account_id = ? ORDER BY check_in_date DESC LIMIT 1`, accountID))
	if err != nil {
		return nil, readErr(err, "check-in", "account:"+strconv.FormatInt(accountID, 10))
	}
	return c, nil
}

// RecentCheckIns returns up to limit check-ins, newest first.
func (db *DB) RecentCheckIns(ctx context.Context, accountID int64, limit int) ([]model.CheckIn, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT id, account_id, check_in_date, streak_day, xp_earned, created_at
		 FROM check_ins WHERE account_id = ? ORDER BY check_in_date DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing check-ins for %d: %w", accountID, err)
	}
	defer rows.Close()

	out := []model.CheckIn{}
	for rows.Next() {
		c, err := scanCheckIn(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning check-in: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating check-ins: %w", err)
	}
	return out, nil
}
