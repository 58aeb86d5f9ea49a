package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shopbot/internal/models"
)

// UpsertUser inserts a user on first contact and refreshes the profile
// fields on every later one. Block and exception flags are never touched.
func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, full_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, full_name = EXCLUDED.full_name
		RETURNING *`

	return s.db.GetContext(ctx, user, query, user.ID, user.Username, user.FullName)
}

// GetUserByID retrieves a user by Telegram id
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUserByUsername retrieves a user by exact username, case-insensitive
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		"SELECT * FROM users WHERE LOWER(username) = LOWER($1)", username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", username, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SetUserBlocked flips the block flag
func (s *Store) SetUserBlocked(ctx context.Context, id int64, blocked bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET is_blocked = $1 WHERE id = $2", blocked, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// SetUserException flips the subscription-exempt flag
func (s *Store) SetUserException(ctx context.Context, id int64, exempt bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET is_exception = $1 WHERE id = $2", exempt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// ListBroadcastTargets returns the ids of all non-blocked users
func (s *Store) ListBroadcastTargets(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids,
		"SELECT id FROM users WHERE NOT is_blocked ORDER BY id")
	return ids, err
}

// CountUsers returns the total number of registered users
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users")
	return count, err
}

// CreateReferral records who invited a user. The first referrer wins;
// later attempts are silently ignored.
func (s *Store) CreateReferral(ctx context.Context, userID, referredBy int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO referrals (user_id, referred_by) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING",
		userID, referredBy)
	return err
}

// CountReferrals returns how many users the given user has referred
func (s *Store) CountReferrals(ctx context.Context, referredBy int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM referrals WHERE referred_by = $1", referredBy)
	return count, err
}

// CreateChannel registers a required channel
func (s *Store) CreateChannel(ctx context.Context, ch *models.Channel) error {
	query := `
		INSERT INTO channels (telegram_id, title, is_enabled)
		VALUES ($1, $2, $3)
		RETURNING id`

	return s.db.GetContext(ctx, &ch.ID, query, ch.TelegramID, ch.Title, ch.IsEnabled)
}

// ListChannels returns channels, optionally only the enabled ones
func (s *Store) ListChannels(ctx context.Context, enabledOnly bool) ([]models.Channel, error) {
	query := "SELECT * FROM channels ORDER BY id"
	if enabledOnly {
		query = "SELECT * FROM channels WHERE is_enabled ORDER BY id"
	}

	var channels []models.Channel
	err := s.db.SelectContext(ctx, &channels, query)
	return channels, err
}

// SetChannelEnabled toggles the subscription requirement for a channel
func (s *Store) SetChannelEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE channels SET is_enabled = $1 WHERE id = $2", enabled, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("channel %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// DeleteChannel removes a channel from the required set
func (s *Store) DeleteChannel(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM channels WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("channel %d: %w", id, models.ErrNotFound)
	}
	return nil
}
