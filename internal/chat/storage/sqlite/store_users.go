package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/conclave-chat/conclave/internal/chat/storage"
)

// CreateUser inserts a user and its password hash in one transaction.
func (s *Store) CreateUser(ctx context.Context, record storage.UserRecord, passwordHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)`,
		record.ID, record.Username, toMillis(record.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrUsernameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_passwords (user_id, password_hash, created_at) VALUES (?, ?, ?)`,
		record.ID, passwordHash, toMillis(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert user password: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create user tx: %w", err)
	}
	return nil
}

// GetUser returns the user with the given id.
func (s *Store) GetUser(ctx context.Context, id string) (storage.UserRecord, error) {
	return s.getUser(ctx, `SELECT id, username, created_at FROM users WHERE id = ?`, id)
}

// GetUserByUsername returns the user with the given username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (storage.UserRecord, error) {
	return s.getUser(ctx, `SELECT id, username, created_at FROM users WHERE username = ?`, username)
}

func (s *Store) getUser(ctx context.Context, query string, arg string) (storage.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.UserRecord{}, err
	}

	var record storage.UserRecord
	var createdAt int64
	err := s.sqlDB.QueryRowContext(ctx, query, arg).Scan(&record.ID, &record.Username, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.UserRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.UserRecord{}, fmt.Errorf("select user: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

// GetPasswordHash returns the stored password hash for a user.
func (s *Store) GetPasswordHash(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var hash string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT password_hash FROM user_passwords WHERE user_id = ?`, userID,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select password hash: %w", err)
	}
	return hash, nil
}

// ListContacts returns every user except the given one, ordered by username.
func (s *Store) ListContacts(ctx context.Context, excludeUserID string) ([]storage.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, username, created_at FROM users WHERE id != ? ORDER BY username ASC`,
		excludeUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("select contacts: %w", err)
	}
	defer rows.Close()

	var records []storage.UserRecord
	for rows.Next() {
		var record storage.UserRecord
		var createdAt int64
		if err := rows.Scan(&record.ID, &record.Username, &createdAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return records, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "unique constraint failed")
}

func isForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "foreign key constraint failed")
}
