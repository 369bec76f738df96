package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conclave-chat/conclave/internal/chat/storage"
)

// CreateToken records an issued auth token.
func (s *Store) CreateToken(ctx context.Context, record storage.TokenRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO tokens (id, user_id, created_at) VALUES (?, ?, ?)`,
		record.ID, record.UserID, toMillis(record.CreatedAt),
	)
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetToken returns the token with the given id. A revoked token is
// indistinguishable from one that never existed.
func (s *Store) GetToken(ctx context.Context, id string) (storage.TokenRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TokenRecord{}, err
	}

	var record storage.TokenRecord
	var createdAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, user_id, created_at FROM tokens WHERE id = ?`, id,
	).Scan(&record.ID, &record.UserID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.TokenRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.TokenRecord{}, fmt.Errorf("select token: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

// DeleteToken revokes an issued token. Deleting an unknown id is a no-op.
func (s *Store) DeleteToken(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM tokens WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
