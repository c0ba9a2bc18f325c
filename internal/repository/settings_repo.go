package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type SettingsRepository struct {
	db DBTX
}

func NewSettingsRepository(db DBTX) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetBlockedUsers returns userID's block-list; a missing settings row is
// an empty list.
func (r *SettingsRepository) GetBlockedUsers(ctx context.Context, userID string) ([]string, error) {
	var blocked []string
	err := r.db.QueryRow(ctx, `
		SELECT blocked_users
		FROM user_settings
		WHERE user_id = $1
	`, userID).Scan(&blocked)
	if errors.Is(err, pgx.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if blocked == nil {
		blocked = []string{}
	}
	return blocked, nil
}

func (r *SettingsRepository) SetBlockedUsers(ctx context.Context, userID string, blocked []string) error {
	if blocked == nil {
		blocked = []string{}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_settings (user_id, blocked_users, updated_at)
		VALUES ($1, $2::uuid[], NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET blocked_users = EXCLUDED.blocked_users, updated_at = NOW()
	`, userID, blocked)
	return err
}

// ListBlockers returns the users whose block-list contains userID.
func (r *SettingsRepository) ListBlockers(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id
		FROM user_settings
		WHERE $1::uuid = ANY(blocked_users)
		ORDER BY user_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blockers := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		blockers = append(blockers, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return blockers, nil
}
