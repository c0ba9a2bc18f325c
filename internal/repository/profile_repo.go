package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/MedLinkBack/internal/models"
)

const profileColumns = `id, full_name, username, avatar_url, specialty, city, created_at`

type ProfileRepository struct {
	db DBTX
}

func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var profile models.Profile
	err := row.Scan(
		&profile.ID,
		&profile.FullName,
		&profile.Username,
		&profile.AvatarURL,
		&profile.Specialty,
		&profile.City,
		&profile.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return scanProfile(r.db.QueryRow(ctx, query, id))
}

func (r *ProfileRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Profile, error) {
	if len(ids) == 0 {
		return []models.Profile{}, nil
	}
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = ANY($1::uuid[])`
	return r.list(ctx, query, ids)
}

// SearchByName matches full names case-insensitively, lowest id first.
func (r *ProfileRepository) SearchByName(ctx context.Context, name string, limit int) ([]models.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE full_name ILIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY id ASC
		LIMIT $2
	`
	return r.list(ctx, query, escapeLike(name), limit)
}

func (r *ProfileRepository) list(ctx context.Context, query string, args ...any) ([]models.Profile, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]models.Profile, 0)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *profile)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return profiles, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
