package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/MedLinkBack/internal/models"
)

const connectionColumns = `id, sender_id, receiver_id, status, created_at, updated_at`

type ConnectionRepository struct {
	db DBTX
}

func NewConnectionRepository(db DBTX) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

func scanConnection(row pgx.Row) (*models.Connection, error) {
	var connection models.Connection
	err := row.Scan(
		&connection.ID,
		&connection.SenderID,
		&connection.ReceiverID,
		&connection.Status,
		&connection.CreatedAt,
		&connection.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &connection, nil
}

func (r *ConnectionRepository) ListForUser(ctx context.Context, userID string) ([]models.Connection, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	connections := make([]models.Connection, 0)
	for rows.Next() {
		connection, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		connections = append(connections, *connection)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return connections, nil
}

func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	return scanConnection(r.db.QueryRow(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE id = $1
	`, id))
}

// FindBetween looks the unordered pair up regardless of who sent the
// request.
func (r *ConnectionRepository) FindBetween(ctx context.Context, a, b string) (*models.Connection, error) {
	return scanConnection(r.db.QueryRow(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		LIMIT 1
	`, a, b))
}

// Create inserts a pending request. A row for the same pair fails with a
// unique violation.
func (r *ConnectionRepository) Create(ctx context.Context, senderID, receiverID string) (*models.Connection, error) {
	return scanConnection(r.db.QueryRow(ctx, `
		INSERT INTO connections (sender_id, receiver_id, status)
		VALUES ($1, $2, 'pending')
		RETURNING `+connectionColumns,
		senderID, receiverID,
	))
}

// Accept flips a pending request addressed to receiverID.
func (r *ConnectionRepository) Accept(ctx context.Context, id, receiverID string) (*models.Connection, error) {
	return scanConnection(r.db.QueryRow(ctx, `
		UPDATE connections
		SET status = 'accepted', updated_at = NOW()
		WHERE id = $1 AND receiver_id = $2 AND status = 'pending'
		RETURNING `+connectionColumns,
		id, receiverID,
	))
}

// Delete removes a row participantID is a party to.
func (r *ConnectionRepository) Delete(ctx context.Context, id, participantID string) error {
	return requireAffected(r.db.Exec(ctx, `
		DELETE FROM connections
		WHERE id = $1 AND (sender_id = $2 OR receiver_id = $2)
	`, id, participantID))
}
