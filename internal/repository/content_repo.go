package repository

import (
	"context"

	"github.com/saeid-a/MedLinkBack/internal/models"
)

// ContentRepository reads post and comment snapshots for notification
// enrichment.
type ContentRepository struct {
	db DBTX
}

func NewContentRepository(db DBTX) *ContentRepository {
	return &ContentRepository{db: db}
}

func (r *ContentRepository) GetPost(ctx context.Context, id string) (*models.PostSnapshot, error) {
	var post models.PostSnapshot
	err := r.db.QueryRow(ctx, `
		SELECT id, author_id, content, created_at
		FROM posts
		WHERE id = $1
	`, id).Scan(&post.ID, &post.AuthorID, &post.Content, &post.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *ContentRepository) GetComment(ctx context.Context, id string) (*models.CommentSnapshot, error) {
	var comment models.CommentSnapshot
	err := r.db.QueryRow(ctx, `
		SELECT id, post_id, author_id, content, created_at
		FROM comments
		WHERE id = $1
	`, id).Scan(&comment.ID, &comment.PostID, &comment.AuthorID, &comment.Content, &comment.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &comment, nil
}
