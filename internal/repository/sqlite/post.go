package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/blog-feed/internal/apperror"
	"github.com/sakif/blog-feed/internal/model"
	"github.com/sakif/blog-feed/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// If *DB stops implementing repository.PostRepository, this line fails to
// compile, long before anything tries to pass *DB to the service layer.
var _ repository.PostRepository = (*DB)(nil)

// postColumns selects a post joined with its creator's display name.
// LEFT JOIN so a post whose creator row is somehow gone still loads.
const postColumns = `
	SELECT p.id, p.title, p.content, p.image_url, p.creator_id,
	       COALESCE(u.name, ''), p.created_at, p.updated_at
	FROM posts p
	LEFT JOIN users u ON u.id = p.creator_id`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPost(s scanner) (*model.Post, error) {
	var p model.Post
	if err := s.Scan(
		&p.ID, &p.Title, &p.Content, &p.ImageURL, &p.CreatorID,
		&p.Creator.Name, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Creator.ID = p.CreatorID
	return &p, nil
}

// Create inserts a new post.
//
// ID GENERATION WITH xid:
// xid ids are 20 URL-safe chars and sort by creation time, which is why List
// can use the id as a tie-breaker when two posts share a timestamp.
func (db *DB) Create(ctx context.Context, post *model.Post) error {
	if post.CreatorID == "" {
		return fmt.Errorf("sqlite: creating post: creator is required")
	}

	post.ID = xid.New().String()
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO posts (id, title, content, image_url, creator_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		post.ID,
		post.Title,
		post.Content,
		post.ImageURL,
		post.CreatorID,
		post.CreatedAt,
		post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating post: %w", err)
	}

	post.Creator.ID = post.CreatorID
	return nil
}

// GetByID retrieves a single post by its ID.
// sql.ErrNoRows is translated to the app's NotFound error so handlers return 404.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Post, error) {
	post, err := scanPost(db.conn.QueryRowContext(ctx, postColumns+` WHERE p.id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("post", id)
		}
		return nil, fmt.Errorf("sqlite: getting post %s: %w", id, err)
	}
	return post, nil
}

// List retrieves one page of posts, newest first, and the total count.
//
// LIMIT/OFFSET pagination:
// OFFSET pagination has no cursor, so a post inserted between two page
// requests shifts every later page by one. That drift is accepted.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Post, int, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting posts: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		postColumns+`
		 ORDER BY p.created_at DESC, p.id DESC
		 LIMIT ? OFFSET ?`,
		limit,
		offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing posts: %w", err)
	}
	// CRITICAL: always close rows when done; it holds the (only) connection.
	defer rows.Close()

	posts := make([]model.Post, 0, limit)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning post row: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating posts: %w", err)
	}

	return posts, total, nil
}

// Update replaces title, content and image of an existing post.
// id, creator_id and created_at are immutable.
func (db *DB) Update(ctx context.Context, post *model.Post) error {
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = time.Now().UTC()
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE posts
		 SET title = ?, content = ?, image_url = ?, updated_at = ?
		 WHERE id = ?`,
		post.Title,
		post.Content,
		post.ImageURL,
		post.UpdatedAt,
		post.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating post %s: %w", post.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("post", post.ID)
	}
	return nil
}

// Delete removes a post by its ID.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting post %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("post", id)
	}
	return nil
}

// ListIDsByCreator returns the ids of every post the user created, oldest first.
func (db *DB) ListIDsByCreator(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id FROM posts WHERE creator_id = ? ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing posts of %s: %w", userID, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning post id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating post ids: %w", err)
	}
	return ids, nil
}

// ListCreatorsByImage returns who still references imageURL.
func (db *DB) ListCreatorsByImage(ctx context.Context, imageURL string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT creator_id FROM posts WHERE image_url = ? ORDER BY creator_id`,
		imageURL,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing creators of image %s: %w", imageURL, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning creator id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating creator ids: %w", err)
	}
	return ids, nil
}
