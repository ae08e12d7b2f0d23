package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/blog-feed/internal/apperror"
	"github.com/sakif/blog-feed/internal/model"
	"github.com/sakif/blog-feed/internal/repository"
)

var _ repository.PostRepository = (*DB)(nil)

const postColumns = `
	SELECT p.id, p.title, p.content, p.image_url, p.creator_id,
	       COALESCE(u.name, ''), p.created_at, p.updated_at
	FROM posts p
	LEFT JOIN users u ON u.id = p.creator_id`

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
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// Create inserts a new post and assigns its id and timestamps.
func (db *DB) Create(ctx context.Context, post *model.Post) error {
	if post.CreatorID == "" {
		return fmt.Errorf("postgres: creating post: creator is required")
	}

	post.ID = xid.New().String()
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO posts (id, title, content, image_url, creator_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		post.ID, post.Title, post.Content, post.ImageURL, post.CreatorID,
		post.CreatedAt, post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: creating post: %w", err)
	}

	post.Creator.ID = post.CreatorID
	return nil
}

func (db *DB) GetByID(ctx context.Context, id string) (*model.Post, error) {
	post, err := scanPost(db.conn.QueryRowContext(ctx, postColumns+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("post", id)
		}
		return nil, fmt.Errorf("postgres: getting post %s: %w", id, err)
	}
	return post, nil
}

// List returns one page, newest first, and the total number of posts.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Post, int, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := max(opts.Offset, 0)

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: counting posts: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		postColumns+` ORDER BY p.created_at DESC, p.id DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: listing posts: %w", err)
	}
	defer rows.Close()

	posts := make([]model.Post, 0, limit)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres: scanning post row: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres: iterating posts: %w", err)
	}
	return posts, total, nil
}

func (db *DB) Update(ctx context.Context, post *model.Post) error {
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = time.Now().UTC()
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE posts SET title = $1, content = $2, image_url = $3, updated_at = $4 WHERE id = $5`,
		post.Title, post.Content, post.ImageURL, post.UpdatedAt, post.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: updating post %s: %w", post.ID, err)
	}
	return notFoundIfNone(result, "post", post.ID)
}

func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting post %s: %w", id, err)
	}
	return notFoundIfNone(result, "post", id)
}

func (db *DB) ListIDsByCreator(ctx context.Context, userID string) ([]string, error) {
	return db.queryIDs(ctx,
		`SELECT id FROM posts WHERE creator_id = $1 ORDER BY created_at ASC, id ASC`, userID)
}

func (db *DB) ListCreatorsByImage(ctx context.Context, imageURL string) ([]string, error) {
	return db.queryIDs(ctx,
		`SELECT DISTINCT creator_id FROM posts WHERE image_url = $1 ORDER BY creator_id`, imageURL)
}

func notFoundIfNone(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}

// queryIDs runs a query selecting a single text column.
func (db *DB) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: querying ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating ids: %w", err)
	}
	return ids, nil
}
