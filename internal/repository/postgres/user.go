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

var _ repository.UserRepository = (*DB)(nil)

// rowQuerier is implemented by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateUser inserts a new account; a taken email maps to apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Posts == nil {
		user.Posts = []string{}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, name, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Email, user.PasswordHash, user.Name, user.Status,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("postgres: inserting user %s: %w", user.Email, err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, `WHERE id = $1`, id)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, `WHERE email = $1`, email)
}

func (db *DB) getUser(ctx context.Context, where, arg string) (*model.User, error) {
	var u model.User
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, name, status, created_at, updated_at FROM users `+where,
		arg,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", arg)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", arg, err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()

	posts, err := db.queryIDs(ctx,
		`SELECT post_id FROM user_posts WHERE user_id = $1 ORDER BY position ASC`, u.ID)
	if err != nil {
		return nil, err
	}
	u.Posts = posts
	return &u, nil
}

func (db *DB) UpdateStatus(ctx context.Context, id, status string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("postgres: updating status of %s: %w", id, err)
	}
	return notFoundIfNone(result, "user", id)
}

func (db *DB) ListUserIDs(ctx context.Context) ([]string, error) {
	return db.queryIDs(ctx, `SELECT id FROM users ORDER BY id`)
}

func userExists(ctx context.Context, q rowQuerier, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("user", id)
	}
	if err != nil {
		return fmt.Errorf("postgres: checking user %s: %w", id, err)
	}
	return nil
}

// AddOwnedPost appends postID; ON CONFLICT DO NOTHING keeps it idempotent.
func (db *DB) AddOwnedPost(ctx context.Context, userID, postID string) error {
	if err := userExists(ctx, db.conn, userID); err != nil {
		return err
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_posts (user_id, post_id, position)
		 SELECT $1, $2, COALESCE(MAX(position), 0) + 1 FROM user_posts WHERE user_id = $1
		 ON CONFLICT (user_id, post_id) DO NOTHING`,
		userID, postID,
	)
	if err != nil {
		return fmt.Errorf("postgres: adding post %s to user %s: %w", postID, userID, err)
	}
	return nil
}

func (db *DB) RemoveOwnedPost(ctx context.Context, userID, postID string) error {
	if err := userExists(ctx, db.conn, userID); err != nil {
		return err
	}
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_posts WHERE user_id = $1 AND post_id = $2`, userID, postID)
	if err != nil {
		return fmt.Errorf("postgres: removing post %s from user %s: %w", postID, userID, err)
	}
	return nil
}

// ReplaceOwnedPosts rewrites the owned list inside one transaction.
func (db *DB) ReplaceOwnedPosts(ctx context.Context, userID string, postIDs []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := userExists(ctx, tx, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_posts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("postgres: clearing owned posts of %s: %w", userID, err)
	}
	for i, postID := range postIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_posts (user_id, post_id, position) VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, post_id) DO NOTHING`,
			userID, postID, i+1,
		)
		if err != nil {
			return fmt.Errorf("postgres: inserting owned post %s: %w", postID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: committing owned posts of %s: %w", userID, err)
	}
	return nil
}
