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

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts a new account.
//
// The UNIQUE constraint on users.email is the real duplicate check. The
// service layer may look the email up first for a friendlier message, but two
// concurrent signups can both pass that lookup; only one INSERT wins here and
// the loser gets apperror.ErrConflict.
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
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.Status,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// GetUserByID retrieves a user, including the owned-post index.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByEmail looks up a user by (already normalized) email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, `WHERE email = ?`, email)
}

func (db *DB) getUser(ctx context.Context, where, arg string) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, name, status, created_at, updated_at
		 FROM users `+where,
		arg,
	).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Name,
		&u.Status,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", arg)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", arg, err)
	}

	posts, err := db.ownedPosts(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Posts = posts
	return &u, nil
}

func (db *DB) ownedPosts(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT post_id FROM user_posts WHERE user_id = ? ORDER BY position ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing owned posts of %s: %w", userID, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning owned post: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating owned posts: %w", err)
	}
	return ids, nil
}

// UpdateStatus overwrites the user's free-text status.
func (db *DB) UpdateStatus(ctx context.Context, id, status string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating status of %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// ListUserIDs returns every user id; the ownership reconciler walks it.
func (db *DB) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return ids, nil
}

// userExists is used before touching user_posts so a missing user surfaces as
// NotFound instead of a foreign key error.
func (db *DB) userExists(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return apperror.NotFound("user", id)
	}
	if err != nil {
		return fmt.Errorf("sqlite: checking user %s: %w", id, err)
	}
	return nil
}

// AddOwnedPost appends postID to the end of the user's owned list.
//
// INSERT OR IGNORE makes the call idempotent: the (user_id, post_id) primary
// key rejects a second copy and SQLite silently skips it.
func (db *DB) AddOwnedPost(ctx context.Context, userID, postID string) error {
	if err := db.userExists(ctx, db.conn, userID); err != nil {
		return err
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_posts (user_id, post_id, position)
		 SELECT ?, ?, COALESCE(MAX(position), 0) + 1 FROM user_posts WHERE user_id = ?`,
		userID,
		postID,
		userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding post %s to user %s: %w", postID, userID, err)
	}
	return nil
}

// RemoveOwnedPost drops postID from the owned list. Removing a post that
// isn't there is not an error.
func (db *DB) RemoveOwnedPost(ctx context.Context, userID, postID string) error {
	if err := db.userExists(ctx, db.conn, userID); err != nil {
		return err
	}

	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_posts WHERE user_id = ? AND post_id = ?`,
		userID,
		postID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing post %s from user %s: %w", postID, userID, err)
	}
	return nil
}

// ReplaceOwnedPosts rewrites the whole owned list in one transaction.
//
// TRANSACTIONS:
// BeginTx → work → Commit. The deferred Rollback is a no-op after a
// successful Commit, so every early return leaves the old list intact.
func (db *DB) ReplaceOwnedPosts(ctx context.Context, userID string, postIDs []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := db.userExists(ctx, tx, userID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_posts WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: clearing owned posts of %s: %w", userID, err)
	}

	for i, postID := range postIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_posts (user_id, post_id, position) VALUES (?, ?, ?)`,
			userID,
			postID,
			i+1,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting owned post %s: %w", postID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing owned posts of %s: %w", userID, err)
	}
	return nil
}
