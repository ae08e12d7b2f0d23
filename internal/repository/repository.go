// Package repository declares the storage gateways the service layer talks to.
//
// Two implementations live in sub-packages: sqlite (the default, embedded)
// and postgres (selected when DATABASE_URL is set). Both satisfy the same
// interfaces, so the services never know which one they got.
//
// NO AUTHORIZATION HERE:
// Gateways store and fetch. Deciding who may mutate what is the Guard's job
// in the service layer.
package repository

import (
	"context"

	"github.com/sakif/blog-feed/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// PostRepository is the Post Store Gateway.
type PostRepository interface {
	// Create assigns ID, CreatedAt and UpdatedAt. CreatorID is mandatory.
	Create(ctx context.Context, post *model.Post) error
	// GetByID returns apperror.ErrNotFound if the post is absent.
	GetByID(ctx context.Context, id string) (*model.Post, error)
	// List returns one page, newest first, plus the total number of posts.
	List(ctx context.Context, opts ListOptions) ([]model.Post, int, error)
	// Update replaces title, content and image. UpdatedAt is taken from the
	// argument; the caller guarantees it never goes backwards.
	Update(ctx context.Context, post *model.Post) error
	Delete(ctx context.Context, id string) error
	// ListIDsByCreator queries the primary ownership relation (post.creator),
	// oldest first. It is what the owned-post index is re-derived from.
	ListIDsByCreator(ctx context.Context, userID string) ([]string, error)
	// ListCreatorsByImage returns the distinct creator ids of every post
	// whose image is imageURL. An empty result means no post references it.
	ListCreatorsByImage(ctx context.Context, imageURL string) ([]string, error)
}

// UserRepository is the User Aggregate Gateway.
type UserRepository interface {
	// CreateUser returns apperror.ErrConflict if the email is taken.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateStatus(ctx context.Context, id, status string) error
	ListUserIDs(ctx context.Context) ([]string, error)

	// AddOwnedPost appends postID to the user's owned list; a no-op if it is
	// already there.
	AddOwnedPost(ctx context.Context, userID, postID string) error
	// RemoveOwnedPost removes postID; a silent no-op if it isn't a member.
	RemoveOwnedPost(ctx context.Context, userID, postID string) error
	// ReplaceOwnedPosts overwrites the whole owned list (index repair).
	ReplaceOwnedPosts(ctx context.Context, userID string, postIDs []string) error
}
