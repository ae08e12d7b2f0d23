package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakif/blog-feed/internal/apperror"
	"github.com/sakif/blog-feed/internal/auth"
	"github.com/sakif/blog-feed/internal/model"
	"github.com/sakif/blog-feed/internal/repository"
)

// User-facing messages for authorization failures.
const (
	msgNotAuthenticated = "Not authenticated."
	msgNotAuthorized    = "Not authorized!"
)

// Guard is the single authorization decision point for post mutations.
//
// The repository never checks ownership and handlers never compare ids;
// every mutating path in FeedService goes through one of these two methods
// first, so the rule lives in exactly one place:
//
//	create → caller must be authenticated
//	update/delete → caller must be authenticated AND be the post's creator
//
// RACE NOTE:
// AuthorizeModify fetches then checks; the write that follows is a separate
// statement. A concurrent delete in between turns the write into NotFound,
// which is the accepted outcome.
type Guard struct {
	posts repository.PostRepository
}

func NewGuard(posts repository.PostRepository) *Guard {
	return &Guard{posts: posts}
}

// AuthorizeCreate allows any authenticated identity to create posts.
func (g *Guard) AuthorizeCreate(id auth.Identity) error {
	if !id.Authenticated {
		return apperror.Unauthenticated(msgNotAuthenticated)
	}
	return nil
}

// AuthorizeModify returns the post when id may update or delete it.
//
// Errors: Unauthenticated for anonymous callers, NotFound when the post does
// not exist, Forbidden when someone else created it, Internal when the store
// fails.
func (g *Guard) AuthorizeModify(ctx context.Context, id auth.Identity, postID string) (*model.Post, error) {
	if !id.Authenticated {
		return nil, apperror.Unauthenticated(msgNotAuthenticated)
	}

	post, err := g.posts.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("post", postID)
		}
		return nil, apperror.Internal(fmt.Errorf("service/guard: loading post %s: %w", postID, err))
	}

	if post.CreatorID != id.UserID {
		return nil, apperror.Forbidden(msgNotAuthorized)
	}
	return post, nil
}
