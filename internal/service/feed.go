// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP / GraphQL) → parses requests, writes responses
//	Service (Business layer)  → validates, authorizes, orchestrates
//	Repository (Data layer)   → reads/writes to the database
//
// Both the REST handlers and the GraphQL resolvers call the same services,
// so validation and authorization behave identically on either transport.
//
// THE MUTATION PIPELINE:
// Every post mutation in FeedService is a fixed sequence of fallible steps.
// The first failing step returns and nothing after it runs:
//
//	validate → Guard → blob save → post store → ownership index → blob cleanup → notify
//
// Steps that already committed are NOT rolled back. The post row is the
// source of truth for ownership; if the ownership index step fails, the
// index is repaired later by OwnershipService.
//
// IMAGE CLAIMS:
// A blob path belongs to whoever created the posts that reference it. A
// caller may attach an existing path only if no other user's post uses it,
// and cleanup only deletes a path once no post references it at all.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/blog-feed/internal/apperror"
	"github.com/sakif/blog-feed/internal/auth"
	"github.com/sakif/blog-feed/internal/blob"
	"github.com/sakif/blog-feed/internal/model"
	"github.com/sakif/blog-feed/internal/realtime"
	"github.com/sakif/blog-feed/internal/repository"
)

const (
	// PageSize is the fixed number of posts per feed page.
	PageSize = 2
	// MinTitleLength and MinContentLength apply after trimming whitespace.
	MinTitleLength   = 5
	MinContentLength = 5
	// MaxUploadBytes caps a single image upload (10 MiB).
	MaxUploadBytes = 10 << 20
)

// MsgValidationFailed is the top-level message of every input validation error.
const MsgValidationFailed = "Validation failed, entered data is incorrect."

// allowedImageTypes are the content types accepted for post images.
var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpg":  true,
	"image/jpeg": true,
}

// Upload is an image file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// PostInput carries the user-supplied fields of a create or update.
//
// The image is either a fresh Upload or ImagePath, a path a previous upload
// returned (update without a new file, or a GraphQL client that uploaded
// through /post-image first). Image wins when both are set.
type PostInput struct {
	Title     string
	Content   string
	Image     *Upload
	ImagePath string
}

// PostPage is one page of the feed.
type PostPage struct {
	Posts      []model.Post
	TotalItems int
	Page       int
}

// Notifier receives committed post changes. *realtime.Hub implements it.
type Notifier interface {
	Publish(ev model.PostEvent) error
}

// FeedService runs the post lifecycle.
type FeedService struct {
	posts    repository.PostRepository
	users    repository.UserRepository
	guard    *Guard
	store    blob.Store
	cleaner  *blob.Cleaner
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewFeedService wires the pipeline.
func NewFeedService(
	posts repository.PostRepository,
	users repository.UserRepository,
	guard *Guard,
	store blob.Store,
	cleaner *blob.Cleaner,
	notifier Notifier,
	logger *slog.Logger,
) *FeedService {
	return &FeedService{
		posts:    posts,
		users:    users,
		guard:    guard,
		store:    store,
		cleaner:  cleaner,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// =========================================================================
// READS
// =========================================================================

// ListPosts returns page (1-indexed) of the feed, newest first. Pages below
// 1 are treated as page 1. Reads are public.
func (s *FeedService) ListPosts(ctx context.Context, page int) (*PostPage, error) {
	if page < 1 {
		page = 1
	}

	posts, total, err := s.posts.List(ctx, repository.ListOptions{
		Limit:  PageSize,
		Offset: (page - 1) * PageSize,
	})
	if err != nil {
		return nil, storeErr("listing posts", err)
	}

	return &PostPage{Posts: posts, TotalItems: total, Page: page}, nil
}

// GetPost returns a single post with its creator.
func (s *FeedService) GetPost(ctx context.Context, id string) (*model.Post, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.NotFound("post", id)
	}
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("loading post "+id, err)
	}
	return post, nil
}

// =========================================================================
// MUTATIONS
// =========================================================================

// CreatePost validates, stores and announces a new post owned by id.
func (s *FeedService) CreatePost(ctx context.Context, id auth.Identity, in PostInput) (*model.Post, error) {
	if err := s.guard.AuthorizeCreate(id); err != nil {
		return nil, err
	}

	title, content, err := validatePostInput(in, "No image provided.")
	if err != nil {
		return nil, err
	}

	creator, err := s.users.GetUserByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// A valid token for an account that no longer exists.
			return nil, apperror.Unauthenticated(msgNotAuthenticated)
		}
		return nil, storeErr("loading creator", err)
	}

	imagePath, saved, err := s.saveImage(ctx, creator.ID, in)
	if err != nil {
		return nil, err
	}

	post := &model.Post{
		Title:     title,
		Content:   content,
		ImageURL:  imagePath,
		CreatorID: creator.ID,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		if saved {
			s.cleaner.Discard(ctx, imagePath)
		}
		return nil, storeErr("creating post", err)
	}
	post.Creator = model.Creator{ID: creator.ID, Name: creator.Name}

	if err := s.users.AddOwnedPost(ctx, creator.ID, post.ID); err != nil {
		s.logger.Error("ownership index not updated after create",
			slog.String("postID", post.ID),
			slog.String("userID", creator.ID),
			slog.String("error", err.Error()),
		)
		return nil, storeErr("indexing post", err)
	}

	s.logger.Info("post created",
		slog.String("postID", post.ID),
		slog.String("userID", creator.ID),
	)
	s.notify(model.PostEvent{Action: model.ActionCreate, Post: post})
	return post, nil
}

// UpdatePost replaces title, content and image of a post id owns.
//
// ORDER MATTERS:
// Input is validated before the Guard fetches anything, and the Guard
// approves before any blob is written, so a rejected update leaves no
// trace. The old image is only removed after the new row is committed.
func (s *FeedService) UpdatePost(ctx context.Context, id auth.Identity, postID string, in PostInput) (*model.Post, error) {
	if !id.Authenticated {
		return nil, apperror.Unauthenticated(msgNotAuthenticated)
	}

	title, content, err := validatePostInput(in, "No file picked.")
	if err != nil {
		return nil, err
	}

	existing, err := s.guard.AuthorizeModify(ctx, id, postID)
	if err != nil {
		return nil, err
	}

	imagePath, saved, err := s.saveImage(ctx, id.UserID, in)
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.Title = title
	updated.Content = content
	updated.ImageURL = imagePath
	updated.UpdatedAt = s.now().UTC()
	if updated.UpdatedAt.Before(existing.UpdatedAt) {
		// Clock skew must never move UpdatedAt backwards.
		updated.UpdatedAt = existing.UpdatedAt
	}

	if err := s.posts.Update(ctx, &updated); err != nil {
		if saved {
			s.cleaner.Discard(ctx, imagePath)
		}
		return nil, storeErr("updating post "+postID, err)
	}

	if s.unreferenced(ctx, existing.ImageURL) {
		s.cleaner.ReplaceIfChanged(ctx, existing.ImageURL, updated.ImageURL)
	}

	s.logger.Info("post updated",
		slog.String("postID", postID),
		slog.String("userID", id.UserID),
	)
	s.notify(model.PostEvent{Action: model.ActionUpdate, Post: &updated})
	return &updated, nil
}

// DeletePost removes a post id owns, its index entry and its image.
func (s *FeedService) DeletePost(ctx context.Context, id auth.Identity, postID string) error {
	post, err := s.guard.AuthorizeModify(ctx, id, postID)
	if err != nil {
		return err
	}

	if err := s.posts.Delete(ctx, postID); err != nil {
		return storeErr("deleting post "+postID, err)
	}

	if err := s.users.RemoveOwnedPost(ctx, post.CreatorID, postID); err != nil {
		s.logger.Error("ownership index not updated after delete",
			slog.String("postID", postID),
			slog.String("userID", post.CreatorID),
			slog.String("error", err.Error()),
		)
		return storeErr("unindexing post", err)
	}

	if s.unreferenced(ctx, post.ImageURL) {
		s.cleaner.OnDelete(ctx, post.ImageURL)
	}

	s.logger.Info("post deleted",
		slog.String("postID", postID),
		slog.String("userID", id.UserID),
	)
	s.notify(model.PostEvent{Action: model.ActionDelete, PostID: postID})
	return nil
}

// StoreImage saves an image outside of any post (the /post-image helper
// used by GraphQL clients) and optionally retires oldPath. A nil upload is
// not an error: it returns an empty path.
//
// oldPath is only deleted when posts of id alone reference it. A path used
// by another user is Forbidden; a path nothing references is left in place.
func (s *FeedService) StoreImage(ctx context.Context, id auth.Identity, upload *Upload, oldPath string) (string, error) {
	if !id.Authenticated {
		return "", apperror.Unauthenticated(msgNotAuthenticated)
	}
	if upload == nil {
		return "", nil
	}
	if err := validateUpload(upload); err != nil {
		return "", err
	}

	oldPath = strings.TrimSpace(oldPath)
	retire := false
	if oldPath != "" {
		creators, err := s.imageCreators(ctx, oldPath)
		if err != nil {
			return "", err
		}
		if err := claimable(creators, id.UserID); err != nil {
			s.logger.Warn("image retire refused",
				slog.String("path", oldPath),
				slog.String("userID", id.UserID),
			)
			return "", err
		}
		retire = len(creators) > 0
	}

	p, err := s.store.Save(ctx, upload.Filename, upload.Body)
	if err != nil {
		return "", apperror.Internal(fmt.Errorf("service/feed: saving image: %w", err))
	}
	if retire {
		s.cleaner.ReplaceIfChanged(ctx, oldPath, p)
	}
	return p, nil
}

// =========================================================================
// HELPERS
// =========================================================================

// saveImage stores in.Image if present. saved reports whether a new blob
// was written (and must be discarded if a later step fails). A reused
// ImagePath must not be referenced by a post of anyone but userID.
func (s *FeedService) saveImage(ctx context.Context, userID string, in PostInput) (path string, saved bool, err error) {
	if in.Image == nil {
		path = strings.TrimSpace(in.ImagePath)
		creators, err := s.imageCreators(ctx, path)
		if err != nil {
			return "", false, err
		}
		if err := claimable(creators, userID); err != nil {
			s.logger.Warn("foreign image path rejected",
				slog.String("path", path),
				slog.String("userID", userID),
			)
			return "", false, err
		}
		return path, false, nil
	}
	p, err := s.store.Save(ctx, in.Image.Filename, in.Image.Body)
	if err != nil {
		return "", false, apperror.Internal(fmt.Errorf("service/feed: saving image: %w", err))
	}
	return p, true, nil
}

func (s *FeedService) imageCreators(ctx context.Context, path string) ([]string, error) {
	creators, err := s.posts.ListCreatorsByImage(ctx, path)
	if err != nil {
		return nil, storeErr("looking up image "+path, err)
	}
	return creators, nil
}

// unreferenced reports whether no post uses path any more. A lookup failure
// keeps the file: an orphan is better than a broken post.
func (s *FeedService) unreferenced(ctx context.Context, path string) bool {
	if path == "" {
		return false
	}
	creators, err := s.posts.ListCreatorsByImage(ctx, path)
	if err != nil {
		s.logger.Warn("image reference check failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return false
	}
	return len(creators) == 0
}

// claimable rejects a path that a post of another user references.
func claimable(creators []string, userID string) error {
	for _, c := range creators {
		if c != userID {
			return apperror.Forbidden(msgNotAuthorized)
		}
	}
	return nil
}

// notify publishes ev. The mutation has already committed, so a failure is
// only logged.
func (s *FeedService) notify(ev model.PostEvent) {
	err := s.notifier.Publish(ev)
	switch {
	case err == nil:
	case errors.Is(err, realtime.ErrNotStarted):
		s.logger.Warn("post event not broadcast: notifier not started",
			slog.String("action", string(ev.Action)),
		)
	default:
		s.logger.Error("post event not broadcast",
			slog.String("action", string(ev.Action)),
			slog.String("error", err.Error()),
		)
	}
}

// validatePostInput checks every field and reports all violations at once.
// missingImage is the message used when neither an upload nor a path is given.
func validatePostInput(in PostInput, missingImage string) (title, content string, err error) {
	title = strings.TrimSpace(in.Title)
	content = strings.TrimSpace(in.Content)

	var violations []apperror.FieldViolation
	if utf8.RuneCountInString(title) < MinTitleLength {
		violations = append(violations, apperror.FieldViolation{
			Field:   "title",
			Message: fmt.Sprintf("Title must be at least %d characters long.", MinTitleLength),
		})
	}
	if utf8.RuneCountInString(content) < MinContentLength {
		violations = append(violations, apperror.FieldViolation{
			Field:   "content",
			Message: fmt.Sprintf("Content must be at least %d characters long.", MinContentLength),
		})
	}
	if in.Image == nil && strings.TrimSpace(in.ImagePath) == "" {
		violations = append(violations, apperror.FieldViolation{Field: "image", Message: missingImage})
	}
	if in.Image != nil {
		if err := validateUpload(in.Image); err != nil {
			var appErr *apperror.AppError
			if errors.As(err, &appErr) {
				violations = append(violations, appErr.Violations...)
			}
		}
	}

	if len(violations) > 0 {
		return "", "", apperror.Invalid(MsgValidationFailed, violations)
	}
	return title, content, nil
}

func validateUpload(u *Upload) error {
	ct := strings.ToLower(strings.TrimSpace(u.ContentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if !allowedImageTypes[ct] {
		return apperror.ValidationFailed("image", "Only .png, .jpg and .jpeg images are allowed.")
	}
	if u.Size > MaxUploadBytes {
		return apperror.ValidationFailed("image", "Image is too large (max 10 MB).")
	}
	return nil
}

// storeErr keeps taxonomy errors (NotFound, Conflict, ...) as they are and
// turns anything else from a backing store into Internal.
func storeErr(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Internal(fmt.Errorf("service/feed: %s: %w", op, err))
}
