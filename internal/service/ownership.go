package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sakif/blog-feed/internal/repository"
)

// OwnershipService repairs the owned-post index (User.Posts).
//
// post.creator is the source of truth. The index is appended to after a
// create and pruned after a delete, in separate statements; if the second
// statement fails, the index drifts. Repair re-derives it from the posts
// table and overwrites it.
type OwnershipService struct {
	posts  repository.PostRepository
	users  repository.UserRepository
	logger *slog.Logger
}

func NewOwnershipService(posts repository.PostRepository, users repository.UserRepository, logger *slog.Logger) *OwnershipService {
	return &OwnershipService{posts: posts, users: users, logger: logger}
}

// Repair rebuilds one user's index. It reports whether anything changed.
func (s *OwnershipService) Repair(ctx context.Context, userID string) (bool, error) {
	want, err := s.posts.ListIDsByCreator(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("service/ownership: listing posts of %s: %w", userID, err)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("service/ownership: loading user %s: %w", userID, err)
	}

	if sameMembers(user.Posts, want) {
		return false, nil
	}

	if err := s.users.ReplaceOwnedPosts(ctx, userID, want); err != nil {
		return false, fmt.Errorf("service/ownership: replacing index of %s: %w", userID, err)
	}

	s.logger.Info("ownership index repaired",
		slog.String("userID", userID),
		slog.Int("before", len(user.Posts)),
		slog.Int("after", len(want)),
	)
	return true, nil
}

// RepairAll walks every user. A failure for one user is logged and does
// not stop the walk; all failures are returned joined.
func (s *OwnershipService) RepairAll(ctx context.Context) (int, error) {
	ids, err := s.users.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("service/ownership: listing users: %w", err)
	}

	repaired := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}
		changed, err := s.Repair(ctx, id)
		if err != nil {
			s.logger.Warn("ownership repair failed", slog.String("userID", id), slog.String("error", err.Error()))
			errs = append(errs, err)
			continue
		}
		if changed {
			repaired++
		}
	}
	return repaired, errors.Join(errs...)
}

// sameMembers compares the index with the derived list as sets. Order in
// the index is insertion order and may legitimately differ from creation
// order, so it does not count as drift.
func sameMembers(have, want []string) bool {
	if len(have) != len(want) {
		return false
	}
	a := slices.Clone(have)
	b := slices.Clone(want)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// Reconciler runs RepairAll on a fixed interval in the background.
//
// LIFECYCLE:
// Start launches one goroutine; Stop signals it through the done channel
// and waits for it. Both are guarded by sync.Once so double calls are safe.
type Reconciler struct {
	svc      *OwnershipService
	interval time.Duration
	logger   *slog.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewReconciler returns a stopped reconciler. An interval <= 0 makes Start
// a no-op.
func NewReconciler(svc *OwnershipService, interval time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		svc:      svc,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.loop(ctx)
		r.logger.Info("ownership reconciler started", slog.Duration("interval", r.interval))
	})
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

func (r *Reconciler) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := r.svc.RepairAll(ctx)
			if err != nil {
				r.logger.Warn("ownership reconcile pass had errors", slog.String("error", err.Error()))
			}
			if n > 0 {
				r.logger.Info("ownership reconcile pass", slog.Int("repaired", n))
			}
		case <-r.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
