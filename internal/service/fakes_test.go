package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/sakif/blog-feed/internal/apperror"
	"github.com/sakif/blog-feed/internal/model"
	"github.com/sakif/blog-feed/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================
//
// Hand-written in-memory fakes of the repository interfaces, the blob store
// and the notifier. Each one records what happened to it so tests can assert
// on side effects ("was anything written?", "was the blob deleted once?").

var errStoreDown = errors.New("store is down")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakePostRepo implements repository.PostRepository.
type fakePostRepo struct {
	mu     sync.Mutex
	posts  map[string]*model.Post
	order  []string
	nextID int
	clock  time.Time

	// set to a non-nil error to simulate a database failure
	createErr error
	updateErr error
	deleteErr error
	getErr    error

	writes int // Create + Update + Delete calls that reached the store
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{
		posts: make(map[string]*model.Post),
		clock: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

var _ repository.PostRepository = (*fakePostRepo)(nil)

func (f *fakePostRepo) Create(_ context.Context, post *model.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	post.ID = fmt.Sprintf("post-%d", f.nextID)
	post.CreatedAt = f.clock
	post.UpdatedAt = f.clock
	stored := *post
	f.posts[post.ID] = &stored
	f.order = append(f.order, post.ID)
	return nil
}

func (f *fakePostRepo) GetByID(_ context.Context, id string) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.posts[id]
	if !ok {
		return nil, apperror.NotFound("post", id)
	}
	result := *p
	return &result, nil
}

func (f *fakePostRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Post, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []model.Post
	for i := len(f.order) - 1; i >= 0; i-- {
		if p, ok := f.posts[f.order[i]]; ok {
			all = append(all, *p)
		}
	}
	total := len(all)
	if opts.Offset >= total {
		return []model.Post{}, total, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, total, nil
}

func (f *fakePostRepo) Update(_ context.Context, post *model.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.posts[post.ID]; !ok {
		return apperror.NotFound("post", post.ID)
	}
	stored := *post
	f.posts[post.ID] = &stored
	return nil
}

func (f *fakePostRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.posts[id]; !ok {
		return apperror.NotFound("post", id)
	}
	delete(f.posts, id)
	return nil
}

func (f *fakePostRepo) ListIDsByCreator(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := []string{}
	for _, id := range f.order {
		if p, ok := f.posts[id]; ok && p.CreatorID == userID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakePostRepo) ListCreatorsByImage(_ context.Context, imageURL string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	ids := []string{}
	for _, id := range f.order {
		p, ok := f.posts[id]
		if !ok || p.ImageURL != imageURL || seen[p.CreatorID] {
			continue
		}
		seen[p.CreatorID] = true
		ids = append(ids, p.CreatorID)
	}
	return ids, nil
}

// fakeUserRepo implements repository.UserRepository.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int

	createErr error
	getErr    error
	addErr    error
	removeErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

// seed stores u directly and returns its id.
func (f *fakeUserRepo) seed(name string) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u := &model.User{
		ID:     fmt.Sprintf("user-%d", f.nextID),
		Email:  fmt.Sprintf("%s@example.com", name),
		Name:   name,
		Status: model.DefaultStatus,
		Posts:  []string{},
	}
	f.users[u.ID] = u
	copied := *u
	return &copied
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.users {
		if u.Email == user.Email {
			return apperror.Conflict("user", user.Email)
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.Posts = []string{}
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) get(id string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	result.Posts = slices.Clone(u.Posts)
	return &result, nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get(id)
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for id, u := range f.users {
		if u.Email == email {
			return f.get(id)
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) UpdateStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.Status = status
	return nil
}

func (f *fakeUserRepo) ListUserIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.users))
	for id := range f.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (f *fakeUserRepo) AddOwnedPost(_ context.Context, userID, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	if !slices.Contains(u.Posts, postID) {
		u.Posts = append(u.Posts, postID)
	}
	return nil
}

func (f *fakeUserRepo) RemoveOwnedPost(_ context.Context, userID, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	u.Posts = slices.DeleteFunc(u.Posts, func(id string) bool { return id == postID })
	return nil
}

func (f *fakeUserRepo) ReplaceOwnedPosts(_ context.Context, userID string, postIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	u.Posts = slices.Clone(postIDs)
	return nil
}

// fakeBlobStore implements blob.Store and counts calls per path.
type fakeBlobStore struct {
	mu      sync.Mutex
	saved   []string
	deleted map[string]int
	saveErr error
	delErr  error
	n       int
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{deleted: make(map[string]int)}
}

func (f *fakeBlobStore) Save(_ context.Context, filename string, r io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	io.Copy(io.Discard, r)
	f.n++
	p := fmt.Sprintf("images/%d-%s", f.n, filename)
	f.saved = append(f.saved, p)
	return p, nil
}

func (f *fakeBlobStore) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[path]++
	return f.delErr
}

// recordingNotifier implements Notifier.
type recordingNotifier struct {
	mu     sync.Mutex
	events []model.PostEvent
	err    error
}

func (r *recordingNotifier) Publish(ev model.PostEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}
