package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/blog-feed/internal/apperror"
	"github.com/sakif/blog-feed/internal/model"
	"github.com/sakif/blog-feed/internal/repository"
)

// TESTING WITH IN-MEMORY SQLITE:
// Using ":memory:" creates a fresh database that exists only during the test.
// Each test gets its own database and it is destroyed when the connection closes.
//
// newTestDB is a "test helper". The `t.Helper()` call tells Go's test framework
// to report errors at the CALLER's line number, not inside this function.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestPost creates a post owned by creatorID and fails the test if it errors.
func createTestPost(t *testing.T, db *DB, creatorID, title string) *model.Post {
	t.Helper()
	post := &model.Post{
		Title:     title,
		Content:   "some content",
		ImageURL:  "images/" + title + ".png",
		CreatorID: creatorID,
	}
	if err := db.Create(context.Background(), post); err != nil {
		t.Fatalf("failed to create test post: %v", err)
	}
	return post
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreate(t *testing.T) {
	db := newTestDB(t)
	author := createTestUser(t, db, "author@example.com")

	post := &model.Post{
		Title:     "First post",
		Content:   "Hello, feed",
		ImageURL:  "images/a.png",
		CreatorID: author.ID,
	}

	if err := db.Create(context.Background(), post); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Verify the post was modified in-place (pointer receiver!)
	if post.ID == "" {
		t.Error("Create() did not set post.ID")
	}
	if post.CreatedAt.IsZero() {
		t.Error("Create() did not set post.CreatedAt")
	}
	if !post.UpdatedAt.Equal(post.CreatedAt) {
		t.Errorf("UpdatedAt = %v, want CreatedAt %v", post.UpdatedAt, post.CreatedAt)
	}
}

func TestCreate_RequiresCreator(t *testing.T) {
	db := newTestDB(t)

	err := db.Create(context.Background(), &model.Post{Title: "orphan", Content: "orphan"})
	if err == nil {
		t.Fatal("Create() without a creator should fail")
	}
}

func TestCreate_UnknownCreatorRejected(t *testing.T) {
	db := newTestDB(t)

	// posts.creator_id references users(id) and foreign keys are ON.
	err := db.Create(context.Background(), &model.Post{Title: "ghost", Content: "ghost", CreatorID: "nobody"})
	if err == nil {
		t.Fatal("Create() with an unknown creator should fail")
	}
}

// =========================================================================
// GET BY ID TESTS
// =========================================================================

func TestGetByID_IncludesCreatorName(t *testing.T) {
	db := newTestDB(t)
	author := createTestUser(t, db, "max@example.com")
	created := createTestPost(t, db, author.ID, "fetch me")

	found, err := db.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if found.Title != "fetch me" {
		t.Errorf("Title = %q, want %q", found.Title, "fetch me")
	}
	if found.CreatorID != author.ID {
		t.Errorf("CreatorID = %q, want %q", found.CreatorID, author.ID)
	}
	if found.Creator.ID != author.ID || found.Creator.Name != author.Name {
		t.Errorf("Creator = %+v, want {%s %s}", found.Creator, author.ID, author.Name)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByID(context.Background(), "nonexistent-id")

	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestList_Empty(t *testing.T) {
	db := newTestDB(t)

	posts, total, err := db.List(context.Background(), repository.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(posts) != 0 || total != 0 {
		t.Errorf("List() = %d posts, total %d; want 0, 0", len(posts), total)
	}
}

// Five posts t1..t5 created in order, page size 2:
// page 1 is [t5, t4], page 3 is [t1], total is always 5.
func TestList_NewestFirstPagination(t *testing.T) {
	db := newTestDB(t)
	author := createTestUser(t, db, "pager@example.com")

	var created []*model.Post
	for _, title := range []string{"t1", "t2", "t3", "t4", "t5"} {
		created = append(created, createTestPost(t, db, author.ID, title))
		time.Sleep(2 * time.Millisecond)
	}

	tests := []struct {
		name   string
		offset int
		want   []string
	}{
		{"page 1", 0, []string{"t5", "t4"}},
		{"page 2", 2, []string{"t3", "t2"}},
		{"page 3", 4, []string{"t1"}},
		{"past the end", 6, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts, total, err := db.List(context.Background(), repository.ListOptions{Limit: 2, Offset: tt.offset})
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if total != 5 {
				t.Errorf("total = %d, want 5", total)
			}
			if len(posts) != len(tt.want) {
				t.Fatalf("got %d posts, want %d", len(posts), len(tt.want))
			}
			for i, p := range posts {
				if p.Title != tt.want[i] {
					t.Errorf("posts[%d].Title = %q, want %q", i, p.Title, tt.want[i])
				}
				if p.Creator.Name != author.Name {
					t.Errorf("posts[%d].Creator.Name = %q, want %q", i, p.Creator.Name, author.Name)
				}
			}
		})
	}

	if created[0].ID >= created[4].ID {
		t.Error("xid ids should sort by creation time")
	}
}

func TestList_DefaultLimit(t *testing.T) {
	db := newTestDB(t)
	author := createTestUser(t, db, "many@example.com")

	for i := 0; i < 25; i++ {
		createTestPost(t, db, author.ID, "post")
	}

	posts, total, err := db.List(context.Background(), repository.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(posts) != 20 {
		t.Errorf("List() default returned %d items, want 20", len(posts))
	}
	if total != 25 {
		t.Errorf("total = %d, want 25", total)
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdate(t *testing.T) {
	db := newTestDB(t)
	author := createTestUser(t, db, "editor@example.com")
	original := createTestPost(t, db, author.ID, "original")

	original.Title = "updated title"
	original.Content = "updated content"
	original.ImageURL = "images/new.png"
	original.UpdatedAt = original.CreatedAt.Add(time.Minute)

	if err := db.Update(context.Background(), original); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	found, err := db.GetByID(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("GetByID() after update error = %v", err)
	}
	if found.Title != "updated title" || found.Content != "updated content" || found.ImageURL != "images/new.png" {
		t.Errorf("after update got %+v", found)
	}
	if !found.UpdatedAt.After(found.CreatedAt) {
		t.Errorf("UpdatedAt %v should be after CreatedAt %v", found.UpdatedAt, found.CreatedAt)
	}
	if found.CreatorID != author.ID {
		t.Errorf("CreatorID changed to %q", found.CreatorID)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.Update(context.Background(), &model.Post{ID: "nonexistent", Title: "title", Content: "content"})

	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestDelete(t *testing.T) {
	db := newTestDB(t)
	author := createTestUser(t, db, "deleter@example.com")
	post := createTestPost(t, db, author.ID, "to delete")

	if err := db.Delete(context.Background(), post.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := db.GetByID(context.Background(), post.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() after delete: error = %v, want ErrNotFound", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.Delete(context.Background(), "nonexistent-id")

	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// OWNERSHIP QUERY TESTS
// =========================================================================

func TestListIDsByCreator(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")

	a1 := createTestPost(t, db, alice.ID, "a1")
	createTestPost(t, db, bob.ID, "b1")
	a2 := createTestPost(t, db, alice.ID, "a2")

	ids, err := db.ListIDsByCreator(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("ListIDsByCreator() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != a1.ID || ids[1] != a2.ID {
		t.Errorf("ListIDsByCreator() = %v, want [%s %s]", ids, a1.ID, a2.ID)
	}

	none, err := db.ListIDsByCreator(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ListIDsByCreator() error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ListIDsByCreator(nobody) = %v, want empty", none)
	}
}

func TestListCreatorsByImage(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")

	a1 := createTestPost(t, db, alice.ID, "shared")
	createTestPost(t, db, alice.ID, "shared")

	ids, err := db.ListCreatorsByImage(context.Background(), a1.ImageURL)
	if err != nil {
		t.Fatalf("ListCreatorsByImage() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != alice.ID {
		t.Errorf("ListCreatorsByImage() = %v, want [%s]", ids, alice.ID)
	}

	createTestPost(t, db, bob.ID, "shared")
	ids, err = db.ListCreatorsByImage(context.Background(), a1.ImageURL)
	if err != nil {
		t.Fatalf("ListCreatorsByImage() error = %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("ListCreatorsByImage() = %v, want both creators", ids)
	}

	none, err := db.ListCreatorsByImage(context.Background(), "images/unused.png")
	if err != nil {
		t.Fatalf("ListCreatorsByImage() error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ListCreatorsByImage(unused) = %v, want empty", none)
	}
}
