// Package model defines the data structures used throughout the application.
package model

import "time"

// DefaultStatus is the free-text status every new account starts with.
const DefaultStatus = "I'm new here!"

// User represents a registered account.
//
// WHY IS PasswordHash TAGGED json:"-"?
// The hash must never leave the server: not in signup responses, not in
// GraphQL results, not in logs. The "-" tag makes encoding/json skip the field
// entirely, so forgetting to strip it in a handler can't leak it.
//
// POSTS IS A DENORMALIZED INDEX:
// Posts lists the ids of posts this user created, in insertion order. The
// source of truth for ownership is Post.CreatorID; this slice is a cached
// back-link that the repository keeps in sync and that can be re-derived
// from the posts table when it drifts (see service.OwnershipService).
type User struct {
	ID           string    `json:"_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	Posts        []string  `json:"posts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
