package model

import "time"

// Post is a single feed entry.
//
// The `json:"..."` tags follow the wire format the feed clients already
// speak: ids are exposed as "_id" and the image reference as "imageUrl".
//
// CreatorID is the exclusive owner reference: one creator per post, many
// posts per user. Creator is the joined view (id + display name) that read
// paths attach for clients; it is never used for authorization.
type Post struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"imageUrl"`
	CreatorID string    `json:"-"`
	Creator   Creator   `json:"creator"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Creator is the public projection of a post's owner.
type Creator struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}
