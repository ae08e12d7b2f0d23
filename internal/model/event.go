package model

// PostAction names the kind of mutation a PostEvent reports.
type PostAction string

const (
	ActionCreate PostAction = "create"
	ActionUpdate PostAction = "update"
	ActionDelete PostAction = "delete"
)

// PostEvent is broadcast to live subscribers after a post mutation commits.
//
// Create and update events carry the full post; delete events carry only the
// id, since the record no longer exists:
//
//	{"action":"update","post":{...}}
//	{"action":"delete","postId":"cv37rs3pp9olc6atsptg"}
type PostEvent struct {
	Action PostAction `json:"action"`
	Post   *Post      `json:"post,omitempty"`
	PostID string     `json:"postId,omitempty"`
}
