package domain

// Event types published after a successful mutation.
const (
	EventWishCreated       = "wish-created"
	EventWishStatusChanged = "wish-status-changed"
	EventWishDeleted       = "wish-deleted"
)

// Event describes a change to the wish collection.
type Event struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	WishID string `json:"wishId"`
	Text   string `json:"text,omitempty"`
	Status Status `json:"status,omitempty"`
	Time   int64  `json:"time"`
}
