package domain

// Page is one slice of a keyset-paginated listing.
// NextCursor is set only when HasMore is true.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}
