package chat

// User is a registered participant. Users are never hard-deleted.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Photo    []byte `json:"photo,omitempty"`
}

// UserSummary is the compact user shape embedded in other views.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Summary drops the photo payload.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username}
}
