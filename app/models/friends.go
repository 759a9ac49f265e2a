package models

import "time"

// Player is the public face of a signed-in user. The token subject that
// owns it is never exposed.
type Player struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// FriendRequest is a pending request between two players.
type FriendRequest struct {
	ID        int64     `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	CreatedAt time.Time `json:"created_at"`
}

type Friend struct {
	Username string    `json:"username"`
	Since    time.Time `json:"since"`
}

// UsernameRequest is the body of the profile and friend request routes.
type UsernameRequest struct {
	Username string `json:"username"`
}

// FriendDecisionRequest accepts or rejects a pending request.
type FriendDecisionRequest struct {
	RequestID int64 `json:"request_id"`
}
