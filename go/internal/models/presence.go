package models

import (
	"time"

	"github.com/google/uuid"
)

// UserStatus is the friends-visible presence state of a user.
type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
	StatusInGame  UserStatus = "in-game"
)

// FriendshipStatus defines the state of a friendship edge.
type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipBlocked  FriendshipStatus = "blocked"
)

// Friendship links two users. Only accepted friendships receive presence
// broadcasts.
type Friendship struct {
	UserID       uuid.UUID        `json:"user_id"`
	FriendUserID uuid.UUID        `json:"friend_user_id"`
	Status       FriendshipStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
}
