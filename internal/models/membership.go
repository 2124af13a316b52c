package models

import "time"

// Membership grants a user observe/post rights in a room.
type Membership struct {
	ID                   int        `db:"id" json:"id"`
	RoomID               int        `db:"room_id" json:"room_id"`
	UserID               int        `db:"user_id" json:"user_id"`
	IsAdmin              bool       `db:"is_admin" json:"is_admin"`
	IsModerator          bool       `db:"is_moderator" json:"is_moderator"`
	CanPost              bool       `db:"can_post" json:"can_post"`
	NotificationsEnabled bool       `db:"notifications_enabled" json:"notifications_enabled"`
	JoinedAt             time.Time  `db:"joined_at" json:"joined_at"`
	LastReadAt           *time.Time `db:"last_read_at" json:"last_read_at,omitempty"`
}
