package models

import "time"

// RoomType classifies a chat room by audience.
type RoomType string

const (
	RoomTypeGeneral      RoomType = "general"
	RoomTypeParents      RoomType = "parents"
	RoomTypeAthletes     RoomType = "athletes"
	RoomTypeCoaches      RoomType = "coaches"
	RoomTypeAnnouncement RoomType = "announcement"
)

// Room represents a chat room scoping participants and messages.
type Room struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	RoomType    RoomType  `db:"chat_type" json:"chat_type"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	IsPublic    bool      `db:"is_public" json:"is_public"`
	MaxMembers  *int      `db:"max_members" json:"max_members,omitempty"`
	IsModerated bool      `db:"is_moderated" json:"is_moderated"`
	CreatedByID int       `db:"created_by_id" json:"created_by_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
