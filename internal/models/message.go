package models

import "time"

// MessageType classifies message content.
type MessageType string

const (
	MessageTypeText         MessageType = "text"
	MessageTypeImage        MessageType = "image"
	MessageTypeFile         MessageType = "file"
	MessageTypeAnnouncement MessageType = "announcement"
)

// Message represents a chat message in a room. ReplyToID is a plain
// integer reference resolved by id lookup, never an embedded message.
type Message struct {
	ID          int         `db:"id" json:"id"`
	RoomID      int         `db:"room_id" json:"room_id"`
	SenderID    int         `db:"sender_id" json:"sender_id"`
	MessageType MessageType `db:"message_type" json:"message_type"`
	Content     string      `db:"content" json:"content"`
	FileURL     *string     `db:"file_url" json:"file_url,omitempty"`
	ReplyToID   *int        `db:"reply_to_id" json:"reply_to_id,omitempty"`
	IsEdited    bool        `db:"is_edited" json:"is_edited"`
	IsDeleted   bool        `db:"is_deleted" json:"is_deleted"`
	IsPinned    bool        `db:"is_pinned" json:"is_pinned"`
	IsApproved  bool        `db:"is_approved" json:"is_approved"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// Reaction is a per-user emoji annotation on a message, unique per
// (message, user, emoji).
type Reaction struct {
	ID        int       `db:"id" json:"id"`
	MessageID int       `db:"message_id" json:"message_id"`
	UserID    int       `db:"user_id" json:"user_id"`
	Emoji     string    `db:"emoji" json:"emoji"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
