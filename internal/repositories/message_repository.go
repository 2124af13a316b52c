package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"club-chat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for room messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, roomID int, senderID int, content string, approved bool) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, room_id, sender_id, message_type, content, file_url, reply_to_id, is_edited, is_deleted, is_pinned, is_approved, created_at, updated_at`

// CreateMessage stores a message in a room. Messages in moderated rooms
// are stored unapproved and held back from fan-out.
func (r *MessageRepo) CreateMessage(ctx context.Context, roomID int, senderID int, content string, approved bool) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO chat_messages (room_id, sender_id, content, is_approved) VALUES ($1, $2, $3, $4) RETURNING `+messageColumns, roomID, senderID, content, approved).
		StructScan(&msg)
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM chat_messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}
