package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"club-chat-service/internal/models"
)

var (
	ErrReactionNotFound  = errors.New("reaction not found")
	ErrDuplicateReaction = errors.New("reaction already exists")
)

// ReactionRepository defines interactions for message reactions.
type ReactionRepository interface {
	AddReaction(ctx context.Context, messageID int, userID int, emoji string) (models.Reaction, error)
	RemoveReaction(ctx context.Context, messageID int, userID int, emoji string) error
}

// ReactionRepo is a sqlx-backed repository.
type ReactionRepo struct {
	db *sqlx.DB
}

// NewReactionRepo constructs ReactionRepo.
func NewReactionRepo(db *sqlx.DB) *ReactionRepo {
	return &ReactionRepo{db: db}
}

// AddReaction persists a reaction. The insert targets only existing,
// non-deleted messages; the unique (message, user, emoji) tuple makes the
// operation reject duplicates.
func (r *ReactionRepo) AddReaction(ctx context.Context, messageID int, userID int, emoji string) (models.Reaction, error) {
	var reaction models.Reaction
	err := r.db.QueryRowxContext(ctx, `INSERT INTO message_reactions (message_id, user_id, emoji)
        SELECT id, $2, $3 FROM chat_messages WHERE id=$1 AND is_deleted = FALSE
        RETURNING id, message_id, user_id, emoji, created_at`, messageID, userID, emoji).
		StructScan(&reaction)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.Reaction{}, ErrDuplicateReaction
		}
		if errors.Is(err, sql.ErrNoRows) {
			return models.Reaction{}, ErrMessageNotFound
		}
		return models.Reaction{}, err
	}
	return reaction, nil
}

// RemoveReaction deletes a reaction if present.
func (r *ReactionRepo) RemoveReaction(ctx context.Context, messageID int, userID int, emoji string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3`, messageID, userID, emoji)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrReactionNotFound
	}
	return nil
}
