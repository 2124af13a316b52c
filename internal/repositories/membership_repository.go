package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"club-chat-service/internal/models"
)

var ErrMembershipNotFound = errors.New("membership not found")

// MembershipRepository reads room membership rows. Membership
// administration belongs to another service; this side only looks up
// rights and advances the read marker.
type MembershipRepository interface {
	GetMembership(ctx context.Context, roomID int, userID int) (models.Membership, error)
	TouchLastRead(ctx context.Context, roomID int, userID int, readAt time.Time) error
}

// MembershipRepo is a sqlx implementation of MembershipRepository.
type MembershipRepo struct {
	db *sqlx.DB
}

// NewMembershipRepo constructs a MembershipRepo.
func NewMembershipRepo(db *sqlx.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

// GetMembership fetches the membership row for (room, user).
func (r *MembershipRepo) GetMembership(ctx context.Context, roomID int, userID int) (models.Membership, error) {
	var m models.Membership
	err := r.db.GetContext(ctx, &m, `SELECT id, room_id, user_id, is_admin, is_moderator, can_post, notifications_enabled, joined_at, last_read_at FROM chat_memberships WHERE room_id=$1 AND user_id=$2`, roomID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Membership{}, ErrMembershipNotFound
	}
	return m, err
}

// TouchLastRead advances the user's read marker for the room.
func (r *MembershipRepo) TouchLastRead(ctx context.Context, roomID int, userID int, readAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chat_memberships SET last_read_at=$3 WHERE room_id=$1 AND user_id=$2`, roomID, userID, readAt)
	return err
}
