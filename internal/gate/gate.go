// Package gate authorizes room actions against membership rows.
package gate

import (
	"context"
	"errors"

	"club-chat-service/internal/repositories"
)

// Gate answers whether a user may observe or post in a room. Missing
// membership is an ordinary false, never an error; callers translate it
// into a protocol-level rejection.
type Gate struct {
	memberships repositories.MembershipRepository
}

// New constructs a Gate.
func New(memberships repositories.MembershipRepository) *Gate {
	return &Gate{memberships: memberships}
}

// CanObserve reports whether a membership row exists for (room, user).
func (g *Gate) CanObserve(ctx context.Context, roomID int, userID int) (bool, error) {
	_, err := g.memberships.GetMembership(ctx, roomID, userID)
	if errors.Is(err, repositories.ErrMembershipNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CanPost reports whether the user is a member allowed to post.
func (g *Gate) CanPost(ctx context.Context, roomID int, userID int) (bool, error) {
	m, err := g.memberships.GetMembership(ctx, roomID, userID)
	if errors.Is(err, repositories.ErrMembershipNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.CanPost, nil
}
