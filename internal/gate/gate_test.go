package gate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"club-chat-service/internal/mocks"
	"club-chat-service/internal/models"
	"club-chat-service/internal/repositories"
)

func TestCanObserveMember(t *testing.T) {
	memberships := new(mocks.MembershipRepositoryMock)
	memberships.On("GetMembership", mock.Anything, 5, 1).
		Return(models.Membership{RoomID: 5, UserID: 1, CanPost: false}, nil)

	observe, err := New(memberships).CanObserve(context.Background(), 5, 1)
	require.NoError(t, err)
	assert.True(t, observe)
}

func TestCanObserveNonMemberIsFalseNotError(t *testing.T) {
	memberships := new(mocks.MembershipRepositoryMock)
	memberships.On("GetMembership", mock.Anything, 5, 9).
		Return(nil, repositories.ErrMembershipNotFound)

	observe, err := New(memberships).CanObserve(context.Background(), 5, 9)
	require.NoError(t, err)
	assert.False(t, observe)
}

func TestCanObservePropagatesStoreError(t *testing.T) {
	memberships := new(mocks.MembershipRepositoryMock)
	memberships.On("GetMembership", mock.Anything, 5, 1).
		Return(nil, assert.AnError)

	_, err := New(memberships).CanObserve(context.Background(), 5, 1)
	require.Error(t, err)
}

func TestCanPostFollowsMembershipFlag(t *testing.T) {
	memberships := new(mocks.MembershipRepositoryMock)
	memberships.On("GetMembership", mock.Anything, 5, 1).
		Return(models.Membership{RoomID: 5, UserID: 1, CanPost: true}, nil).Once()
	memberships.On("GetMembership", mock.Anything, 5, 2).
		Return(models.Membership{RoomID: 5, UserID: 2, CanPost: false}, nil).Once()

	g := New(memberships)

	post, err := g.CanPost(context.Background(), 5, 1)
	require.NoError(t, err)
	assert.True(t, post)

	post, err = g.CanPost(context.Background(), 5, 2)
	require.NoError(t, err)
	assert.False(t, post)
}

func TestCanPostNonMemberIsFalseNotError(t *testing.T) {
	memberships := new(mocks.MembershipRepositoryMock)
	memberships.On("GetMembership", mock.Anything, 5, 9).
		Return(nil, repositories.ErrMembershipNotFound)

	post, err := New(memberships).CanPost(context.Background(), 5, 9)
	require.NoError(t, err)
	assert.False(t, post)
}
