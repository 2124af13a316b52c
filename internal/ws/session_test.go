package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"club-chat-service/internal/gate"
	"club-chat-service/internal/mocks"
	"club-chat-service/internal/models"
	"club-chat-service/internal/observability"
	"club-chat-service/internal/repositories"
)

type sessionFixture struct {
	session     *session
	sender      *fakePeer
	other       *fakePeer
	registry    *Registry
	memberships *mocks.MembershipRepositoryMock
	messages    *mocks.MessageRepositoryMock
	reactions   *mocks.ReactionRepositoryMock
}

// newSessionFixture wires a session for user 1 ("alice") plus a second
// connected peer for user 2 ("bob") in the same room.
func newSessionFixture(t *testing.T, room models.Room) *sessionFixture {
	t.Helper()

	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry)
	memberships := new(mocks.MembershipRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	reactions := new(mocks.ReactionRepositoryMock)

	sender := &fakePeer{}
	other := &fakePeer{}
	registry.Register(room.ID, sender, info(1, "alice"))
	registry.Register(room.ID, other, info(2, "bob"))

	s := &session{
		room:        room,
		userID:      1,
		username:    "alice",
		peer:        sender,
		registry:    registry,
		broadcaster: broadcaster,
		gate:        gate.New(memberships),
		memberships: memberships,
		messages:    messages,
		reactions:   reactions,
	}

	return &sessionFixture{
		session:     s,
		sender:      sender,
		other:       other,
		registry:    registry,
		memberships: memberships,
		messages:    messages,
		reactions:   reactions,
	}
}

func activeRoom() models.Room {
	return models.Room{ID: 5, Name: "general", RoomType: models.RoomTypeGeneral, IsActive: true}
}

func (f *sessionFixture) allowPosting() {
	f.memberships.On("GetMembership", mock.Anything, f.session.room.ID, 1).
		Return(models.Membership{RoomID: f.session.room.ID, UserID: 1, CanPost: true}, nil)
}

func (f *sessionFixture) haveMessage(id int) {
	f.messages.On("GetMessage", mock.Anything, id).
		Return(models.Message{ID: id, RoomID: f.session.room.ID}, nil)
}

func errorMessages(t *testing.T, peer *fakePeer) []string {
	t.Helper()
	out := []string{}
	for _, event := range peer.events(t) {
		if event["type"] == "error" {
			out = append(out, event["message"].(string))
		}
	}
	return out
}

func TestChatMessagePersistsThenBroadcasts(t *testing.T) {
	f := newSessionFixture(t, activeRoom())
	f.allowPosting()

	stored := models.Message{ID: 10, RoomID: 5, SenderID: 1, Content: "hi", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.messages.On("CreateMessage", mock.Anything, 5, 1, "hi", true).
		Run(func(mock.Arguments) {
			// Durability precedes visibility: nothing is delivered before
			// the store call returns.
			require.Empty(t, f.other.sent)
			require.Empty(t, f.sender.sent)
		}).
		Return(stored, nil).Once()

	f.session.handleEvent(context.Background(), []byte(`{"type":"chat_message","content":"hi"}`))

	// Both sender and the other member receive the authoritative copy.
	for _, peer := range []*fakePeer{f.sender, f.other} {
		events := peer.events(t)
		require.Len(t, events, 1)
		assert.Equal(t, "new_message", events[0]["type"])
		message := events[0]["message"].(map[string]any)
		assert.Equal(t, float64(10), message["id"])
		assert.Equal(t, "hi", message["content"])
		assert.Equal(t, float64(1), message["sender_id"])
		assert.Equal(t, "alice", message["sender_username"])
	}
	f.messages.AssertExpectations(t)
}

func TestChatMessageEmptyContentIsLocalError(t *testing.T) {
	f := newSessionFixture(t, activeRoom())

	f.session.handleEvent(context.Background(), []byte(`{"type":"chat_message","content":"   "}`))

	require.Equal(t, []string{"Message content cannot be empty"}, errorMessages(t, f.sender))
	assert.Empty(t, f.other.sent)
	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestChatMessageWithoutCanPostIsLocalError(t *testing.T) {
	f := newSessionFixture(t, activeRoom())
	f.memberships.On("GetMembership", mock.Anything, 5, 1).
		Return(models.Membership{RoomID: 5, UserID: 1, CanPost: false}, nil).Once()

	f.session.handleEvent(context.Background(), []byte(`{"type":"chat_message","content":"hi"}`))

	require.Equal(t, []string{"You cannot post messages in this room"}, errorMessages(t, f.sender))
	assert.Empty(t, f.other.sent)
	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestChatMessagePersistenceFailureShortCircuitsBroadcast(t *testing.T) {
	f := newSessionFixture(t, activeRoom())
	f.allowPosting()
	f.messages.On("CreateMessage", mock.Anything, 5, 1, "hi", true).
		Return(models.Message{}, assert.AnError).Once()

	f.session.handleEvent(context.Background(), []byte(`{"type":"chat_message","content":"hi"}`))

	require.Equal(t, []string{"Error processing message"}, errorMessages(t, f.sender))
	assert.Empty(t, f.other.sent)
}

func TestChatMessageInModeratedRoomIsHeldBack(t *testing.T) {
	room := activeRoom()
	room.IsModerated = true
	f := newSessionFixture(t, room)
	f.allowPosting()

	stored := models.Message{ID: 11, RoomID: 5, SenderID: 1, Content: "hi", IsApproved: false}
	f.messages.On("CreateMessage", mock.Anything, 5, 1, "hi", false).Return(stored, nil).Once()

	f.session.handleEvent(context.Background(), []byte(`{"type":"chat_message","content":"hi"}`))

	require.Equal(t, []string{"new_message"}, f.sender.eventTypes(t))
	assert.Empty(t, f.other.sent)
	f.messages.AssertExpectations(t)
}

func TestTypingBroadcastExcludesSender(t *testing.T) {
	f := newSessionFixture(t, activeRoom())

	f.session.handleEvent(context.Background(), []byte(`{"type":"typing","is_typing":true}`))

	assert.Empty(t, f.sender.sent)
	require.Equal(t, []string{"typing"}, f.other.eventTypes(t))
	event := f.other.events(t)[0]
	assert.Equal(t, float64(5), event["room_id"])
	assert.Equal(t, float64(1), event["user_id"])
	assert.Equal(t, true, event["is_typing"])
}

func TestReactionAddBroadcastsWithReactionID(t *testing.T) {
	f := newSessionFixture(t, activeRoom())
	f.haveMessage(10)
	f.reactions.On("AddReaction", mock.Anything, 10, 1, "👍").
		Return(models.Reaction{ID: 77, MessageID: 10, UserID: 1, Emoji: "👍"}, nil).Once()

	f.session.handleEvent(context.Background(), []byte(`{"type":"reaction","message_id":10,"emoji":"👍","action":"add"}`))

	for _, peer := range []*fakePeer{f.sender, f.other} {
		events := peer.events(t)
		require.Len(t, events, 1)
		assert.Equal(t, "reaction_added", events[0]["type"])
		assert.Equal(t, float64(77), events[0]["reaction_id"])
	}
	f.reactions.AssertExpectations(t)
}

func TestReactionDuplicateAddIsLocalError(t *testing.T) {
	f := newSessionFixture(t, activeRoom())
	f.haveMessage(10)
	f.reactions.On("AddReaction", mock.Anything, 10, 1, "👍").
		Return(models.Reaction{}, repositories.ErrDuplicateReaction).Once()

	f.session.handleEvent(context.Background(), []byte(`{"type":"reaction","message_id":10,"emoji":"👍","action":"add"}`))

	require.Equal(t, []string{"Reaction already exists"}, errorMessages(t, f.sender))
	assert.Empty(t, f.other.sent)
}

func TestReactionRemoveMissingIsLocalError(t *testing.T) {
	f := newSessionFixture(t, activeRoom())
	f.haveMessage(10)
	f.reactions.On("RemoveReaction", mock.Anything, 10, 1, "👍").
		Return(repositories.ErrReactionNotFound).Once()

	f.session.handleEvent(context.Background(), []byte(`{"type":"reaction","message_id":10,"emoji":"👍","action":"remove"}`))

	require.Equal(t, []string{"Reaction not found"}, errorMessages(t, f.sender))
	assert.Empty(t, f.other.sent)
}

func TestReactionRemoveBroadcasts(t *testing.T) {
	f := newSessionFixture(t, activeRoom())
	f.haveMessage(10)
	f.reactions.On("RemoveReaction", mock.Anything, 10, 1, "👍").Return(nil).Once()

	f.session.handleEvent(context.Background(), []byte(`{"type":"reaction","message_id":10,"emoji":"👍","action":"remove"}`))

	require.Equal(t, []string{"reaction_removed"}, f.sender.eventTypes(t))
	require.Equal(t, []string{"reaction_removed"}, f.other.eventTypes(t))
}

func TestReactionInvalidActionIsLocalError(t *testing.T) {
	f := newSessionFixture(t, activeRoom())
	f.haveMessage(10)

	f.session.handleEvent(context.Background(), []byte(`{"type":"reaction","message_id":10,"emoji":"👍","action":"toggle"}`))

	require.Equal(t, []string{"Invalid reaction action"}, errorMessages(t, f.sender))
	assert.Empty(t, f.other.sent)
	f.reactions.AssertNotCalled(t, "AddReaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReactionToUnknownMessageIsLocalError(t *testing.T) {
	f := newSessionFixture(t, activeRoom())
	f.messages.On("GetMessage", mock.Anything, 10).
		Return(nil, repositories.ErrMessageNotFound).Once()

	f.session.handleEvent(context.Background(), []byte(`{"type":"reaction","message_id":10,"emoji":"👍","action":"add"}`))

	require.Equal(t, []string{"Message not found"}, errorMessages(t, f.sender))
	assert.Empty(t, f.other.sent)
	f.reactions.AssertNotCalled(t, "AddReaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReactionToMessageInAnotherRoomIsLocalError(t *testing.T) {
	f := newSessionFixture(t, activeRoom())
	f.messages.On("GetMessage", mock.Anything, 10).
		Return(models.Message{ID: 10, RoomID: 99}, nil).Once()

	f.session.handleEvent(context.Background(), []byte(`{"type":"reaction","message_id":10,"emoji":"👍","action":"add"}`))

	require.Equal(t, []string{"Message not found"}, errorMessages(t, f.sender))
	assert.Empty(t, f.other.sent)
	f.reactions.AssertNotCalled(t, "AddReaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReactionToDeletedMessageIsLocalError(t *testing.T) {
	f := newSessionFixture(t, activeRoom())
	f.messages.On("GetMessage", mock.Anything, 10).
		Return(models.Message{ID: 10, RoomID: 5, IsDeleted: true}, nil).Once()

	f.session.handleEvent(context.Background(), []byte(`{"type":"reaction","message_id":10,"emoji":"👍","action":"add"}`))

	require.Equal(t, []string{"Message not found"}, errorMessages(t, f.sender))
	assert.Empty(t, f.other.sent)
	f.reactions.AssertNotCalled(t, "AddReaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReactionMissingFieldsIsLocalError(t *testing.T) {
	f := newSessionFixture(t, activeRoom())

	f.session.handleEvent(context.Background(), []byte(`{"type":"reaction","action":"add"}`))

	require.Equal(t, []string{"Missing message_id or emoji"}, errorMessages(t, f.sender))
	assert.Empty(t, f.other.sent)
}

func TestPingRepliesPongToSenderOnly(t *testing.T) {
	f := newSessionFixture(t, activeRoom())

	f.session.handleEvent(context.Background(), []byte(`{"type":"ping"}`))

	require.Equal(t, []string{"pong"}, f.sender.eventTypes(t))
	assert.Empty(t, f.other.sent)
}

func TestMalformedJSONIsLocalError(t *testing.T) {
	f := newSessionFixture(t, activeRoom())

	f.session.handleEvent(context.Background(), []byte(`{not json`))

	require.Equal(t, []string{"Invalid JSON format"}, errorMessages(t, f.sender))
	assert.Empty(t, f.other.sent)
	// The connection stays registered; the session keeps serving.
	assert.Equal(t, 2, f.registry.Count(5))
}

func TestUnknownEventTypeIsLocalError(t *testing.T) {
	f := newSessionFixture(t, activeRoom())

	f.session.handleEvent(context.Background(), []byte(`{"type":"shout"}`))

	require.Equal(t, []string{"Unknown message type: shout"}, errorMessages(t, f.sender))
	assert.Empty(t, f.other.sent)
}

func TestTeardownUnregistersAndAnnouncesOnce(t *testing.T) {
	f := newSessionFixture(t, activeRoom())
	f.memberships.On("TouchLastRead", mock.Anything, 5, 1, mock.Anything).Return(nil).Once()

	f.session.teardown(context.Background(), "client closed")
	f.session.teardown(context.Background(), "client closed")

	assert.Equal(t, 1, f.registry.Count(5))
	left := 0
	for _, event := range f.other.events(t) {
		if event["type"] == "user_left" {
			left++
			assert.Equal(t, float64(1), event["user_id"])
			assert.Equal(t, "alice", event["username"])
		}
	}
	assert.Equal(t, 1, left)
	f.memberships.AssertExpectations(t)
}

func TestTeardownPublishesDisconnectEvent(t *testing.T) {
	f := newSessionFixture(t, activeRoom())
	f.memberships.On("TouchLastRead", mock.Anything, 5, 1, mock.Anything).Return(nil).Once()

	publisher := new(mocks.PublisherMock)
	publisher.On("PublishJSON", mock.Anything, "ws_events.rooms", mock.Anything, mock.Anything).Return(nil).Once()
	observability.SetPublisher(publisher)
	defer observability.SetPublisher(nil)

	f.session.teardown(context.Background(), "client closed")

	publisher.AssertExpectations(t)
	envelope, ok := publisher.Calls[0].Arguments.Get(2).(observability.EventEnvelope)
	require.True(t, ok)
	assert.Equal(t, "ws_events", envelope.EventType)
	assert.Equal(t, "ws_disconnect", envelope.EventName)

	payload, ok := envelope.Payload.(map[string]interface{})
	require.True(t, ok)
	wsPart := payload["ws"].(map[string]interface{})
	assert.Equal(t, 5, wsPart["resource_id"])
	assert.Equal(t, "ws_disconnect", wsPart["event"])
	assert.Equal(t, "client closed", wsPart["reason"])
	identity := payload["identity"].(map[string]interface{})
	assert.Equal(t, 1, identity["user_id"])
}

func TestTeardownAfterEvictionSkipsAnnouncement(t *testing.T) {
	f := newSessionFixture(t, activeRoom())

	// A broadcast pass already evicted the sender.
	f.registry.Unregister(5, f.sender)
	f.session.teardown(context.Background(), "connection reset")

	assert.Empty(t, f.other.sent)
	f.memberships.AssertNotCalled(t, "TouchLastRead", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReactionPairAddRemoveAddSucceeds(t *testing.T) {
	f := newSessionFixture(t, activeRoom())
	f.haveMessage(10)
	f.reactions.On("AddReaction", mock.Anything, 10, 1, "👍").
		Return(models.Reaction{ID: 1, MessageID: 10, UserID: 1, Emoji: "👍"}, nil).Once()
	f.reactions.On("RemoveReaction", mock.Anything, 10, 1, "👍").Return(nil).Once()
	f.reactions.On("AddReaction", mock.Anything, 10, 1, "👍").
		Return(models.Reaction{ID: 2, MessageID: 10, UserID: 1, Emoji: "👍"}, nil).Once()

	add := []byte(`{"type":"reaction","message_id":10,"emoji":"👍","action":"add"}`)
	remove := []byte(`{"type":"reaction","message_id":10,"emoji":"👍","action":"remove"}`)
	f.session.handleEvent(context.Background(), add)
	f.session.handleEvent(context.Background(), remove)
	f.session.handleEvent(context.Background(), add)

	assert.Empty(t, errorMessages(t, f.sender))
	assert.Equal(t, []string{"reaction_added", "reaction_removed", "reaction_added"}, f.other.eventTypes(t))
	f.reactions.AssertExpectations(t)
}
