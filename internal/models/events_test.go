package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboundEnvelopeExtractsTypeOnly(t *testing.T) {
	raw := []byte(`{"type":"chat_message","content":"hi","extra":"ignored"}`)

	var env InboundEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, EventChatMessage, env.Type)

	var in ChatMessageIn
	require.NoError(t, json.Unmarshal(raw, &in))
	assert.Equal(t, "hi", in.Content)
}

func TestInboundEnvelopeMissingType(t *testing.T) {
	var env InboundEnvelope
	require.NoError(t, json.Unmarshal([]byte(`{"content":"hi"}`), &env))
	assert.Empty(t, env.Type)
}

func TestReactionEventOmitsZeroReactionID(t *testing.T) {
	removed, err := json.Marshal(ReactionEvent{Type: "reaction_removed", MessageID: 10, UserID: 1, Emoji: "👍"})
	require.NoError(t, err)
	assert.NotContains(t, string(removed), "reaction_id")

	added, err := json.Marshal(ReactionEvent{Type: "reaction_added", MessageID: 10, UserID: 1, Emoji: "👍", ReactionID: 77})
	require.NoError(t, err)
	assert.Contains(t, string(added), `"reaction_id":77`)
}

func TestNewMessageViewCarriesSenderUsername(t *testing.T) {
	now := time.Now()
	msg := Message{ID: 10, RoomID: 5, SenderID: 1, Content: "hi", CreatedAt: now, UpdatedAt: now, IsEdited: true}

	view := NewMessageView(msg, "alice")
	assert.Equal(t, 10, view.ID)
	assert.Equal(t, 5, view.RoomID)
	assert.Equal(t, 1, view.SenderID)
	assert.Equal(t, "alice", view.SenderUsername)
	assert.Equal(t, "hi", view.Content)
	assert.True(t, view.IsEdited)
}
