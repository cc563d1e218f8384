package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomEvent_Validate(t *testing.T) {
	valid := NewChatMessage("r1", "u1", "hello")
	require.NoError(t, valid.Validate())

	emoji := NewEmojiReaction("r1", "u1", "heart")
	require.NoError(t, emoji.Validate())

	cases := map[string]func(e *RoomEvent){
		"missing room":       func(e *RoomEvent) { e.RoomID = "" },
		"missing sender":     func(e *RoomEvent) { e.SenderID = "" },
		"blank body":         func(e *RoomEvent) { e.Body = "  \n" },
		"long body":          func(e *RoomEvent) { e.Body = strings.Repeat("a", MaxMessageBodyLength+1) },
		"message with emoji": func(e *RoomEvent) { e.EmojiType = "heart" },
		"unknown type":       func(e *RoomEvent) { e.Type = "sticker" },
		"no timestamp":       func(e *RoomEvent) { e.Timestamp = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			e := NewChatMessage("r1", "u1", "hello")
			mutate(&e)
			assert.ErrorIs(t, e.Validate(), ErrInvalidInput)
		})
	}

	badEmoji := NewEmojiReaction("r1", "u1", "two words")
	assert.ErrorIs(t, badEmoji.Validate(), ErrInvalidInput)
	emojiWithBody := NewEmojiReaction("r1", "u1", "heart")
	emojiWithBody.Body = "x"
	assert.ErrorIs(t, emojiWithBody.Validate(), ErrInvalidInput)
}

func TestRoomEvent_WireShape(t *testing.T) {
	e := RoomEvent{Type: EventTypeEmoji, ID: "01H", RoomID: "r1", SenderID: "u1", EmojiType: "clap", Timestamp: 1700000000000}

	data, err := json.Marshal(e)
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"emoji","id":"01H","room_id":"r1","sender_id":"u1","emoji_type":"clap","timestamp":1700000000000}`, string(data))
}

func TestRoomToModel_ActiveTitle(t *testing.T) {
	r := &Room{ID: "r1", Title: "movie-night", IsActive: true, HashtagIDs: []uint{3, 1}}
	m := RoomToModel(r)

	require.NotNil(t, m.ActiveTitle)
	assert.Equal(t, "movie-night", *m.ActiveTitle)
	require.Len(t, m.Hashtags, 2)
	assert.Equal(t, 1, m.Hashtags[1].Position)

	back := m.ToDomain()
	assert.Equal(t, []uint{3, 1}, back.HashtagIDs)

	r.IsActive = false
	assert.Nil(t, RoomToModel(r).ActiveTitle)
}
