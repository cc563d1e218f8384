package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// EventType discriminates room events on the wire.
type EventType string

const (
	EventTypeMessage EventType = "message"
	EventTypeEmoji   EventType = "emoji"
)

const (
	MaxMessageBodyLength = 2000
	MaxEmojiTypeLength   = 32
)

// RoomEvent is a chat message or emoji reaction broadcast to a room.
// Exactly one of Body and EmojiType is set, matching Type.
type RoomEvent struct {
	Type      EventType `json:"type"`
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Body      string    `json:"body,omitempty"`
	EmojiType string    `json:"emoji_type,omitempty"`
	Timestamp int64     `json:"timestamp"` // unix milliseconds
}

// NewChatMessage builds a message event stamped with the current time.
func NewChatMessage(roomID, senderID, body string) RoomEvent {
	return RoomEvent{
		Type:      EventTypeMessage,
		RoomID:    roomID,
		SenderID:  senderID,
		Body:      body,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewEmojiReaction builds an emoji event stamped with the current time.
func NewEmojiReaction(roomID, senderID, emojiType string) RoomEvent {
	return RoomEvent{
		Type:      EventTypeEmoji,
		RoomID:    roomID,
		SenderID:  senderID,
		EmojiType: emojiType,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Validate rejects malformed events with ErrInvalidInput.
func (e *RoomEvent) Validate() error {
	if e.RoomID == "" {
		return fmt.Errorf("%w: room_id is required", ErrInvalidInput)
	}
	if e.SenderID == "" {
		return fmt.Errorf("%w: sender_id is required", ErrInvalidInput)
	}

	switch e.Type {
	case EventTypeMessage:
		if strings.TrimSpace(e.Body) == "" {
			return fmt.Errorf("%w: message body is empty", ErrInvalidInput)
		}
		if utf8.RuneCountInString(e.Body) > MaxMessageBodyLength {
			return fmt.Errorf("%w: message body exceeds %d characters", ErrInvalidInput, MaxMessageBodyLength)
		}
		if e.EmojiType != "" {
			return fmt.Errorf("%w: message carries an emoji type", ErrInvalidInput)
		}
	case EventTypeEmoji:
		if e.EmojiType == "" || len(e.EmojiType) > MaxEmojiTypeLength || strings.IndexFunc(e.EmojiType, unicode.IsSpace) >= 0 {
			return fmt.Errorf("%w: invalid emoji type %q", ErrInvalidInput, e.EmojiType)
		}
		if e.Body != "" {
			return fmt.Errorf("%w: emoji reaction carries a body", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, e.Type)
	}

	if e.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidInput)
	}
	return nil
}
