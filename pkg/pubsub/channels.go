package pubsub

import (
	"fmt"
	"strings"
)

// Channel naming for live-room traffic: live:room:{roomID}:events.
const (
	ChannelRoomEvents = "live:room:%s:events"

	// PatternRoomEvents matches the events channel of every room.
	PatternRoomEvents = "live:room:*:events"
)

// Event types carried on the room events channel.
const (
	// EventRoomFrame wraps an already-encoded frame that must be fanned out
	// to the local subscribers of a room.
	EventRoomFrame = "room_frame"

	// EventRoomClosed tells every instance to tear down the room's channel.
	EventRoomClosed = "room_closed"
)

// RoomEventsChannel returns the channel name for a room's events.
func RoomEventsChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoomEvents, roomID)
}

// RoomIDFromChannel extracts the room id from a room-scoped channel name.
func RoomIDFromChannel(channel string) (string, bool) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[1] != "room" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}
