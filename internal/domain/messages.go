package domain

// Frame types from client.
const (
	MsgTypeAuth        = "auth"
	MsgTypeEnter       = "enter"
	MsgTypeSubscribe   = "subscribe"
	MsgTypeUnsubscribe = "unsubscribe"
	MsgTypeLeave       = "leave"
	MsgTypeMessage     = string(EventTypeMessage)
	MsgTypeEmoji       = string(EventTypeEmoji)
	MsgTypePing        = "ping"
)

// Frame types to client.
const (
	MsgTypeAuthResult   = "auth_result"
	MsgTypeSubscribed   = "subscribed"
	MsgTypeUnsubscribed = "unsubscribed"
	MsgTypeLeft         = "left"
	MsgTypeCount        = "count"
	MsgTypeRoomClosed   = "room_closed"
	MsgTypeError        = "error"
	MsgTypePong         = "pong"
)

// Error codes
const (
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseMessage is the envelope every frame shares.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server frames

type AuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type EnterMessage struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	JoinCode string `json:"join_code"`
}

// RoomMessage serves subscribe, unsubscribe and leave.
type RoomMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type ChatMessageIn struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Body   string `json:"body"`
}

type EmojiMessageIn struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id"`
	EmojiType string `json:"emoji_type"`
}

// Server -> Client frames

type AuthResultMessage struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Message  string `json:"message,omitempty"`
}

type SubscribedMessage struct {
	Type        string `json:"type"`
	RoomID      string `json:"room_id"`
	Title       string `json:"title,omitempty"`
	ViewerCount int    `json:"viewer_count"`
}

type RoomAckMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type CountMessage struct {
	Type        string `json:"type"`
	RoomID      string `json:"room_id"`
	ViewerCount int    `json:"viewer_count"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
