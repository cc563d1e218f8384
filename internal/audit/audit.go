package audit

import (
	"context"

	"github.com/weiawesome/babble-live/pkg/log"
)

// Audit actions for the live-room core.
const (
	ActionCreateRoom    = "room.create"
	ActionEnterRoom     = "room.enter"
	ActionLeaveRoom     = "room.leave"
	ActionCloseRoom     = "room.close"
	ActionGraceLeave    = "room.grace_leave"
	ActionShutdownLeave = "room.shutdown_leave"
	ActionSubscribe     = "live.subscribe"
	ActionPublishDenied = "live.publish_denied"
	ActionAuthFailed    = "live.auth_failed"
	ActionAddHashtag    = "user.hashtag_add"
	ActionRemoveHashtag = "user.hashtag_remove"
)

const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit entry for an action a user took on a room.
// roomID may be empty for user-scoped actions.
func Log(ctx context.Context, action, userID, roomID, msg string) {
	l := log.Ctx(ctx)
	e := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID)
	if roomID != "" {
		e = e.Str(log.FieldRoomID, roomID)
	}
	e.Msg(msg)
}

// LogWithDetail is Log plus a free-form detail field.
func LogWithDetail(ctx context.Context, action, userID, roomID, detail, msg string) {
	l := log.Ctx(ctx)
	e := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldDetail, detail)
	if roomID != "" {
		e = e.Str(log.FieldRoomID, roomID)
	}
	e.Msg(msg)
}
