package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/babble-live/internal/audit"
	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/internal/hub"
	"github.com/weiawesome/babble-live/internal/service"
	"github.com/weiawesome/babble-live/pkg/jwt"
	"github.com/weiawesome/babble-live/pkg/log"
	"github.com/weiawesome/babble-live/pkg/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler is the live gateway: one websocket per client, any number of
// rooms per socket.
type WSHandler struct {
	svc       service.LiveRoomService
	validator middleware.TokenValidator
	clientCfg hub.ClientConfig
}

func NewWSHandler(svc service.LiveRoomService, validator middleware.TokenValidator, clientCfg hub.ClientConfig) *WSHandler {
	return &WSHandler{
		svc:       svc,
		validator: validator,
		clientCfg: clientCfg,
	}
}

func (h *WSHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/live", h.HandleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := log.Ctx(r.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.NewString(), conn, h.clientCfg)

	// Authenticate up front when the upgrade request carries a bearer token.
	if token, ok := middleware.BearerToken(r.Header.Get(middleware.AuthHeaderKey)); ok {
		h.authenticate(client, token)
	}

	go client.WritePump()
	go client.ReadPump(h.handleMessage, h.onClose)
}

func (h *WSHandler) connContext(client *hub.Client) context.Context {
	return log.WithFields(context.Background(),
		log.FieldConnID, client.ID(),
		log.FieldUserID, client.UserID(),
	)
}

func (h *WSHandler) onClose(client *hub.Client) {
	h.svc.Disconnect(h.connContext(client), client)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid message format"))
		return
	}

	switch base.Type {
	case domain.MsgTypePing:
		client.SendJSON(domain.BaseMessage{Type: domain.MsgTypePong})
		return
	case domain.MsgTypeAuth:
		var msg domain.AuthMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid auth message"))
			return
		}
		h.authenticate(client, msg.Token)
		return
	}

	if !client.IsAuthenticated() {
		client.SendJSON(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "authenticate first"))
		return
	}

	ctx := h.connContext(client)
	switch base.Type {
	case domain.MsgTypeEnter:
		var msg domain.EnterMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid enter message"))
			return
		}
		h.handleEnter(ctx, client, &msg)

	case domain.MsgTypeSubscribe:
		var msg domain.RoomMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid subscribe message"))
			return
		}
		n, err := h.svc.Subscribe(ctx, client, msg.RoomID)
		if err != nil {
			client.SendJSON(errorFrame(ctx, err, "subscribe"))
			return
		}
		client.SendJSON(domain.SubscribedMessage{Type: domain.MsgTypeSubscribed, RoomID: msg.RoomID, ViewerCount: n})

	case domain.MsgTypeUnsubscribe:
		var msg domain.RoomMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid unsubscribe message"))
			return
		}
		if err := h.svc.Unsubscribe(ctx, client, msg.RoomID); err != nil {
			client.SendJSON(errorFrame(ctx, err, "unsubscribe"))
			return
		}
		client.SendJSON(domain.RoomAckMessage{Type: domain.MsgTypeUnsubscribed, RoomID: msg.RoomID})

	case domain.MsgTypeLeave:
		var msg domain.RoomMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid leave message"))
			return
		}
		// Detach this connection first; the service sends "left" to the user's
		// other connections. NotFound only means this one was never attached.
		if err := h.svc.Unsubscribe(ctx, client, msg.RoomID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			client.SendJSON(errorFrame(ctx, err, "leave room"))
			return
		}
		if err := h.svc.LeaveRoom(ctx, client.UserID(), msg.RoomID); err != nil {
			client.SendJSON(errorFrame(ctx, err, "leave room"))
			return
		}
		client.SendJSON(domain.RoomAckMessage{Type: domain.MsgTypeLeft, RoomID: msg.RoomID})

	case domain.MsgTypeMessage:
		var msg domain.ChatMessageIn
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid message"))
			return
		}
		if _, err := h.svc.PublishChatMessage(ctx, client.UserID(), msg.RoomID, msg.Body); err != nil {
			client.SendJSON(errorFrame(ctx, err, "publish message"))
		}

	case domain.MsgTypeEmoji:
		var msg domain.EmojiMessageIn
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid emoji message"))
			return
		}
		if _, err := h.svc.PublishEmoji(ctx, client.UserID(), msg.RoomID, msg.EmojiType); err != nil {
			client.SendJSON(errorFrame(ctx, err, "publish emoji"))
		}

	default:
		client.SendJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "unknown message type"))
	}
}

func (h *WSHandler) authenticate(client *hub.Client, token string) {
	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, jwt.ErrExpiredToken) {
			msg = "token has expired"
		}
		audit.LogWithDetail(h.connContext(client), audit.ActionAuthFailed, "", "", msg, "websocket authentication failed")
		client.SendJSON(domain.AuthResultMessage{Type: domain.MsgTypeAuthResult, Success: false, Message: msg})
		return
	}

	if current := client.UserID(); current != "" && current != claims.UserID {
		client.SendJSON(domain.NewErrorMessage(domain.ErrCodeConflict, "connection is bound to another user"))
		return
	}

	client.Authenticate(claims.UserID, claims.Username)
	client.SendJSON(domain.AuthResultMessage{
		Type:     domain.MsgTypeAuthResult,
		Success:  true,
		UserID:   claims.UserID,
		Username: claims.Username,
	})
}

// handleEnter records the membership and attaches this connection.
func (h *WSHandler) handleEnter(ctx context.Context, client *hub.Client, msg *domain.EnterMessage) {
	room, err := h.svc.EnterRoom(ctx, client.UserID(), &domain.EnterRoomRequest{Title: msg.Title, JoinCode: msg.JoinCode})
	if err != nil {
		client.SendJSON(errorFrame(ctx, err, "enter room"))
		return
	}

	n, err := h.svc.Subscribe(ctx, client, room.ID)
	if err != nil {
		client.SendJSON(errorFrame(ctx, err, "subscribe"))
		return
	}
	client.SendJSON(domain.SubscribedMessage{
		Type:        domain.MsgTypeSubscribed,
		RoomID:      room.ID,
		Title:       room.Title,
		ViewerCount: n,
	})
}
