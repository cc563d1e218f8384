package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/internal/service"
	"github.com/weiawesome/babble-live/pkg/log"
	"github.com/weiawesome/babble-live/pkg/middleware"
	"github.com/weiawesome/babble-live/pkg/response"
)

// Handler serves the REST API of the live-room core.
type Handler struct {
	svc            service.LiveRoomService
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(svc service.LiveRoomService, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		svc:            svc,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		rooms := api.Group("/rooms")
		{
			// Public routes
			rooms.GET("", h.ListRooms)
			rooms.GET("/lookup", h.LookupRoom)
			rooms.GET("/:id/viewers", h.ViewerCount)

			// Protected routes
			authed := rooms.Group("", h.authMiddleware.RequireAuth())
			authed.POST("", h.CreateRoom)
			authed.POST("/enter", h.EnterRoom)
			authed.POST("/:id/leave", h.LeaveRoom)
			authed.DELETE("/:id", h.CloseRoom)
			authed.POST("/:id/messages", h.PublishMessage)
			authed.POST("/:id/emojis", h.PublishEmoji)
		}

		me := api.Group("/users/me", h.authMiddleware.RequireAuth())
		{
			me.GET("/rooms", h.HostedRooms)
			me.GET("/history", h.ViewHistory)
			me.GET("/hashtags", h.ListHashtags)
			me.POST("/hashtags", h.AddHashtag)
			me.DELETE("/hashtags", h.RemoveHashtag)
		}
	}
}

func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// ListRooms returns every active room with its joined listing fields.
func (h *Handler) ListRooms(c *gin.Context) {
	listings, err := h.svc.ListRooms(c.Request.Context())
	if err != nil {
		writeError(c, err, "list rooms")
		return
	}
	response.Success(c, listings)
}

// LookupRoom resolves ?title= or ?code= without entering the room.
func (h *Handler) LookupRoom(c *gin.Context) {
	var req domain.LookupRoomRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	room, err := h.svc.LookupRoom(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err, "look up room")
		return
	}
	response.Success(c, room)
}

func (h *Handler) ViewerCount(c *gin.Context) {
	roomID := c.Param("id")
	n, err := h.svc.ViewerCount(c.Request.Context(), roomID)
	if err != nil {
		writeError(c, err, "count viewers")
		return
	}
	response.Success(c, gin.H{"room_id": roomID, "viewer_count": n})
}

// CreateRoom creates a room hosted by the caller.
func (h *Handler) CreateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind create room request")
		response.BadRequest(c, err.Error())
		return
	}
	req.HostEmail = middleware.GetEmail(c)

	room, err := h.svc.CreateRoom(ctx, &req)
	if err != nil {
		writeError(c, err, "create room")
		return
	}
	response.Created(c, room)
}

func (h *Handler) EnterRoom(c *gin.Context) {
	var req domain.EnterRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	room, err := h.svc.EnterRoom(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		writeError(c, err, "enter room")
		return
	}
	response.Success(c, room)
}

func (h *Handler) LeaveRoom(c *gin.Context) {
	roomID := c.Param("id")
	if err := h.svc.LeaveRoom(c.Request.Context(), middleware.GetUserID(c), roomID); err != nil {
		writeError(c, err, "leave room")
		return
	}
	response.Success(c, gin.H{"room_id": roomID})
}

// CloseRoom closes a room. Only its host may do so.
func (h *Handler) CloseRoom(c *gin.Context) {
	roomID := c.Param("id")
	if err := h.svc.CloseRoom(c.Request.Context(), middleware.GetUserID(c), roomID); err != nil {
		writeError(c, err, "close room")
		return
	}
	response.Success(c, gin.H{"message": "room closed successfully"})
}

func (h *Handler) PublishMessage(c *gin.Context) {
	var req domain.PublishMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	event, err := h.svc.PublishChatMessage(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Body)
	if err != nil {
		writeError(c, err, "publish message")
		return
	}
	response.Created(c, event)
}

func (h *Handler) PublishEmoji(c *gin.Context) {
	var req domain.PublishEmojiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	event, err := h.svc.PublishEmoji(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.EmojiType)
	if err != nil {
		writeError(c, err, "publish emoji")
		return
	}
	response.Created(c, event)
}

// HostedRooms lists the rooms the caller created, newest first.
func (h *Handler) HostedRooms(c *gin.Context) {
	rooms, err := h.svc.HostedRooms(c.Request.Context(), middleware.GetEmail(c))
	if err != nil {
		writeError(c, err, "get hosted rooms")
		return
	}
	response.Success(c, rooms)
}

func (h *Handler) ViewHistory(c *gin.Context) {
	visits, err := h.svc.ViewHistory(c.Request.Context(), middleware.GetEmail(c))
	if err != nil {
		writeError(c, err, "get view history")
		return
	}
	response.Success(c, visits)
}

func (h *Handler) ListHashtags(c *gin.Context) {
	names, err := h.svc.ListUserHashtags(c.Request.Context(), middleware.GetEmail(c))
	if err != nil {
		writeError(c, err, "list hashtags")
		return
	}
	response.Success(c, gin.H{"hashtags": names})
}

func (h *Handler) AddHashtag(c *gin.Context) {
	var req domain.HashtagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.svc.AddUserHashtag(c.Request.Context(), middleware.GetEmail(c), req.Name); err != nil {
		writeError(c, err, "add hashtag")
		return
	}
	response.Created(c, gin.H{"name": req.Name})
}

// RemoveHashtag takes the tag from ?name= or from a JSON body.
func (h *Handler) RemoveHashtag(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		var req domain.HashtagRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		name = req.Name
	}

	if err := h.svc.RemoveUserHashtag(c.Request.Context(), middleware.GetEmail(c), name); err != nil {
		writeError(c, err, "remove hashtag")
		return
	}
	response.Success(c, gin.H{"name": name})
}
