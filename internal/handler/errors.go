package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/pkg/log"
	"github.com/weiawesome/babble-live/pkg/response"
)

// classify maps a core error onto an HTTP status and an error code shared
// by REST responses and websocket error frames. Internal errors get a
// generic message.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, domain.ErrCodeBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, domain.ErrCodeUnauthorized, err.Error()
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, domain.ErrCodeForbidden, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, domain.ErrCodeNotFound, err.Error()
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, domain.ErrCodeConflict, err.Error()
	default:
		return http.StatusInternalServerError, domain.ErrCodeInternalError, "internal error"
	}
}

func writeError(c *gin.Context, err error, op string) {
	status, _, msg := classify(err)
	switch status {
	case http.StatusBadRequest:
		response.BadRequest(c, msg)
	case http.StatusUnauthorized:
		response.Unauthorized(c, msg)
	case http.StatusForbidden:
		response.Forbidden(c, msg)
	case http.StatusNotFound:
		response.NotFound(c, msg)
	case http.StatusConflict:
		response.Conflict(c, msg)
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("failed to " + op)
		response.InternalError(c, "failed to "+op)
	}
}

func errorFrame(ctx context.Context, err error, op string) *domain.ErrorMessage {
	_, code, msg := classify(err)
	if code == domain.ErrCodeInternalError {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to " + op)
		msg = "failed to " + op
	}
	return domain.NewErrorMessage(code, msg)
}
