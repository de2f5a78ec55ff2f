package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xiaoxuxiansheng/olatx"
	"github.com/xiaoxuxiansheng/olatx/log"
)

// httpStatus 将错误映射为 http 状态码. 回调类错误为 4xx，协调者与下游错误为 502
func httpStatus(err error) int {
	switch {
	case errors.Is(err, olatx.ErrUnrecognizedStatus),
		errors.Is(err, olatx.ErrMalformedParticipantURI),
		errors.Is(err, olatx.ErrUntrustedEnlistment):
		return http.StatusBadRequest
	case errors.Is(err, olatx.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, olatx.ErrInvalidTransition),
		errors.Is(err, olatx.ErrDuplicateParticipant):
		return http.StatusConflict
	case errors.Is(err, olatx.ErrCoordinatorUnreachable),
		errors.Is(err, olatx.ErrCoordinatorProtocol),
		errors.Is(err, olatx.ErrPeerCall):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		log.ErrorContextf(c.Request.Context(), "%s %s failed, err: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	_ = c.Error(err)
	c.Data(code, textPlain, []byte(err.Error()))
	c.Abort()
}
