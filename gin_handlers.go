package channel_sdk

import (
	"errors"
	"net/http"

	"github.com/cydxin/channel-sdk/middleware"
	"github.com/cydxin/channel-sdk/response"
	"github.com/cydxin/channel-sdk/service"
	"github.com/gin-gonic/gin"
)

/* gin 处理函数按模块拆分：
- handler_message.go  消息读写 + WS 入口
- handlers.go         net/http 版本（不用 gin 的调用方）
*/

// httpStatusOf 业务错误 -> HTTP 状态码 + 业务码
func httpStatusOf(err error) (int, int) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, response.CodeTokenInvalid
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, response.CodeParamError
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, response.CodePermissionDeny
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, response.CodeNotFound
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusInternalServerError, response.CodeStoreUnavailable
	default:
		return http.StatusInternalServerError, response.CodeInternalError
	}
}

func (c *ChannelEngine) writeError(ctx *gin.Context, err error) {
	status, code := httpStatusOf(err)
	if status >= http.StatusInternalServerError {
		c.log.Error("message request failed", "path", ctx.FullPath(), "error", err)
		ctx.JSON(status, response.Error(code, "internal error"))
		return
	}
	ctx.JSON(status, response.Error(code, err.Error()))
}

func currentUser(ctx *gin.Context) (string, bool) {
	uid := middleware.UserID(ctx)
	if uid == "" {
		ctx.JSON(http.StatusUnauthorized, response.Error(response.CodeTokenInvalid, "user_id not found"))
		return "", false
	}
	return uid, true
}

