package channel_sdk

import (
	"net/http"

	"github.com/cydxin/channel-sdk/response"
)

/*
	net/http 版本的入口，给不用 gin 的调用方
	消息读写建议直接调用 MsgService，推送由 service 写库后自动完成
*/

// HandleWS 返回 WebSocket 的 Handler，token 走 Authorization: Bearer 或 ?token=
func (c *ChannelEngine) HandleWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, _, err := c.AuthService.AuthenticateRequest(r.Context(), r)
		if err != nil {
			_ = response.Error(response.CodeTokenInvalid, "invalid token").WriteJSONWithStatus(w, http.StatusUnauthorized)
			return
		}
		c.Hub.ServeWS(w, r, uid)
	}
}
