package response

import (
	"encoding/json"
	"net/http"
)

// Response 统一响应结构
type Response struct {
	Code int         `json:"code" example:"0"`                    // 业务状态码
	Msg  string      `json:"msg" example:"success"`               // 提示消息
	Data interface{} `json:"data,omitempty" swaggertype:"object"` // 响应数据
}

// 业务状态码定义
// HTTP 状态码表达错误类别（400/401/403/404/500），业务码细分原因
const (
	CodeSuccess          = 0     // 成功
	CodeParamError       = 10001 // 参数错误
	CodeNotFound         = 10002 // 消息/资源不存在
	CodeTokenInvalid     = 10004 // Token 无效/过期
	CodePermissionDeny   = 10005 // 权限不足（非成员、非作者、已删除）
	CodeStoreUnavailable = 10006 // 存储不可用
	CodeInternalError    = 99999 // 内部错误
)

// Success 成功响应
func Success(data interface{}, args ...string) *Response {
	msg := "success"
	for _, arg := range args {
		msg = arg
	}
	return &Response{
		Code: CodeSuccess,
		Msg:  msg,
		Data: data,
	}
}

// Error 错误响应
func Error(code int, msg string) *Response {
	return &Response{
		Code: code,
		Msg:  msg,
	}
}

// WriteJSONWithStatus 写入 JSON 响应（指定 HTTP 状态码）
// 用于 net/http 层面的失败场景（如 WS 握手前鉴权 401）
func (r *Response) WriteJSONWithStatus(w http.ResponseWriter, httpStatus int) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	return json.NewEncoder(w).Encode(r)
}
