package message

import "encoding/json"

// WS 帧类型
const (
	// client -> server
	WsTypeSubscribe   = "subscribe"
	WsTypeUnsubscribe = "unsubscribe"

	// server -> client
	WsTypeSubscribed   = "subscribed"
	WsTypeUnsubscribed = "unsubscribed"
	WsTypeEvent        = "event"
	WsTypeError        = "error"
)

// 错误帧 code
const (
	ErrCodeForbidden  = "forbidden"
	ErrCodeBadRequest = "bad_request"
	ErrCodeInternal   = "internal_error"
)

// Envelope 所有 WS 帧的外层结构
type Envelope struct {
	Type     string          `json:"type"`
	Topic    string          `json:"topic,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	PacketID string          `json:"packet_id,omitempty"` // 客户端用来匹配 ack
}

// ErrorData error 帧的 data
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEnvelope 把 data 序列化后装进 Envelope
func NewEnvelope(typ, topic string, data any) (*Envelope, error) {
	env := &Envelope{Type: typ, Topic: topic}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return env, nil
}

// ParseEnvelope 解析一帧
func ParseEnvelope(b []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
