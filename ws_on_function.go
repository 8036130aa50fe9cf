package channel_sdk

import (
	"context"
	"errors"

	"github.com/cydxin/channel-sdk/cons"
	"github.com/cydxin/channel-sdk/message"
	"github.com/cydxin/channel-sdk/service"
)

// handleMessage 处理客户端上行帧，只接受 subscribe / unsubscribe
func (h *Hub) handleMessage(c *Client, raw []byte) {
	env, err := message.ParseEnvelope(raw)
	if err != nil {
		h.replyError(c, "", "", message.ErrCodeBadRequest, "invalid frame")
		return
	}

	switch env.Type {
	case message.WsTypeSubscribe:
		h.onSubscribe(c, env)
	case message.WsTypeUnsubscribe:
		h.unsubscribe(c, env.Topic)
		h.replyAck(c, message.WsTypeUnsubscribed, env)
	default:
		h.replyError(c, env.Topic, env.PacketID, message.ErrCodeBadRequest, "unsupported type: "+env.Type)
	}
}

func (h *Hub) onSubscribe(c *Client, env *message.Envelope) {
	channelID, _, ok := cons.ParseChannelTopic(env.Topic)
	if !ok {
		h.replyError(c, env.Topic, env.PacketID, message.ErrCodeBadRequest, "unknown topic")
		return
	}

	if h.cfg.Authorizer != nil {
		ctx, cancel := h.requestContext()
		err := h.cfg.Authorizer(ctx, c.UserID, env.Topic)
		cancel()
		if err != nil {
			code := message.ErrCodeForbidden
			if errors.Is(err, service.ErrStoreUnavailable) {
				code = message.ErrCodeInternal
			}
			h.log.Debug("subscribe rejected", "conn_id", c.ID, "user_id", c.UserID, "channel_id", channelID, "error", err)
			h.replyError(c, env.Topic, env.PacketID, code, "subscription not allowed")
			return
		}
	}

	if h.subscribe(c, env.Topic) {
		h.replyAck(c, message.WsTypeSubscribed, env)
	}
}

func (h *Hub) replyAck(c *Client, typ string, req *message.Envelope) {
	h.reply(c, &message.Envelope{Type: typ, Topic: req.Topic, PacketID: req.PacketID})
}

func (h *Hub) replyError(c *Client, topic, packetID, code, msg string) {
	env, err := message.NewEnvelope(message.WsTypeError, topic, message.ErrorData{Code: code, Message: msg})
	if err != nil {
		return
	}
	env.PacketID = packetID
	h.reply(c, env)
}

// ChannelTopicAuthorizer 频道 topic 的订阅鉴权：必须是频道成员
func ChannelTopicAuthorizer(svc *service.MessageService) TopicAuthorizer {
	return func(ctx context.Context, userID, topic string) error {
		channelID, _, ok := cons.ParseChannelTopic(topic)
		if !ok {
			return service.ErrValidation
		}
		return svc.CanAccess(ctx, userID, channelID)
	}
}
