package cons

import "strings"

// Hub topic naming. 频道维度两个 topic：新消息 / 消息变更（编辑与软删除共用）
const (
	topicChannelPrefix  = "channel:"
	topicMessagesSuffix = ":messages"
	topicUpdateSuffix   = ":messages:update"
)

// ChannelMessagesTopic 新消息 topic：channel:<id>:messages
func ChannelMessagesTopic(channelID string) string {
	return topicChannelPrefix + channelID + topicMessagesSuffix
}

// ChannelMessagesUpdateTopic 消息编辑/删除 topic：channel:<id>:messages:update
func ChannelMessagesUpdateTopic(channelID string) string {
	return topicChannelPrefix + channelID + topicUpdateSuffix
}

// ChannelQueryKey feed 缓存使用的 query key：channel:<id>
func ChannelQueryKey(channelID string) string {
	return topicChannelPrefix + channelID
}

// ParseChannelTopic 从 topic 中解析出 channelID。
// 只认识上面两种 topic，其他格式返回 ok=false。
func ParseChannelTopic(topic string) (channelID string, isUpdate bool, ok bool) {
	if !strings.HasPrefix(topic, topicChannelPrefix) {
		return "", false, false
	}
	rest := strings.TrimPrefix(topic, topicChannelPrefix)
	switch {
	case strings.HasSuffix(rest, topicUpdateSuffix):
		channelID = strings.TrimSuffix(rest, topicUpdateSuffix)
		isUpdate = true
	case strings.HasSuffix(rest, topicMessagesSuffix):
		channelID = strings.TrimSuffix(rest, topicMessagesSuffix)
	default:
		return "", false, false
	}
	if channelID == "" || strings.Contains(channelID, ":") {
		return "", false, false
	}
	return channelID, isUpdate, true
}

// RelayChannel 多实例广播时 Redis pub/sub 使用的 channel。
const RelayChannel = "im:hub:relay"

// TombstoneContent 软删除后替换的正文
const TombstoneContent = "This message has been deleted"

// 事件类型，写入 publish 日志的 event 字段
const (
	EventMessageCreated = "message.created"
	EventMessageUpdated = "message.updated"
	EventMessageDeleted = "message.deleted"
)

// TopicsForChannel 一个频道视图需要订阅的全部 topic
func TopicsForChannel(channelID string) []string {
	return []string{ChannelMessagesTopic(channelID), ChannelMessagesUpdateTopic(channelID)}
}
