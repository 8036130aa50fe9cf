// Package channel_sdk 提供频道实时消息核心能力：消息存储网关、topic 广播 Hub、HTTP/WS 接口
// @title Channel SDK API
// @version 1.0
// @description 频道消息的 RESTful API 文档，实时推送通过 /ws 订阅 topic
// @description
// @description ## 业务状态码说明
// @description | Code | 说明 |
// @description |------|------|
// @description | 0 | 成功 |
// @description | 10001 | 参数错误 |
// @description | 10002 | 消息不存在 |
// @description | 10004 | Token 无效 |
// @description | 10005 | 权限不足 |
// @description | 10006 | 存储不可用 |
// @description | 99999 | 内部错误 |
// @description
// @description ## Topic
// @description - channel:<id>:messages 新消息
// @description - channel:<id>:messages:update 编辑 / 删除
// @description
// @description ## 响应格式
// @description ```json
// @description {
// @description   "code": 0,
// @description   "msg": "success",
// @description   "data": {}
// @description }
// @description ```
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:6789
// @BasePath /api/v1
// @schemes http https
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description 格式：Bearer <token>
//
// @securityDefinitions.apikey QueryToken
// @in query
// @name token
// @description 用于 WebSocket 等无法传 header 的场景
package channel_sdk
