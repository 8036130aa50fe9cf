package channel_sdk

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/cydxin/channel-sdk/message"
	"github.com/cydxin/channel-sdk/response"
	"github.com/cydxin/channel-sdk/service"
	"github.com/gin-gonic/gin"
)

// -------------------- 消息（Message）相关接口 --------------------

// GinHandleFetchMessages 获取频道消息（分页）
// @Summary 获取频道消息
// @Description page=0 为最新一页，越大越旧；每页内按时间升序返回
// @Tags 消息
// @Accept json
// @Produce json
// @Param channelId query string true "频道ID"
// @Param page query int false "页码（从最新往前数），默认 0"
// @Param size query int false "每页条数，默认 10，最大 100"
// @Success 200 {object} response.Response{data=[]message.Message} "消息列表"
// @Failure 400 {object} response.Response "参数错误 / 存储不可用"
// @Failure 401 {object} response.Response "未登录"
// @Failure 403 {object} response.Response "不是频道成员"
// @Security BearerAuth
// @Router /messages [get]
func (c *ChannelEngine) GinHandleFetchMessages(ctx *gin.Context) {
	uid, ok := currentUser(ctx)
	if !ok {
		return
	}

	channelID := ctx.Query("channelId")
	if channelID == "" {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, "channelId is required"))
		return
	}
	page, err := strconv.Atoi(ctx.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, "invalid page"))
		return
	}
	size := 0
	if s := ctx.Query("size"); s != "" {
		if size, err = strconv.Atoi(s); err != nil || size < 0 {
			ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, "invalid size"))
			return
		}
	}

	list, err := c.MsgService.FetchPage(ctx.Request.Context(), channelID, uid, page, size)
	if err != nil {
		// 读接口存储失败按 400 返回，客户端据此重试
		if errors.Is(err, service.ErrStoreUnavailable) {
			c.log.Warn("fetch messages failed", "channel_id", channelID, "error", err)
			ctx.JSON(http.StatusBadRequest, response.Error(response.CodeStoreUnavailable, "store unavailable"))
			return
		}
		c.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, response.Success(list))
}

// GinHandleCreateMessage 发送消息
// @Summary 发送消息
// @Description content 与 fileUrl 至少一个；成功后推送到 channel:<id>:messages
// @Tags 消息
// @Accept json
// @Produce json
// @Param channelId query string true "频道ID"
// @Param workspaceId query string true "工作区ID"
// @Param req body message.CreateReq true "消息内容"
// @Success 201 {object} response.Response{data=message.Message} "新消息"
// @Failure 400 {object} response.Response "参数错误"
// @Failure 401 {object} response.Response "未登录"
// @Failure 403 {object} response.Response "频道不存在或不是成员"
// @Failure 500 {object} response.Response "服务器错误"
// @Security BearerAuth
// @Router /messages [post]
func (c *ChannelEngine) GinHandleCreateMessage(ctx *gin.Context) {
	uid, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req message.CreateReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, err.Error()))
		return
	}

	msg, err := c.MsgService.Insert(ctx.Request.Context(), service.InsertReq{
		ChannelID:   ctx.Query("channelId"),
		WorkspaceID: ctx.Query("workspaceId"),
		UserID:      uid,
		Content:     req.Content,
		FileURL:     req.FileURL,
	})
	if err != nil {
		c.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, response.Success(msg))
}

// GinHandleUpdateMessage 编辑消息
// @Summary 编辑消息
// @Description 仅作者可编辑未删除的消息；成功后推送到 channel:<id>:messages:update
// @Tags 消息
// @Accept json
// @Produce json
// @Param messageId path string true "消息ID"
// @Param channelId query string true "频道ID"
// @Param workspaceId query string true "工作区ID"
// @Param req body message.UpdateReq true "新内容"
// @Success 200 {object} response.Response{data=message.Message} "编辑后的消息"
// @Failure 400 {object} response.Response "参数错误"
// @Failure 403 {object} response.Response "不是作者或已删除"
// @Failure 404 {object} response.Response "消息不存在"
// @Security BearerAuth
// @Router /messages/{messageId} [patch]
func (c *ChannelEngine) GinHandleUpdateMessage(ctx *gin.Context) {
	uid, ok := currentUser(ctx)
	if !ok {
		return
	}
	channelID, ok := messageScope(ctx)
	if !ok {
		return
	}

	var req message.UpdateReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, err.Error()))
		return
	}

	msg, err := c.MsgService.Update(ctx.Request.Context(), ctx.Param("messageId"), uid, channelID, req.Content)
	if err != nil {
		c.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, response.Success(msg))
}

// GinHandleDeleteMessage 删除消息（墓碑）
// @Summary 删除消息
// @Description 作者、频道创建者或 regulator 可删；内容替换为 "This message has been deleted"，附件清空
// @Tags 消息
// @Accept json
// @Produce json
// @Param messageId path string true "消息ID"
// @Param channelId query string true "频道ID"
// @Param workspaceId query string true "工作区ID"
// @Success 200 {object} response.Response{data=message.Message} "墓碑消息"
// @Failure 400 {object} response.Response "参数错误"
// @Failure 403 {object} response.Response "无权限或已删除"
// @Failure 404 {object} response.Response "消息不存在"
// @Security BearerAuth
// @Router /messages/{messageId} [delete]
func (c *ChannelEngine) GinHandleDeleteMessage(ctx *gin.Context) {
	uid, ok := currentUser(ctx)
	if !ok {
		return
	}
	channelID, ok := messageScope(ctx)
	if !ok {
		return
	}

	msg, err := c.MsgService.SoftDelete(ctx.Request.Context(), ctx.Param("messageId"), uid, channelID)
	if err != nil {
		c.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, response.Success(msg))
}

// messageScope 编辑和删除必须带上 channelId 与 workspaceId
func messageScope(ctx *gin.Context) (string, bool) {
	channelID, workspaceID := ctx.Query("channelId"), ctx.Query("workspaceId")
	switch {
	case channelID == "":
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, "channelId is required"))
		return "", false
	case workspaceID == "":
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, "workspaceId is required"))
		return "", false
	}
	return channelID, true
}

// GinHandleWS WebSocket 入口
// @Summary WebSocket
// @Description 浏览器无法带 header 时用 ?token= 传 token；连上后发送 subscribe 帧订阅 channel:<id>:messages / channel:<id>:messages:update
// @Tags WS
// @Security QueryToken
// @Router /ws [get]
func (c *ChannelEngine) GinHandleWS(ctx *gin.Context) {
	uid, ok := currentUser(ctx)
	if !ok {
		return
	}
	c.Hub.ServeWS(ctx.Writer, ctx.Request, uid)
}
