package channel_sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cydxin/channel-sdk/logger"
	"github.com/cydxin/channel-sdk/message"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time 写入超时时间
	writeWait = 10 * time.Second

	// Time pong超时时间
	pongWait = 60 * time.Second

	// Send 对应的ping 必须小于pong
	pingPeriod = (pongWait * 9) / 10

	// Maximum 对等端允许消息大小（只收订阅类控制帧）
	maxMessageSize = 4096

	defaultSendBuffer = 256
)

var (
	ErrHubNotRunning = errors.New("hub: not running")
	ErrHubClosed     = errors.New("hub: closed")
)

// TopicAuthorizer 订阅鉴权，返回 nil 表示允许
type TopicAuthorizer func(ctx context.Context, userID, topic string) error

// Relay 跨实例转发：Publish 出去的帧由每个实例的 Subscribe 收回再本地下发
type Relay interface {
	Publish(ctx context.Context, frame []byte) error
	Subscribe(ctx context.Context, ready func(), fn func(frame []byte)) error
}

type HubConfig struct {
	Log        *logger.Logger
	Authorizer TopicAuthorizer
	Relay      Relay

	// SendBuffer 每个连接的发送缓冲，满了直接断开
	SendBuffer int
	// MaxMessageSize 单帧上限
	MaxMessageSize int64
	// CheckOrigin 为空时允许所有 Origin
	CheckOrigin func(r *http.Request) bool
}

// Client ws和hub的连接
// 一个 Client 对应一条 websocket 连接，ID 为连接级别的临时 UUID
type Client struct {
	hub *Hub

	// 🔗链接
	conn *websocket.Conn

	// 消息缓冲区，只在持有 hub.mu 时写入/关闭
	send chan []byte

	ID     string
	UserID string

	// 已订阅 topic，受 hub.mu 保护
	topics map[string]struct{}
}

type frame struct {
	topic string
	data  []byte
}

// Hub topic -> 连接集合，显式创建，由 Run 驱动
type Hub struct {
	cfg      HubConfig
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}
	closed  bool

	broadcast chan frame

	running atomic.Bool
	runOnce sync.Once
	cancel  context.CancelFunc
	baseCtx context.Context
	ready   chan struct{}
	done    chan struct{}
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = maxMessageSize
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool {
			return true // Allow all origins for SDK
		}
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		cfg: cfg,
		log: log.Named("hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients:   make(map[*Client]struct{}),
		topics:    make(map[string]map[*Client]struct{}),
		broadcast: make(chan frame, 256),
		baseCtx:   context.Background(),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run 阻塞直到 ctx 结束或 Shutdown，退出时关闭所有连接
// 只能调用一次。
func (h *Hub) Run(ctx context.Context) error {
	started := false
	h.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("hub: Run called twice")
	}

	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.baseCtx = ctx
	h.mu.Unlock()
	defer cancel()
	defer close(h.done)

	h.running.Store(true)
	defer h.running.Store(false)

	if h.cfg.Relay != nil {
		go func() {
			err := h.cfg.Relay.Subscribe(ctx, h.markReady, func(b []byte) {
				h.fromRelay(ctx, b)
			})
			if err != nil && ctx.Err() == nil {
				h.log.Error("relay subscribe stopped", "error", err)
			}
		}()
	} else {
		h.markReady()
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case f := <-h.broadcast:
			h.fanout(f)
		}
	}
}

func (h *Hub) markReady() {
	select {
	case <-h.ready:
	default:
		close(h.ready)
	}
}

// Ready 开始投递后关闭（relay 订阅确认之后）
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

// Done Run 退出后关闭
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Shutdown 停止 Run 并等待所有连接关闭
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.RLock()
	cancel := h.cancel
	h.mu.RUnlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish 向 topic 当前的订阅者推送一条 event 帧
// 没有订阅者时直接返回；投递失败（连接已断/缓冲满）不报错。
func (h *Hub) Publish(ctx context.Context, topic string, payload any) error {
	env, err := message.NewEnvelope(message.WsTypeEvent, topic, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	if h.cfg.Relay != nil {
		return h.cfg.Relay.Publish(ctx, data)
	}
	if h.SubscriberCount(topic) == 0 {
		return nil
	}
	return h.enqueue(ctx, frame{topic: topic, data: data})
}

func (h *Hub) enqueue(ctx context.Context, f frame) error {
	if !h.running.Load() {
		return ErrHubNotRunning
	}
	select {
	case h.broadcast <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) fromRelay(ctx context.Context, data []byte) {
	env, err := message.ParseEnvelope(data)
	if err != nil || env.Topic == "" {
		h.log.Warn("drop relay frame", "error", err)
		return
	}
	if h.SubscriberCount(env.Topic) == 0 {
		return
	}
	if err := h.enqueue(ctx, frame{topic: env.Topic, data: data}); err != nil {
		h.log.Debug("relay enqueue failed", "topic", env.Topic, "error", err)
	}
}

// fanout 非阻塞写入每个订阅者的缓冲，写不进去的连接直接断开
func (h *Hub) fanout(f frame) {
	var slow []*Client
	h.mu.RLock()
	for c := range h.topics[f.topic] {
		select {
		case c.send <- f.data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("drop slow client", "conn_id", c.ID, "user_id", c.UserID, "topic", f.topic)
		h.removeClient(c)
	}
}

// SubscriberCount 当前订阅 topic 的连接数
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// removeClient 退订全部 topic 并关闭发送缓冲，重复调用无副作用
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(c)
}

func (h *Hub) detachLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for topic := range c.topics {
		if subs := h.topics[topic]; subs != nil {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	c.topics = nil
	close(c.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.detachLocked(c)
	}
}

func (h *Hub) subscribe(c *Client, topic string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	subs := h.topics[topic]
	if subs == nil {
		subs = make(map[*Client]struct{})
		h.topics[topic] = subs
	}
	subs[c] = struct{}{}
	c.topics[topic] = struct{}{}
	return true
}

func (h *Hub) unsubscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(c.topics, topic)
	if subs := h.topics[topic]; subs != nil {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// reply 给单个连接回帧（subscribed / error 等）
func (h *Hub) reply(c *Client, env *message.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		// 丢弃避免阻塞
	}
}

func (h *Hub) requestContext() (context.Context, context.CancelFunc) {
	h.mu.RLock()
	base := h.baseCtx
	h.mu.RUnlock()
	return context.WithTimeout(base, 5*time.Second)
}

// ServeWS 升级连接并注册，userID 由上游鉴权得到
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	if !h.running.Load() {
		http.Error(w, "websocket hub not running", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.cfg.SendBuffer),
		ID:     uuid.New().String(),
		UserID: userID,
		topics: make(map[string]struct{}),
	}
	if !h.addClient(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.log.Debug("ws connected", "conn_id", client.ID, "user_id", userID)

	go client.writePump()
	go client.readPump()
}

// readPump 将消息从client (websocket 连接) 到hub管理。
func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		_ = c.conn.Close()
		c.hub.log.Debug("ws disconnected", "conn_id", c.ID, "user_id", c.UserID)
	}()
	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { _ = c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.log.Debug("readPump error", "conn_id", c.ID, "error", err)
			}
			break
		}
		c.hub.handleMessage(c, data)
	}
}

// writePump 将消息从hub管理写到具体的client (websocket 连接)。
// 每条消息单独一帧，客户端按帧解析 JSON。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.log.Debug("writePump 写入ping失败", "conn_id", c.ID)
				return
			}
		}
	}
}
