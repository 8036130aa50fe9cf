package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cydxin/channel-sdk/logger"
	"github.com/cydxin/channel-sdk/message"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	minReconnect = 500 * time.Millisecond
	maxReconnect = 10 * time.Second

	socketWriteWait = 10 * time.Second
	// 服务端每 54s ping 一次，超过这个时间没有任何帧视为断线
	socketReadWait = 60 * time.Second
)

// EventHandler 收到某个 topic 的事件
type EventHandler func(m message.Message)

// Socket 客户端 WS 连接：自动重连，重连后重新订阅
type Socket struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	log    *logger.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	subs      map[string]map[int]EventHandler
	listeners map[int]func(connected bool)
	nextID    int

	writeMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

type SocketOption func(*Socket)

// WithHeader 拨号时带的 header（Authorization 等）
func WithHeader(h http.Header) SocketOption {
	return func(s *Socket) {
		s.header = h
	}
}

func WithDialer(d *websocket.Dialer) SocketOption {
	return func(s *Socket) {
		s.dialer = d
	}
}

// WithReconnect 重连退避区间
func WithReconnect(min, max time.Duration) SocketOption {
	return func(s *Socket) {
		s.minBackoff = min
		s.maxBackoff = max
	}
}

func WithSocketLogger(l *logger.Logger) SocketOption {
	return func(s *Socket) {
		s.log = l
	}
}

// NewSocket url 形如 ws://localhost:6789/api/v1/ws?token=xxx
func NewSocket(url string, opts ...SocketOption) *Socket {
	s := &Socket{
		url:        url,
		dialer:     websocket.DefaultDialer,
		log:        logger.Nop(),
		minBackoff: minReconnect,
		maxBackoff: maxReconnect,
		subs:       make(map[string]map[int]EventHandler),
		listeners:  make(map[int]func(bool)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 后台维持连接，直到 ctx 结束或 Close
func (s *Socket) Start(ctx context.Context) {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(ctx)
}

// Close 断开并停止重连
func (s *Socket) Close() error {
	s.mu.Lock()
	cancel, done, conn := s.cancel, s.done, s.conn
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-done
	return nil
}

// Connected 当前是否在线
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// OnStateChange 注册连接状态监听，返回注销函数
func (s *Socket) OnStateChange(fn func(connected bool)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Subscribe 订阅 topic。同一 topic 多个 handler 只发一次 subscribe 帧；
// 返回的函数在最后一个 handler 注销时发送 unsubscribe。
func (s *Socket) Subscribe(topic string, fn EventHandler) func() {
	s.mu.Lock()
	hs, ok := s.subs[topic]
	if !ok {
		hs = make(map[int]EventHandler)
		s.subs[topic] = hs
	}
	id := s.nextID
	s.nextID++
	hs[id] = fn
	first := !ok
	conn := s.conn
	s.mu.Unlock()

	if first && conn != nil {
		s.send(conn, message.WsTypeSubscribe, topic)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			hs := s.subs[topic]
			delete(hs, id)
			last := len(hs) == 0
			if last {
				delete(s.subs, topic)
			}
			conn := s.conn
			s.mu.Unlock()

			if last && conn != nil {
				s.send(conn, message.WsTypeUnsubscribe, topic)
			}
		})
	}
}

func (s *Socket) loop(ctx context.Context) {
	defer close(s.done)

	backoff := s.minBackoff
	for {
		conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Debug("ws dial failed", "error", err, "retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}
			continue
		}
		backoff = s.minBackoff

		s.attach(conn)
		s.readPump(ctx, conn)
		s.detach(conn)

		if ctx.Err() != nil {
			return
		}
		if !sleepCtx(ctx, s.minBackoff) {
			return
		}
	}
}

func (s *Socket) attach(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	topics := make([]string, 0, len(s.subs))
	for t := range s.subs {
		topics = append(topics, t)
	}
	s.mu.Unlock()

	for _, t := range topics {
		s.send(conn, message.WsTypeSubscribe, t)
	}
	s.log.Info("ws connected", "topics", len(topics))
	s.notify(true)
}

func (s *Socket) detach(conn *websocket.Conn) {
	_ = conn.Close()
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.connected = false
	s.mu.Unlock()

	s.log.Info("ws disconnected")
	s.notify(false)
}

func (s *Socket) notify(connected bool) {
	s.mu.Lock()
	fns := make([]func(bool), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}

func (s *Socket) readPump(ctx context.Context, conn *websocket.Conn) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_ = conn.SetReadDeadline(time.Now().Add(socketReadWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(socketReadWait))
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(socketWriteWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("ws read error", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(socketReadWait))
		s.dispatch(data)
	}
}

func (s *Socket) dispatch(data []byte) {
	env, err := message.ParseEnvelope(data)
	if err != nil {
		s.log.Warn("ws bad frame", "error", err)
		return
	}

	switch env.Type {
	case message.WsTypeEvent:
		var m message.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			s.log.Warn("ws bad event", "topic", env.Topic, "error", err)
			return
		}
		s.mu.Lock()
		hs := make([]EventHandler, 0, len(s.subs[env.Topic]))
		for _, h := range s.subs[env.Topic] {
			hs = append(hs, h)
		}
		s.mu.Unlock()
		for _, h := range hs {
			h(m)
		}
	case message.WsTypeError:
		var e message.ErrorData
		_ = json.Unmarshal(env.Data, &e)
		s.log.Warn("ws error frame", "topic", env.Topic, "code", e.Code, "message", e.Message)
	default:
		s.log.Debug("ws frame", "type", env.Type, "topic", env.Topic)
	}
}

func (s *Socket) send(conn *websocket.Conn, typ, topic string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	env := message.Envelope{Type: typ, Topic: topic, PacketID: uuid.NewString()}
	if err := conn.WriteJSON(env); err != nil {
		s.log.Debug("ws write failed", "type", typ, "topic", topic, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
