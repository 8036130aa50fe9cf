// Package scroll 判断消息列表是否要跟随到底部。
package scroll

import (
	"sync"
	"time"
)

const (
	// BottomThreshold 距底部不超过这个距离视为在看最新消息
	BottomThreshold = 100
	// ScrollDelay 等新消息渲染完再滚动
	ScrollDelay = 100 * time.Millisecond
)

// Metrics 滚动容器的尺寸
type Metrics struct {
	ScrollHeight float64
	ScrollTop    float64
	ClientHeight float64
}

func (m Metrics) DistanceFromBottom() float64 {
	return m.ScrollHeight - m.ScrollTop - m.ClientHeight
}

// Decide 首次加载且底部锚点已出现时滚动；之后只有用户本来就在底部附近才滚动
func Decide(hasInitialized, hasBottomAnchor bool, m Metrics) bool {
	if !hasInitialized && hasBottomAnchor {
		return true
	}
	return m.DistanceFromBottom() <= BottomThreshold
}

// Viewport 渲染层需要提供的能力
type Viewport interface {
	HasBottomAnchor() bool
	// Metrics 容器还不存在时 ok=false
	Metrics() (m Metrics, ok bool)
	// ScrollToBottom 平滑滚动到底部锚点
	ScrollToBottom()
}

// Controller 每次列表变化调用 OnChange，需要时延迟滚动到底部
type Controller struct {
	vp    Viewport
	delay time.Duration

	mu             sync.Mutex
	hasInitialized bool
	timers         map[*time.Timer]struct{}
	closed         bool
}

type Option func(*Controller)

func WithDelay(d time.Duration) Option {
	return func(c *Controller) {
		c.delay = d
	}
}

func NewController(vp Viewport, opts ...Option) *Controller {
	c := &Controller{vp: vp, delay: ScrollDelay, timers: make(map[*time.Timer]struct{})}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnChange 返回是否安排了一次滚动
func (c *Controller) OnChange() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	anchor := c.vp.HasBottomAnchor()
	if !c.hasInitialized && anchor {
		c.hasInitialized = true
		c.scheduleLocked()
		return true
	}
	m, ok := c.vp.Metrics()
	if !ok || !Decide(c.hasInitialized, anchor, m) {
		return false
	}
	c.scheduleLocked()
	return true
}

// Initialized 首次滚动是否已经发生
func (c *Controller) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasInitialized
}

func (c *Controller) scheduleLocked() {
	var t *time.Timer
	t = time.AfterFunc(c.delay, func() {
		c.mu.Lock()
		_, live := c.timers[t]
		delete(c.timers, t)
		c.mu.Unlock()
		if live {
			c.vp.ScrollToBottom()
		}
	})
	c.timers[t] = struct{}{}
}

// Close 取消还没执行的滚动
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for t := range c.timers {
		t.Stop()
	}
	c.timers = map[*time.Timer]struct{}{}
}
