// Package feed 客户端的频道消息缓存：分页加载、实时事件合并、断线轮询。
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cydxin/channel-sdk/client"
	"github.com/cydxin/channel-sdk/cons"
	"github.com/cydxin/channel-sdk/logger"
	"github.com/cydxin/channel-sdk/message"
)

// ErrClosed Cache 已关闭
var ErrClosed = errors.New("feed: cache closed")

// Fetcher 拉取一页消息，page=0 为最新一页，页内升序
type Fetcher interface {
	FetchPage(ctx context.Context, channelID string, page, size int) ([]message.Message, error)
}

// Retrier 自带重试的 Fetcher（如 *client.Client）实现它；
// Retries() > 0 时 Cache 不再叠加自己的重试
type Retrier interface {
	Retries() int
}

// Subscriber 实时事件来源，*client.Socket 即实现
type Subscriber interface {
	Subscribe(topic string, fn client.EventHandler) func()
	Connected() bool
	OnStateChange(fn func(connected bool)) func()
}

// Key 缓存键：QueryKey 为 channel:<id>，ParamValue 为频道 id
type Key struct {
	QueryKey   string
	ParamValue string
}

// Page 一页消息，创建后不再修改
type Page struct {
	Index    int
	Messages []message.Message
}

type Status int

const (
	StatusPending Status = iota
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	}
	return "unknown"
}

const (
	DefaultPageSize     = 10
	MaxPageSize         = 100
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 200 * time.Millisecond
	DefaultPollInterval = time.Second
	DefaultStaleAfter   = 5 * time.Minute
)

type Options struct {
	PageSize     int
	// MaxRetries 0 取默认 3 次，负数不重试
	MaxRetries   int
	RetryBackoff time.Duration
	PollInterval time.Duration
	StaleAfter   time.Duration
	Clock        func() time.Time
	// OnChange 每次缓存内容或状态变化后调用（不持锁）
	OnChange     func()
	Log          *logger.Logger
}

func (o *Options) defaults() {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	// 服务端单页最多返回 MaxPageSize 条，超过会让满页判断永远失败
	if o.PageSize > MaxPageSize {
		o.PageSize = MaxPageSize
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Log == nil {
		o.Log = logger.Nop()
	}
}

type event struct {
	seq    uint64
	update bool
	msg    message.Message
}

// Cache 一个频道的分页消息缓存
type Cache struct {
	key     Key
	fetcher Fetcher
	sub     Subscriber
	opts    Options

	// maxRetries fetcher 自己重试时为 0
	maxRetries int

	mu        sync.Mutex
	pages     []Page
	lastFull  bool // 最旧一页拉取时是否满页
	status    Status
	err       error
	fetchedAt time.Time
	gen       uint64
	seq       uint64
	events    []event // 拉取进行中或首页未到时收到的事件，提交结果时重放
	inflight  int
	closed    bool
	started   bool

	ctx      context.Context
	cancel   context.CancelFunc
	unsubs   []func()
	pollStop chan struct{}
	wg       sync.WaitGroup
}

// New sub 可以为 nil（只拉取，不接实时事件）
func New(channelID string, fetcher Fetcher, sub Subscriber, opts Options) *Cache {
	opts.defaults()
	retries := opts.MaxRetries
	if r, ok := fetcher.(Retrier); ok && r.Retries() > 0 {
		retries = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		key:        Key{QueryKey: cons.ChannelQueryKey(channelID), ParamValue: channelID},
		fetcher:    fetcher,
		sub:        sub,
		opts:       opts,
		maxRetries: retries,
		status:     StatusPending,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (c *Cache) Key() Key { return c.key }

// Start 先订阅两个 topic，再拉第一页。订阅期间到达的事件会在首页到达后合并。
func (c *Cache) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	if c.sub != nil {
		channelID := c.key.ParamValue
		unsubs := []func(){
			c.sub.Subscribe(cons.ChannelMessagesTopic(channelID), c.OnNewMessage),
			c.sub.Subscribe(cons.ChannelMessagesUpdateTopic(channelID), c.OnUpdatedMessage),
			c.sub.OnStateChange(c.onConnState),
		}
		c.mu.Lock()
		closed := c.closed
		if !closed {
			c.unsubs = append(c.unsubs, unsubs...)
		}
		c.mu.Unlock()
		// 订阅期间已经 Close，Close 看不到这些订阅，这里自己注销
		if closed {
			for _, fn := range unsubs {
				fn()
			}
			return ErrClosed
		}
		if !c.sub.Connected() {
			c.startPolling()
		}
	}
	return c.LoadInitial(ctx)
}

// LoadInitial 拉取第 0 页
func (c *Cache) LoadInitial(ctx context.Context) error {
	gen, startSeq, ok := c.beginFetch()
	if !ok {
		return ErrClosed
	}
	msgs, err := c.fetch(ctx, 0)

	c.mu.Lock()
	c.inflight--
	if c.closed || c.gen != gen {
		c.trimEvents()
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.err = err
		if len(c.pages) == 0 {
			c.status = StatusError
		}
		c.trimEvents()
		c.mu.Unlock()
		c.opts.Log.Warn("load initial page failed", "channel_id", c.key.ParamValue, "error", err)
		c.changed()
		return err
	}
	c.pages = []Page{{Index: 0, Messages: msgs}}
	c.lastFull = len(msgs) >= c.opts.PageSize
	c.commitLocked(startSeq)
	c.mu.Unlock()
	c.changed()
	return nil
}

// LoadOlder 拉下一页更旧的消息，HasMore 为 false 时什么都不做
func (c *Cache) LoadOlder(ctx context.Context) error {
	if !c.HasMore() {
		return nil
	}
	gen, startSeq, ok := c.beginFetch()
	if !ok {
		return ErrClosed
	}

	c.mu.Lock()
	idx := len(c.pages)
	c.mu.Unlock()

	msgs, err := c.fetch(ctx, idx)

	c.mu.Lock()
	c.inflight--
	if c.closed || c.gen != gen || len(c.pages) != idx {
		c.trimEvents()
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.err = err
		c.trimEvents()
		c.mu.Unlock()
		c.changed()
		return err
	}
	c.lastFull = len(msgs) >= c.opts.PageSize
	// 新消息会让 offset 后移，旧页里可能出现已有的消息
	msgs = withoutKnown(c.pages, msgs)
	pages := make([]Page, idx, idx+1)
	copy(pages, c.pages)
	c.pages = append(pages, Page{Index: idx, Messages: msgs})
	c.replayLocked(startSeq, true)
	c.status = StatusReady
	c.err = nil
	c.trimEvents()
	c.mu.Unlock()
	c.changed()
	return nil
}

// HasMore 最旧一页是满页才可能还有更旧的
func (c *Cache) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages) > 0 && c.lastFull
}

// Refetch 按顺序重新拉取已加载的所有页，进行中的其他拉取结果作废
func (c *Cache) Refetch(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	n := len(c.pages)
	c.mu.Unlock()
	if n == 0 {
		return c.LoadInitial(ctx)
	}

	c.mu.Lock()
	c.gen++
	c.mu.Unlock()
	gen, startSeq, ok := c.beginFetch()
	if !ok {
		return ErrClosed
	}

	pages := make([]Page, 0, n)
	var err error
	full := false
	for i := 0; i < n; i++ {
		var msgs []message.Message
		msgs, err = c.fetch(ctx, i)
		if err != nil {
			break
		}
		full = len(msgs) >= c.opts.PageSize
		pages = append(pages, Page{Index: i, Messages: withoutKnown(pages, msgs)})
		if !full {
			break
		}
	}

	c.mu.Lock()
	c.inflight--
	if c.closed || c.gen != gen {
		c.trimEvents()
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.err = err
		c.trimEvents()
		c.mu.Unlock()
		c.opts.Log.Warn("refetch failed", "channel_id", c.key.ParamValue, "error", err)
		c.changed()
		return err
	}
	c.pages = pages
	c.lastFull = full
	c.commitLocked(startSeq)
	c.mu.Unlock()
	c.changed()
	return nil
}

// RefetchIfStale 数据超过 StaleAfter 才重新拉取
func (c *Cache) RefetchIfStale(ctx context.Context) error {
	c.mu.Lock()
	stale := len(c.pages) == 0 || c.opts.Clock().Sub(c.fetchedAt) >= c.opts.StaleAfter
	c.mu.Unlock()
	if !stale {
		return nil
	}
	return c.Refetch(ctx)
}

// Access 视图重新挂载时调用
func (c *Cache) Access(ctx context.Context) error {
	return c.RefetchIfStale(ctx)
}

// Focus 窗口重新获得焦点时调用
func (c *Cache) Focus(ctx context.Context) error {
	return c.RefetchIfStale(ctx)
}

// OnNewMessage 新消息事件：按 id 去重后追加到第 0 页末尾
func (c *Cache) OnNewMessage(m message.Message) {
	c.apply(event{msg: m})
}

// OnUpdatedMessage 编辑/删除事件：替换所在页中的同 id 消息，不在缓存里则忽略
func (c *Cache) OnUpdatedMessage(m message.Message) {
	c.apply(event{update: true, msg: m})
}

func (c *Cache) apply(ev event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.seq++
	ev.seq = c.seq
	if c.inflight > 0 || c.status == StatusPending {
		c.events = append(c.events, ev)
	}
	if len(c.pages) == 0 {
		c.mu.Unlock()
		return
	}
	next, ok := applyEvent(c.pages, ev)
	if ok {
		c.pages = next
	}
	c.mu.Unlock()
	if ok {
		c.changed()
	}
}

// Pages 当前所有页，0 为最新
func (c *Cache) Pages() []Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Page, len(c.pages))
	copy(out, c.pages)
	return out
}

// Messages 所有已加载消息，整体按时间升序（最旧一页在前）
func (c *Cache) Messages() []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []message.Message
	for i := len(c.pages) - 1; i >= 0; i-- {
		out = append(out, c.pages[i].Messages...)
	}
	return out
}

func (c *Cache) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err 最近一次拉取失败的错误，成功后清空
func (c *Cache) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close 取消订阅和进行中的拉取；之后到达的结果都不会修改缓存
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	c.events = nil
	unsubs := c.unsubs
	c.unsubs = nil
	c.stopPollingLocked()
	c.mu.Unlock()

	c.cancel()
	for _, fn := range unsubs {
		fn()
	}
	c.wg.Wait()
}

func (c *Cache) beginFetch() (gen, startSeq uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, 0, false
	}
	c.inflight++
	if len(c.pages) > 0 {
		startSeq = c.seq
	}
	return c.gen, startSeq, true
}

// commitLocked 新页已写入 c.pages 后，重放拉取开始之后的事件
func (c *Cache) commitLocked(startSeq uint64) {
	c.replayLocked(startSeq, false)
	c.status = StatusReady
	c.err = nil
	c.fetchedAt = c.opts.Clock()
	c.trimEvents()
}

func (c *Cache) replayLocked(startSeq uint64, updatesOnly bool) {
	for _, ev := range c.events {
		if ev.seq <= startSeq || (updatesOnly && !ev.update) {
			continue
		}
		if next, ok := applyEvent(c.pages, ev); ok {
			c.pages = next
		}
	}
}

func (c *Cache) trimEvents() {
	if c.inflight == 0 && c.status != StatusPending {
		c.events = nil
	}
}

func (c *Cache) changed() {
	if c.opts.OnChange != nil {
		c.opts.OnChange()
	}
}

// fetch 带重试的单页拉取，ctx 或 Close 任一结束即返回
func (c *Cache) fetch(ctx context.Context, page int) ([]message.Message, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	wait := c.opts.RetryBackoff
	for attempt := 0; ; attempt++ {
		msgs, err := c.fetcher.FetchPage(ctx, c.key.ParamValue, page, c.opts.PageSize)
		if err == nil {
			return msgs, nil
		}
		if ctx.Err() != nil || attempt >= c.maxRetries {
			return nil, err
		}
		c.opts.Log.Debug("fetch page retry", "channel_id", c.key.ParamValue, "page", page, "attempt", attempt+1)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		wait *= 2
	}
}

func (c *Cache) onConnState(connected bool) {
	if !connected {
		c.startPolling()
		return
	}
	c.mu.Lock()
	c.stopPollingLocked()
	closed := c.closed
	if !closed {
		c.wg.Add(1)
	}
	c.mu.Unlock()
	if closed {
		return
	}
	// 断线期间可能漏了事件
	go func() {
		defer c.wg.Done()
		if err := c.RefetchIfStale(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.opts.Log.Debug("reconnect refetch failed", "channel_id", c.key.ParamValue, "error", err)
		}
	}()
}

func (c *Cache) startPolling() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.pollStop != nil {
		return
	}
	stop := make(chan struct{})
	c.pollStop = stop
	c.wg.Add(1)
	go c.poll(stop)
}

func (c *Cache) stopPollingLocked() {
	if c.pollStop != nil {
		close(c.pollStop)
		c.pollStop = nil
	}
}

// poll 断线期间定时刷新已加载的页
func (c *Cache) poll(stop <-chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refetch(c.ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrClosed) {
				c.opts.Log.Debug("poll refetch failed", "channel_id", c.key.ParamValue, "error", err)
			}
		}
	}
}

// applyEvent 返回新的页切片；没有变化时 ok=false
func applyEvent(pages []Page, ev event) ([]Page, bool) {
	pi, mi := locate(pages, ev.msg.ID)
	if ev.update {
		if pi < 0 {
			return pages, false
		}
		msgs := make([]message.Message, len(pages[pi].Messages))
		copy(msgs, pages[pi].Messages)
		msgs[mi] = ev.msg
		return replacePage(pages, pi, msgs), true
	}
	if pi >= 0 || len(pages) == 0 {
		return pages, false
	}
	head := pages[0].Messages
	msgs := make([]message.Message, len(head), len(head)+1)
	copy(msgs, head)
	msgs = append(msgs, ev.msg)
	return replacePage(pages, 0, msgs), true
}

func replacePage(pages []Page, i int, msgs []message.Message) []Page {
	out := make([]Page, len(pages))
	copy(out, pages)
	out[i] = Page{Index: pages[i].Index, Messages: msgs}
	return out
}

func locate(pages []Page, id string) (int, int) {
	for pi, p := range pages {
		for mi, m := range p.Messages {
			if m.ID == id {
				return pi, mi
			}
		}
	}
	return -1, -1
}

func withoutKnown(pages []Page, msgs []message.Message) []message.Message {
	out := make([]message.Message, 0, len(msgs))
	for _, m := range msgs {
		if pi, _ := locate(pages, m.ID); pi < 0 {
			out = append(out, m)
		}
	}
	return out
}
