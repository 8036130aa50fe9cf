package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cydxin/channel-sdk/logger"
	"github.com/cydxin/channel-sdk/message"
	"github.com/cydxin/channel-sdk/response"
)

const (
	defaultRetries = 3
	defaultBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// APIError 非 2xx 响应
type APIError struct {
	Status int
	Code   int
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%d msg=%s", e.Status, e.Code, e.Msg)
}

// retryable 5xx 和存储不可用可以重试，其余（鉴权/权限/参数）重试也没用
func (e *APIError) retryable() bool {
	return e.Status >= 500 || e.Code == response.CodeStoreUnavailable
}

// Client 消息接口的 HTTP 客户端，读接口带重试，写接口不重试
type Client struct {
	baseURL string
	http    *http.Client
	token   func() string
	retries int
	backoff time.Duration
	log     *logger.Logger
}

type Option func(*Client)

// WithToken 每次请求取一次 token（可以是刷新后的）
func WithToken(fn func() string) Option {
	return func(c *Client) {
		c.token = fn
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithRetry retries 为失败后重试次数，backoff 为首次等待，之后翻倍
func WithRetry(retries int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retries = retries
		c.backoff = backoff
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// New baseURL 形如 http://localhost:6789/api/v1
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		retries: defaultRetries,
		backoff: defaultBackoff,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Retries 读接口失败后的重试次数；feed.Cache 据此不再叠加重试
func (c *Client) Retries() int {
	return c.retries
}

// FetchPage GET /messages，page=0 为最新一页
func (c *Client) FetchPage(ctx context.Context, channelID string, page, size int) ([]message.Message, error) {
	q := url.Values{}
	q.Set("channelId", channelID)
	q.Set("page", strconv.Itoa(page))
	if size > 0 {
		q.Set("size", strconv.Itoa(size))
	}

	var out []message.Message
	err := c.withRetry(ctx, func() error {
		out = nil
		return c.do(ctx, http.MethodGet, "/messages", q, nil, &out)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []message.Message{}
	}
	return out, nil
}

// Post POST /messages
func (c *Client) Post(ctx context.Context, channelID, workspaceID string, req message.CreateReq) (*message.Message, error) {
	var out message.Message
	if err := c.do(ctx, http.MethodPost, "/messages", channelQuery(channelID, workspaceID), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Edit PATCH /messages/:messageId
func (c *Client) Edit(ctx context.Context, channelID, workspaceID, messageID, content string) (*message.Message, error) {
	var out message.Message
	path := "/messages/" + url.PathEscape(messageID)
	if err := c.do(ctx, http.MethodPatch, path, channelQuery(channelID, workspaceID), message.UpdateReq{Content: content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete DELETE /messages/:messageId，返回墓碑
func (c *Client) Delete(ctx context.Context, channelID, workspaceID, messageID string) (*message.Message, error) {
	var out message.Message
	path := "/messages/" + url.PathEscape(messageID)
	if err := c.do(ctx, http.MethodDelete, path, channelQuery(channelID, workspaceID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func channelQuery(channelID, workspaceID string) url.Values {
	q := url.Values{}
	q.Set("channelId", channelID)
	if workspaceID != "" {
		q.Set("workspaceId", workspaceID)
	}
	return q
}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var err error
	wait := c.backoff
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return err
		}
		if ctx.Err() != nil || attempt >= c.retries {
			return err
		}
		c.log.Debug("retry request", "attempt", attempt+1, "wait", wait, "error", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		wait *= 2
		if wait > maxBackoff {
			wait = maxBackoff
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if tk := c.token(); tk != "" {
			req.Header.Set("Authorization", "Bearer "+tk)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env struct {
		Code int             `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.StatusCode >= 300 || env.Code != response.CodeSuccess {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Msg: env.Msg}
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}
