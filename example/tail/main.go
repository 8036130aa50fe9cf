// tail 在终端里跟随一个频道：feed 缓存 + 实时事件 + 滚动跟随。
//
//	go run ./example/tail -server http://localhost:6789 -channel general -user alice
//
// 输入文字发送消息；/older 加载更早；/up /down 翻页；/edit <id> <text>；/del <id>；/quit
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cydxin/channel-sdk/client"
	"github.com/cydxin/channel-sdk/feed"
	"github.com/cydxin/channel-sdk/logger"
	"github.com/cydxin/channel-sdk/message"
	"github.com/cydxin/channel-sdk/scroll"
	"github.com/joho/godotenv"
)

// 一行算 20px，和浏览器里的阈值同一量级
const lineHeight = 20

// terminal 把终端当作固定高度的滚动容器
type terminal struct {
	mu     sync.Mutex
	cache  *feed.Cache
	height int // 可见行数
	top    int // 第一行可见行
}

func (t *terminal) lines() int {
	return len(t.cache.Messages())
}

func (t *terminal) HasBottomAnchor() bool {
	return t.lines() > 0
}

func (t *terminal) Metrics() (scroll.Metrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return scroll.Metrics{
		ScrollHeight: float64(t.lines() * lineHeight),
		ScrollTop:    float64(t.top * lineHeight),
		ClientHeight: float64(t.height * lineHeight),
	}, true
}

func (t *terminal) ScrollToBottom() {
	t.mu.Lock()
	t.top = max(0, t.lines()-t.height)
	t.mu.Unlock()
	t.render()
}

func (t *terminal) move(delta int) {
	t.mu.Lock()
	t.top = min(max(0, t.top+delta), max(0, t.lines()-t.height))
	t.mu.Unlock()
	t.render()
}

func (t *terminal) render() {
	t.mu.Lock()
	defer t.mu.Unlock()
	msgs := t.cache.Messages()
	end := min(len(msgs), t.top+t.height)

	var b strings.Builder
	b.WriteString("\033[H\033[2J")
	for _, m := range msgs[min(t.top, end):end] {
		mark := ""
		if m.IsDeleted {
			mark = " (deleted)"
		} else if m.IsUpdated() {
			mark = " (edited)"
		}
		text := m.Text()
		if m.FileURL != nil {
			text += " [" + *m.FileURL + "]"
		}
		fmt.Fprintf(&b, "%s %-8s %s%s  #%s\n", m.CreatedAt.Local().Format("15:04:05"), m.UserID, text, mark, shortID(m.ID))
	}
	fmt.Fprintf(&b, "-- %d/%d %s more=%v --\n> ", end, len(msgs), t.cache.Status(), t.cache.HasMore())
	fmt.Print(b.String())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// devToken 调用服务端开发环境的 /dev/token
func devToken(server, user string) (string, error) {
	resp, err := http.Post(server+"/dev/token?user_id="+url.QueryEscape(user), "application/json", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Data.Token == "" {
		return "", fmt.Errorf("dev token: %s", out.Msg)
	}
	return out.Data.Token, nil
}

// resolveID 允许输入消息 id 前缀
func resolveID(cache *feed.Cache, prefix string) string {
	for _, m := range cache.Messages() {
		if strings.HasPrefix(m.ID, prefix) {
			return m.ID
		}
	}
	return prefix
}

func main() {
	_ = godotenv.Load()

	server := flag.String("server", "http://localhost:6789", "服务端地址")
	channelID := flag.String("channel", "general", "频道ID")
	workspaceID := flag.String("workspace", "demo", "工作区ID")
	user := flag.String("user", "alice", "开发环境用户")
	token := flag.String("token", os.Getenv("CHANNEL_TOKEN"), "已有 token，为空时调用 /dev/token")
	height := flag.Int("height", 20, "可见行数")
	flag.Parse()

	log := logger.New("channel-tail", os.Getenv("APP_ENV"))
	defer func() { _ = log.Sync() }()

	tk := *token
	if tk == "" {
		var err error
		if tk, err = devToken(*server, *user); err != nil {
			log.Error("get token failed", "error", err)
			os.Exit(1)
		}
	}

	api := *server + "/api/v1"
	hc := client.New(api, client.WithToken(func() string { return tk }), client.WithLogger(log))
	sock := client.NewSocket("ws"+strings.TrimPrefix(api, "http")+"/ws?token="+url.QueryEscape(tk),
		client.WithSocketLogger(log.Named("ws")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sock.Start(ctx)
	defer sock.Close()

	term := &terminal{height: *height}
	var ctrl *scroll.Controller
	cache := feed.New(*channelID, hc, sock, feed.Options{
		Log: log.Named("feed"),
		OnChange: func() {
			if ctrl == nil || !ctrl.OnChange() {
				term.render()
			}
		},
	})
	term.cache = cache
	ctrl = scroll.NewController(term)
	defer ctrl.Close()
	defer cache.Close()

	if err := cache.Start(ctx); err != nil {
		log.Warn("initial load failed", "error", err)
	}
	ctrl.OnChange()

	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		reqCtx, done := context.WithTimeout(ctx, 10*time.Second)
		var err error
		switch {
		case line == "":
			_ = cache.Focus(reqCtx)
			term.render()
		case line == "/quit":
			done()
			return
		case line == "/older":
			err = cache.LoadOlder(reqCtx)
		case line == "/up":
			term.move(-*height)
		case line == "/down":
			term.move(*height)
		case strings.HasPrefix(line, "/edit "):
			parts := strings.SplitN(strings.TrimPrefix(line, "/edit "), " ", 2)
			if len(parts) == 2 {
				_, err = hc.Edit(reqCtx, *channelID, *workspaceID, resolveID(cache, parts[0]), parts[1])
			}
		case strings.HasPrefix(line, "/del "):
			_, err = hc.Delete(reqCtx, *channelID, *workspaceID, resolveID(cache, strings.TrimPrefix(line, "/del ")))
		default:
			_, err = hc.Post(reqCtx, *channelID, *workspaceID, message.CreateReq{Content: &line})
		}
		done()
		if err != nil {
			fmt.Printf("error: %v\n> ", err)
		}
	}
}
