package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cydxin/channel-sdk"
	"github.com/cydxin/channel-sdk/logger"
	"github.com/cydxin/channel-sdk/middleware"
	"github.com/cydxin/channel-sdk/models"
	"github.com/cydxin/channel-sdk/repository"
	"github.com/cydxin/channel-sdk/response"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func openDB(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	case "mysql":
		return gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	}
	return nil, errors.New("unsupported DB_DRIVER: " + driver)
}

func main() {
	memory := flag.Bool("memory", false, "使用内存存储（不连数据库）")
	flag.Parse()

	// .env 不存在时直接用环境变量
	_ = godotenv.Load()

	env := getenv("APP_ENV", "development")
	log := logger.New("channel-server", env)
	defer func() { _ = log.Sync() }()

	// 1. 存储
	opts := []channel_sdk.Option{
		channel_sdk.WithLogger(log),
		channel_sdk.WithJWTSecret(os.Getenv("JWT_SECRET"), os.Getenv("JWT_ISSUER")),
	}
	var db *gorm.DB
	if *memory {
		store := repository.NewMemoryStore()
		opts = append(opts, channel_sdk.WithRepositories(store, store.Channels()))
	} else {
		var err error
		db, err = openDB(getenv("DB_DRIVER", "mysql"),
			getenv("DB_DSN", "root:password@tcp(127.0.0.1:3306)/chat_db?charset=utf8mb4&parseTime=True&loc=UTC"))
		if err != nil {
			log.Error("数据库连接失败", "error", err)
			os.Exit(1)
		}
		opts = append(opts, channel_sdk.WithDB(db))
	}

	// 2. Redis：opaque token + 多实例广播
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Error("Redis 连接失败", "addr", addr, "error", err)
			os.Exit(1)
		}
		opts = append(opts, channel_sdk.WithRDB(rdb), channel_sdk.WithRedisRelay(os.Getenv("HUB_RELAY") == "true"))
		if ttl, err := time.ParseDuration(os.Getenv("TOKEN_REFRESH_TTL")); err == nil {
			opts = append(opts, channel_sdk.WithTokenRefresh(ttl))
		}
	}

	engine, err := channel_sdk.NewEngine(opts...)
	if err != nil {
		log.Error("初始化失败", "error", err)
		os.Exit(1)
	}
	if db != nil {
		if err := engine.AutoMigrate(); err != nil {
			log.Error("AutoMigrate 失败", "error", err)
			os.Exit(1)
		}
	}

	// 本地调试用的频道
	demo := &models.Channel{
		ID:          getenv("DEMO_CHANNEL_ID", "general"),
		WorkspaceID: getenv("DEMO_WORKSPACE_ID", "demo"),
		Name:        "general",
		UserID:      "admin",
		Members:     []string{"admin", "alice", "bob"},
	}
	if err := engine.EnsureChannel(context.Background(), demo); err != nil {
		log.Warn("EnsureChannel 失败", "channel_id", demo.ID, "error", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	if err := engine.Start(startCtx); err != nil {
		log.Error("engine 启动失败", "error", err)
		os.Exit(1)
	}
	cancelStart()

	// 3. 路由
	if env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.GinZapLogger(log.Named("http")), gin.Recovery())

	// 设置 CORS（如果需要）
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// 注册 Swagger UI
	channel_sdk.RegisterSwagger(r, "/swagger/*any")

	api := r.Group("/api/v1")
	engine.RegisterRoutes(api)

	// 开发环境签发 token：POST /dev/token?user_id=alice
	if env == "development" {
		r.POST("/dev/token", func(c *gin.Context) {
			uid := c.Query("user_id")
			if uid == "" {
				c.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, "user_id is required"))
				return
			}
			tok, err := engine.AuthService.IssueToken(c.Request.Context(), uid, 24*time.Hour)
			if err != nil {
				c.JSON(http.StatusInternalServerError, response.Error(response.CodeInternalError, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.Success(gin.H{"token": tok}))
		})
	}

	addr := getenv("HTTP_ADDR", ":6789")
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		log.Info("服务器启动", "addr", addr, "swagger", "http://localhost"+addr+"/swagger/index.html")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("服务器启动失败", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = engine.Shutdown(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("服务器关闭失败", "error", err)
	}
	log.Info("服务器已关闭")
}
