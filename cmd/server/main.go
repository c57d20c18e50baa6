package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/tripdash/internal/api/handlers"
	"github.com/langchou/tripdash/internal/api/telematics"
	"github.com/langchou/tripdash/internal/cache"
	"github.com/langchou/tripdash/internal/clock"
	"github.com/langchou/tripdash/internal/config"
	"github.com/langchou/tripdash/internal/metrics"
	"github.com/langchou/tripdash/internal/repository"
	"github.com/langchou/tripdash/internal/service"
)

// 空闲会话清理周期
const sweepInterval = 5 * time.Minute

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting Tripdash",
		zap.String("port", cfg.ServerPort),
		zap.String("api", cfg.APIURL),
		zap.String("session_store", cfg.SessionStore),
	)

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	clk := clock.Real{}

	// 会话存储
	factory, closeStore, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open session store", zap.Error(err))
	}
	defer closeStore()

	caches := cache.NewRegistry(factory, cfg.CacheTTL, logger, m)
	go caches.Run(ctx, sweepInterval, cfg.SessionTTL, clk.Now)

	// 创建车联网 API 客户端
	client := telematics.NewClient(cfg.APIURL, telematics.Options{
		PageSize:           cfg.PageSize,
		PageConcurrency:    cfg.PageConcurrency,
		Timeout:            cfg.RequestTimeout,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerTimeout:     cfg.BreakerTimeout,
		Metrics:            m,
		Logger:             logger,
	})

	tripService := service.NewTripService(client, clk, logger)

	limiter := handlers.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Sweep(cfg.SessionTTL)
			}
		}
	}()

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(logger, tripService, caches, limiter, m, handlers.Options{
		Debug:          cfg.Debug,
		DevAccessToken: cfg.DevAccessToken,
		SessionCookie:  cfg.SessionCookie,
		SessionTTL:     cfg.SessionTTL,
		CookieSecure:   cfg.CookieSecure,
		Clock:          clk,
	})

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handlers.RequestLogger(logger, m))

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// openSessionStore 按配置选择会话存储后端
func openSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.StoreFactory, func(), error) {
	switch cfg.SessionStore {
	case config.StoreRedis:
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using redis session store")
		return cache.RedisFactory(client, cfg.SessionTTL), func() { _ = client.Close() }, nil

	case config.StorePostgres:
		db, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		// 执行数据库迁移
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("Database migrated successfully")

		repo := repository.NewSessionRepository(db)
		go purgeSessions(ctx, repo, cfg.SessionTTL, logger)
		return repo.Factory(), db.Close, nil

	default:
		logger.Info("Using in-memory session store")
		return cache.MemoryFactory, func() {}, nil
	}
}

// purgeSessions 定期删除过期会话
func purgeSessions(ctx context.Context, repo *repository.SessionRepository, ttl time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.PurgeExpired(ctx, time.Now().Add(-ttl))
			if err != nil {
				logger.Warn("Failed to purge expired sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("Purged expired session rows", zap.Int64("rows", n))
			}
		}
	}
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}
