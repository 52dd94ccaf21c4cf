package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"voxtro/internal/ai"
	"voxtro/internal/config"
	"voxtro/internal/handler"
	"voxtro/internal/pkg/cache"
	"voxtro/internal/pkg/jwt"
	"voxtro/internal/pkg/mongodb"
	"voxtro/internal/repository"
	"voxtro/internal/server/middleware"
	"voxtro/internal/service"
)

// Server HTTP 服务器
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	mongo  *mongodb.Client
	redis  *cache.RedisCache
}

// New 创建服务器实例
// Mongo 与 LLM 是核心依赖，初始化失败直接报错；Redis 可选，
// 缺席时响应缓存退化为进程内缓存
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	mongoClient, err := mongodb.New(&cfg.Mongo)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

	if err := mongodb.EnsureIndexes(mongoClient.Database()); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, using in-process response cache")
		} else {
			redisCache = rc
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		}
	}

	llm, err := ai.NewClient(ctx, &cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("initialize AI client: %w", err)
	}
	log.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Msg("initialized AI client")

	srv := &Server{
		cfg:    cfg,
		engine: engine,
		mongo:  mongoClient,
		redis:  redisCache,
	}

	srv.setupRoutes(llm)

	return srv, nil
}

// setupRoutes 组装依赖并设置路由
func (s *Server) setupRoutes(llm *ai.Client) {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	db := s.mongo.Database()
	chatbotRepo := repository.NewChatbotRepo(db)
	convRepo := repository.NewConversationRepo(db)
	usageRepo := repository.NewUsageRepo(db)
	invocationRepo := repository.NewInvocationRepo(db)
	leadRepo := repository.NewLeadRepo(db)
	formRepo := repository.NewFormSubmissionRepo(db)

	var cacheStore service.CacheStore
	if s.redis != nil {
		cacheStore = service.NewRedisCacheStore(s.redis)
	} else {
		cacheStore = service.NewMemoryCacheStore()
	}

	assembler := service.NewContextAssembler(service.AssemblerConfig{
		HistoryLimit:        s.cfg.Chat.HistoryLimit,
		ContextCharBudget:   s.cfg.Chat.ContextCharBudget,
		KnowledgeCharBudget: s.cfg.Chat.KnowledgeCharBudget,
	})
	ledger := service.NewTokenLedger(usageRepo, service.Budget{
		Daily:   s.cfg.Chat.DefaultDailyTokenLimit,
		Monthly: s.cfg.Chat.DefaultMonthlyTokenLimit,
	})
	dispatcher := service.NewActionDispatcher(invocationRepo, leadRepo)
	respCache := service.NewResponseCache(cacheStore)

	chatSvc := service.NewChatService(
		chatbotRepo,
		convRepo,
		assembler,
		respCache,
		ledger,
		llm,
		dispatcher,
		s.cfg.Chat,
	)
	widgetSvc := service.NewWidgetService(chatbotRepo, formRepo)

	chatHdl := handler.NewChatHandler(chatSvc)
	widgetHdl := handler.NewWidgetHandler(chatSvc, widgetSvc)
	formHdl := handler.NewFormHandler(widgetSvc)
	leadHdl := handler.NewLeadHandler(chatSvc)

	// 健康检查
	healthHdl := handler.NewHealthHandler(s.readinessChecks()...)
	s.engine.GET("/health", healthHdl.Health)
	s.engine.GET("/ready", healthHdl.Ready)

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1
	v1 := s.engine.Group("/api/v1")
	{
		// 公开接口（widget 嵌入场景）
		v1.POST("/widget/:chatbot_id/message", widgetHdl.Message)
		v1.GET("/widget/:chatbot_id/config", widgetHdl.Config)
		v1.POST("/forms/submit", formHdl.Submit)
		v1.POST("/conversations/:id/end", chatHdl.EndConversation)

		// 认证接口
		jwtSecret := s.cfg.Auth.JWTSecret
		if jwtSecret == "" {
			jwtSecret = "default-secret-key-change-in-production"
			log.Warn().Msg("JWT secret not configured, using default (NOT SECURE for production)")
		}
		accessTokenExpiry := s.cfg.Auth.AccessTokenExpiry
		if accessTokenExpiry == 0 {
			accessTokenExpiry = 24 * time.Hour
		}
		jwtUtil := jwt.NewJWT(jwtSecret, accessTokenExpiry)

		auth := v1.Group("")
		auth.Use(middleware.Auth(jwtUtil))
		{
			auth.POST("/chat-message", chatHdl.ChatMessage)
			auth.POST("/leads/extract", leadHdl.Extract)
		}
	}
}

// readinessChecks 就绪探测项
func (s *Server) readinessChecks() []func() error {
	checks := []func() error{
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return s.mongo.Client().Ping(ctx, nil)
		},
	}
	if s.redis != nil {
		checks = append(checks, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return s.redis.Client().Ping(ctx).Err()
		})
	}
	return checks
}

// Run 启动服务器
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		if err := s.mongo.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to close MongoDB connection")
		}
		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close Redis connection")
			}
		}

		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
