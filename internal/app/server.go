// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"edumarket-service/internal/config"
	"edumarket-service/internal/db"
	"edumarket-service/internal/feed"
	authHandler "edumarket-service/internal/handlers/auth"
	notifyH "edumarket-service/internal/handlers/notification"
	wsHandler "edumarket-service/internal/handlers/websocket"
	"edumarket-service/internal/metrics"
	"edumarket-service/internal/middleware"
	"edumarket-service/internal/pkg/jwt"
	"edumarket-service/internal/pkg/session"
	"edumarket-service/internal/repository/postgres"
	redisrepo "edumarket-service/internal/repository/redis"
	notifyUsecase "edumarket-service/internal/service/notification"
	"edumarket-service/internal/websocket"
	wsHandlers "edumarket-service/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer(logger *zap.Logger) *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine, logger: logger}
}

// Start wires every component and serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	logger := s.logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	logger.Info("postgres connected and migrated")

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addresses: []string{s.cfg.RedisAddr},
		Password:  s.cfg.RedisPass,
		DB:        s.cfg.RedisDB,
		PoolSize:  10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()
	logger.Info("redis connected", zap.String("addr", s.cfg.RedisAddr))

	// ----- JWT -----
	jwtManager, err := jwt.LoadAndBuild(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT manager: %w", err)
	}

	blacklist := session.NewBlacklist(redisClient)
	appMetrics := metrics.New()

	// ----- Repositories -----
	dbWrapper := postgres.NewDB(pool)
	notifyRepo := postgres.NewNotificationRepository(dbWrapper)
	typeRepo := postgres.NewNotificationTypeRepository(dbWrapper)
	prefRepo := postgres.NewPreferenceRepository(dbWrapper)
	unreadCache := redisrepo.NewUnreadCache(redisClient, s.cfg.UnreadCacheTTL)

	// ----- Services -----
	notifService := notifyUsecase.NewNotificationService(notifyRepo, typeRepo, prefRepo, unreadCache, logger)

	// ----- WebSocket Hub -----
	hub := websocket.NewHub(jwtManager.Verifier, blacklist, logger, appMetrics)
	notifService.WithCountNotifier(hub)
	if err := hub.RegisterHandler(wsHandlers.NewNotificationHandler(notifService, logger)); err != nil {
		return fmt.Errorf("failed to register websocket handler: %w", err)
	}
	go hub.Run(ctx)

	// ----- Change feed -----
	dispatcher := feed.NewDispatcher(notifyRepo, notifService, hub, logger, appMetrics)
	go feed.NewListener(pool, dispatcher, logger).Run(ctx)

	// ----- Archiver -----
	go notifService.RunArchiver(ctx, s.cfg.ArchiveInterval, s.cfg.ArchiveAfterDays)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(jwtManager.Verifier, blacklist, s.cfg.ServiceKeyHash, logger)
	if s.cfg.ServiceKeyHash == "" {
		logger.Warn("SERVICE_KEY_HASH not set, admin endpoints accept admin tokens only")
	}

	s.engine.Use(
		middleware.RecoveryMiddleware(logger, appMetrics),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(s.cfg.AllowedOrigins),
	)

	// ----- Router -----
	SetupRouter(s.engine, logger, &Handlers{
		AuthHandler:    authHandler.NewAuthHandler(blacklist, hub, logger),
		NotifHandler:   notifyH.NewNotificationHandler(notifService, logger, appMetrics),
		WSHandler:      wsHandler.NewWebSocketHandler(hub, s.cfg.AllowedOrigins, logger),
		AuthMiddleware: authMiddleware,
		Metrics:        appMetrics,
	})

	// ----- Start HTTP -----
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down http server")
	return srv.Shutdown(shutdownCtx)
}
