package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/trackvote/internal/auth"
	"github.com/trackvote/internal/config"
	"github.com/trackvote/internal/registry"
	"github.com/trackvote/internal/room"
	"github.com/trackvote/internal/ws"
	"github.com/trackvote/pkg/database"
	"github.com/trackvote/pkg/events"
	"github.com/trackvote/pkg/logger"
	"github.com/trackvote/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg.Env)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Optional MySQL durability
	var db *database.MySQLDB
	if cfg.Persistence() {
		db, err = database.NewMySQLDB(
			cfg.MySQLHost,
			cfg.MySQLPort,
			cfg.MySQLUser,
			cfg.MySQLPassword,
			cfg.MySQLDatabase,
		)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
	}

	// Redis: auth sessions and the room cache
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	// Optional Kafka relay for multi-instance deployments
	var relay *events.KafkaClient
	if cfg.Relay() {
		relay = events.NewKafkaClient(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
		defer relay.Close()
	}

	sessions := redis.NewSessionStore(redisClient)
	roomCache := redis.NewRoomCache(redisClient)

	reg := registry.New(cfg.CodeLength)
	gateway := ws.New(func(id uuid.UUID) bool {
		_, err := reg.ResolveByID(id)
		return err == nil
	}, log)

	roomService := room.NewService(reg, gateway, db, roomCache, relay, cfg.HistoryLimit, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := roomService.Restore(ctx); err != nil {
		log.Error("failed to restore state", "error", err)
		os.Exit(1)
	}

	go roomService.RunRelay(ctx)
	go roomService.SweepIdleRooms(ctx, cfg.RoomTTL)

	authHandler := auth.NewHandler(sessions)
	roomHandler := room.NewHandler(roomService)
	wsHandler := ws.NewHandler(gateway, log)

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Public routes
	authHandler.RegisterRoutes(v1)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(auth.AuthMiddleware(sessions))
	{
		roomHandler.RegisterRoutes(protected)

		// WebSocket endpoint
		protected.GET("/ws/:roomId", wsHandler.HandleWebSocket)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "persistence", cfg.Persistence(), "relay", cfg.Relay())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", "error", err)
	}

	// Drain every room hub so no accepted mutation is dropped.
	roomService.Shutdown()
}
