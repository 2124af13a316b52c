package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"club-chat-service/internal/auth"
	"club-chat-service/internal/config"
	"club-chat-service/internal/db"
	"club-chat-service/internal/gate"
	"club-chat-service/internal/handlers"
	"club-chat-service/internal/middleware"
	"club-chat-service/internal/observability"
	"club-chat-service/internal/repositories"
	"club-chat-service/internal/telemetry"
	"club-chat-service/internal/ws"
)

const serviceName = "club-chat-service"

func main() {
	cfg := config.Load()

	ctx := context.Background()
	shutdownTracer, err := telemetry.InitTracer(ctx, serviceName, cfg.OTLPAddr, cfg.Env)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer shutdownTracer(ctx)

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	publisher := observability.NewPublisher(cfg.AMQPURL, cfg.Exchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Printf("event publisher mode=%s", observability.PublisherMode(publisher))

	auditEmitter := telemetry.NewAuditEmitter(publisher, cfg.AuditKey, serviceName, cfg.Env)

	verifier := auth.NewVerifier(cfg.JWTSecret)

	roomRepo := repositories.NewRoomRepo(database)
	membershipRepo := repositories.NewMembershipRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	reactionRepo := repositories.NewReactionRepo(database)

	membershipGate := gate.New(membershipRepo)
	registry := ws.NewRegistry()
	broadcaster := ws.NewBroadcaster(registry)

	roomWS := ws.NewRoomWebSocketHandler(registry, broadcaster, roomRepo, membershipRepo, messageRepo, reactionRepo, membershipGate, verifier, auditEmitter)
	presenceHandler := handlers.NewPresenceHandler(registry, membershipGate)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/healthz", handlers.Health(database))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/rooms/:room_id/presence", authMiddleware, presenceHandler.RoomPresence)
	router.GET("/ws/rooms/:room_id", roomWS.Handle)

	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
