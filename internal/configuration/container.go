package configuration

import (
	"Intralink/internal/auth"
	"Intralink/internal/db"
	"Intralink/internal/handler"
	"Intralink/internal/hub"
	"Intralink/internal/model"
	"Intralink/internal/repo"
	"Intralink/internal/service"
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Container struct {
	ChatHandler     handler.ChatHandler
	PresenceHandler handler.PresenceHandler
	AuthHandler     handler.AuthHandler
	Hub             *hub.Hub
	Tokens          *auth.TokenIssuer
	Config          Config
	Logger          *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
	redisClient *redis.Client
}

func BuildContainer() (*Container, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	con, err := db.OpenConnection(config.Mongo.URI, config.Mongo.Database)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
	}

	logger, _ := zap.NewProduction()

	messageRepo := repo.NewMessageRepository(con,
		db.NewRepository[model.Message](con, config.Mongo.MessagesCollection), logger)
	conversationRepo := repo.NewConversationRepository(con,
		db.NewRepository[model.Conversation](con, config.Mongo.ConversationsCollection), logger)
	presenceRepo := repo.NewPresenceRepository(
		db.NewRepository[model.UserPresence](con, config.Mongo.PresenceCollection), logger)
	connectionStore := repo.NewConnectionStore(rdb)

	// The hub exists before the services because they broadcast through it.
	h := hub.NewHub(config.AllowedOrigins)

	presenceService := service.NewPresenceService(connectionStore, presenceRepo, logger)
	messageService := service.NewMessageService(messageRepo, conversationRepo, h, h, logger)
	h.Bind(messageService, presenceService)

	tokens := auth.NewTokenIssuer(config.Auth.Secret, config.Auth.TokenTTL)

	return &Container{
		ChatHandler:     handler.NewChatHandler(messageService),
		PresenceHandler: handler.NewPresenceHandler(presenceService),
		AuthHandler:     handler.NewAuthHandler(tokens),
		Hub:             h,
		Tokens:          tokens,
		Config:          *config,
		Logger:          logger,
		mongoClient:     con,
		redisClient:     rdb,
	}, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	if c.redisClient != nil {
		_ = c.redisClient.Close()
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
