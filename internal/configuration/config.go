package configuration

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	AppPort    int
	SocketPort int
}

type MongoConfig struct {
	URI                     string
	Database                string
	MessagesCollection      string
	ConversationsCollection string
	PresenceCollection      string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

type Config struct {
	Server         ServerConfig
	Mongo          MongoConfig
	Redis          RedisConfig
	Auth           AuthConfig
	AllowedOrigins []string
}

// LoadConfig reads config.yaml from the working directory (or a parent),
// with environment variables overriding file values.
func LoadConfig() (*Config, error) {
	cfg := viper.New()

	cfg.SetConfigName("config")
	cfg.SetConfigType("yaml")
	cfg.AddConfigPath(".")
	cfg.AddConfigPath("..")
	cfg.AddConfigPath("../..")

	cfg.AutomaticEnv()

	cfg.SetDefault("server.app_port", 8080)
	cfg.SetDefault("server.socket_port", 8081)
	cfg.SetDefault("mongo.uri", "mongodb://localhost:27017")
	cfg.SetDefault("mongo.database", "intralink")
	cfg.SetDefault("mongo.messages_collection", "messages")
	cfg.SetDefault("mongo.conversations_collection", "conversations")
	cfg.SetDefault("mongo.presence_collection", "user_presence")
	cfg.SetDefault("redis.addr", "localhost:6379")
	cfg.SetDefault("redis.password", "")
	cfg.SetDefault("redis.db", 0)
	cfg.SetDefault("auth.secret", "dev-only-secret")
	cfg.SetDefault("auth.token_ttl", "24h")
	cfg.SetDefault("cors.allowed_origins", []string{"http://localhost:4200"})

	if err := cfg.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("Config file not found, using default values")
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	ttl, err := time.ParseDuration(cfg.GetString("auth.token_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid auth.token_ttl: %w", err)
	}

	return &Config{
		Server: ServerConfig{
			AppPort:    cfg.GetInt("server.app_port"),
			SocketPort: cfg.GetInt("server.socket_port"),
		},
		Mongo: MongoConfig{
			URI:                     cfg.GetString("mongo.uri"),
			Database:                cfg.GetString("mongo.database"),
			MessagesCollection:      cfg.GetString("mongo.messages_collection"),
			ConversationsCollection: cfg.GetString("mongo.conversations_collection"),
			PresenceCollection:      cfg.GetString("mongo.presence_collection"),
		},
		Redis: RedisConfig{
			Addr:     cfg.GetString("redis.addr"),
			Password: cfg.GetString("redis.password"),
			DB:       cfg.GetInt("redis.db"),
		},
		Auth: AuthConfig{
			Secret:   cfg.GetString("auth.secret"),
			TokenTTL: ttl,
		},
		AllowedOrigins: cfg.GetStringSlice("cors.allowed_origins"),
	}, nil
}
