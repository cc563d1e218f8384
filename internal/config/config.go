package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/babble-live/pkg/config"
	"github.com/weiawesome/babble-live/pkg/database"
	"github.com/weiawesome/babble-live/pkg/jwt"
	"github.com/weiawesome/babble-live/pkg/log"
	"github.com/weiawesome/babble-live/pkg/pubsub"
	"github.com/weiawesome/babble-live/pkg/storage"
)

type Config struct {
	Server     ServerConfig
	Gateway    GatewayConfig
	Database   database.Config
	Redis      database.RedisConfig
	Cache      CacheConfig
	Relay      RelayConfig
	Presence   PresenceConfig
	Auth       jwt.Config
	Room       RoomConfig
	Listing    ListingConfig
	Storage    StorageConfig
	Categories []string
	Log        log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

// GatewayConfig configures the websocket listener and per-connection timings.
type GatewayConfig struct {
	Host           string
	Port           int
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type CacheConfig struct {
	Prefix    string
	TTL       time.Duration `mapstructure:"-"`
	LockLease time.Duration `mapstructure:"lock_lease"`
	LockWait  time.Duration `mapstructure:"lock_wait"`
}

// RelayConfig selects the bus used to fan room frames out to other
// instances. Driver "none" runs a single instance.
type RelayConfig struct {
	pubsub.Config `mapstructure:",squash"`
	InstanceID    string `mapstructure:"instance_id"`
}

type PresenceConfig struct {
	GracePeriod time.Duration `mapstructure:"-"` // presence.grace_period
}

type RoomConfig struct {
	MaxTitleLength int `mapstructure:"max_title_length"`
	MaxHashtags    int `mapstructure:"max_hashtags"`
	CreateAttempts int `mapstructure:"create_attempts"`
}

type ListingConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

type StorageConfig struct {
	storage.Config `mapstructure:",squash"`
	URLTTL         time.Duration `mapstructure:"url_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)

	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8091)
	v.SetDefault("gateway.ping_interval", "30s")
	v.SetDefault("gateway.pong_wait", "60s")
	v.SetDefault("gateway.write_wait", "10s")
	v.SetDefault("gateway.max_message_size", 4096)
	v.SetDefault("gateway.send_buffer", 256)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "babble_live")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/babble.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("cache.prefix", "room")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.lock_lease", "5s")
	v.SetDefault("cache.lock_wait", "2s")

	def := pubsub.DefaultConfig()
	v.SetDefault("relay.driver", pubsub.DriverRedis)
	v.SetDefault("relay.instance_id", "")
	v.SetDefault("relay.kafka.brokers", def.Kafka.Brokers)
	v.SetDefault("relay.kafka.group_id", def.Kafka.GroupID)
	v.SetDefault("relay.kafka.partitions", def.Kafka.Partitions)
	v.SetDefault("relay.kafka.topic", def.Kafka.Topic)

	v.SetDefault("presence.grace_period", "30s")

	v.SetDefault("auth.issuer", "babble-live")
	v.SetDefault("auth.private_key_path", "")
	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("auth.access_ttl", "15m")

	v.SetDefault("room.max_title_length", 200)
	v.SetDefault("room.max_hashtags", 10)
	v.SetDefault("room.create_attempts", 3)

	v.SetDefault("listing.max_concurrency", 16)

	v.SetDefault("storage.driver", "none")
	v.SetDefault("storage.url_ttl", "1h")
	v.SetDefault("storage.local.base_path", "./data/thumbnails")
	v.SetDefault("storage.local.public_url", "/thumbnails")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.use_path_style", false)

	v.SetDefault("categories", []string{"gaming", "music", "movies", "talk", "sports", "education"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "babble-live")
}

var envBindings = map[string]string{
	"server.port":              "PORT",
	"gateway.port":             "GATEWAY_PORT",
	"database.driver":          "DB_DRIVER",
	"database.host":            "DB_HOST",
	"database.port":            "DB_PORT",
	"database.user":            "DB_USER",
	"database.password":        "DB_PASSWORD",
	"database.dbname":          "DB_NAME",
	"database.sslmode":         "DB_SSLMODE",
	"database.file_path":       "DB_FILE_PATH",
	"redis.address":            "REDIS_ADDRESS",
	"redis.password":           "REDIS_PASSWORD",
	"relay.driver":             "RELAY_DRIVER",
	"relay.instance_id":        "INSTANCE_ID",
	"relay.kafka.brokers":      "KAFKA_BROKERS",
	"presence.grace_period":    "PRESENCE_GRACE_PERIOD",
	"auth.private_key_path":    "JWT_PRIVATE_KEY_PATH",
	"auth.public_key_path":     "JWT_PUBLIC_KEY_PATH",
	"storage.driver":           "STORAGE_DRIVER",
	"storage.s3.endpoint":      "S3_ENDPOINT",
	"storage.s3.bucket":        "S3_BUCKET",
	"storage.s3.access_key_id": "S3_ACCESS_KEY_ID",
	"log.level":                "LOG_LEVEL",
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	setDefaults(v)
	if err := pkgconfig.BindEnvs(v, envBindings); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// A malformed value falls back to the default.
	cfg.Presence.GracePeriod = pkgconfig.Duration(v, "presence.grace_period", 30*time.Second)
	cfg.Cache.TTL = pkgconfig.Duration(v, "cache.ttl", 5*time.Minute)

	if cfg.Log.InstanceID == "" {
		cfg.Log.InstanceID = cfg.Relay.InstanceID
	}
	return &cfg, nil
}
