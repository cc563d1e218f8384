package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/babble-live/pkg/pubsub"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 8091, cfg.Gateway.Port)
	assert.Equal(t, 30*time.Second, cfg.Gateway.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.Gateway.PongWait)
	assert.Equal(t, int64(4096), cfg.Gateway.MaxMessageSize)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 5*time.Second, cfg.Cache.LockLease)
	assert.Equal(t, pubsub.DriverRedis, cfg.Relay.Driver)
	assert.Equal(t, "live-events", cfg.Relay.Kafka.Topic)
	assert.Equal(t, 30*time.Second, cfg.Presence.GracePeriod)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 200, cfg.Room.MaxTitleLength)
	assert.Equal(t, 10, cfg.Room.MaxHashtags)
	assert.Equal(t, 16, cfg.Listing.MaxConcurrency)
	assert.Equal(t, "none", cfg.Storage.Driver)
	assert.Equal(t, time.Hour, cfg.Storage.URLTTL)
	assert.Contains(t, cfg.Categories, "movies")
	assert.Equal(t, "babble-live", cfg.Log.ServiceName)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("RELAY_DRIVER", "kafka")
	t.Setenv("INSTANCE_ID", "node-a")
	t.Setenv("PRESENCE_GRACE_PERIOD", "5s")
	t.Setenv("ROOM_MAX_HASHTAGS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, pubsub.DriverKafka, cfg.Relay.Driver)
	assert.Equal(t, "node-a", cfg.Relay.InstanceID)
	assert.Equal(t, "node-a", cfg.Log.InstanceID)
	assert.Equal(t, 5*time.Second, cfg.Presence.GracePeriod)
	assert.Equal(t, 3, cfg.Room.MaxHashtags)
}

func TestLoad_MalformedGracePeriodFallsBack(t *testing.T) {
	t.Setenv("PRESENCE_GRACE_PERIOD", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Presence.GracePeriod)
}
