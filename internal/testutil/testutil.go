// Package testutil builds throwaway backends for package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/pkg/database"
)

// NewDB opens a private in-memory sqlite database with every table migrated.
// A single connection serialises access the way sqlite needs.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, domain.Models()...))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// NewRedis starts a miniredis server and returns a client bound to it.
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := database.NewRedisClient(context.Background(), database.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// SeedUser inserts a user row.
func SeedUser(t testing.TB, db *gorm.DB, id, email, username string) {
	t.Helper()
	require.NoError(t, db.Create(&domain.UserModel{ID: id, Email: email, Username: username}).Error)
}

// SeedCategory inserts a category row and returns its id.
func SeedCategory(t testing.TB, db *gorm.DB, name string) uint {
	t.Helper()
	m := domain.CategoryModel{Name: name}
	require.NoError(t, db.Create(&m).Error)
	return m.ID
}
