package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrDisabled is returned by New when the driver is "none".
var ErrDisabled = errors.New("object storage disabled")

// Config selects and configures the storage backend.
type Config struct {
	Driver string      `mapstructure:"driver"` // none, local, s3
	S3     S3Config    `mapstructure:"s3"`
	Local  LocalConfig `mapstructure:"local"`
}

// New builds the configured backend.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Storage(ctx, cfg.S3)
	case "local":
		return NewLocalStorage(cfg.Local)
	case "none", "":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
