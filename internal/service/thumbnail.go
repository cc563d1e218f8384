package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/pkg/storage"
)

// ThumbnailResolver turns stored thumbnail keys into client URLs. Values that
// are already absolute URLs pass through untouched, as does everything when
// no storage backend is configured.
type ThumbnailResolver struct {
	storage storage.Storage
	ttl     time.Duration
}

func NewThumbnailResolver(s storage.Storage, ttl time.Duration) *ThumbnailResolver {
	return &ThumbnailResolver{storage: s, ttl: ttl}
}

func isAbsoluteURL(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func (r *ThumbnailResolver) stored(ref string) bool {
	return r != nil && r.storage != nil && ref != "" && !isAbsoluteURL(ref)
}

// Check rejects a stored key that has no object behind it.
func (r *ThumbnailResolver) Check(ctx context.Context, ref string) error {
	if !r.stored(ref) {
		return nil
	}
	ok, err := r.storage.Exists(ctx, ref)
	if err != nil {
		return fmt.Errorf("check thumbnail: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: thumbnail %q not uploaded", domain.ErrInvalidInput, ref)
	}
	return nil
}

// URL resolves ref for display.
func (r *ThumbnailResolver) URL(ctx context.Context, ref string) (string, error) {
	if !r.stored(ref) {
		return ref, nil
	}
	return r.storage.GetURL(ctx, ref, r.ttl)
}
