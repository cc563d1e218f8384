package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_ExistsAndGetURL(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "thumbs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "thumbs", "a.png"), []byte("png"), 0o600))

	s, err := NewLocalStorage(LocalConfig{BasePath: dir, PublicURL: "https://cdn.example.com/"})
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "thumbs/a.png")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "thumbs")
	require.NoError(t, err)
	assert.False(t, ok, "directories are not objects")

	url, err := s.GetURL(ctx, "thumbs/a.png", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/thumbs/a.png", url)

	_, err = s.GetURL(ctx, "thumbs/missing.png", time.Minute)
	assert.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestLocalStorage_TraversalStaysInBase(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(LocalConfig{BasePath: filepath.Join(dir, "base")})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("x"), 0o600))

	ok, err := s.Exists(context.Background(), "../secret.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewS3Storage_PresignsAgainstEndpoint(t *testing.T) {
	ctx := context.Background()

	public, err := NewS3Storage(ctx, S3Config{
		Bucket:          "thumbs",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		PublicURL:       "https://media.example.com/thumbs/",
	})
	require.NoError(t, err)
	url, err := public.GetURL(ctx, "/r1.png", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com/thumbs/r1.png", url)

	presigned, err := NewS3Storage(ctx, S3Config{
		Endpoint:        "http://127.0.0.1:9000",
		Bucket:          "thumbs",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	url, err = presigned.GetURL(ctx, "r1.png", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://127.0.0.1:9000/thumbs/r1.png?"), url)
	assert.Contains(t, url, "X-Amz-Signature=")
}

func TestNew_Drivers(t *testing.T) {
	s, err := New(context.Background(), Config{Driver: "none"})
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrDisabled)

	s, err = New(context.Background(), Config{Driver: "local", Local: LocalConfig{BasePath: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = New(context.Background(), Config{Driver: "gcs"})
	assert.Error(t, err)
}
