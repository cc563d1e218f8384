package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct {
	objects map[string]bool
	err     error
	expires time.Duration
}

func (f *fakeBucket) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	if !f.objects[*in.Key] {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeBucket) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://s3.example.com/" + *in.Bucket + "/" + *in.Key + "?X-Amz-Signature=sig"}, nil
}

func TestS3Storage_ExistsUnderPrefix(t *testing.T) {
	bucket := &fakeBucket{objects: map[string]bool{"thumbnails/rooms/a.png": true}}
	s := newS3Storage(bucket, bucket, S3Config{Bucket: "media", KeyPrefix: "/thumbnails/"})
	ctx := context.Background()

	ok, err := s.Exists(ctx, "rooms/a.png")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "../thumbnails/rooms/b.png")
	require.NoError(t, err)
	assert.False(t, ok)

	bucket.err = errors.New("connection reset")
	_, err = s.Exists(ctx, "rooms/a.png")
	assert.Error(t, err)
}

func TestS3Storage_GetURL(t *testing.T) {
	bucket := &fakeBucket{}
	ctx := context.Background()

	presigned := newS3Storage(bucket, bucket, S3Config{Bucket: "media", KeyPrefix: "thumbnails"})
	url, err := presigned.GetURL(ctx, "a.png", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example.com/media/thumbnails/a.png?X-Amz-Signature=sig", url)
	assert.Equal(t, 10*time.Minute, bucket.expires)

	public := newS3Storage(bucket, bucket, S3Config{Bucket: "media", PublicURL: "https://cdn.example.com/"})
	url, err = public.GetURL(ctx, "/a.png", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", url)
}
