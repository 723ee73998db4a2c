package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresigner struct {
	objectName string
	expiry     time.Duration
	url        string
}

func (f *fakePresigner) PresignedGetURL(objectName string, expiry time.Duration) (string, error) {
	f.objectName = objectName
	f.expiry = expiry
	return f.url, nil
}

func TestOriginService_ResolveExternal(t *testing.T) {
	svc := &OriginService{baseURL: "http://origin.test", bucketKinds: make(map[string]bool)}

	got, err := svc.Resolve("movie", "tt0111161", "A Film")
	require.NoError(t, err)
	assert.Equal(t, "http://origin.test/movie/tt0111161/A%20Film", got)
}

// Bucket-hosted kinds go through the object store, not the external origin.
func TestOriginService_ResolveBucketKindPresigns(t *testing.T) {
	presigner := &fakePresigner{url: "http://minio.test/wustream-media/movie/tt0111161/A%20Film?X-Amz-Signature=abc"}
	svc := &OriginService{
		baseURL:     "http://origin.test",
		bucketKinds: map[string]bool{"movie": true},
		presigner:   presigner,
	}

	got, err := svc.Resolve("movie", "tt0111161", "A Film")
	require.NoError(t, err)
	assert.Equal(t, presigner.url, got)
	assert.Equal(t, "movie/tt0111161/A Film", presigner.objectName)
	assert.Equal(t, presignExpiry, presigner.expiry)

	// A kind outside the bucket set still resolves externally.
	got, err = svc.Resolve("series", "tt1", "Other")
	require.NoError(t, err)
	assert.Equal(t, "http://origin.test/series/tt1/Other", got)
}

func TestOriginService_ResolveEscapesSegments(t *testing.T) {
	svc := &OriginService{baseURL: "http://origin.test", bucketKinds: make(map[string]bool)}

	got, err := svc.Resolve("series", "s01/e02", "50% Off")
	require.NoError(t, err)
	assert.Equal(t, "http://origin.test/series/s01%2Fe02/50%25%20Off", got)
}
