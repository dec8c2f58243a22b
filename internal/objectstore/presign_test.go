package objectstore

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPresigner(t *testing.T, publicURL string) *Presigner {
	t.Helper()
	p, err := New(Config{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio-secret",
		Bucket:    "covers-bucket",
		Region:    "us-east-1",
		PublicURL: publicURL,
		Expiry:    10 * time.Minute,
	})
	require.NoError(t, err)
	return p
}

func TestPresignUpload(t *testing.T) {
	p := newTestPresigner(t, "https://cdn.example.com/")

	upload, err := p.PresignUpload(context.Background(), "My Cover.PNG", "image/png")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(upload.Key, "covers/"))
	assert.True(t, strings.HasSuffix(upload.Key, ".png"))
	assert.Equal(t, "https://cdn.example.com/"+upload.Key, upload.PublicURL)

	signed, err := url.Parse(upload.UploadURL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", signed.Host)
	assert.Equal(t, "/covers-bucket/"+upload.Key, signed.Path)
	assert.NotEmpty(t, signed.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "600", signed.Query().Get("X-Amz-Expires"))
}

func TestPresignUploadDefaultsPublicURLToEndpoint(t *testing.T) {
	p := newTestPresigner(t, "")
	upload, err := p.PresignUpload(context.Background(), "cover.jpg", "IMAGE/JPEG")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/covers-bucket/"+upload.Key, upload.PublicURL)
}

func TestPresignUploadRejectsNonImages(t *testing.T) {
	p := newTestPresigner(t, "")
	_, err := p.PresignUpload(context.Background(), "evil.exe", "application/octet-stream")
	assert.True(t, errors.Is(err, ErrUnsupportedType))
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "cover.png", baseName(`C:\\Users\\me\\cover.png`))
	assert.Equal(t, "upload", baseName(""))
}
