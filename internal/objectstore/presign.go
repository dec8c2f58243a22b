// Package objectstore hands out presigned upload URLs for comic cover images.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrUnsupportedType = errors.New("unsupported content type")

// coverTypes maps the accepted cover content types to the object extension.
var coverTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// PublicURL is the base readers fetch objects from; empty means the
	// endpoint itself.
	PublicURL string
	Expiry    time.Duration
}

type Upload struct {
	UploadURL string    `json:"uploadUrl"`
	PublicURL string    `json:"publicUrl"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Presigner struct {
	client    *minio.Client
	bucket    string
	publicURL string
	expiry    time.Duration
}

func New(cfg Config) (*Presigner, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("object storage endpoint and bucket are required")
	}
	// A fixed region keeps presigning local; minio would otherwise ask the
	// server for the bucket location.
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("object storage client: %w", err)
	}

	base := strings.TrimRight(cfg.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint + "/" + cfg.Bucket
	}
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &Presigner{client: client, bucket: cfg.Bucket, publicURL: base, expiry: expiry}, nil
}

// PresignUpload returns a PUT URL for a new cover object and the public URL
// the object will have once uploaded.
func (p *Presigner) PresignUpload(ctx context.Context, fileName, contentType string) (Upload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := coverTypes[contentType]
	if !ok {
		return Upload{}, fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}

	key := path.Join("covers", time.Now().UTC().Format("2006/01"), uuid.NewString()+ext)
	signed, err := p.client.PresignedPutObject(ctx, p.bucket, key, p.expiry)
	if err != nil {
		return Upload{}, fmt.Errorf("presign %s: %w", baseName(fileName), err)
	}

	return Upload{
		UploadURL: signed.String(),
		PublicURL: p.publicURL + "/" + (&url.URL{Path: key}).EscapedPath(),
		Key:       key,
		ExpiresAt: time.Now().Add(p.expiry).UTC(),
	}, nil
}

func baseName(fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, `\`, "/"))
	if name == "." || name == "/" {
		return "upload"
	}
	return name
}
