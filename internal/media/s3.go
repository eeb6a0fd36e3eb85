package media

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/gofiber/storage/s3/v2"
	"github.com/rs/xid"
)

const photoJPEGQuality = 80

// objectStore writes one object with its content type.
type objectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// bucket writes through the client the storage driver configured. The
// driver's Set sends no Content-Type, so objects would be served as
// binary/octet-stream and browsers would download photos instead of showing them.
type bucket struct {
	conn *awss3.Client
	name string
}

func (b *bucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.conn.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	return err
}

// S3Config configures the bucket. PublicBaseURL is the prefix objects are
// served from, typically a CDN in front of the bucket.
type S3Config struct {
	Bucket        string
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// S3 uploads to an S3-compatible bucket.
type S3 struct {
	store   objectStore
	baseURL string
}

// NewS3 connects to the bucket described by cfg.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" || cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("media: s3 bucket and public base URL are required")
	}

	store := s3.New(s3.Config{
		Bucket:         cfg.Bucket,
		Endpoint:       cfg.Endpoint,
		Region:         cfg.Region,
		Reset:          false,
		RequestTimeout: UploadTimeout,
		Credentials: s3.Credentials{
			AccessKey:       cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
		},
	})
	return newS3(&bucket{conn: store.Conn(), name: cfg.Bucket}, cfg.PublicBaseURL), nil
}

func newS3(store objectStore, baseURL string) *S3 {
	return &S3{store: store, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *S3) Upload(ctx context.Context, up Upload) (*Result, error) {
	if err := check(up); err != nil {
		return nil, err
	}

	var (
		key         string
		data        = up.File.Data
		suffix      string
		contentType string
	)
	switch up.Kind {
	case KindProfilePhoto:
		resized, err := fitPhoto(data)
		if err != nil {
			return nil, err
		}
		data = resized
		key = ProfilePhotoFolder + "/" + ProfilePhotoKey(up.OwnerID) + ".jpg"
		// The key is reused across uploads; the query string busts caches.
		suffix = "?v=" + xid.New().String()
		contentType = "image/jpeg"
	case KindResume:
		key = ResumeFolder + "/" + resumeKey(up.File.Filename)
		contentType = resumeContentType(up.File)
	}

	ctx, cancel := context.WithTimeout(ctx, UploadTimeout)
	defer cancel()
	if err := s.store.Put(ctx, key, data, contentType); err != nil {
		return nil, fmt.Errorf("media: s3 upload of %s: %w", key, err)
	}

	return &Result{URL: s.baseURL + "/" + key + suffix, Key: key}, nil
}

// resumeContentType prefers the filename extension and falls back to sniffing.
func resumeContentType(f File) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Filename))); ct != "" {
		return ct
	}
	return http.DetectContentType(f.Data)
}

// fitPhoto shrinks the image to fit PhotoBounds and re-encodes it as JPEG.
// Images already inside the bounds keep their size.
func fitPhoto(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}

	b := img.Bounds()
	if b.Dx() > PhotoBounds || b.Dy() > PhotoBounds {
		img = imaging.Fit(img, PhotoBounds, PhotoBounds, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(photoJPEGQuality)); err != nil {
		return nil, fmt.Errorf("media: encoding photo: %w", err)
	}
	return buf.Bytes(), nil
}
