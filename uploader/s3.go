package uploader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"casalista/config"
)

// S3Host is the self-hosted ImageHost alternative: files land in an
// S3-compatible bucket under content-hash keys and the object key doubles
// as the public id logged for deferred deletion.
type S3Host struct {
	client *s3.Client
	cfg    config.S3Config
}

func NewS3Host(ctx context.Context, cfg config.S3Config) (*S3Host, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &S3Host{client: client, cfg: cfg}, nil
}

func (h *S3Host) Upload(ctx context.Context, name string, r io.Reader, size int64, progress func(pct int)) (Asset, error) {
	data, err := readAllLimited(r)
	if err != nil {
		return Asset{}, err
	}

	hash := sha256.Sum256(data)
	digest := hex.EncodeToString(hash[:])
	key := fmt.Sprintf("images/%s/%s%s", digest[:2], digest, imageExtension(name))

	body := newProgressReader(bytes.NewReader(data), int64(len(data)), progress)
	_, err = h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(h.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentTypeFor(name)),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return Asset{}, fmt.Errorf("put object: %w", err)
	}

	if progress != nil {
		progress(100)
	}
	return Asset{SecureURL: h.publicURL(key), PublicID: key}, nil
}

func (h *S3Host) publicURL(key string) string {
	if h.cfg.Endpoint != "" && strings.Contains(h.cfg.Endpoint, "digitaloceanspaces.com") {
		host := strings.TrimPrefix(h.cfg.Endpoint, "https://")
		return fmt.Sprintf("https://%s.%s/%s", h.cfg.Bucket, host, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", h.cfg.Bucket, h.cfg.Region, key)
}

func imageExtension(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff":
		return ext
	default:
		return ".jpg"
	}
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(imageExtension(name)); ct != "" {
		return ct
	}
	return "image/jpeg"
}
