package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/campustrack/internal/pkg/model"
	"github.com/autopeer-io/campustrack/pkg/log"
	"github.com/autopeer-io/campustrack/pkg/options"
)

// Upload is one file attached to a driver report.
type Upload struct {
	Name        string
	ContentType string
	// Size is -1 when unknown.
	Size int64
	Body io.Reader
}

// AttachmentStore keeps report attachments and hands out download URLs.
type AttachmentStore interface {
	Upload(ctx context.Context, key string, f Upload) (model.Attachment, error)
}

// MinIO stores attachments in an S3-compatible bucket.
type MinIO struct {
	client     *minio.Client
	bucketName string
	expiry     time.Duration

	// bucketReady is set once the bucket is known to exist.
	bucketMu    sync.Mutex
	bucketReady bool
}

var _ AttachmentStore = (*MinIO)(nil)

// NewMinIO 创建基于 S3 协议的附件存储
func NewMinIO(opts *options.S3Options) (*MinIO, error) {
	minioOpts := &minio.Options{
		Creds:     credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure:    opts.UseSSL,
		Region:    opts.Region,
		Transport: s3Transport(opts),
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinIO{
		client:     client,
		bucketName: opts.BucketName,
		expiry:     opts.PresignExpiry,
	}, nil
}

// s3Transport returns nil, minio's verifying default, unless certificate
// checks were switched off explicitly.
func s3Transport(opts *options.S3Options) http.RoundTripper {
	if !opts.UseSSL || !opts.InsecureSkipVerify {
		return nil
	}
	// 开发环境的 MinIO 常用自签名证书
	return &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
}

func (p *MinIO) checkBucket(ctx context.Context) error {
	p.bucketMu.Lock()
	defer p.bucketMu.Unlock()
	if p.bucketReady {
		return nil
	}

	exists, err := p.client.BucketExists(ctx, p.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Info("Bucket does not exist, creating...", "bucket", p.bucketName)
		if err := p.client.MakeBucket(ctx, p.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	p.bucketReady = true
	return nil
}

func (p *MinIO) Upload(ctx context.Context, key string, f Upload) (model.Attachment, error) {
	if err := p.checkBucket(ctx); err != nil {
		return model.Attachment{}, err
	}

	info, err := p.client.PutObject(ctx, p.bucketName, key, f.Body, f.Size, minio.PutObjectOptions{
		ContentType: f.ContentType,
	})
	if err != nil {
		return model.Attachment{}, fmt.Errorf("failed to upload object: %w", err)
	}

	reqParams := make(url.Values)
	reqParams.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	presigned, err := p.client.PresignedGetObject(ctx, p.bucketName, key, p.expiry, reqParams)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("failed to generate presigned url: %w", err)
	}

	return model.Attachment{
		Name:        f.Name,
		ContentType: f.ContentType,
		Size:        info.Size,
		URL:         presigned.String(),
	}, nil
}
