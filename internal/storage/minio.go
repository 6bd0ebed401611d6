package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"craftcv/internal/config"
)

// maxObjectRead 限制 ReadObject 一次读入内存的大小，简历文件远小于此值。
const maxObjectRead = 64 << 20

// Client 操作存放简历、品牌资源与 PDF 的单个 Bucket。
// 读写走内网地址，预签名链接用对外地址签出，浏览器才能直接访问。
type Client struct {
	private *minio.Client
	signer  *minio.Client
	bucket  string
}

func NewClient(cfg config.MinIOConfig) (*Client, error) {
	lookup, err := parseBucketLookup(cfg.BucketLookup)
	if err != nil {
		return nil, err
	}
	creds := credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")

	private, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds: creds, Secure: cfg.UseSSL, Region: cfg.Region, BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client for %s: %w", cfg.Endpoint, err)
	}

	signer := private
	if public := strings.TrimSpace(cfg.PublicEndpoint); public != "" {
		u, err := url.Parse(public)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("minio public endpoint %q must be an absolute url", public)
		}
		signer, err = minio.New(u.Host, &minio.Options{
			Creds: creds, Secure: u.Scheme == "https", Region: cfg.Region, BucketLookup: lookup,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client for %s: %w", u.Host, err)
		}
	}

	c := &Client{private: private, signer: signer, bucket: cfg.Bucket}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.ensureBucket(ctx, cfg.Region, cfg.AutoCreateBucket); err != nil {
		return nil, err
	}
	return c, nil
}

func parseBucketLookup(raw string) (minio.BucketLookupType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return minio.BucketLookupAuto, nil
	case "dns":
		return minio.BucketLookupDNS, nil
	case "path":
		return minio.BucketLookupPath, nil
	}
	return minio.BucketLookupAuto, fmt.Errorf("minio bucket_lookup must be auto, dns or path, got %q", raw)
}

func (c *Client) ensureBucket(ctx context.Context, region string, create bool) error {
	ok, err := c.private.BucketExists(ctx, c.bucket)
	switch {
	case err != nil:
		return fmt.Errorf("bucket %s: %w", c.bucket, err)
	case ok:
		return nil
	case !create:
		return fmt.Errorf("bucket %s is missing and auto_create_bucket is off", c.bucket)
	}
	if err := c.private.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Ping 供就绪检查使用。
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.private.BucketExists(ctx, c.bucket)
	return err
}

func (c *Client) UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error) {
	info, err := c.private.PutObject(ctx, c.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", objectName, err)
	}
	return &info, nil
}

// ReadObject 读出整个对象。超过 maxObjectRead 的对象视为错误。
func (c *Client) ReadObject(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := c.private.GetObject(ctx, c.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxObjectRead+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", objectKey, err)
	}
	if len(data) > maxObjectRead {
		return nil, errors.New("object " + objectKey + " exceeds read limit")
	}
	return data, nil
}

func (c *Client) GeneratePresignedURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	return c.presign(ctx, objectKey, ttl, nil)
}

// GeneratePresignedURLWithParams 附带 response-content-disposition 等覆盖参数。
func (c *Client) GeneratePresignedURLWithParams(ctx context.Context, objectKey string, ttl time.Duration, params map[string]string) (string, error) {
	query := make(url.Values, len(params))
	for k, v := range params {
		query.Set(k, v)
	}
	return c.presign(ctx, objectKey, ttl, query)
}

func (c *Client) presign(ctx context.Context, objectKey string, ttl time.Duration, query url.Values) (string, error) {
	u, err := c.signer.PresignedGetObject(ctx, c.bucket, objectKey, ttl, query)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", objectKey, err)
	}
	return u.String(), nil
}

// DeleteObject 对空键与已不存在的对象都返回 nil。
func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	if strings.TrimSpace(objectKey) == "" {
		return nil
	}
	err := c.private.RemoveObject(ctx, c.bucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("remove %s: %w", objectKey, err)
	}
	return nil
}
