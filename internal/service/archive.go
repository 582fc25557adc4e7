package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sshcollectorpro/flashops/internal/config"
	"github.com/sshcollectorpro/flashops/pkg/logger"
)

// Archiver 下载完成后的文件归档
type Archiver interface {
	Archive(ctx context.Context, device, localPath string) (string, error)
}

// MinioArchiver 将下载的文件归档到 MinIO
type MinioArchiver struct {
	cfg      config.MinioConfig
	client   *minio.Client
	endpoint string

	mu            sync.Mutex
	bucketEnsured bool
}

// NewArchiver 未启用或配置不完整时返回 nil
func NewArchiver(cfg config.MinioConfig) *MinioArchiver {
	if !cfg.Enabled {
		return nil
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" || cfg.Port <= 0 {
		logger.Warnf("MinIO archive enabled but host/port missing")
		return nil
	}
	endpoint := fmt.Sprintf("%s:%d", host, cfg.Port)

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.Secure,
		Transport: transport,
	})
	if err != nil {
		logger.Errorf("MinIO client initialization failed: %v", err)
		return nil
	}
	return &MinioArchiver{cfg: cfg, client: client, endpoint: endpoint}
}

// Archive 上传文件到 <bucket>/<prefix>/<device>/<YYYYMMDD>/<file>，返回 minio:// URI
func (a *MinioArchiver) Archive(ctx context.Context, device, localPath string) (string, error) {
	bucket := strings.TrimSpace(a.cfg.Bucket)
	if bucket == "" {
		return "", fmt.Errorf("minio bucket not configured")
	}
	if err := a.ensureBucket(ctx, bucket); err != nil {
		return "", fmt.Errorf("minio ensure bucket failed: %w", err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "", err
	}

	sum, err := sha256File(f)
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	object := objectName(a.cfg.Prefix, device, time.Now(), filepath.Base(localPath))
	_, err = a.client.PutObject(ctx, bucket, object, f, fi.Size(), minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: map[string]string{"sha256": sum},
	})
	if err != nil {
		return "", fmt.Errorf("minio put object failed: %w", err)
	}
	return "minio://" + path.Join(bucket, object), nil
}

// ensureBucket 校验并创建 bucket，成功后不再重复检查
func (a *MinioArchiver) ensureBucket(ctx context.Context, bucket string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bucketEnsured {
		return nil
	}
	exists, err := a.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return err
		}
	}
	a.bucketEnsured = true
	return nil
}

func objectName(prefix, device string, at time.Time, file string) string {
	parts := []string{}
	if p := strings.Trim(strings.TrimSpace(prefix), "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, slug(device), at.Format("20060102"), file)
	return path.Join(parts...)
}

func sha256File(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

var slugRe = regexp.MustCompile(`[^a-z0-9._-]+`)

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_").Replace(s)
	s = slugRe.ReplaceAllString(s, "")
	if s == "" {
		s = "unknown"
	}
	return s
}
