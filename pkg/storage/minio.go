// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"fmt"
	"time"

	"chunkit-go/internal/config"
	"chunkit-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore 封装了 MinIO 客户端和目标存储桶。
// 它通过 NewMinioStore 显式构造并注入到需要对象存储的服务中。
type MinioStore struct {
	client *minio.Client
	cfg    config.MinIOConfig
}

// NewMinioStore 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewMinioStore(cfg config.MinIOConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}

	// 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
	}

	log.Info("MinIO 客户端初始化成功")
	return &MinioStore{client: client, cfg: cfg}, nil
}

// UploadLocalFile 将本地文件上传为指定对象，并返回可持久保存的对象 URL。
func (s *MinioStore) UploadLocalFile(ctx context.Context, localPath, objectName, contentType string) (string, error) {
	_, err := s.client.FPutObject(ctx, s.cfg.BucketName, objectName, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return s.objectURL(objectName), nil
}

// RemoveObject 删除指定对象。用于清理被取代或未成活的分块产物。
func (s *MinioStore) RemoveObject(ctx context.Context, objectName string) error {
	return s.client.RemoveObject(ctx, s.cfg.BucketName, objectName, minio.RemoveObjectOptions{})
}

// PresignedURL generates a presigned download URL for a given object.
func (s *MinioStore) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	presignedURL, err := s.client.PresignedGetObject(ctx, s.cfg.BucketName, objectName, expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return presignedURL.String(), nil
}

// objectURL 拼接对象的稳定访问地址。分块记录需要长期保存 URL，
// 因此这里不使用带过期时间的预签名地址。
func (s *MinioStore) objectURL(objectName string) string {
	scheme := "http"
	if s.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.cfg.Endpoint, s.cfg.BucketName, objectName)
}
