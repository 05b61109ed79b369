package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// MediaService 证据文件对象存储服务。
// 文件字节只进MinIO，数据库里只存对象键和内容哈希。
type MediaService struct {
	minioClient *minio.Client
	bucketName  string
}

// NewMediaService 创建对象存储服务
func NewMediaService(minioClient *minio.Client, bucketName string) *MediaService {
	return &MediaService{
		minioClient: minioClient,
		bucketName:  bucketName,
	}
}

// UploadResult 上传结果
type UploadResult struct {
	ObjectKey   string `json:"object_key"`
	ContentHash string `json:"content_hash"`
	Size        int64  `json:"size"`
}

// Upload 上传证据文件，返回对象键和sha256内容哈希
func (s *MediaService) Upload(ctx context.Context, orderID, fileName, contentType string, reader io.Reader) (*UploadResult, error) {
	if s.minioClient == nil {
		return nil, fmt.Errorf("object storage not configured")
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	hash := sha256.Sum256(data)
	objectKey := fmt.Sprintf("evidence/%s/%s/%s%s",
		orderID, time.Now().Format("2006/01/02"), uuid.New().String()[:8], filepath.Ext(fileName))

	_, err = s.minioClient.PutObject(ctx, s.bucketName, objectKey,
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: contentType,
		})
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}

	return &UploadResult{
		ObjectKey:   objectKey,
		ContentHash: hex.EncodeToString(hash[:]),
		Size:        int64(len(data)),
	}, nil
}

// PresignedURL 获取对象的临时下载链接
func (s *MediaService) PresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	if s.minioClient == nil {
		return "", fmt.Errorf("object storage not configured")
	}
	u, err := s.minioClient.PresignedGetObject(ctx, s.bucketName, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}
