package uploader

import (
	"bytes"
	"fmt"
	"order_lifecycle/internal/pkg/config"
	"path"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
)

// Uploader 导出文件存储
type Uploader interface {
	// UploadBytes 上传内容并返回可下载的地址
	UploadBytes(name string, data []byte, contentType string) (string, error)
}

type AliyunOSSUploader struct {
	client *oss.Client
	bucket *oss.Bucket
	config config.OSSConfig
	expiry time.Duration
}

func NewAliyunOSSUploader(cfg config.OSSConfig) (*AliyunOSSUploader, error) {
	if cfg.Endpoint == "" || cfg.BucketName == "" {
		return nil, fmt.Errorf("oss config is missing")
	}
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, err
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, err
	}

	return &AliyunOSSUploader{
		client: client,
		bucket: bucket,
		config: cfg,
		expiry: time.Hour,
	}, nil
}

func (u *AliyunOSSUploader) UploadBytes(name string, data []byte, contentType string) (string, error) {
	key := ObjectKey(name, time.Now())

	err := u.bucket.PutObject(key, bytes.NewReader(data), oss.ContentType(contentType))
	if err != nil {
		return "", err
	}

	// 导出文件包含客户信息，bucket 为私有读，返回带签名的临时地址
	return u.bucket.SignURL(key, oss.HTTPGet, int64(u.expiry.Seconds()))
}

// ObjectKey 生成对象名: exports/YYYYMMDD/uuid-name
func ObjectKey(name string, now time.Time) string {
	return path.Join("exports", now.Format("20060102"), fmt.Sprintf("%s-%s", uuid.New().String(), path.Base(name)))
}
