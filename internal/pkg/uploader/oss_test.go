package uploader

import (
	"order_lifecycle/internal/pkg/config"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	now := time.Date(2024, 12, 12, 10, 0, 0, 0, time.UTC)
	key := ObjectKey("../orders.csv", now)

	assert.True(t, strings.HasPrefix(key, "exports/20241212/"))
	assert.True(t, strings.HasSuffix(key, "-orders.csv"))
}

func TestNewAliyunOSSUploaderRequiresConfig(t *testing.T) {
	_, err := NewAliyunOSSUploader(config.OSSConfig{})
	assert.Error(t, err)
}
