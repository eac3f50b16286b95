package strategy

import (
	"order_lifecycle/internal/pkg/config"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToFen(t *testing.T) {
	assert.Equal(t, int64(245000), toFen(decimal.NewFromInt(2450)))
	assert.Equal(t, int64(99999), toFen(decimal.RequireFromString("999.99")))
	assert.Equal(t, int64(1), toFen(decimal.RequireFromString("0.005")))
}

func TestFromFen(t *testing.T) {
	assert.Equal(t, "2450.00", fromFen(245000).StringFixed(2))
	assert.True(t, decimal.RequireFromString("0.01").Equal(fromFen(1)))
}

func TestStrategiesRequireConfig(t *testing.T) {
	_, err := NewAlipayStrategy(config.AlipayConfig{})
	assert.Error(t, err)
	_, err = NewWechatStrategy(config.WechatPayConfig{})
	assert.Error(t, err)
}
