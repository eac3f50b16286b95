package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel 支付流水等使用代理主键的表共用的字段
// 订单表使用业务订单号作为主键，不嵌入 BaseModel
type BaseModel struct {
	ID        string         `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deletedAt,omitempty"`
}

// NewID 生成代理主键，商品行与时间线也用它
func NewID() string {
	return uuid.NewString()
}

// BeforeCreate 未指定 ID 时在应用侧生成，插入前即可用于日志与关联
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = NewID()
	}
	return nil
}
