package service

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/sshcollectorpro/flashops/internal/database"
	"github.com/sshcollectorpro/flashops/internal/model"
)

// Audit 操作审计，只写不读；db 为 nil 时不记录
type Audit struct {
	db *gorm.DB
}

// NewAudit 创建审计记录器
func NewAudit(db *gorm.DB) *Audit {
	return &Audit{db: db}
}

// Enabled 是否记录审计
func (a *Audit) Enabled() bool {
	return a != nil && a.db != nil
}

// Record 写入一条操作记录
func (a *Audit) Record(rec *model.OperationRecord) error {
	if !a.Enabled() {
		return nil
	}
	return database.WithRetry(a.db, func(tx *gorm.DB) error {
		return tx.Create(rec).Error
	}, 5, 50*time.Millisecond)
}

// payloadText 负载序列化为审计文本
func payloadText(v interface{}) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
