package model

import (
	"time"
)

// 操作类型
const (
	OperationScan = "scan"
	OperationCopy = "copy"
	OperationBoot = "boot"
)

// Result 所有操作统一的返回结构
type Result struct {
	Success     bool        `json:"success"`
	Message     string      `json:"message"`
	Payload     interface{} `json:"payload"`
	OperationID string      `json:"operation_id,omitempty"`
}

// OperationRecord 操作审计记录
type OperationRecord struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Operation string    `json:"operation" gorm:"type:varchar(16);not null;index"`
	Device    string    `json:"device" gorm:"type:varchar(128);not null;index"`
	Platform  string    `json:"platform" gorm:"type:varchar(64)"`
	Success   bool      `json:"success"`
	Message   string    `json:"message" gorm:"type:text"`
	Payload   string    `json:"payload" gorm:"type:text"`
	LogFile   string    `json:"log_file" gorm:"type:varchar(512)"`
	StartedAt time.Time `json:"started_at"`
	Duration  int64     `json:"duration"` // 执行时长，毫秒
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 表名
func (OperationRecord) TableName() string {
	return "operation_records"
}
