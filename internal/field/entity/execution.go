package entity

import (
	"time"
)

// 执行结果状态
const (
	ExecStateDone          = "DONE"
	ExecStateNotApplicable = "NOT_APPLICABLE"
	ExecStateDeferred      = "DEFERRED"
	ExecStateFailed        = "FAILED"
)

// 测量读数评估结果
const (
	ReadingNormal   = "normal"
	ReadingWarning  = "warning"
	ReadingCritical = "critical"
)

// 证据拍摄阶段
const (
	EvidencePhaseBefore = "before"
	EvidencePhaseDuring = "during"
	EvidencePhaseAfter  = "after"
)

// 签名角色
const (
	SignatureRoleTechnician = "technician"
	SignatureRoleClient     = "client"
)

// ExecutedActivity 已执行作业项
// 目录来源的作业项按 (order, equipment, catalog_activity) 幂等去重；
// 自由文本项靠客户端幂等令牌防重放。OrderEquipmentID 为空串表示工单级记录。
type ExecutedActivity struct {
	ID                string    `json:"id" gorm:"primaryKey;size:32"`
	OrderID           string    `json:"order_id" gorm:"size:32;not null;index"`
	OrderEquipmentID  string    `json:"order_equipment_id" gorm:"size:32;not null;default:''"`
	CatalogActivityID string    `json:"catalog_activity_id" gorm:"size:32;not null;default:''"`
	Description       string    `json:"description" gorm:"size:500"` // 自由文本项
	State             string    `json:"state" gorm:"size:16;not null;default:DONE"`
	DurationMinutes   int       `json:"duration_minutes" gorm:"default:0"`
	EvidenceCaptured  bool      `json:"evidence_captured" gorm:"not null;default:false"`
	Notes             string    `json:"notes" gorm:"type:text"`
	ClientToken       *string   `json:"client_token" gorm:"size:64;uniqueIndex"`
	RecordedBy        string    `json:"recorded_by" gorm:"size:32;not null"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (ExecutedActivity) TableName() string {
	return "executed_activities"
}

// Measurement 测量记录，按 (order, equipment, parameter) 幂等
type Measurement struct {
	ID               string    `json:"id" gorm:"primaryKey;size:32"`
	OrderID          string    `json:"order_id" gorm:"size:32;not null;index;uniqueIndex:uq_measurement"`
	OrderEquipmentID string    `json:"order_equipment_id" gorm:"size:32;not null;default:'';uniqueIndex:uq_measurement"`
	ParameterID      string    `json:"parameter_id" gorm:"size:32;not null;uniqueIndex:uq_measurement"`
	ValueNumeric     *float64  `json:"value_numeric"`
	ValueText        string    `json:"value_text" gorm:"size:200"`
	Evaluation       string    `json:"evaluation" gorm:"size:16;not null;default:normal"`
	CapturedAt       time.Time `json:"captured_at" gorm:"not null"`
	RecordedBy       string    `json:"recorded_by" gorm:"size:32;not null"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// 关联
	Parameter *MeasurementParameter `json:"parameter,omitempty" gorm:"foreignKey:ParameterID"`
}

func (Measurement) TableName() string {
	return "measurements"
}

// Evidence 现场照片证据（文件字节由对象存储托管，这里只存引用）
type Evidence struct {
	ID               string    `json:"id" gorm:"primaryKey;size:32"`
	OrderID          string    `json:"order_id" gorm:"size:32;not null;index"`
	OrderEquipmentID string    `json:"order_equipment_id" gorm:"size:32;not null;default:''"`
	Phase            string    `json:"phase" gorm:"size:16;not null"`
	ObjectKey        string    `json:"object_key" gorm:"size:512;not null"`
	ContentHash      string    `json:"content_hash" gorm:"size:64"`
	Caption          string    `json:"caption" gorm:"size:300"`
	RecordedBy       string    `json:"recorded_by" gorm:"size:32;not null"`
	CreatedAt        time.Time `json:"created_at"`
}

func (Evidence) TableName() string {
	return "evidences"
}

// DigitalSignature 电子签名（只追加，读取时同角色取最新一条）
type DigitalSignature struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	OrderID     string    `json:"order_id" gorm:"size:32;not null;index"`
	PersonID    string    `json:"person_id" gorm:"size:32;not null"`
	PersonName  string    `json:"person_name" gorm:"size:100"`
	Role        string    `json:"role" gorm:"size:16;not null"`
	Payload     string    `json:"payload" gorm:"type:text;not null"` // base64 笔迹
	ContentHash string    `json:"content_hash" gorm:"size:64;not null"`
	CapturedAt  time.Time `json:"captured_at" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
}

func (DigitalSignature) TableName() string {
	return "digital_signatures"
}
