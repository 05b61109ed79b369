package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB JSONB类型
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

// 工单状态编码
const (
	OrderStateCreated    = "CREATED"
	OrderStateAssigned   = "ASSIGNED"
	OrderStateInProgress = "IN_PROGRESS"
	OrderStateCompleted  = "COMPLETED"
	OrderStateCancelled  = "CANCELLED"
)

// 工单优先级
const (
	PriorityLow    = 0
	PriorityNormal = 1
	PriorityHigh   = 2
	PriorityUrgent = 3
)

// OrderState 工单状态定义（只读参考数据）
type OrderState struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Code      string    `json:"code" gorm:"size:32;not null;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:64;not null"`
	IsFinal   bool      `json:"is_final" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
}

func (OrderState) TableName() string {
	return "order_states"
}

// ServiceOrder 维保工单
type ServiceOrder struct {
	ID                string     `json:"id" gorm:"primaryKey;size:32"`
	Code              string     `json:"code" gorm:"size:50;not null;uniqueIndex"`
	ClientID          string     `json:"client_id" gorm:"size:32;not null;index"`
	EquipmentID       string     `json:"equipment_id" gorm:"size:32;not null"` // 主设备
	ServiceTypeID     string     `json:"service_type_id" gorm:"size:32;not null;index"`
	StateID           string     `json:"state_id" gorm:"size:32;not null;index"`
	TechnicianID      string     `json:"technician_id" gorm:"size:32;index"`
	Priority          int        `json:"priority" gorm:"not null;default:1"`
	ScheduledDate     *time.Time `json:"scheduled_date"`
	ActualStart       *time.Time `json:"actual_start"`
	ActualEnd         *time.Time `json:"actual_end"`
	ClosureNotes      string     `json:"closure_notes" gorm:"type:text"`
	TechSignatureID   *string    `json:"tech_signature_id" gorm:"size:32"`
	ClientSignatureID *string    `json:"client_signature_id" gorm:"size:32"`
	Version           int        `json:"version" gorm:"not null;default:0"` // 乐观锁版本号
	CreatedBy         string     `json:"created_by" gorm:"size:32;not null"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// 关联
	State      *OrderState         `json:"state,omitempty" gorm:"foreignKey:StateID"`
	Client     *Client             `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	Technician *User               `json:"technician,omitempty" gorm:"foreignKey:TechnicianID"`
	Equipments []OrderEquipment    `json:"equipments,omitempty" gorm:"foreignKey:OrderID"`
	History    []OrderStateHistory `json:"history,omitempty" gorm:"foreignKey:OrderID"`
}

func (ServiceOrder) TableName() string {
	return "service_orders"
}

// OrderStateHistory 工单状态流转历史（只追加，禁止修改/删除）
type OrderStateHistory struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	OrderID     string    `json:"order_id" gorm:"size:32;not null;index"`
	FromStateID *string   `json:"from_state_id" gorm:"size:32"` // 首条记录为空
	ToStateID   string    `json:"to_state_id" gorm:"size:32;not null"`
	ActorID     string    `json:"actor_id" gorm:"size:32;not null"`
	Reason      string    `json:"reason" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`

	// 关联
	FromState *OrderState `json:"from_state,omitempty" gorm:"foreignKey:FromStateID"`
	ToState   *OrderState `json:"to_state,omitempty" gorm:"foreignKey:ToStateID"`
}

func (OrderStateHistory) TableName() string {
	return "order_state_histories"
}

// GeneratedDocument 工单生成文档引用（PDF由外部渲染服务生成，这里只存引用）
type GeneratedDocument struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	OrderID     string    `json:"order_id" gorm:"size:32;not null;index"`
	DocType     string    `json:"doc_type" gorm:"size:32;not null;default:service_report"`
	ObjectKey   string    `json:"object_key" gorm:"size:512;not null"`
	GeneratedAt time.Time `json:"generated_at" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
}

func (GeneratedDocument) TableName() string {
	return "generated_documents"
}
