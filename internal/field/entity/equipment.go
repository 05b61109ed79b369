package entity

import (
	"time"
)

// 工单设备子状态
const (
	EquipSubStatePending    = "PENDING"
	EquipSubStateInProgress = "IN_PROGRESS"
	EquipSubStateDone       = "DONE"
	EquipSubStateSkipped    = "SKIPPED"
)

// IsTerminalSubState 子状态是否终态
func IsTerminalSubState(s string) bool {
	return s == EquipSubStateDone || s == EquipSubStateSkipped
}

// Equipment 设备台账
type Equipment struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	Code         string    `json:"code" gorm:"size:64;not null;uniqueIndex"`
	Name         string    `json:"name" gorm:"size:200;not null"`
	ClientID     string    `json:"client_id" gorm:"size:32;not null;index"`
	SerialNumber string    `json:"serial_number" gorm:"size:100"`
	Brand        string    `json:"brand" gorm:"size:100"`
	Model        string    `json:"model" gorm:"size:100"`
	Location     string    `json:"location" gorm:"size:200"`
	Active       bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Equipment) TableName() string {
	return "equipments"
}

// OrderEquipment 工单设备关联（一个工单挂1..N台设备，各自独立子状态）
type OrderEquipment struct {
	ID          string     `json:"id" gorm:"primaryKey;size:32"`
	OrderID     string     `json:"order_id" gorm:"size:32;not null;index;uniqueIndex:uq_order_equipment;uniqueIndex:uq_order_equipment_seq"`
	EquipmentID string     `json:"equipment_id" gorm:"size:32;not null;uniqueIndex:uq_order_equipment"`
	Sequence    int        `json:"sequence" gorm:"not null;uniqueIndex:uq_order_equipment_seq"`
	SystemLabel string     `json:"system_label" gorm:"size:64"`
	SubState    string     `json:"sub_state" gorm:"size:16;not null;default:PENDING"`
	StartedAt   *time.Time `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at"`
	Notes       string     `json:"notes" gorm:"type:text"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// 关联
	Equipment *Equipment `json:"equipment,omitempty" gorm:"foreignKey:EquipmentID"`
}

func (OrderEquipment) TableName() string {
	return "order_equipments"
}

// Client 客户
type Client struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Name      string    `json:"name" gorm:"size:200;not null"`
	NIT       string    `json:"nit" gorm:"size:32"`
	Address   string    `json:"address" gorm:"size:300"`
	City      string    `json:"city" gorm:"size:100"`
	Contact   string    `json:"contact" gorm:"size:100"`
	Phone     string    `json:"phone" gorm:"size:32"`
	Email     string    `json:"email" gorm:"size:200"`
	Active    bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Client) TableName() string {
	return "clients"
}

// User 用户（技师/管理员）
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	Username     string    `json:"username" gorm:"size:64;not null;uniqueIndex"`
	Name         string    `json:"name" gorm:"size:100;not null"`
	Email        string    `json:"email" gorm:"size:200"`
	PasswordHash string    `json:"-" gorm:"size:100;not null"`
	Role         string    `json:"role" gorm:"size:32;not null;default:technician"`
	Status       string    `json:"status" gorm:"size:16;not null;default:active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
