package entity

import (
	"time"
)

// 作业项类型
const (
	ActivityTypeInspection  = "inspection"
	ActivityTypeMeasurement = "measurement"
	ActivityTypeAdjustment  = "adjustment"
	ActivityTypeReplacement = "replacement"
	ActivityTypeCleaning    = "cleaning"
	ActivityTypeLubrication = "lubrication"
)

// ServiceType 服务类型（GEN_PREV_A 发电机A级预防性保养等）
type ServiceType struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	Code        string    `json:"code" gorm:"size:32;not null;uniqueIndex"`
	Name        string    `json:"name" gorm:"size:128;not null"`
	Description string    `json:"description" gorm:"type:text"`
	Active      bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (ServiceType) TableName() string {
	return "service_types"
}

// EquipSystem 设备系统分组（冷却/润滑/电气…），决定清单分组顺序
type EquipSystem struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	Code         string    `json:"code" gorm:"size:32;not null;uniqueIndex"`
	Name         string    `json:"name" gorm:"size:128;not null"`
	DisplayOrder int       `json:"display_order" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"created_at"`
}

func (EquipSystem) TableName() string {
	return "equip_systems"
}

// CatalogActivity 标准作业项（按服务类型+系统维护）
type CatalogActivity struct {
	ID             string    `json:"id" gorm:"primaryKey;size:32"`
	ServiceTypeID  string    `json:"service_type_id" gorm:"size:32;not null;index"`
	SystemID       string    `json:"system_id" gorm:"size:32;not null;index"`
	Type           string    `json:"type" gorm:"size:32;not null"`
	Description    string    `json:"description" gorm:"size:500;not null"`
	ExecutionOrder int       `json:"execution_order" gorm:"not null;default:0"`
	Mandatory      bool      `json:"mandatory" gorm:"not null;default:true"`
	ParameterID    *string   `json:"parameter_id" gorm:"size:32"` // 测量类作业项关联参数
	Active         bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// 关联
	System    *EquipSystem          `json:"system,omitempty" gorm:"foreignKey:SystemID"`
	Parameter *MeasurementParameter `json:"parameter,omitempty" gorm:"foreignKey:ParameterID"`
}

func (CatalogActivity) TableName() string {
	return "catalog_activities"
}

// MeasurementParameter 测量参数（带正常/临界区间）
type MeasurementParameter struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	Code        string    `json:"code" gorm:"size:64;not null;uniqueIndex"`
	Name        string    `json:"name" gorm:"size:128;not null"`
	Unit        string    `json:"unit" gorm:"size:32"`
	NormalMin   *float64  `json:"normal_min"`
	NormalMax   *float64  `json:"normal_max"`
	CriticalMin *float64  `json:"critical_min"`
	CriticalMax *float64  `json:"critical_max"`
	Numeric     bool      `json:"numeric" gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (MeasurementParameter) TableName() string {
	return "measurement_parameters"
}

// 计划来源
const (
	PlanOriginCatalog = "CATALOG_DEFAULT"
	PlanOriginAdmin   = "ADMIN_OVERRIDE"
)

// OrderActivityPlan 工单专属作业计划
// 有计划行时计划即清单的唯一来源，绝不与目录项合并；无计划行时读取时回退目录。
type OrderActivityPlan struct {
	ID                string    `json:"id" gorm:"primaryKey;size:32"`
	OrderID           string    `json:"order_id" gorm:"size:32;not null;index;uniqueIndex:uq_plan_order_activity"`
	CatalogActivityID string    `json:"catalog_activity_id" gorm:"size:32;not null;uniqueIndex:uq_plan_order_activity"`
	Sequence          int       `json:"sequence" gorm:"not null"`
	Origin            string    `json:"origin" gorm:"size:32;not null;default:CATALOG_DEFAULT"`
	MandatoryOverride *bool     `json:"mandatory_override"`
	CreatedAt         time.Time `json:"created_at"`

	// 关联
	Activity *CatalogActivity `json:"activity,omitempty" gorm:"foreignKey:CatalogActivityID"`
}

func (OrderActivityPlan) TableName() string {
	return "order_activity_plans"
}
