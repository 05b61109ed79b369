package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/mekanos/internal/field/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository 工单仓储
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建工单仓储
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// FindByID 根据ID查找工单
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.ServiceOrder, error) {
	var order entity.ServiceOrder
	err := r.db.WithContext(ctx).
		Preload("State").
		Preload("Client").
		Preload("Technician").
		Preload("Equipments", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Preload("Equipments.Equipment").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// FindByCode 根据工单编号查找
func (r *OrderRepository) FindByCode(ctx context.Context, code string) (*entity.ServiceOrder, error) {
	var order entity.ServiceOrder
	err := r.db.WithContext(ctx).
		Preload("State").
		Where("code = ?", code).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// Create 创建工单
func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *entity.ServiceOrder) error {
	db := tx
	if db == nil {
		db = r.db.WithContext(ctx)
	}
	return db.Create(order).Error
}

// LockForUpdate 事务内锁定工单行。状态流转和挂设备都先取这把锁，按工单串行
func (r *OrderRepository) LockForUpdate(ctx context.Context, tx *gorm.DB, orderID string) error {
	var order entity.ServiceOrder
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", orderID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// CurrentState 工单当前状态定义，可带事务在锁内复核
func (r *OrderRepository) CurrentState(ctx context.Context, tx *gorm.DB, orderID string) (*entity.OrderState, error) {
	db := tx
	if db == nil {
		db = r.db.WithContext(ctx)
	}
	var state entity.OrderState
	err := db.Model(&entity.OrderState{}).
		Joins("JOIN service_orders ON service_orders.state_id = order_states.id").
		Where("service_orders.id = ?", orderID).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &state, nil
}

// List 工单列表
func (r *OrderRepository) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) ([]entity.ServiceOrder, int64, error) {
	var orders []entity.ServiceOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ServiceOrder{})

	if clientID, ok := filters["client_id"].(string); ok && clientID != "" {
		query = query.Where("client_id = ?", clientID)
	}
	if technicianID, ok := filters["technician_id"].(string); ok && technicianID != "" {
		query = query.Where("technician_id = ?", technicianID)
	}
	if stateCode, ok := filters["state"].(string); ok && stateCode != "" {
		query = query.Where("state_id IN (?)",
			r.db.Model(&entity.OrderState{}).Select("id").Where("code = ?", stateCode))
	}
	if keyword, ok := filters["keyword"].(string); ok && keyword != "" {
		query = query.Where("code ILIKE ?", "%"+keyword+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("State").
		Preload("Client").
		Preload("Technician").
		Order("priority DESC, scheduled_date ASC NULLS LAST, code ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// UpdateStateChecked 带乐观版本检查的状态更新，版本不匹配时 RowsAffected 为 0
func (r *OrderRepository) UpdateStateChecked(ctx context.Context, tx *gorm.DB, orderID string, version int, updates map[string]interface{}) (int64, error) {
	db := tx
	if db == nil {
		db = r.db.WithContext(ctx)
	}
	updates["version"] = version + 1
	updates["updated_at"] = time.Now()
	res := db.Model(&entity.ServiceOrder{}).
		Where("id = ? AND version = ?", orderID, version).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// UpdateSignatureRef 更新工单签名引用（最新一条生效）
func (r *OrderRepository) UpdateSignatureRef(ctx context.Context, orderID, role, signatureID string) error {
	column := "tech_signature_id"
	if role == entity.SignatureRoleClient {
		column = "client_signature_id"
	}
	return r.db.WithContext(ctx).
		Model(&entity.ServiceOrder{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			column:       signatureID,
			"updated_at": time.Now(),
		}).Error
}

// GenerateCode 生成工单编号
func (r *OrderRepository) GenerateCode(ctx context.Context) (string, error) {
	var seq int
	err := r.db.WithContext(ctx).Raw("SELECT nextval('service_order_code_seq')").Scan(&seq).Error
	if err != nil {
		return "", err
	}
	year := time.Now().Year()
	return fmt.Sprintf("OS-%d-%04d", year, seq), nil
}

// ============================================================
// 状态参考数据
// ============================================================

// FindStateByCode 根据编码查找状态定义
func (r *OrderRepository) FindStateByCode(ctx context.Context, code string) (*entity.OrderState, error) {
	var state entity.OrderState
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &state, nil
}

// FindStateByID 根据ID查找状态定义
func (r *OrderRepository) FindStateByID(ctx context.Context, id string) (*entity.OrderState, error) {
	var state entity.OrderState
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &state, nil
}

// ListStates 状态定义列表
func (r *OrderRepository) ListStates(ctx context.Context) ([]entity.OrderState, error) {
	var states []entity.OrderState
	err := r.db.WithContext(ctx).Order("code ASC").Find(&states).Error
	if err != nil {
		return nil, err
	}
	return states, nil
}

// ============================================================
// 状态流转历史（只追加）
// ============================================================

// AddHistory 追加状态流转记录
func (r *OrderRepository) AddHistory(ctx context.Context, tx *gorm.DB, h *entity.OrderStateHistory) error {
	db := tx
	if db == nil {
		db = r.db.WithContext(ctx)
	}
	return db.Create(h).Error
}

// ListHistory 工单状态流转历史
func (r *OrderRepository) ListHistory(ctx context.Context, orderID string) ([]entity.OrderStateHistory, error) {
	var histories []entity.OrderStateHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Preload("FromState").
		Preload("ToState").
		Order("created_at ASC").
		Find(&histories).Error
	if err != nil {
		return nil, err
	}
	return histories, nil
}

// ============================================================
// 生成文档引用
// ============================================================

// AddGeneratedDocument 登记生成文档引用
func (r *OrderRepository) AddGeneratedDocument(ctx context.Context, doc *entity.GeneratedDocument) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// LatestGeneratedDocument 最近一次生成的文档引用
func (r *OrderRepository) LatestGeneratedDocument(ctx context.Context, tx *gorm.DB, orderID string) (*entity.GeneratedDocument, error) {
	db := tx
	if db == nil {
		db = r.db.WithContext(ctx)
	}
	var doc entity.GeneratedDocument
	err := db.
		Where("order_id = ?", orderID).
		Order("generated_at DESC").
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // 没有生成过文档不是错误
		}
		return nil, err
	}
	return &doc, nil
}

// ============================================================
// 同步快照查询
// ============================================================

// ListForSync 技师同步工单集合：非终态工单 + 保留窗口内关闭的工单
func (r *OrderRepository) ListForSync(ctx context.Context, tx *gorm.DB, technicianID string, closedSince time.Time) ([]entity.ServiceOrder, error) {
	db := tx
	if db == nil {
		db = r.db.WithContext(ctx)
	}
	var orders []entity.ServiceOrder
	err := db.
		Joins("JOIN order_states ON order_states.id = service_orders.state_id").
		Where("service_orders.technician_id = ?", technicianID).
		Where("order_states.is_final = false OR (order_states.is_final = true AND service_orders.actual_end >= ?)", closedSince).
		Preload("State").
		Preload("Client").
		Preload("Equipments", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Preload("Equipments.Equipment").
		Order("service_orders.priority DESC, service_orders.scheduled_date ASC NULLS LAST, service_orders.code ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
