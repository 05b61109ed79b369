package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/mekanos/internal/field/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EquipmentRepository 设备仓储
type EquipmentRepository struct {
	db *gorm.DB
}

// NewEquipmentRepository 创建设备仓储
func NewEquipmentRepository(db *gorm.DB) *EquipmentRepository {
	return &EquipmentRepository{db: db}
}

// FindByID 根据ID查找设备
func (r *EquipmentRepository) FindByID(ctx context.Context, id string) (*entity.Equipment, error) {
	var eq entity.Equipment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&eq).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &eq, nil
}

// Create 创建设备
func (r *EquipmentRepository) Create(ctx context.Context, eq *entity.Equipment) error {
	return r.db.WithContext(ctx).Create(eq).Error
}

// ListByClient 客户设备列表
func (r *EquipmentRepository) ListByClient(ctx context.Context, clientID string) ([]entity.Equipment, error) {
	var eqs []entity.Equipment
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND active = true", clientID).
		Order("code ASC").
		Find(&eqs).Error
	if err != nil {
		return nil, err
	}
	return eqs, nil
}

// ============================================================
// 工单设备关联
// ============================================================

// FindOrderEquipmentByID 根据ID查找工单设备行
func (r *EquipmentRepository) FindOrderEquipmentByID(ctx context.Context, id string) (*entity.OrderEquipment, error) {
	var oe entity.OrderEquipment
	err := r.db.WithContext(ctx).
		Preload("Equipment").
		Where("id = ?", id).
		First(&oe).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &oe, nil
}

// ListByOrder 工单设备列表（按序号）
func (r *EquipmentRepository) ListByOrder(ctx context.Context, orderID string) ([]entity.OrderEquipment, error) {
	var oes []entity.OrderEquipment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Preload("Equipment").
		Order("sequence ASC").
		Find(&oes).Error
	if err != nil {
		return nil, err
	}
	return oes, nil
}

// AttachTx 追加设备行，序号取当前最大值+1。
// 先锁工单行再算序号，并发挂设备彼此串行，也和状态流转互斥
func (r *EquipmentRepository) AttachTx(ctx context.Context, tx *gorm.DB, oe *entity.OrderEquipment) error {
	if tx != nil {
		return r.attachLocked(tx, oe)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.attachLocked(tx, oe)
	})
}

func (r *EquipmentRepository) attachLocked(tx *gorm.DB, oe *entity.OrderEquipment) error {
	var order entity.ServiceOrder
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", oe.OrderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	var maxSeq int
	if err := tx.Model(&entity.OrderEquipment{}).
		Where("order_id = ?", oe.OrderID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&maxSeq).Error; err != nil {
		return err
	}
	oe.Sequence = maxSeq + 1
	if err := tx.Create(oe).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

// CountAttached 工单是否已挂该设备
func (r *EquipmentRepository) CountAttached(ctx context.Context, tx *gorm.DB, orderID, equipmentID string) (int64, error) {
	db := tx
	if db == nil {
		db = r.db.WithContext(ctx)
	}
	var count int64
	err := db.Model(&entity.OrderEquipment{}).
		Where("order_id = ? AND equipment_id = ?", orderID, equipmentID).
		Count(&count).Error
	return count, err
}

// UpdateSubState 更新设备子状态并打时间戳
func (r *EquipmentRepository) UpdateSubState(ctx context.Context, id, subState string, startedAt, endedAt *time.Time) error {
	updates := map[string]interface{}{
		"sub_state":  subState,
		"updated_at": time.Now(),
	}
	if startedAt != nil {
		updates["started_at"] = startedAt
	}
	if endedAt != nil {
		updates["ended_at"] = endedAt
	}
	return r.db.WithContext(ctx).
		Model(&entity.OrderEquipment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// CountNonTerminal 工单内未到终态的设备数
func (r *EquipmentRepository) CountNonTerminal(ctx context.Context, tx *gorm.DB, orderID string) (int64, error) {
	db := tx
	if db == nil {
		db = r.db.WithContext(ctx)
	}
	var count int64
	err := db.Model(&entity.OrderEquipment{}).
		Where("order_id = ? AND sub_state NOT IN ?", orderID,
			[]string{entity.EquipSubStateDone, entity.EquipSubStateSkipped}).
		Count(&count).Error
	return count, err
}
