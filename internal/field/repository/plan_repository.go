package repository

import (
	"context"

	"github.com/bitfantasy/mekanos/internal/field/entity"
	"gorm.io/gorm"
)

// PlanRepository 工单作业计划仓储
type PlanRepository struct {
	db *gorm.DB
}

// NewPlanRepository 创建计划仓储
func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// ListByOrder 工单计划行（按序号）
func (r *PlanRepository) ListByOrder(ctx context.Context, tx *gorm.DB, orderID string) ([]entity.OrderActivityPlan, error) {
	db := tx
	if db == nil {
		db = r.db.WithContext(ctx)
	}
	var rows []entity.OrderActivityPlan
	err := db.
		Where("order_id = ?", orderID).
		Preload("Activity").
		Preload("Activity.System").
		Preload("Activity.Parameter").
		Order("sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ReplaceForOrder 原子替换工单计划（先删后插，同一事务）
func (r *PlanRepository) ReplaceForOrder(ctx context.Context, orderID string, rows []entity.OrderActivityPlan) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", orderID).
			Delete(&entity.OrderActivityPlan{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// CountByOrder 工单计划行数
func (r *PlanRepository) CountByOrder(ctx context.Context, orderID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.OrderActivityPlan{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	return count, err
}
