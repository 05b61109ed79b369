package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/mekanos/internal/field/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExecutionRepository 现场执行记录仓储
type ExecutionRepository struct {
	db *gorm.DB
}

// NewExecutionRepository 创建执行记录仓储
func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// UpsertActivity 目录来源作业项按 (order, equipment, catalog_activity) 幂等写入。
// 冲突时更新执行结果字段，重放不会产生重复行。
func (r *ExecutionRepository) UpsertActivity(ctx context.Context, ea *entity.ExecutedActivity) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "order_id"},
				{Name: "order_equipment_id"},
				{Name: "catalog_activity_id"},
			},
			TargetWhere: clause.Where{Exprs: []clause.Expression{
				clause.Neq{Column: clause.Column{Name: "catalog_activity_id"}, Value: ""},
			}},
			DoUpdates: clause.AssignmentColumns([]string{
				"state", "duration_minutes", "evidence_captured", "notes", "updated_at",
			}),
		}).
		Create(ea).Error
}

// InsertManualActivity 自由文本作业项，靠客户端令牌防重放；令牌冲突视为重放，不报错
func (r *ExecutionRepository) InsertManualActivity(ctx context.Context, ea *entity.ExecutedActivity) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_token"}},
			DoNothing: true,
		}).
		Create(ea)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindActivityByKey 按幂等键查找已执行作业项
func (r *ExecutionRepository) FindActivityByKey(ctx context.Context, orderID, orderEquipmentID, catalogActivityID string) (*entity.ExecutedActivity, error) {
	var ea entity.ExecutedActivity
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND order_equipment_id = ? AND catalog_activity_id = ?",
			orderID, orderEquipmentID, catalogActivityID).
		First(&ea).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ea, nil
}

// FindActivityByToken 按客户端令牌查找已执行作业项
func (r *ExecutionRepository) FindActivityByToken(ctx context.Context, token string) (*entity.ExecutedActivity, error) {
	var ea entity.ExecutedActivity
	err := r.db.WithContext(ctx).
		Where("client_token = ?", token).
		First(&ea).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ea, nil
}

// ListActivitiesByOrder 工单已执行作业项
func (r *ExecutionRepository) ListActivitiesByOrder(ctx context.Context, tx *gorm.DB, orderID string) ([]entity.ExecutedActivity, error) {
	db := tx
	if db == nil {
		db = r.db.WithContext(ctx)
	}
	var eas []entity.ExecutedActivity
	err := db.
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&eas).Error
	if err != nil {
		return nil, err
	}
	return eas, nil
}

// CountActivitiesByOrder 工单已执行作业项数
func (r *ExecutionRepository) CountActivitiesByOrder(ctx context.Context, orderID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.ExecutedActivity{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	return count, err
}

// ============================================================
// 测量记录
// ============================================================

// UpsertMeasurement 按 (order, equipment, parameter) 幂等写入测量值
func (r *ExecutionRepository) UpsertMeasurement(ctx context.Context, m *entity.Measurement) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "order_id"},
				{Name: "order_equipment_id"},
				{Name: "parameter_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"value_numeric", "value_text", "evaluation", "captured_at", "updated_at",
			}),
		}).
		Create(m).Error
}

// ListMeasurementsByOrder 工单测量记录
func (r *ExecutionRepository) ListMeasurementsByOrder(ctx context.Context, tx *gorm.DB, orderID string) ([]entity.Measurement, error) {
	db := tx
	if db == nil {
		db = r.db.WithContext(ctx)
	}
	var ms []entity.Measurement
	err := db.
		Where("order_id = ?", orderID).
		Preload("Parameter").
		Order("captured_at ASC").
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	return ms, nil
}

// ============================================================
// 证据与签名（只追加）
// ============================================================

// AddEvidence 追加现场照片证据引用
func (r *ExecutionRepository) AddEvidence(ctx context.Context, ev *entity.Evidence) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

// ListEvidenceByOrder 工单证据列表
func (r *ExecutionRepository) ListEvidenceByOrder(ctx context.Context, orderID string) ([]entity.Evidence, error) {
	var evs []entity.Evidence
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&evs).Error
	if err != nil {
		return nil, err
	}
	return evs, nil
}

// AddSignature 追加电子签名
func (r *ExecutionRepository) AddSignature(ctx context.Context, sig *entity.DigitalSignature) error {
	return r.db.WithContext(ctx).Create(sig).Error
}

// LatestSignature 同角色最新签名
func (r *ExecutionRepository) LatestSignature(ctx context.Context, tx *gorm.DB, orderID, role string) (*entity.DigitalSignature, error) {
	db := tx
	if db == nil {
		db = r.db.WithContext(ctx)
	}
	var sig entity.DigitalSignature
	err := db.
		Where("order_id = ? AND role = ?", orderID, role).
		Order("captured_at DESC").
		First(&sig).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // 尚未签名不是错误
		}
		return nil, err
	}
	return &sig, nil
}

// ListSignaturesByOrder 工单签名历史
func (r *ExecutionRepository) ListSignaturesByOrder(ctx context.Context, orderID string) ([]entity.DigitalSignature, error) {
	var sigs []entity.DigitalSignature
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("captured_at ASC").
		Find(&sigs).Error
	if err != nil {
		return nil, err
	}
	return sigs, nil
}

// TouchEvidenceFlag 作业项证据标记
func (r *ExecutionRepository) TouchEvidenceFlag(ctx context.Context, orderID, orderEquipmentID, catalogActivityID string) error {
	if catalogActivityID == "" {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&entity.ExecutedActivity{}).
		Where("order_id = ? AND order_equipment_id = ? AND catalog_activity_id = ?",
			orderID, orderEquipmentID, catalogActivityID).
		Updates(map[string]interface{}{
			"evidence_captured": true,
			"updated_at":        time.Now(),
		}).Error
}
