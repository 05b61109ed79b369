package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/mekanos/internal/field/entity"
	"gorm.io/gorm"
)

// CatalogRepository 作业目录仓储（读多写少的参考数据）
type CatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository 创建目录仓储
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// FindServiceTypeByID 根据ID查找服务类型
func (r *CatalogRepository) FindServiceTypeByID(ctx context.Context, id string) (*entity.ServiceType, error) {
	var st entity.ServiceType
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&st).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

// FindServiceTypeByCode 根据编码查找服务类型
func (r *CatalogRepository) FindServiceTypeByCode(ctx context.Context, code string) (*entity.ServiceType, error) {
	var st entity.ServiceType
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&st).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

// ListServiceTypes 服务类型列表
func (r *CatalogRepository) ListServiceTypes(ctx context.Context) ([]entity.ServiceType, error) {
	var sts []entity.ServiceType
	err := r.db.WithContext(ctx).
		Where("active = true").
		Order("code ASC").
		Find(&sts).Error
	if err != nil {
		return nil, err
	}
	return sts, nil
}

// CreateServiceType 创建服务类型
func (r *CatalogRepository) CreateServiceType(ctx context.Context, st *entity.ServiceType) error {
	return r.db.WithContext(ctx).Create(st).Error
}

// ============================================================
// 设备系统
// ============================================================

// FindSystemByCode 根据编码查找系统
func (r *CatalogRepository) FindSystemByCode(ctx context.Context, code string) (*entity.EquipSystem, error) {
	var sys entity.EquipSystem
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&sys).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sys, nil
}

// CreateSystem 创建系统
func (r *CatalogRepository) CreateSystem(ctx context.Context, sys *entity.EquipSystem) error {
	return r.db.WithContext(ctx).Create(sys).Error
}

// ListSystems 系统列表（按展示顺序）
func (r *CatalogRepository) ListSystems(ctx context.Context) ([]entity.EquipSystem, error) {
	var systems []entity.EquipSystem
	err := r.db.WithContext(ctx).Order("display_order ASC, code ASC").Find(&systems).Error
	if err != nil {
		return nil, err
	}
	return systems, nil
}

// ============================================================
// 标准作业项
// ============================================================

// FindActivityByID 根据ID查找作业项
func (r *CatalogRepository) FindActivityByID(ctx context.Context, id string) (*entity.CatalogActivity, error) {
	var act entity.CatalogActivity
	err := r.db.WithContext(ctx).
		Preload("System").
		Preload("Parameter").
		Where("id = ?", id).
		First(&act).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &act, nil
}

// ListActiveByServiceType 服务类型的有效作业项，按 (系统展示顺序, 执行顺序) 排列
func (r *CatalogRepository) ListActiveByServiceType(ctx context.Context, tx *gorm.DB, serviceTypeID string) ([]entity.CatalogActivity, error) {
	db := tx
	if db == nil {
		db = r.db.WithContext(ctx)
	}
	var acts []entity.CatalogActivity
	err := db.
		Joins("JOIN equip_systems ON equip_systems.id = catalog_activities.system_id").
		Where("catalog_activities.service_type_id = ? AND catalog_activities.active = true", serviceTypeID).
		Preload("System").
		Preload("Parameter").
		Order("equip_systems.display_order ASC, catalog_activities.execution_order ASC").
		Find(&acts).Error
	if err != nil {
		return nil, err
	}
	return acts, nil
}

// CreateActivity 创建作业项
func (r *CatalogRepository) CreateActivity(ctx context.Context, act *entity.CatalogActivity) error {
	return r.db.WithContext(ctx).Create(act).Error
}

// DeactivateActivity 停用作业项（目录项不物理删除）
func (r *CatalogRepository) DeactivateActivity(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&entity.CatalogActivity{}).
		Where("id = ?", id).
		Update("active", false).Error
}

// ============================================================
// 测量参数
// ============================================================

// FindParameterByID 根据ID查找测量参数
func (r *CatalogRepository) FindParameterByID(ctx context.Context, id string) (*entity.MeasurementParameter, error) {
	var p entity.MeasurementParameter
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindParameterByCode 根据编码查找测量参数
func (r *CatalogRepository) FindParameterByCode(ctx context.Context, code string) (*entity.MeasurementParameter, error) {
	var p entity.MeasurementParameter
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreateParameter 创建测量参数
func (r *CatalogRepository) CreateParameter(ctx context.Context, p *entity.MeasurementParameter) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// ListParameters 测量参数列表
func (r *CatalogRepository) ListParameters(ctx context.Context) ([]entity.MeasurementParameter, error) {
	var params []entity.MeasurementParameter
	err := r.db.WithContext(ctx).Order("code ASC").Find(&params).Error
	if err != nil {
		return nil, err
	}
	return params, nil
}
