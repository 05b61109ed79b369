package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bitfantasy/mekanos/internal/field/entity"
	"github.com/bitfantasy/mekanos/internal/field/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"
)

// 目录缓存TTL
const catalogCacheTTL = 10 * time.Minute

// CatalogService 作业目录服务。
// 目录几乎只读、同步高频命中，按服务类型整体缓存到Redis，管理端变更时失效。
type CatalogService struct {
	catalogRepo *repository.CatalogRepository
	rdb         *redis.Client
}

// NewCatalogService 创建目录服务
func NewCatalogService(repos *repository.Repositories, rdb *redis.Client) *CatalogService {
	return &CatalogService{
		catalogRepo: repos.Catalog,
		rdb:         rdb,
	}
}

func catalogCacheKey(serviceTypeID string) string {
	return "catalog:service_type:" + serviceTypeID
}

// ListServiceTypes 服务类型列表
func (s *CatalogService) ListServiceTypes(ctx context.Context) ([]entity.ServiceType, error) {
	return s.catalogRepo.ListServiceTypes(ctx)
}

// ListSystems 设备系统列表
func (s *CatalogService) ListSystems(ctx context.Context) ([]entity.EquipSystem, error) {
	return s.catalogRepo.ListSystems(ctx)
}

// ListParameters 测量参数列表
func (s *CatalogService) ListParameters(ctx context.Context) ([]entity.MeasurementParameter, error) {
	return s.catalogRepo.ListParameters(ctx)
}

// ListActivities 服务类型的生效目录项，带Redis缓存
func (s *CatalogService) ListActivities(ctx context.Context, serviceTypeID string) ([]entity.CatalogActivity, error) {
	if s.rdb != nil {
		cached, err := s.rdb.Get(ctx, catalogCacheKey(serviceTypeID)).Result()
		if err == nil && cached != "" {
			var acts []entity.CatalogActivity
			if jsonErr := json.Unmarshal([]byte(cached), &acts); jsonErr == nil {
				return acts, nil
			}
		}
	}

	acts, err := s.catalogRepo.ListActiveByServiceType(ctx, nil, serviceTypeID)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if data, err := json.Marshal(acts); err == nil {
			s.rdb.Set(ctx, catalogCacheKey(serviceTypeID), data, catalogCacheTTL)
		}
	}
	return acts, nil
}

// CreateActivityRequest 新建目录项
type CreateActivityRequest struct {
	ServiceTypeID  string `json:"service_type_id" binding:"required"`
	SystemID       string `json:"system_id" binding:"required"`
	Type           string `json:"type" binding:"required"`
	Description    string `json:"description" binding:"required"`
	ExecutionOrder int    `json:"execution_order"`
	Mandatory      bool   `json:"mandatory"`
	ParameterID    string `json:"parameter_id"`
}

// CreateActivity 新建目录项并失效缓存
func (s *CatalogService) CreateActivity(ctx context.Context, req *CreateActivityRequest) (*entity.CatalogActivity, error) {
	if _, err := s.catalogRepo.FindServiceTypeByID(ctx, req.ServiceTypeID); err != nil {
		return nil, fmt.Errorf("find service type: %w", err)
	}

	switch req.Type {
	case entity.ActivityTypeInspection, entity.ActivityTypeMeasurement,
		entity.ActivityTypeCleaning, entity.ActivityTypeAdjustment,
		entity.ActivityTypeReplacement, entity.ActivityTypeLubrication:
	default:
		return nil, fmt.Errorf("%w: unknown activity type %q", ErrValidation, req.Type)
	}

	var parameterID *string
	if req.ParameterID != "" {
		if _, err := s.catalogRepo.FindParameterByID(ctx, req.ParameterID); err != nil {
			return nil, fmt.Errorf("find parameter: %w", err)
		}
		parameterID = &req.ParameterID
	}
	if req.Type == entity.ActivityTypeMeasurement && parameterID == nil {
		return nil, fmt.Errorf("%w: measurement activity requires parameter_id", ErrValidation)
	}

	now := time.Now()
	act := &entity.CatalogActivity{
		ID:             uuid.New().String()[:32],
		ServiceTypeID:  req.ServiceTypeID,
		SystemID:       req.SystemID,
		Type:           req.Type,
		Description:    req.Description,
		ExecutionOrder: req.ExecutionOrder,
		Mandatory:      req.Mandatory,
		ParameterID:    parameterID,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.catalogRepo.CreateActivity(ctx, act); err != nil {
		return nil, fmt.Errorf("create activity: %w", err)
	}
	s.invalidate(ctx, req.ServiceTypeID)
	return act, nil
}

// DeactivateActivity 下线目录项（软删除，历史工单的计划行不受影响）
func (s *CatalogService) DeactivateActivity(ctx context.Context, id string) error {
	act, err := s.catalogRepo.FindActivityByID(ctx, id)
	if err != nil {
		return fmt.Errorf("find activity: %w", err)
	}
	if err := s.catalogRepo.DeactivateActivity(ctx, id); err != nil {
		return fmt.Errorf("deactivate activity: %w", err)
	}
	s.invalidate(ctx, act.ServiceTypeID)
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context, serviceTypeID string) {
	if s.rdb != nil {
		s.rdb.Del(ctx, catalogCacheKey(serviceTypeID))
	}
}

// ImportResult 批量导入结果
type ImportResult struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// ImportActivities 从Excel批量导入目录项。
// 模板列顺序：系统编码 | 类型 | 描述 | 执行顺序 | 是否必做 | 参数编码
func (s *CatalogService) ImportActivities(ctx context.Context, serviceTypeID string, f *excelize.File) (*ImportResult, error) {
	if _, err := s.catalogRepo.FindServiceTypeByID(ctx, serviceTypeID); err != nil {
		return nil, fmt.Errorf("find service type: %w", err)
	}

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read excel: %w", err)
	}

	result := &ImportResult{}
	if len(rows) < 2 {
		return result, nil
	}

	for _, row := range rows[1:] { // 跳过表头
		if len(row) < 3 || row[0] == "" || row[2] == "" {
			result.Failed++
			continue
		}

		sys, err := s.catalogRepo.FindSystemByCode(ctx, strings.TrimSpace(row[0]))
		if err != nil {
			result.Failed++
			continue
		}

		actType := strings.TrimSpace(row[1])
		switch actType {
		case entity.ActivityTypeInspection, entity.ActivityTypeMeasurement,
			entity.ActivityTypeCleaning, entity.ActivityTypeAdjustment,
			entity.ActivityTypeReplacement, entity.ActivityTypeLubrication:
		default:
			result.Failed++
			continue
		}

		now := time.Now()
		act := entity.CatalogActivity{
			ID:            uuid.New().String()[:32],
			ServiceTypeID: serviceTypeID,
			SystemID:      sys.ID,
			Type:          actType,
			Description:   strings.TrimSpace(row[2]),
			Active:        true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if len(row) > 3 {
			if n, err := strconv.Atoi(strings.TrimSpace(row[3])); err == nil {
				act.ExecutionOrder = n
			}
		}
		if len(row) > 4 {
			v := strings.TrimSpace(row[4])
			act.Mandatory = v == "是" || v == "Y" || v == "1"
		}
		if len(row) > 5 && strings.TrimSpace(row[5]) != "" {
			param, err := s.catalogRepo.FindParameterByCode(ctx, strings.TrimSpace(row[5]))
			if err != nil {
				result.Failed++
				continue
			}
			act.ParameterID = &param.ID
		}
		if act.Type == entity.ActivityTypeMeasurement && act.ParameterID == nil {
			result.Failed++
			continue
		}

		if err := s.catalogRepo.CreateActivity(ctx, &act); err != nil {
			result.Failed++
			continue
		}
		result.Success++
	}

	s.invalidate(ctx, serviceTypeID)
	return result, nil
}
