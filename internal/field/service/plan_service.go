package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/mekanos/internal/field/entity"
	"github.com/bitfantasy/mekanos/internal/field/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 清单来源标记
const (
	ChecklistSourcePlan    = "PLAN"
	ChecklistSourceCatalog = "CATALOG"
)

// ChecklistItem 技师作业清单项
type ChecklistItem struct {
	CatalogActivityID string                       `json:"catalog_activity_id"`
	Type              string                       `json:"type"`
	Description       string                       `json:"description"`
	SystemCode        string                       `json:"system_code"`
	SystemName        string                       `json:"system_name"`
	Sequence          int                          `json:"sequence"`
	Mandatory         bool                         `json:"mandatory"`
	Origin            string                       `json:"origin"`
	Parameter         *entity.MeasurementParameter `json:"parameter,omitempty"`
}

// ResolvedChecklist 解析后的清单。Source 标记来源：
// 有显式计划行时计划就是唯一来源，目录项绝不混入（两套来源互斥）。
type ResolvedChecklist struct {
	Source string          `json:"source"`
	Items  []ChecklistItem `json:"items"`
}

// PlanService 工单作业计划解析/指派
type PlanService struct {
	planRepo    *repository.PlanRepository
	catalogRepo *repository.CatalogRepository
	orderRepo   *repository.OrderRepository
}

// NewPlanService 创建计划服务
func NewPlanService(planRepo *repository.PlanRepository, catalogRepo *repository.CatalogRepository, orderRepo *repository.OrderRepository) *PlanService {
	return &PlanService{planRepo: planRepo, catalogRepo: catalogRepo, orderRepo: orderRepo}
}

// Resolve 解析工单有效清单。tx 非空时在给定事务内读取（同步快照用）。
func (s *PlanService) Resolve(ctx context.Context, tx *gorm.DB, order *entity.ServiceOrder) (*ResolvedChecklist, error) {
	rows, err := s.planRepo.ListByOrder(ctx, tx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list plan rows: %w", err)
	}

	if len(rows) > 0 {
		items := make([]ChecklistItem, 0, len(rows))
		for _, row := range rows {
			item := ChecklistItem{
				CatalogActivityID: row.CatalogActivityID,
				Sequence:          row.Sequence,
				Origin:            row.Origin,
			}
			if row.Activity != nil {
				item.Type = row.Activity.Type
				item.Description = row.Activity.Description
				item.Mandatory = row.Activity.Mandatory
				item.Parameter = row.Activity.Parameter
				if row.Activity.System != nil {
					item.SystemCode = row.Activity.System.Code
					item.SystemName = row.Activity.System.Name
				}
			}
			if row.MandatoryOverride != nil {
				item.Mandatory = *row.MandatoryOverride
			}
			items = append(items, item)
		}
		return &ResolvedChecklist{Source: ChecklistSourcePlan, Items: items}, nil
	}

	// 无显式计划：按服务类型读目录，作为虚拟（不落库）计划返回
	acts, err := s.catalogRepo.ListActiveByServiceType(ctx, tx, order.ServiceTypeID)
	if err != nil {
		return nil, fmt.Errorf("list catalog activities: %w", err)
	}
	items := make([]ChecklistItem, 0, len(acts))
	for i, act := range acts {
		item := ChecklistItem{
			CatalogActivityID: act.ID,
			Type:              act.Type,
			Description:       act.Description,
			Sequence:          i + 1,
			Mandatory:         act.Mandatory,
			Origin:            entity.PlanOriginCatalog,
			Parameter:         act.Parameter,
		}
		if act.System != nil {
			item.SystemCode = act.System.Code
			item.SystemName = act.System.Name
		}
		items = append(items, item)
	}
	return &ResolvedChecklist{Source: ChecklistSourceCatalog, Items: items}, nil
}

// ResolveByOrderID 按工单ID解析清单
func (s *PlanService) ResolveByOrderID(ctx context.Context, orderID string) (*ResolvedChecklist, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return s.Resolve(ctx, nil, order)
}

// AssignRequest 指派计划请求
type AssignRequest struct {
	ActivityIDs []string `json:"activity_ids" binding:"required"`
	Origin      string   `json:"origin"`
}

// Assign 管理端覆盖工单计划：原子替换既有计划行，顺序即给定顺序
func (s *PlanService) Assign(ctx context.Context, orderID string, req *AssignRequest) ([]entity.OrderActivityPlan, error) {
	if _, err := s.orderRepo.FindByID(ctx, orderID); err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if len(req.ActivityIDs) == 0 {
		return nil, fmt.Errorf("%w: activity_ids must not be empty", ErrValidation)
	}

	origin := req.Origin
	if origin == "" {
		origin = entity.PlanOriginAdmin
	}
	if origin != entity.PlanOriginAdmin && origin != entity.PlanOriginCatalog {
		return nil, fmt.Errorf("%w: unknown origin %q", ErrValidation, origin)
	}

	now := time.Now()
	rows := make([]entity.OrderActivityPlan, 0, len(req.ActivityIDs))
	seen := make(map[string]bool, len(req.ActivityIDs))
	for i, actID := range req.ActivityIDs {
		if seen[actID] {
			return nil, fmt.Errorf("%w: duplicate activity %s", ErrValidation, actID)
		}
		seen[actID] = true
		if _, err := s.catalogRepo.FindActivityByID(ctx, actID); err != nil {
			return nil, fmt.Errorf("find activity %s: %w", actID, err)
		}
		rows = append(rows, entity.OrderActivityPlan{
			ID:                uuid.New().String()[:32],
			OrderID:           orderID,
			CatalogActivityID: actID,
			Sequence:          i + 1,
			Origin:            origin,
			CreatedAt:         now,
		})
	}

	if err := s.planRepo.ReplaceForOrder(ctx, orderID, rows); err != nil {
		return nil, fmt.Errorf("replace plan: %w", err)
	}

	return s.planRepo.ListByOrder(ctx, nil, orderID)
}
