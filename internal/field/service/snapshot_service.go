package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bitfantasy/mekanos/internal/field/entity"
	"github.com/bitfantasy/mekanos/internal/field/repository"
	"gorm.io/gorm"
)

// DefaultRetentionDays 已关闭工单在同步集合中的默认保留天数
const DefaultRetentionDays = 30

// SnapshotService 技师端同步快照。
// 全部读取在同一个 REPEATABLE READ 事务内完成，工单、清单、执行记录、签名
// 来自同一时间点，不会出现半新半旧的混合视图。
type SnapshotService struct {
	db        *gorm.DB
	orderRepo *repository.OrderRepository
	execRepo  *repository.ExecutionRepository
	planSvc   *PlanService

	retentionDays int
}

// NewSnapshotService 创建同步快照服务，retentionDays <= 0 时用默认保留窗口
func NewSnapshotService(db *gorm.DB, repos *repository.Repositories, planSvc *PlanService, retentionDays int) *SnapshotService {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &SnapshotService{
		db:            db,
		orderRepo:     repos.Order,
		execRepo:      repos.Execution,
		planSvc:       planSvc,
		retentionDays: retentionDays,
	}
}

// SnapshotOrder 快照中的单个工单及其全部下发数据
type SnapshotOrder struct {
	Order           *entity.ServiceOrder      `json:"order"`
	Checklist       *ResolvedChecklist        `json:"checklist"`
	Activities      []entity.ExecutedActivity `json:"activities"`
	Readings        []entity.Measurement      `json:"readings"`
	TechSignature   *entity.DigitalSignature  `json:"tech_signature,omitempty"`
	ClientSignature *entity.DigitalSignature  `json:"client_signature,omitempty"`
	LatestDocument  *entity.GeneratedDocument `json:"latest_document,omitempty"`
}

// Snapshot 技师同步快照
type Snapshot struct {
	TechnicianID string          `json:"technician_id"`
	GeneratedAt  time.Time       `json:"generated_at"`
	Orders       []SnapshotOrder `json:"orders"`
}

// Build 构建技师同步快照。
// 集合规则：该技师的全部非终态工单，加上保留窗口内关闭的终态工单。
// 排序固定为 priority DESC, scheduled_date ASC NULLS LAST, code ASC，
// 同一数据状态下重复调用产出完全一致。
func (s *SnapshotService) Build(ctx context.Context, technicianID string, now time.Time) (*Snapshot, error) {
	if technicianID == "" {
		return nil, fmt.Errorf("%w: technician_id is required", ErrValidation)
	}
	closedSince := now.AddDate(0, 0, -s.retentionDays)

	snap := &Snapshot{
		TechnicianID: technicianID,
		GeneratedAt:  now,
		Orders:       []SnapshotOrder{},
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders, err := s.orderRepo.ListForSync(ctx, tx, technicianID, closedSince)
		if err != nil {
			return fmt.Errorf("list orders for sync: %w", err)
		}

		for i := range orders {
			order := &orders[i]
			so := SnapshotOrder{Order: order}

			so.Checklist, err = s.planSvc.Resolve(ctx, tx, order)
			if err != nil {
				return fmt.Errorf("resolve checklist for %s: %w", order.Code, err)
			}
			so.Activities, err = s.execRepo.ListActivitiesByOrder(ctx, tx, order.ID)
			if err != nil {
				return fmt.Errorf("list activities for %s: %w", order.Code, err)
			}
			so.Readings, err = s.execRepo.ListMeasurementsByOrder(ctx, tx, order.ID)
			if err != nil {
				return fmt.Errorf("list measurements for %s: %w", order.Code, err)
			}
			so.TechSignature, err = s.execRepo.LatestSignature(ctx, tx, order.ID, entity.SignatureRoleTechnician)
			if err != nil {
				return fmt.Errorf("latest tech signature for %s: %w", order.Code, err)
			}
			so.ClientSignature, err = s.execRepo.LatestSignature(ctx, tx, order.ID, entity.SignatureRoleClient)
			if err != nil {
				return fmt.Errorf("latest client signature for %s: %w", order.Code, err)
			}
			so.LatestDocument, err = s.orderRepo.LatestGeneratedDocument(ctx, tx, order.ID)
			if err != nil {
				return fmt.Errorf("latest document for %s: %w", order.Code, err)
			}

			snap.Orders = append(snap.Orders, so)
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	return snap, nil
}
