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

// subStateTransitions 设备子状态邻接表。SKIPPED 是终态，用于整单取消前收尾。
var subStateTransitions = map[string][]string{
	entity.EquipSubStatePending:    {entity.EquipSubStateInProgress, entity.EquipSubStateSkipped},
	entity.EquipSubStateInProgress: {entity.EquipSubStateDone, entity.EquipSubStateSkipped},
	entity.EquipSubStateDone:       {},
	entity.EquipSubStateSkipped:    {},
}

// EquipmentService 工单设备关联管理
type EquipmentService struct {
	db        *gorm.DB
	equipRepo *repository.EquipmentRepository
	orderRepo *repository.OrderRepository
}

// NewEquipmentService 创建设备关联服务
func NewEquipmentService(db *gorm.DB, equipRepo *repository.EquipmentRepository, orderRepo *repository.OrderRepository) *EquipmentService {
	return &EquipmentService{db: db, equipRepo: equipRepo, orderRepo: orderRepo}
}

// AttachRequest 挂设备请求
type AttachRequest struct {
	EquipmentID string `json:"equipment_id" binding:"required"`
	SystemLabel string `json:"system_label"`
	Notes       string `json:"notes"`
}

// Attach 往工单追加一台设备，序号总是 max(sequence)+1，保证 1..N 连续无洞。
// 查重和终态复核都在工单行锁内完成，和状态流转按工单互斥
func (s *EquipmentService) Attach(ctx context.Context, orderID string, req *AttachRequest) (*entity.OrderEquipment, error) {
	if _, err := s.orderRepo.FindByID(ctx, orderID); err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if _, err := s.equipRepo.FindByID(ctx, req.EquipmentID); err != nil {
		return nil, fmt.Errorf("find equipment: %w", err)
	}

	now := time.Now()
	oe := &entity.OrderEquipment{
		ID:          uuid.New().String()[:32],
		OrderID:     orderID,
		EquipmentID: req.EquipmentID,
		SystemLabel: req.SystemLabel,
		SubState:    entity.EquipSubStatePending,
		Notes:       req.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.LockForUpdate(ctx, tx, orderID); err != nil {
			return fmt.Errorf("lock order: %w", err)
		}

		state, err := s.orderRepo.CurrentState(ctx, tx, orderID)
		if err != nil {
			return fmt.Errorf("find order state: %w", err)
		}
		if state.IsFinal {
			return fmt.Errorf("%w: order is closed", ErrPreconditionNotMet)
		}

		attached, err := s.equipRepo.CountAttached(ctx, tx, orderID, req.EquipmentID)
		if err != nil {
			return fmt.Errorf("check attached: %w", err)
		}
		if attached > 0 {
			return fmt.Errorf("%w: equipment %s", ErrDuplicateEquipment, req.EquipmentID)
		}

		return s.equipRepo.AttachTx(ctx, tx, oe)
	})
	if err != nil {
		return nil, err
	}

	return s.equipRepo.FindOrderEquipmentByID(ctx, oe.ID)
}

// List 工单设备列表
func (s *EquipmentService) List(ctx context.Context, orderID string) ([]entity.OrderEquipment, error) {
	if _, err := s.orderRepo.FindByID(ctx, orderID); err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return s.equipRepo.ListByOrder(ctx, orderID)
}

// UpdateSubState 设备子状态流转，进入 IN_PROGRESS/终态时分别盖开始/结束时间戳
func (s *EquipmentService) UpdateSubState(ctx context.Context, orderEquipmentID, newSubState string) (*entity.OrderEquipment, error) {
	oe, err := s.equipRepo.FindOrderEquipmentByID(ctx, orderEquipmentID)
	if err != nil {
		return nil, fmt.Errorf("find order equipment: %w", err)
	}

	allowed := false
	for _, t := range subStateTransitions[oe.SubState] {
		if t == newSubState {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidSubState, oe.SubState, newSubState)
	}

	now := time.Now()
	var startedAt, endedAt *time.Time
	if newSubState == entity.EquipSubStateInProgress && oe.StartedAt == nil {
		startedAt = &now
	}
	if entity.IsTerminalSubState(newSubState) {
		endedAt = &now
	}

	if err := s.equipRepo.UpdateSubState(ctx, oe.ID, newSubState, startedAt, endedAt); err != nil {
		return nil, fmt.Errorf("update sub-state: %w", err)
	}

	return s.equipRepo.FindOrderEquipmentByID(ctx, oe.ID)
}
