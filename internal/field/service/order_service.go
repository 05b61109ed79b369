package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/mekanos/internal/field/entity"
	"github.com/bitfantasy/mekanos/internal/field/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// stateTransitions 状态邻接表。终态回退（运维纠偏）也是普通流转，只追加历史。
var stateTransitions = map[string][]string{
	entity.OrderStateCreated:    {entity.OrderStateAssigned, entity.OrderStateCancelled},
	entity.OrderStateAssigned:   {entity.OrderStateInProgress, entity.OrderStateCreated, entity.OrderStateCancelled},
	entity.OrderStateInProgress: {entity.OrderStateCompleted, entity.OrderStateCancelled},
	entity.OrderStateCompleted:  {entity.OrderStateInProgress},
	entity.OrderStateCancelled:  {entity.OrderStateInProgress},
}

// requiredSignatureRoles 进入终态需要的签名角色
var requiredSignatureRoles = map[string][]string{
	entity.OrderStateCompleted: {entity.SignatureRoleTechnician, entity.SignatureRoleClient},
	entity.OrderStateCancelled: {},
}

// canTransition 目标状态是否可达
func canTransition(from, to string) bool {
	for _, t := range stateTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// OrderService 工单服务：负责工单创建与状态机流转
type OrderService struct {
	db         *gorm.DB
	orderRepo  *repository.OrderRepository
	equipRepo  *repository.EquipmentRepository
	execRepo   *repository.ExecutionRepository
	clientRepo *repository.ClientRepository
	userRepo   *repository.UserRepository
}

// NewOrderService 创建工单服务
func NewOrderService(db *gorm.DB, repos *repository.Repositories) *OrderService {
	return &OrderService{
		db:         db,
		orderRepo:  repos.Order,
		equipRepo:  repos.Equipment,
		execRepo:   repos.Execution,
		clientRepo: repos.Client,
		userRepo:   repos.User,
	}
}

// CreateOrderRequest 创建工单请求
type CreateOrderRequest struct {
	ClientID      string     `json:"client_id" binding:"required"`
	EquipmentID   string     `json:"equipment_id" binding:"required"`
	ServiceTypeID string     `json:"service_type_id" binding:"required"`
	TechnicianID  string     `json:"technician_id"`
	Priority      int        `json:"priority"`
	ScheduledDate *time.Time `json:"scheduled_date"`
}

// TransitionRequest 状态流转请求
type TransitionRequest struct {
	Target string `json:"target" binding:"required"`
	Reason string `json:"reason"`
}

// OrderListResult 工单列表结果
type OrderListResult struct {
	Items      []entity.ServiceOrder `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// Create 创建工单（接单），初始状态 CREATED。
// 工单行、首条历史和主设备关联在同一事务内落库，不留半成品
func (s *OrderService) Create(ctx context.Context, userID string, req *CreateOrderRequest) (*entity.ServiceOrder, error) {
	if _, err := s.clientRepo.FindByID(ctx, req.ClientID); err != nil {
		return nil, fmt.Errorf("find client: %w", err)
	}
	if _, err := s.equipRepo.FindByID(ctx, req.EquipmentID); err != nil {
		return nil, fmt.Errorf("find equipment: %w", err)
	}

	state, err := s.orderRepo.FindStateByCode(ctx, entity.OrderStateCreated)
	if err != nil {
		return nil, fmt.Errorf("find initial state: %w", err)
	}

	code, err := s.orderRepo.GenerateCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	priority := req.Priority
	if priority == 0 {
		priority = entity.PriorityNormal
	}

	now := time.Now()
	order := &entity.ServiceOrder{
		ID:            uuid.New().String()[:32],
		Code:          code,
		ClientID:      req.ClientID,
		EquipmentID:   req.EquipmentID,
		ServiceTypeID: req.ServiceTypeID,
		StateID:       state.ID,
		TechnicianID:  req.TechnicianID,
		Priority:      priority,
		ScheduledDate: req.ScheduledDate,
		CreatedBy:     userID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		// 首条历史，from 为空
		history := &entity.OrderStateHistory{
			ID:        uuid.New().String()[:32],
			OrderID:   order.ID,
			ToStateID: state.ID,
			ActorID:   userID,
			Reason:    "order created",
			CreatedAt: now,
		}
		if err := s.orderRepo.AddHistory(ctx, tx, history); err != nil {
			return fmt.Errorf("add history: %w", err)
		}

		// 主设备自动挂为第一台工单设备
		oe := &entity.OrderEquipment{
			ID:          uuid.New().String()[:32],
			OrderID:     order.ID,
			EquipmentID: req.EquipmentID,
			SubState:    entity.EquipSubStatePending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.equipRepo.AttachTx(ctx, tx, oe); err != nil {
			return fmt.Errorf("attach primary equipment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.orderRepo.FindByID(ctx, order.ID)
}

// Get 工单详情
func (s *OrderService) Get(ctx context.Context, id string) (*entity.ServiceOrder, error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return order, nil
}

// List 工单列表
func (s *OrderService) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) (*OrderListResult, error) {
	orders, total, err := s.orderRepo.List(ctx, page, pageSize, filters)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &OrderListResult{
		Items:      orders,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// ListHistory 工单状态流转历史
func (s *OrderService) ListHistory(ctx context.Context, orderID string) ([]entity.OrderStateHistory, error) {
	if _, err := s.orderRepo.FindByID(ctx, orderID); err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return s.orderRepo.ListHistory(ctx, orderID)
}

// Transition 状态机流转。
// 非法流转返回 ErrInvalidTransition；进入终态但前置条件不满足返回 ErrPreconditionNotMet；
// 并发写入版本不匹配返回 ErrConflict。成功时更新当前状态并追加一条历史，绝不改写旧历史。
func (s *OrderService) Transition(ctx context.Context, orderID, targetCode, actorID, reason string) (*entity.ServiceOrder, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if order.State == nil {
		return nil, fmt.Errorf("order %s has no current state", orderID)
	}

	target, err := s.orderRepo.FindStateByCode(ctx, targetCode)
	if err != nil {
		return nil, fmt.Errorf("find target state: %w", err)
	}

	if !canTransition(order.State.Code, target.Code) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.State.Code, target.Code)
	}

	// 终态回退属于纠偏操作，必须给出原因
	if order.State.IsFinal && strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: reverting a final state requires a reason", ErrValidation)
	}

	if err := s.transitionChecked(ctx, order, target, actorID, reason); err != nil {
		return nil, err
	}

	return s.orderRepo.FindByID(ctx, order.ID)
}

// transitionChecked 在单个事务内完成终态前置校验、乐观版本检查和历史追加。
// 事务先锁工单行，前置校验读到的是锁内一致视图，并发的挂设备只能排在前后
func (s *OrderService) transitionChecked(ctx context.Context, order *entity.ServiceOrder, target *entity.OrderState, actorID, reason string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"state_id": target.ID,
	}
	// 进入执行中盖开始时间戳，从执行中进入终态盖结束时间戳
	if target.Code == entity.OrderStateInProgress {
		if order.ActualStart == nil {
			updates["actual_start"] = now
		}
		if order.State.IsFinal {
			updates["actual_end"] = nil // 终态回退，结束时间作废
		}
	}
	if target.IsFinal && order.State.Code == entity.OrderStateInProgress {
		updates["actual_end"] = now
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.LockForUpdate(ctx, tx, order.ID); err != nil {
			return fmt.Errorf("lock order: %w", err)
		}

		if target.IsFinal {
			if err := s.checkFinalPreconditions(ctx, tx, order, target.Code); err != nil {
				return err
			}
		}

		affected, err := s.orderRepo.UpdateStateChecked(ctx, tx, order.ID, order.Version, updates)
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: order %s version %d", ErrConflict, order.ID, order.Version)
		}

		fromID := order.StateID
		history := &entity.OrderStateHistory{
			ID:          uuid.New().String()[:32],
			OrderID:     order.ID,
			FromStateID: &fromID,
			ToStateID:   target.ID,
			ActorID:     actorID,
			Reason:      reason,
			CreatedAt:   now,
		}
		return s.orderRepo.AddHistory(ctx, tx, history)
	})
}

// checkFinalPreconditions 终态前置校验：所需签名齐全且所有设备子状态已到终态。在写事务内持锁调用
func (s *OrderService) checkFinalPreconditions(ctx context.Context, tx *gorm.DB, order *entity.ServiceOrder, targetCode string) error {
	for _, role := range requiredSignatureRoles[targetCode] {
		sig, err := s.execRepo.LatestSignature(ctx, tx, order.ID, role)
		if err != nil {
			return fmt.Errorf("check %s signature: %w", role, err)
		}
		if sig == nil {
			return fmt.Errorf("%w: missing %s signature", ErrPreconditionNotMet, role)
		}
	}

	pending, err := s.equipRepo.CountNonTerminal(ctx, tx, order.ID)
	if err != nil {
		return fmt.Errorf("count pending equipment: %w", err)
	}
	if pending > 0 {
		return fmt.Errorf("%w: %d equipment not in terminal sub-state", ErrPreconditionNotMet, pending)
	}
	return nil
}

// RegisterDocument 登记外部渲染服务生成的文档引用
func (s *OrderService) RegisterDocument(ctx context.Context, orderID, docType, objectKey string, generatedAt time.Time) (*entity.GeneratedDocument, error) {
	if _, err := s.orderRepo.FindByID(ctx, orderID); err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if objectKey == "" {
		return nil, fmt.Errorf("%w: object key is required", ErrValidation)
	}
	if docType == "" {
		docType = "service_report"
	}
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}

	doc := &entity.GeneratedDocument{
		ID:          uuid.New().String()[:32],
		OrderID:     orderID,
		DocType:     docType,
		ObjectKey:   objectKey,
		GeneratedAt: generatedAt,
		CreatedAt:   time.Now(),
	}
	if err := s.orderRepo.AddGeneratedDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("add generated document: %w", err)
	}
	return doc, nil
}
