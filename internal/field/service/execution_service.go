package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bitfantasy/mekanos/internal/field/entity"
	"github.com/bitfantasy/mekanos/internal/field/repository"
	"github.com/google/uuid"
)

// ExecutionService 现场执行记录服务。
// 移动端离线队列按至少一次语义重放，所有写入必须幂等，重放不产生重复行。
type ExecutionService struct {
	execRepo    *repository.ExecutionRepository
	orderRepo   *repository.OrderRepository
	equipRepo   *repository.EquipmentRepository
	catalogRepo *repository.CatalogRepository
}

// NewExecutionService 创建执行记录服务
func NewExecutionService(repos *repository.Repositories) *ExecutionService {
	return &ExecutionService{
		execRepo:    repos.Execution,
		orderRepo:   repos.Order,
		equipRepo:   repos.Equipment,
		catalogRepo: repos.Catalog,
	}
}

// RecordActivityRequest 作业项执行上报
type RecordActivityRequest struct {
	OrderEquipmentID  string  `json:"order_equipment_id"`
	CatalogActivityID string  `json:"catalog_activity_id"`
	Description       string  `json:"description"`
	State             string  `json:"state"`
	DurationMinutes   int     `json:"duration_minutes"`
	EvidenceCaptured  bool    `json:"evidence_captured"`
	Notes             string  `json:"notes"`
	ClientToken       *string `json:"client_token"`
}

// RecordActivity 记录作业项执行。
// 目录项与自由文本二选一：目录项按幂等键 upsert，自由文本追加且靠客户端令牌防重放。
func (s *ExecutionService) RecordActivity(ctx context.Context, orderID, userID string, req *RecordActivityRequest) (*entity.ExecutedActivity, error) {
	hasCatalog := req.CatalogActivityID != ""
	hasText := req.Description != ""
	if hasCatalog == hasText {
		return nil, fmt.Errorf("%w: exactly one of catalog_activity_id or description required", ErrValidation)
	}

	if _, err := s.orderRepo.FindByID(ctx, orderID); err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if err := s.checkOrderEquipment(ctx, orderID, req.OrderEquipmentID); err != nil {
		return nil, err
	}
	if hasCatalog {
		if _, err := s.catalogRepo.FindActivityByID(ctx, req.CatalogActivityID); err != nil {
			return nil, fmt.Errorf("find catalog activity: %w", err)
		}
	}

	state := req.State
	if state == "" {
		state = entity.ExecStateDone
	}
	switch state {
	case entity.ExecStateDone, entity.ExecStateNotApplicable, entity.ExecStateDeferred, entity.ExecStateFailed:
	default:
		return nil, fmt.Errorf("%w: unknown execution state %q", ErrValidation, state)
	}

	now := time.Now()
	ea := &entity.ExecutedActivity{
		ID:                uuid.New().String()[:32],
		OrderID:           orderID,
		OrderEquipmentID:  req.OrderEquipmentID,
		CatalogActivityID: req.CatalogActivityID,
		Description:       req.Description,
		State:             state,
		DurationMinutes:   req.DurationMinutes,
		EvidenceCaptured:  req.EvidenceCaptured,
		Notes:             req.Notes,
		ClientToken:       req.ClientToken,
		RecordedBy:        userID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if hasCatalog {
		if err := s.execRepo.UpsertActivity(ctx, ea); err != nil {
			return nil, fmt.Errorf("upsert activity: %w", err)
		}
		return s.execRepo.FindActivityByKey(ctx, orderID, req.OrderEquipmentID, req.CatalogActivityID)
	}

	inserted, err := s.execRepo.InsertManualActivity(ctx, ea)
	if err != nil {
		return nil, fmt.Errorf("insert manual activity: %w", err)
	}
	if !inserted && req.ClientToken != nil {
		// 令牌重放：回执返回首次落库的那一行
		return s.execRepo.FindActivityByToken(ctx, *req.ClientToken)
	}
	return ea, nil
}

// RecordMeasurementRequest 测量上报
type RecordMeasurementRequest struct {
	OrderEquipmentID string     `json:"order_equipment_id"`
	ParameterID      string     `json:"parameter_id" binding:"required"`
	ValueNumeric     *float64   `json:"value_numeric"`
	ValueText        string     `json:"value_text"`
	CapturedAt       *time.Time `json:"captured_at"`
}

// RecordMeasurement 记录测量值，按 (order, equipment, parameter) 幂等。
// 超区间只降级为 warning/critical 标记，值总是落库。
func (s *ExecutionService) RecordMeasurement(ctx context.Context, orderID, userID string, req *RecordMeasurementRequest) (*entity.Measurement, error) {
	if _, err := s.orderRepo.FindByID(ctx, orderID); err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if err := s.checkOrderEquipment(ctx, orderID, req.OrderEquipmentID); err != nil {
		return nil, err
	}

	param, err := s.catalogRepo.FindParameterByID(ctx, req.ParameterID)
	if err != nil {
		return nil, fmt.Errorf("find parameter: %w", err)
	}

	if param.Numeric && req.ValueNumeric == nil {
		return nil, fmt.Errorf("%w: parameter %s expects a numeric value", ErrValidation, param.Code)
	}
	if !param.Numeric && req.ValueText == "" {
		return nil, fmt.Errorf("%w: parameter %s expects a text value", ErrValidation, param.Code)
	}

	capturedAt := time.Now()
	if req.CapturedAt != nil {
		capturedAt = *req.CapturedAt
	}

	now := time.Now()
	m := &entity.Measurement{
		ID:               uuid.New().String()[:32],
		OrderID:          orderID,
		OrderEquipmentID: req.OrderEquipmentID,
		ParameterID:      req.ParameterID,
		ValueNumeric:     req.ValueNumeric,
		ValueText:        req.ValueText,
		Evaluation:       evaluateReading(param, req.ValueNumeric),
		CapturedAt:       capturedAt,
		RecordedBy:       userID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.execRepo.UpsertMeasurement(ctx, m); err != nil {
		return nil, fmt.Errorf("upsert measurement: %w", err)
	}
	return m, nil
}

// evaluateReading 区间评估：先临界后正常，区间未配置的一侧不参与判断
func evaluateReading(param *entity.MeasurementParameter, value *float64) string {
	if value == nil {
		return entity.ReadingNormal
	}
	v := *value
	if (param.CriticalMin != nil && v < *param.CriticalMin) ||
		(param.CriticalMax != nil && v > *param.CriticalMax) {
		return entity.ReadingCritical
	}
	if (param.NormalMin != nil && v < *param.NormalMin) ||
		(param.NormalMax != nil && v > *param.NormalMax) {
		return entity.ReadingWarning
	}
	return entity.ReadingNormal
}

// RecordEvidenceRequest 证据上报
type RecordEvidenceRequest struct {
	OrderEquipmentID  string `json:"order_equipment_id"`
	CatalogActivityID string `json:"catalog_activity_id"`
	Phase             string `json:"phase" binding:"required"`
	ObjectKey         string `json:"object_key" binding:"required"`
	ContentHash       string `json:"content_hash"`
	Caption           string `json:"caption"`
}

// RecordEvidence 追加证据引用（同阶段多张照片是常态，不去重）
func (s *ExecutionService) RecordEvidence(ctx context.Context, orderID, userID string, req *RecordEvidenceRequest) (*entity.Evidence, error) {
	if _, err := s.orderRepo.FindByID(ctx, orderID); err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if err := s.checkOrderEquipment(ctx, orderID, req.OrderEquipmentID); err != nil {
		return nil, err
	}

	switch req.Phase {
	case entity.EvidencePhaseBefore, entity.EvidencePhaseDuring, entity.EvidencePhaseAfter:
	default:
		return nil, fmt.Errorf("%w: unknown evidence phase %q", ErrValidation, req.Phase)
	}

	ev := &entity.Evidence{
		ID:               uuid.New().String()[:32],
		OrderID:          orderID,
		OrderEquipmentID: req.OrderEquipmentID,
		Phase:            req.Phase,
		ObjectKey:        req.ObjectKey,
		ContentHash:      req.ContentHash,
		Caption:          req.Caption,
		RecordedBy:       userID,
		CreatedAt:        time.Now(),
	}
	if err := s.execRepo.AddEvidence(ctx, ev); err != nil {
		return nil, fmt.Errorf("add evidence: %w", err)
	}

	// 关联作业项时顺带打证据标记
	if req.CatalogActivityID != "" {
		if err := s.execRepo.TouchEvidenceFlag(ctx, orderID, req.OrderEquipmentID, req.CatalogActivityID); err != nil {
			return nil, fmt.Errorf("touch evidence flag: %w", err)
		}
	}
	return ev, nil
}

// RecordSignatureRequest 签名上报
type RecordSignatureRequest struct {
	PersonID   string `json:"person_id" binding:"required"`
	PersonName string `json:"person_name"`
	Role       string `json:"role" binding:"required"`
	Payload    string `json:"payload" binding:"required"`
}

// RecordSignature 追加电子签名。历史签名保留，工单上的引用指向最新一条。
func (s *ExecutionService) RecordSignature(ctx context.Context, orderID string, req *RecordSignatureRequest) (*entity.DigitalSignature, error) {
	if _, err := s.orderRepo.FindByID(ctx, orderID); err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}

	if req.Role != entity.SignatureRoleTechnician && req.Role != entity.SignatureRoleClient {
		return nil, fmt.Errorf("%w: unknown signature role %q", ErrValidation, req.Role)
	}

	hash := sha256.Sum256([]byte(req.Payload))
	now := time.Now()
	sig := &entity.DigitalSignature{
		ID:          uuid.New().String()[:32],
		OrderID:     orderID,
		PersonID:    req.PersonID,
		PersonName:  req.PersonName,
		Role:        req.Role,
		Payload:     req.Payload,
		ContentHash: hex.EncodeToString(hash[:]),
		CapturedAt:  now,
		CreatedAt:   now,
	}
	if err := s.execRepo.AddSignature(ctx, sig); err != nil {
		return nil, fmt.Errorf("add signature: %w", err)
	}
	if err := s.orderRepo.UpdateSignatureRef(ctx, orderID, req.Role, sig.ID); err != nil {
		return nil, fmt.Errorf("update signature ref: %w", err)
	}
	return sig, nil
}

// ListActivities 工单已执行作业项
func (s *ExecutionService) ListActivities(ctx context.Context, orderID string) ([]entity.ExecutedActivity, error) {
	return s.execRepo.ListActivitiesByOrder(ctx, nil, orderID)
}

// ListMeasurements 工单测量记录
func (s *ExecutionService) ListMeasurements(ctx context.Context, orderID string) ([]entity.Measurement, error) {
	return s.execRepo.ListMeasurementsByOrder(ctx, nil, orderID)
}

// ListEvidence 工单证据列表
func (s *ExecutionService) ListEvidence(ctx context.Context, orderID string) ([]entity.Evidence, error) {
	return s.execRepo.ListEvidenceByOrder(ctx, orderID)
}

// ListSignatures 工单签名历史
func (s *ExecutionService) ListSignatures(ctx context.Context, orderID string) ([]entity.DigitalSignature, error) {
	return s.execRepo.ListSignaturesByOrder(ctx, orderID)
}

// checkOrderEquipment 设备行必须属于该工单；空串表示工单级记录
func (s *ExecutionService) checkOrderEquipment(ctx context.Context, orderID, orderEquipmentID string) error {
	if orderEquipmentID == "" {
		return nil
	}
	oe, err := s.equipRepo.FindOrderEquipmentByID(ctx, orderEquipmentID)
	if err != nil {
		return fmt.Errorf("find order equipment: %w", err)
	}
	if oe.OrderID != orderID {
		return fmt.Errorf("%w: equipment row does not belong to order", ErrValidation)
	}
	return nil
}
