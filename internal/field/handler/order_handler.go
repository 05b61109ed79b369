package handler

import (
	"time"

	"github.com/bitfantasy/mekanos/internal/field/service"
	"github.com/gin-gonic/gin"
)

// OrderHandler 工单处理器
type OrderHandler struct {
	orderSvc *service.OrderService
	equipSvc *service.EquipmentService
	planSvc  *service.PlanService
}

// NewOrderHandler 创建工单处理器
func NewOrderHandler(orderSvc *service.OrderService, equipSvc *service.EquipmentService, planSvc *service.PlanService) *OrderHandler {
	return &OrderHandler{
		orderSvc: orderSvc,
		equipSvc: equipSvc,
		planSvc:  planSvc,
	}
}

// ============================================================
// 工单接口
// ============================================================

// List 获取工单列表
func (h *OrderHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)

	filters := map[string]interface{}{
		"client_id":     c.Query("client_id"),
		"technician_id": c.Query("technician_id"),
		"state":         c.Query("state"),
		"keyword":       c.Query("keyword"),
	}

	result, err := h.orderSvc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, result)
}

// Get 获取工单详情
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.orderSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, order)
}

// Create 创建工单
func (h *OrderHandler) Create(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	order, err := h.orderSvc.Create(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, order)
}

// TransitionBody 状态流转请求体
type TransitionBody struct {
	Target string `json:"target" binding:"required"`
	Reason string `json:"reason"`
}

// Transition 工单状态流转
func (h *OrderHandler) Transition(c *gin.Context) {
	var body TransitionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	order, err := h.orderSvc.Transition(c.Request.Context(), c.Param("id"), body.Target, GetUserID(c), body.Reason)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, order)
}

// History 工单状态流转历史
func (h *OrderHandler) History(c *gin.Context) {
	history, err := h.orderSvc.ListHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": history})
}

// RegisterDocumentBody 登记生成文档请求体
type RegisterDocumentBody struct {
	DocType     string     `json:"doc_type"`
	ObjectKey   string     `json:"object_key" binding:"required"`
	GeneratedAt *time.Time `json:"generated_at"`
}

// RegisterDocument 登记外部渲染好的工单文档
func (h *OrderHandler) RegisterDocument(c *gin.Context) {
	var body RegisterDocumentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	generatedAt := time.Now()
	if body.GeneratedAt != nil {
		generatedAt = *body.GeneratedAt
	}

	doc, err := h.orderSvc.RegisterDocument(c.Request.Context(), c.Param("id"), body.DocType, body.ObjectKey, generatedAt)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, doc)
}

// ============================================================
// 工单设备接口
// ============================================================

// ListEquipment 工单设备列表
func (h *OrderHandler) ListEquipment(c *gin.Context) {
	items, err := h.equipSvc.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// AttachEquipment 工单挂载设备
func (h *OrderHandler) AttachEquipment(c *gin.Context) {
	var req service.AttachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	oe, err := h.equipSvc.Attach(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, oe)
}

// SubStateBody 设备子状态请求体
type SubStateBody struct {
	SubState string `json:"sub_state" binding:"required"`
}

// UpdateEquipmentSubState 更新工单设备子状态
func (h *OrderHandler) UpdateEquipmentSubState(c *gin.Context) {
	var body SubStateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	oe, err := h.equipSvc.UpdateSubState(c.Request.Context(), c.Param("equipmentId"), body.SubState)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, oe)
}

// ============================================================
// 作业清单接口
// ============================================================

// Checklist 解析工单作业清单
func (h *OrderHandler) Checklist(c *gin.Context) {
	checklist, err := h.planSvc.ResolveByOrderID(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, checklist)
}

// AssignPlan 管理端下发工单专属计划
func (h *OrderHandler) AssignPlan(c *gin.Context) {
	var req service.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	rows, err := h.planSvc.Assign(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, gin.H{"items": rows})
}
