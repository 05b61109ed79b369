package handler

import (
	"github.com/bitfantasy/mekanos/internal/field/service"
	"github.com/gin-gonic/gin"
)

// ExecutionHandler 现场执行处理器
type ExecutionHandler struct {
	execSvc  *service.ExecutionService
	mediaSvc *service.MediaService
}

// NewExecutionHandler 创建现场执行处理器
func NewExecutionHandler(execSvc *service.ExecutionService, mediaSvc *service.MediaService) *ExecutionHandler {
	return &ExecutionHandler{
		execSvc:  execSvc,
		mediaSvc: mediaSvc,
	}
}

// RecordActivity 上报作业项执行
func (h *ExecutionHandler) RecordActivity(c *gin.Context) {
	var req service.RecordActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ea, err := h.execSvc.RecordActivity(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, ea)
}

// ListActivities 工单已执行作业项
func (h *ExecutionHandler) ListActivities(c *gin.Context) {
	items, err := h.execSvc.ListActivities(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// RecordMeasurement 上报测量值
func (h *ExecutionHandler) RecordMeasurement(c *gin.Context) {
	var req service.RecordMeasurementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	m, err := h.execSvc.RecordMeasurement(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, m)
}

// ListMeasurements 工单测量记录
func (h *ExecutionHandler) ListMeasurements(c *gin.Context) {
	items, err := h.execSvc.ListMeasurements(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// UploadEvidence 上传证据文件并登记引用。
// multipart: file + order_equipment_id + catalog_activity_id + phase + caption
func (h *ExecutionHandler) UploadEvidence(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "无法解析上传文件: "+err.Error())
		return
	}
	defer file.Close()

	orderID := c.Param("id")
	result, err := h.mediaSvc.Upload(c.Request.Context(), orderID,
		header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		InternalError(c, "上传文件失败: "+err.Error())
		return
	}

	req := service.RecordEvidenceRequest{
		OrderEquipmentID:  c.PostForm("order_equipment_id"),
		CatalogActivityID: c.PostForm("catalog_activity_id"),
		Phase:             c.PostForm("phase"),
		ObjectKey:         result.ObjectKey,
		ContentHash:       result.ContentHash,
		Caption:           c.PostForm("caption"),
	}
	ev, err := h.execSvc.RecordEvidence(c.Request.Context(), orderID, GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, ev)
}

// RecordEvidence 登记已上传到对象存储的证据引用
func (h *ExecutionHandler) RecordEvidence(c *gin.Context) {
	var req service.RecordEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ev, err := h.execSvc.RecordEvidence(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, ev)
}

// ListEvidence 工单证据列表
func (h *ExecutionHandler) ListEvidence(c *gin.Context) {
	items, err := h.execSvc.ListEvidence(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// RecordSignature 上报电子签名
func (h *ExecutionHandler) RecordSignature(c *gin.Context) {
	var req service.RecordSignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	sig, err := h.execSvc.RecordSignature(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, sig)
}

// ListSignatures 工单签名历史
func (h *ExecutionHandler) ListSignatures(c *gin.Context) {
	items, err := h.execSvc.ListSignatures(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}
