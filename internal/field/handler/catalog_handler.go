package handler

import (
	"github.com/bitfantasy/mekanos/internal/field/service"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// CatalogHandler 作业目录处理器
type CatalogHandler struct {
	svc *service.CatalogService
}

// NewCatalogHandler 创建目录处理器
func NewCatalogHandler(svc *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

// ListServiceTypes 服务类型列表
func (h *CatalogHandler) ListServiceTypes(c *gin.Context) {
	items, err := h.svc.ListServiceTypes(c.Request.Context())
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"items": items})
}

// ListSystems 设备系统列表
func (h *CatalogHandler) ListSystems(c *gin.Context) {
	items, err := h.svc.ListSystems(c.Request.Context())
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"items": items})
}

// ListParameters 测量参数列表
func (h *CatalogHandler) ListParameters(c *gin.Context) {
	items, err := h.svc.ListParameters(c.Request.Context())
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"items": items})
}

// ListActivities 服务类型的目录项列表
// GET /api/v1/catalog/activities?service_type_id=xxx
func (h *CatalogHandler) ListActivities(c *gin.Context) {
	serviceTypeID := c.Query("service_type_id")
	if serviceTypeID == "" {
		BadRequest(c, "service_type_id is required")
		return
	}

	items, err := h.svc.ListActivities(c.Request.Context(), serviceTypeID)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// CreateActivity 新建目录项
func (h *CatalogHandler) CreateActivity(c *gin.Context) {
	var req service.CreateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	act, err := h.svc.CreateActivity(c.Request.Context(), &req)
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, act)
}

// DeactivateActivity 下线目录项
func (h *CatalogHandler) DeactivateActivity(c *gin.Context) {
	if err := h.svc.DeactivateActivity(c.Request.Context(), c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	Success(c, nil)
}

// ImportActivities 从Excel批量导入目录项
// POST /api/v1/catalog/activities/import (multipart: file + service_type_id)
func (h *CatalogHandler) ImportActivities(c *gin.Context) {
	serviceTypeID := c.PostForm("service_type_id")
	if serviceTypeID == "" {
		BadRequest(c, "service_type_id is required")
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "无法解析上传文件: "+err.Error())
		return
	}
	defer file.Close()

	f, err := excelize.OpenReader(file)
	if err != nil {
		BadRequest(c, "无法读取Excel文件: "+err.Error())
		return
	}
	defer f.Close()

	result, err := h.svc.ImportActivities(c.Request.Context(), serviceTypeID, f)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}
