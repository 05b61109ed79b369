package handler

import (
	"time"

	"github.com/bitfantasy/mekanos/internal/field/service"
	"github.com/gin-gonic/gin"
)

// SyncHandler 技师端同步处理器
type SyncHandler struct {
	snapshotSvc *service.SnapshotService
}

// NewSyncHandler 创建同步处理器
func NewSyncHandler(snapshotSvc *service.SnapshotService) *SyncHandler {
	return &SyncHandler{snapshotSvc: snapshotSvc}
}

// Snapshot 下发当前技师的同步快照
// GET /api/v1/sync/snapshot
func (h *SyncHandler) Snapshot(c *gin.Context) {
	technicianID := GetUserID(c)

	// 管理员可以代查指定技师
	if tid := c.Query("technician_id"); tid != "" && GetUserRole(c) == "admin" {
		technicianID = tid
	}

	snap, err := h.snapshotSvc.Build(c.Request.Context(), technicianID, time.Now())
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, snap)
}
