package handler

import (
	"errors"
	"log"
	"strconv"

	"github.com/wild-dmytro/wild-erp-server-sub000/internal/config"
	"github.com/wild-dmytro/wild-erp-server-sub000/internal/repository"
	"github.com/wild-dmytro/wild-erp-server-sub000/internal/service"
	"github.com/wild-dmytro/wild-erp-server-sub000/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	allocationService *service.AllocationService
	reconcileService  *service.ReconcileService
	lifecycleService  *service.LifecycleService
	statsService      *service.StatsService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		allocationService: service.NewAllocationService(db, rdb, cfg),
		reconcileService:  service.NewReconcileService(db, rdb, cfg),
		lifecycleService:  service.NewLifecycleService(db, cfg),
		statsService:      service.NewStatsService(db),
	}
}

// writeServiceError 服务层错误到响应码的统一映射
// 守恒/冲突/未找到带明细返回；底层事务错误只进日志，对外保持笼统
func writeServiceError(c *gin.Context, err error) {
	var violation *service.ConservationViolationError
	switch {
	case errors.Is(err, service.ErrValidation):
		response.ParamError(c, err.Error())
	case errors.As(err, &violation):
		response.ErrorWithData(c, response.CodeConservationViolation, violation.Error(), gin.H{
			"payout_request_id": violation.PayoutRequestID,
			"payout_total":      violation.Total,
			"proposed_total":    violation.Proposed,
			"overrun":           violation.Overrun,
		})
	case errors.Is(err, repository.ErrPayoutRequestNotFound):
		response.BusinessError(c, response.CodePayoutRequestNotFound, err.Error())
	case errors.Is(err, repository.ErrAllocationNotFound):
		response.BusinessError(c, response.CodeAllocationNotFound, err.Error())
	case errors.Is(err, repository.ErrAllocationExists):
		response.BusinessError(c, response.CodeAllocationConflict, err.Error())
	default:
		log.Printf("[Handler] 内部错误: %v", err)
		response.ServerError(c, "系统繁忙，请稍后重试")
	}
}

func parsePayoutRequestID(c *gin.Context) (int64, bool) {
	idStr := c.Query("payout_request_id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "payout_request_id 参数错误")
		return 0, false
	}
	return id, true
}

// ============================================================
// 分配相关接口
// ============================================================

// ListAllocations 查询打款请求下的分配列表 + 统计
// GET /api/v1/allocation/list?payout_request_id=xxx
func (h *Handler) ListAllocations(c *gin.Context) {
	payoutRequestID, ok := parsePayoutRequestID(c)
	if !ok {
		return
	}

	list, err := h.allocationService.List(c.Request.Context(), payoutRequestID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	stats, err := h.statsService.GetStats(c.Request.Context(), payoutRequestID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":  list,
		"stats": stats,
	})
}

// GetAllocationStats 只取统计
// GET /api/v1/allocation/stats?payout_request_id=xxx
func (h *Handler) GetAllocationStats(c *gin.Context) {
	payoutRequestID, ok := parsePayoutRequestID(c)
	if !ok {
		return
	}

	stats, err := h.statsService.GetStats(c.Request.Context(), payoutRequestID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, stats)
}

// CreateAllocationRequest 新建分配请求
type CreateAllocationRequest struct {
	PayoutRequestID int64            `json:"payout_request_id" binding:"required"`
	UserID          int64            `json:"user_id" binding:"required"`
	FlowID          *int64           `json:"flow_id"`
	AllocatedAmount decimal.Decimal  `json:"allocated_amount"`
	Percentage      *decimal.Decimal `json:"percentage"`
	Description     string           `json:"description"`
	Notes           string           `json:"notes"`
	OperatorID      int64            `json:"operator_id" binding:"required"`
}

// CreateAllocation 新建分配
// POST /api/v1/allocation/create
func (h *Handler) CreateAllocation(c *gin.Context) {
	var req CreateAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	allocation, err := h.allocationService.Create(c.Request.Context(), &service.CreateAllocationRequest{
		PayoutRequestID: req.PayoutRequestID,
		UserID:          req.UserID,
		FlowID:          req.FlowID,
		AllocatedAmount: req.AllocatedAmount,
		Percentage:      req.Percentage,
		Description:     req.Description,
		Notes:           req.Notes,
		OperatorID:      req.OperatorID,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, allocation)
}

// UpdateAllocationRequest 更新分配请求，缺省字段不变
type UpdateAllocationRequest struct {
	ID              int64            `json:"id" binding:"required"`
	AllocatedAmount *decimal.Decimal `json:"allocated_amount"`
	Percentage      *decimal.Decimal `json:"percentage"`
	FlowID          *int64           `json:"flow_id"`
	Description     *string          `json:"description"`
	Notes           *string          `json:"notes"`
	Status          *string          `json:"status"`
	OperatorID      int64            `json:"operator_id" binding:"required"`
}

// UpdateAllocation 更新分配
// POST /api/v1/allocation/update
func (h *Handler) UpdateAllocation(c *gin.Context) {
	var req UpdateAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	allocation, err := h.allocationService.Update(c.Request.Context(), req.ID, &service.UpdateAllocationRequest{
		AllocatedAmount: req.AllocatedAmount,
		Percentage:      req.Percentage,
		FlowID:          req.FlowID,
		Description:     req.Description,
		Notes:           req.Notes,
		Status:          req.Status,
		OperatorID:      req.OperatorID,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, allocation)
}

// DeleteAllocation 删除分配
// POST /api/v1/allocation/delete
func (h *Handler) DeleteAllocation(c *gin.Context) {
	var req struct {
		ID int64 `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	deleted, err := h.allocationService.Delete(c.Request.Context(), req.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !deleted {
		response.BusinessError(c, response.CodeAllocationNotFound, "分配记录不存在")
		return
	}

	response.Success(c, gin.H{
		"message": "分配已删除",
	})
}

// BulkUpsertItem 批量分配单项
type BulkUpsertItem struct {
	UserID          int64            `json:"user_id" binding:"required"`
	FlowID          *int64           `json:"flow_id"`
	AllocatedAmount decimal.Decimal  `json:"allocated_amount"`
	Percentage      *decimal.Decimal `json:"percentage"`
	Description     string           `json:"description"`
	Notes           string           `json:"notes"`
}

// BulkUpsertRequest 批量分配请求
//
// 【关键点】整批原子应用：
// 1. 批次总额超预算在开事务前就拒绝
// 2. 任意一项失败整批回滚，不存在部分生效
// 3. 不删除批次之外的已有分配
type BulkUpsertRequest struct {
	PayoutRequestID int64            `json:"payout_request_id" binding:"required"`
	Items           []BulkUpsertItem `json:"items" binding:"required"`
	OperatorID      int64            `json:"operator_id" binding:"required"`
}

// BulkUpsertAllocations 批量分配（有则更新、无则插入）
// POST /api/v1/allocation/bulk-upsert
func (h *Handler) BulkUpsertAllocations(c *gin.Context) {
	var req BulkUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	items := make([]service.ReconcileItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.ReconcileItem{
			UserID:          it.UserID,
			FlowID:          it.FlowID,
			AllocatedAmount: it.AllocatedAmount,
			Percentage:      it.Percentage,
			Description:     it.Description,
			Notes:           it.Notes,
		})
	}

	results, err := h.reconcileService.Reconcile(c.Request.Context(), req.PayoutRequestID, items, req.OperatorID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list": results,
	})
}

// ConfirmAllAllocations 批量确认草稿分配
// POST /api/v1/allocation/confirm-all
func (h *Handler) ConfirmAllAllocations(c *gin.Context) {
	var req struct {
		PayoutRequestID int64 `json:"payout_request_id" binding:"required"`
		OperatorID      int64 `json:"operator_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	confirmed, err := h.lifecycleService.ConfirmAll(c.Request.Context(), req.PayoutRequestID, req.OperatorID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"confirmed_count": confirmed,
	})
}
