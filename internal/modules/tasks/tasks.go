package tasks

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orbitreach/core/internal/middleware"
	"github.com/orbitreach/core/internal/modules/content"
	"github.com/orbitreach/core/internal/pkg/pagination"
	"github.com/orbitreach/core/internal/pkg/response"
	"github.com/orbitreach/core/internal/pkg/taskqueue"
)

const TaskTypeContentGenerate = "content.generate"

// generatePayload is stored with the task so failed jobs can be retried.
type generatePayload struct {
	TenantID          string `json:"tenant_id"`
	CampaignID        string `json:"campaign_id"`
	Actor             string `json:"actor"`
	ProviderID        string `json:"provider_id,omitempty"`
	Topic             string `json:"topic,omitempty"`
	RequiredApprovals int    `json:"required_approvals,omitempty"`
}

type EnqueueGenerateDTO struct {
	CampaignID        string `json:"campaign_id" binding:"required"`
	ProviderID        string `json:"provider_id"`
	Topic             string `json:"topic"`
	RequiredApprovals int    `json:"required_approvals"`
}

type Service struct {
	taskSvc    *taskqueue.Service
	contentSvc *content.Service
}

func NewService(taskSvc *taskqueue.Service, contentSvc *content.Service) *Service {
	return &Service{taskSvc: taskSvc, contentSvc: contentSvc}
}

// EnqueueGenerate schedules an AI content draft off the request path.
// Deduped per (tenant, campaign, topic) while a job is in flight; grouped
// by campaign for bulk queries.
func (s *Service) EnqueueGenerate(ctx context.Context, payload generatePayload) (*taskqueue.Task, error) {
	dedupKey := payload.TenantID + ":" + payload.CampaignID + ":" + payload.Topic
	task, err := s.taskSvc.Enqueue(ctx, TaskTypeContentGenerate, payload, dedupKey, payload.CampaignID)
	if err != nil {
		return nil, err
	}
	go s.process(task.ID, payload)
	return task, nil
}

func (s *Service) process(taskID string, payload generatePayload) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := s.taskSvc.UpdateStatus(ctx, taskID, taskqueue.TaskRunning, nil, ""); err != nil {
		return
	}

	cv, err := s.contentSvc.Generate(ctx, payload.TenantID, payload.CampaignID, payload.Actor, &content.GenerateDTO{
		ProviderID:        payload.ProviderID,
		Topic:             payload.Topic,
		RequiredApprovals: payload.RequiredApprovals,
	})
	if err != nil {
		_ = s.taskSvc.UpdateStatus(ctx, taskID, taskqueue.TaskFailed, nil, err.Error())
		return
	}
	_ = s.taskSvc.UpdateStatus(ctx, taskID, taskqueue.TaskCompleted, map[string]interface{}{
		"content_version":  cv.Version,
		"strategy_version": cv.StrategyVersion,
	}, "")
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/tasks", authMW)
	g.POST("/content-generate", h.enqueueGenerate)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/cancel", h.cancel)
	g.POST("/:id/retry", h.retry)
	g.DELETE("/:id", h.delete)
	g.DELETE("", h.batchDelete)
	g.GET("/group/:groupKey", h.listByGroup)
}

func (h *Handler) enqueueGenerate(c *gin.Context) {
	var dto EnqueueGenerateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	task, err := h.svc.EnqueueGenerate(c.Request.Context(), generatePayload{
		TenantID:          middleware.CurrentTenantID(c),
		CampaignID:        dto.CampaignID,
		Actor:             middleware.CurrentUserID(c),
		ProviderID:        dto.ProviderID,
		Topic:             dto.Topic,
		RequiredApprovals: dto.RequiredApprovals,
	})
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, task)
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	taskType := c.Query("type")
	statusStr := c.Query("status")

	var taskTypePtr *string
	var statusPtr *taskqueue.TaskStatus
	if taskType != "" {
		taskTypePtr = &taskType
	}
	if statusStr != "" {
		s := taskqueue.TaskStatus(statusStr)
		statusPtr = &s
	}

	items, total, err := h.svc.taskSvc.List(c.Request.Context(), q.Page, q.Size, taskTypePtr, statusPtr)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	items = filterTenant(items, middleware.CurrentTenantID(c))

	totalPages := int((total + int64(q.Size) - 1) / int64(q.Size))
	response.Paged(c, items, response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   totalPages,
		Size:        q.Size,
		HasNextPage: q.Page < totalPages,
	})
}

func (h *Handler) get(c *gin.Context) {
	task, err := h.svc.taskSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if task == nil || !belongsToTenant(task, middleware.CurrentTenantID(c)) {
		response.NotFound(c)
		return
	}
	response.OK(c, task)
}

func (h *Handler) cancel(c *gin.Context) {
	task, err := h.svc.taskSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if task == nil || !belongsToTenant(task, middleware.CurrentTenantID(c)) {
		response.NotFound(c)
		return
	}
	switch task.Status {
	case taskqueue.TaskCompleted, taskqueue.TaskFailed, taskqueue.TaskCancelled:
		response.BadRequest(c, "task already finished")
		return
	case taskqueue.TaskRunning:
		if err := h.svc.taskSvc.UpdateStatus(c.Request.Context(), task.ID, taskqueue.TaskCancelled, nil, "cancelled by user"); err != nil {
			response.InternalError(c, err)
			return
		}
	default:
		if err := h.svc.taskSvc.Cancel(c.Request.Context(), task.ID); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	response.NoContent(c)
}

func (h *Handler) retry(c *gin.Context) {
	task, err := h.svc.taskSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil || task == nil || !belongsToTenant(task, middleware.CurrentTenantID(c)) {
		response.NotFound(c)
		return
	}
	if task.Status != taskqueue.TaskFailed && task.Status != taskqueue.TaskCancelled {
		response.BadRequest(c, "only failed or cancelled tasks can be retried")
		return
	}

	var payload generatePayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		response.BadRequest(c, "invalid task payload")
		return
	}
	newTask, err := h.svc.EnqueueGenerate(c.Request.Context(), payload)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, newTask)
}

func (h *Handler) delete(c *gin.Context) {
	task, err := h.svc.taskSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil || task == nil || !belongsToTenant(task, middleware.CurrentTenantID(c)) {
		response.NotFound(c)
		return
	}
	if err := h.svc.taskSvc.DeleteByID(c.Request.Context(), task.ID); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.NoContent(c)
}

func (h *Handler) batchDelete(c *gin.Context) {
	var before int64
	if beforeStr := c.Query("before"); beforeStr != "" {
		if v, err := strconv.ParseInt(beforeStr, 10, 64); err == nil {
			before = v
		}
	}
	if err := h.svc.taskSvc.DeleteCompleted(c.Request.Context(), before); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) listByGroup(c *gin.Context) {
	groupKey := c.Param("groupKey")
	if groupKey == "" {
		response.BadRequest(c, "group id is required")
		return
	}
	q := pagination.FromContext(c)

	all, _, err := h.svc.taskSvc.List(c.Request.Context(), 1, 1000, nil, nil)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	tenantID := middleware.CurrentTenantID(c)
	var filtered []*taskqueue.Task
	for _, t := range all {
		if t.GroupKey == groupKey && belongsToTenant(t, tenantID) {
			filtered = append(filtered, t)
		}
	}

	total := int64(len(filtered))
	start := (q.Page - 1) * q.Size
	end := start + q.Size
	if start >= len(filtered) {
		filtered = []*taskqueue.Task{}
	} else {
		if end > len(filtered) {
			end = len(filtered)
		}
		filtered = filtered[start:end]
	}

	totalPages := int((total + int64(q.Size) - 1) / int64(q.Size))
	response.Paged(c, filtered, response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   totalPages,
		Size:        q.Size,
		HasNextPage: q.Page < totalPages,
	})
}

func filterTenant(items []*taskqueue.Task, tenantID string) []*taskqueue.Task {
	out := make([]*taskqueue.Task, 0, len(items))
	for _, t := range items {
		if belongsToTenant(t, tenantID) {
			out = append(out, t)
		}
	}
	return out
}

// belongsToTenant inspects the stored payload; tasks carry their tenant so
// the queue itself stays tenant-agnostic.
func belongsToTenant(t *taskqueue.Task, tenantID string) bool {
	var payload struct {
		TenantID string `json:"tenant_id"`
	}
	if err := json.Unmarshal(t.Payload, &payload); err != nil {
		return false
	}
	return payload.TenantID == tenantID
}
