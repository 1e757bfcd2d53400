package campaign

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/orbitreach/core/internal/middleware"
	"github.com/orbitreach/core/internal/models"
	"github.com/orbitreach/core/internal/modules/notify"
	"github.com/orbitreach/core/internal/pkg/apperrors"
	"github.com/orbitreach/core/internal/pkg/pagination"
	"github.com/orbitreach/core/internal/pkg/response"
)

type CreateCampaignDTO struct {
	Name string `json:"name" binding:"required"`
}

type UpdateStatusDTO struct {
	Status models.CampaignStatus `json:"status" binding:"required"`
	Note   string                `json:"note"`
}

type campaignResponse struct {
	ID                 string                   `json:"id"`
	Name               string                   `json:"name"`
	Status             models.CampaignStatus    `json:"status"`
	Revision           int                      `json:"revision"`
	StrategyVersions   []models.StrategyVersion `json:"strategy_versions"`
	ContentVersions    []models.ContentVersion  `json:"content_versions"`
	Schedule           []models.ScheduleSlot    `json:"schedule"`
	AssetRefs          []models.AssetRef        `json:"asset_refs"`
	ScheduleGeneration int                      `json:"schedule_generation"`
	ApprovalStates     map[string]string        `json:"approval_states"`
	PublishedAt        *time.Time               `json:"published_at"`
	CreatedBy          string                   `json:"created_by"`
	Created            time.Time                `json:"created"`
	Modified           time.Time                `json:"modified"`
}

type campaignSummary struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	Status           models.CampaignStatus `json:"status"`
	Revision         int                   `json:"revision"`
	StrategyVersions int                   `json:"strategy_versions"`
	ContentVersions  int                   `json:"content_versions"`
	ScheduleSlots    int                   `json:"schedule_slots"`
	Created          time.Time             `json:"created"`
	Modified         time.Time             `json:"modified"`
}

func toResponse(c *models.CampaignModel, approvalStates map[string]string) campaignResponse {
	resp := campaignResponse{
		ID:                 c.ID,
		Name:               c.Name,
		Status:             c.Status,
		Revision:           c.Revision,
		StrategyVersions:   c.StrategyVersions,
		ContentVersions:    c.ContentVersions,
		Schedule:           c.Schedule,
		AssetRefs:          c.AssetRefs,
		ScheduleGeneration: c.ScheduleGeneration,
		ApprovalStates:     approvalStates,
		PublishedAt:        c.PublishedAt,
		CreatedBy:          c.CreatedBy,
		Created:            c.CreatedAt,
		Modified:           c.UpdatedAt,
	}
	if resp.StrategyVersions == nil {
		resp.StrategyVersions = []models.StrategyVersion{}
	}
	if resp.ContentVersions == nil {
		resp.ContentVersions = []models.ContentVersion{}
	}
	if resp.Schedule == nil {
		resp.Schedule = []models.ScheduleSlot{}
	}
	if resp.AssetRefs == nil {
		resp.AssetRefs = []models.AssetRef{}
	}
	if resp.ApprovalStates == nil {
		resp.ApprovalStates = map[string]string{}
	}
	return resp
}

func toSummary(c *models.CampaignModel) campaignSummary {
	return campaignSummary{
		ID:               c.ID,
		Name:             c.Name,
		Status:           c.Status,
		Revision:         c.Revision,
		StrategyVersions: len(c.StrategyVersions),
		ContentVersions:  len(c.ContentVersions),
		ScheduleSlots:    len(c.Schedule),
		Created:          c.CreatedAt,
		Modified:         c.UpdatedAt,
	}
}

// statusTransitions lists the allowed moves per current status. The
// published status is only reachable through the publish operation.
var statusTransitions = map[models.CampaignStatus][]models.CampaignStatus{
	models.CampaignStatusDraft:     {models.CampaignStatusActive, models.CampaignStatusArchived},
	models.CampaignStatusActive:    {models.CampaignStatusDraft, models.CampaignStatusCompleted, models.CampaignStatusArchived},
	models.CampaignStatusCompleted: {models.CampaignStatusActive, models.CampaignStatusArchived},
	models.CampaignStatusPublished: {models.CampaignStatusArchived},
	models.CampaignStatusArchived:  {},
}

type Service struct {
	db       *gorm.DB
	store    *Store
	notifier *notify.Service
}

func NewService(db *gorm.DB, store *Store) *Service {
	return &Service{db: db, store: store}
}

// SetNotifier wires up webhook event dispatch (optional).
func (s *Service) SetNotifier(n *notify.Service) { s.notifier = n }

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (s *Service) Create(tenantID, actor string, dto *CreateCampaignDTO) (*models.CampaignModel, error) {
	c := models.CampaignModel{
		TenantID:  tenantID,
		Name:      dto.Name,
		Status:    models.CampaignStatusDraft,
		Revision:  1,
		CreatedBy: actor,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&c).Error; err != nil {
			return err
		}
		return tx.Create(&models.CampaignRevisionModel{
			TenantID:   tenantID,
			CampaignID: c.ID,
			Revision:   c.Revision,
			Action:     "campaign.create",
			Actor:      actor,
			Detail:     map[string]interface{}{"name": c.Name},
		}).Error
	})
	if err != nil {
		return nil, err
	}
	s.notifier.CampaignCreated(tenantID, &c)
	return &c, nil
}

func (s *Service) List(tenantID string, q pagination.Query, status *string) ([]models.CampaignModel, response.Pagination, error) {
	tx := s.db.Model(&models.CampaignModel{}).
		Where("tenant_id = ?", tenantID).
		Order("updated_at DESC")
	if status != nil {
		tx = tx.Where("status = ?", *status)
	}
	var items []models.CampaignModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

func (s *Service) Get(tenantID, id string) (*models.CampaignModel, map[string]string, error) {
	c, err := s.store.Get(tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	states, err := s.ApprovalStates(tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	return c, states, nil
}

// ApprovalStates derives the legacy per-scope state map from the approval
// ledger: the status of the highest-version approval per type. Read-only,
// never persisted.
func (s *Service) ApprovalStates(tenantID, campaignID string) (map[string]string, error) {
	var rows []models.ApprovalModel
	err := s.db.Where("tenant_id = ? AND campaign_id = ?", tenantID, campaignID).
		Order("version ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}

	states := map[string]string{}
	latest := map[models.ApprovalType]int{}
	for _, row := range rows {
		if row.Version >= latest[row.Type] {
			latest[row.Type] = row.Version
			states[string(row.Type)] = string(row.Status)
		}
	}
	return states, nil
}

func (s *Service) UpdateStatus(tenantID, id, actor string, dto *UpdateStatusDTO) (*models.CampaignModel, error) {
	if !models.ValidCampaignStatus(dto.Status) {
		return nil, apperrors.NewValidation("invalid status %q", dto.Status)
	}
	if dto.Status == models.CampaignStatusPublished {
		return nil, apperrors.NewInvalidState("use the publish operation to publish a campaign")
	}

	var from models.CampaignStatus
	updated, err := s.store.Mutate(tenantID, id, "campaign.status", actor, func(tx *gorm.DB, c *models.CampaignModel) (map[string]interface{}, error) {
		from = c.Status
		if from == dto.Status {
			return nil, apperrors.NewInvalidState("campaign is already %s", from)
		}
		allowed := false
		for _, next := range statusTransitions[from] {
			if next == dto.Status {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, apperrors.NewInvalidState("cannot transition campaign from %s to %s", from, dto.Status)
		}

		c.Status = dto.Status
		if err := AppendStatusHistory(tx, tenantID, c.ID, from, dto.Status, actor, dto.Note); err != nil {
			return nil, err
		}
		return map[string]interface{}{"from": string(from), "to": string(dto.Status)}, nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.CampaignStatusChanged(tenantID, id, from, dto.Status, actor)
	return updated, nil
}

func (s *Service) Delete(tenantID, id string) error {
	res := s.db.Where("tenant_id = ?", tenantID).Delete(&models.CampaignModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundf("campaign", "%s", id)
	}
	return nil
}

func (s *Service) Revisions(tenantID, id string, q pagination.Query) ([]models.CampaignRevisionModel, response.Pagination, error) {
	if _, err := s.store.Get(tenantID, id); err != nil {
		return nil, response.Pagination{}, err
	}
	tx := s.db.Model(&models.CampaignRevisionModel{}).
		Where("tenant_id = ? AND campaign_id = ?", tenantID, id).
		Order("revision DESC")
	var items []models.CampaignRevisionModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

func (s *Service) StatusHistory(tenantID, id string) ([]models.CampaignStatusHistoryModel, error) {
	if _, err := s.store.Get(tenantID, id); err != nil {
		return nil, err
	}
	var items []models.CampaignStatusHistoryModel
	err := s.db.Where("tenant_id = ? AND campaign_id = ?", tenantID, id).
		Order("created_at ASC").Find(&items).Error
	return items, err
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/campaigns", authMW)
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/status", h.updateStatus)
	g.GET("/:id/status-history", h.statusHistory)
	g.GET("/:id/revisions", h.revisions)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateCampaignDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	campaign, err := h.svc.Create(middleware.CurrentTenantID(c), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toResponse(campaign, map[string]string{}))
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	var statusPtr *string
	if status := c.Query("status"); status != "" {
		statusPtr = &status
	}
	items, pag, err := h.svc.List(middleware.CurrentTenantID(c), q, statusPtr)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]campaignSummary, len(items))
	for i := range items {
		out[i] = toSummary(&items[i])
	}
	response.Paged(c, out, pag)
}

func (h *Handler) get(c *gin.Context) {
	campaign, states, err := h.svc.Get(middleware.CurrentTenantID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toResponse(campaign, states))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(middleware.CurrentTenantID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) updateStatus(c *gin.Context) {
	var dto UpdateStatusDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	campaign, err := h.svc.UpdateStatus(middleware.CurrentTenantID(c), c.Param("id"), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	states, err := h.svc.ApprovalStates(middleware.CurrentTenantID(c), campaign.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toResponse(campaign, states))
}

func (h *Handler) statusHistory(c *gin.Context) {
	items, err := h.svc.StatusHistory(middleware.CurrentTenantID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

func (h *Handler) revisions(c *gin.Context) {
	items, pag, err := h.svc.Revisions(middleware.CurrentTenantID(c), c.Param("id"), pagination.FromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, items, pag)
}
