package publish

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/orbitreach/core/internal/middleware"
	"github.com/orbitreach/core/internal/models"
	"github.com/orbitreach/core/internal/modules/campaign"
	"github.com/orbitreach/core/internal/modules/notify"
	"github.com/orbitreach/core/internal/pkg/apperrors"
	"github.com/orbitreach/core/internal/pkg/response"
)

// Result is the publish-gate verdict. Blockers are ordered: strategy,
// content, schedule, then ads.
type Result struct {
	CanPublish bool     `json:"can_publish"`
	Blockers   []string `json:"blockers"`
}

type gateCheck struct {
	typ     models.ApprovalType
	version int
	blocker string
}

// gateChecks computes which (type, version) pairs must be fully approved
// for the campaign to publish. Strategy and ads are checked at the current
// non-invalidated strategy version; a campaign with every strategy version
// invalidated has none and cannot clear the strategy check. Ads is only
// included when the current strategy version has ads enabled.
func gateChecks(c *models.CampaignModel) []gateCheck {
	sv := c.CurrentStrategyVersion()
	strategyVersion := 0
	if sv != nil {
		strategyVersion = sv.Version
	}
	checks := []gateCheck{
		{models.ApprovalTypeStrategy, strategyVersion, "Strategy requires approval"},
		{models.ApprovalTypeContent, len(c.ContentVersions), "Content requires approval"},
		{models.ApprovalTypeSchedule, c.ScheduleGeneration, "Schedule requires approval"},
	}
	if sv != nil && sv.AdsConfig != nil && sv.AdsConfig.Enabled {
		checks = append(checks, gateCheck{models.ApprovalTypeAds, sv.Version, "Ads requires approval"})
	}
	return checks
}

// Evaluate is the pure publish gate: it inspects the aggregate and the
// approval rows and never mutates either.
func Evaluate(c *models.CampaignModel, approvals []models.ApprovalModel) Result {
	type key struct {
		typ     models.ApprovalType
		version int
	}
	index := make(map[key]*models.ApprovalModel, len(approvals))
	for i := range approvals {
		a := &approvals[i]
		index[key{a.Type, a.Version}] = a
	}

	blockers := []string{}
	for _, check := range gateChecks(c) {
		if check.version < 1 {
			blockers = append(blockers, check.blocker)
			continue
		}
		a := index[key{check.typ, check.version}]
		if a == nil || !a.FullyApproved() {
			blockers = append(blockers, check.blocker)
		}
	}
	return Result{CanPublish: len(blockers) == 0, Blockers: blockers}
}

type Service struct {
	db       *gorm.DB
	store    *campaign.Store
	notifier *notify.Service
}

func NewService(db *gorm.DB, store *campaign.Store) *Service {
	return &Service{db: db, store: store}
}

// SetNotifier wires up webhook event dispatch (optional).
func (s *Service) SetNotifier(n *notify.Service) { s.notifier = n }

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// CanPublish evaluates the gate read-only.
func (s *Service) CanPublish(tenantID, campaignID string) (Result, error) {
	c, err := s.store.Get(tenantID, campaignID)
	if err != nil {
		return Result{}, err
	}
	approvals, err := s.loadApprovals(s.db, tenantID, campaignID)
	if err != nil {
		return Result{}, err
	}
	return Evaluate(c, approvals), nil
}

// Publish re-evaluates the gate inside the mutation transaction and, if
// clear, transitions the campaign to published.
func (s *Service) Publish(tenantID, campaignID, actor string) (*models.CampaignModel, error) {
	published, err := s.store.Mutate(tenantID, campaignID, "campaign.publish", actor, func(tx *gorm.DB, c *models.CampaignModel) (map[string]interface{}, error) {
		approvals, err := s.loadApprovals(tx, tenantID, campaignID)
		if err != nil {
			return nil, err
		}
		verdict := Evaluate(c, approvals)
		if !verdict.CanPublish {
			return nil, apperrors.NewInvalidState("cannot publish: %s", strings.Join(verdict.Blockers, "; "))
		}

		now := time.Now()
		from := c.Status
		c.Status = models.CampaignStatusPublished
		c.PublishedAt = &now

		for _, check := range gateChecks(c) {
			err := tx.Model(&models.ApprovalModel{}).
				Where("tenant_id = ? AND campaign_id = ? AND type = ? AND version = ?",
					tenantID, campaignID, check.typ, check.version).
				Update("published_at", now).Error
			if err != nil {
				return nil, err
			}
		}

		if err := campaign.AppendStatusHistory(tx, tenantID, c.ID, from, models.CampaignStatusPublished, actor, "published"); err != nil {
			return nil, err
		}
		return map[string]interface{}{"publishedAt": now}, nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.CampaignPublished(tenantID, campaignID, actor)
	return published, nil
}

func (s *Service) loadApprovals(tx *gorm.DB, tenantID, campaignID string) ([]models.ApprovalModel, error) {
	var rows []models.ApprovalModel
	err := tx.Where("tenant_id = ? AND campaign_id = ?", tenantID, campaignID).Find(&rows).Error
	return rows, err
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/campaigns/:id", authMW)
	g.GET("/ready-to-publish", h.readyToPublish)
	g.POST("/publish", h.publish)
}

func (h *Handler) readyToPublish(c *gin.Context) {
	verdict, err := h.svc.CanPublish(middleware.CurrentTenantID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, verdict)
}

func (h *Handler) publish(c *gin.Context) {
	result, err := h.svc.Publish(middleware.CurrentTenantID(c), c.Param("id"), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"id":           result.ID,
		"status":       result.Status,
		"published_at": result.PublishedAt,
	})
}
