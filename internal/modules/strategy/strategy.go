package strategy

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/orbitreach/core/internal/middleware"
	"github.com/orbitreach/core/internal/models"
	"github.com/orbitreach/core/internal/modules/campaign"
	"github.com/orbitreach/core/internal/modules/cascade"
	"github.com/orbitreach/core/internal/modules/notify"
	"github.com/orbitreach/core/internal/pkg/apperrors"
	"github.com/orbitreach/core/internal/pkg/response"
)

type AddVersionDTO struct {
	Platforms         []string          `json:"platforms" binding:"required,min=1"`
	Goals             []string          `json:"goals"`
	TargetAudience    string            `json:"target_audience"`
	ContentPillars    []string          `json:"content_pillars"`
	BrandTone         string            `json:"brand_tone"`
	Constraints       string            `json:"constraints"`
	Cadence           string            `json:"cadence"`
	AdsConfig         *models.AdsConfig `json:"ads_config"`
	RequiredApprovals int               `json:"required_approvals"`
}

type InvalidateDTO struct {
	Reason string `json:"reason" binding:"required"`
}

type Service struct {
	store    *campaign.Store
	notifier *notify.Service
}

func NewService(store *campaign.Store) *Service { return &Service{store: store} }

// SetNotifier wires up webhook event dispatch (optional).
func (s *Service) SetNotifier(n *notify.Service) { s.notifier = n }

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// AddVersion appends strategy version N+1 and runs the invalidation
// cascade in the same transaction. A fresh pending approval is opened for
// the new version.
func (s *Service) AddVersion(tenantID, campaignID, actor string, dto *AddVersionDTO) (*models.StrategyVersion, error) {
	required := dto.RequiredApprovals
	if required < 1 {
		required = 1
	}

	var created models.StrategyVersion
	_, err := s.store.Mutate(tenantID, campaignID, "strategy.add_version", actor, func(tx *gorm.DB, c *models.CampaignModel) (map[string]interface{}, error) {
		now := time.Now()
		version := len(c.StrategyVersions) + 1
		sv := models.StrategyVersion{
			Version:        version,
			CreatedAt:      now,
			CreatedBy:      actor,
			Platforms:      dto.Platforms,
			Goals:          dto.Goals,
			TargetAudience: dto.TargetAudience,
			ContentPillars: dto.ContentPillars,
			BrandTone:      dto.BrandTone,
			Constraints:    dto.Constraints,
			Cadence:        dto.Cadence,
			AdsConfig:      dto.AdsConfig,
		}
		c.StrategyVersions = append(c.StrategyVersions, sv)

		reason := fmt.Sprintf("strategy version %d added", version)
		if err := cascade.Apply(tx, c, version, actor, reason, now, false); err != nil {
			return nil, err
		}

		approval := models.ApprovalModel{
			TenantID:          tenantID,
			CampaignID:        c.ID,
			Type:              models.ApprovalTypeStrategy,
			Version:           version,
			Status:            models.ApprovalStatusPending,
			RequiredApprovals: required,
			Approvers:         []models.Approver{},
			Metadata:          models.ApprovalMetadata{StrategyVersion: version},
		}
		if err := tx.Create(&approval).Error; err != nil {
			return nil, err
		}

		created = sv
		return map[string]interface{}{"strategyVersion": version}, nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.StrategyVersionAdded(tenantID, campaignID, created.Version, actor)
	s.notifier.CascadeApplied(tenantID, campaignID, created.Version, actor)
	return &created, nil
}

func (s *Service) List(tenantID, campaignID string) ([]models.StrategyVersion, error) {
	c, err := s.store.Get(tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if c.StrategyVersions == nil {
		return []models.StrategyVersion{}, nil
	}
	return c.StrategyVersions, nil
}

// Latest returns the highest-numbered non-invalidated version. All
// versions invalidated is a NotFound, never a silent fallback.
func (s *Service) Latest(tenantID, campaignID string) (*models.StrategyVersion, error) {
	c, err := s.store.Get(tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	sv := c.CurrentStrategyVersion()
	if sv == nil {
		return nil, apperrors.NewNotFoundf("strategy version", "no active version")
	}
	return sv, nil
}

// Invalidate soft-invalidates an existing version and runs the cascade.
func (s *Service) Invalidate(tenantID, campaignID string, version int, actor, reason string) (*models.StrategyVersion, error) {
	var result models.StrategyVersion
	_, err := s.store.Mutate(tenantID, campaignID, "strategy.invalidate", actor, func(tx *gorm.DB, c *models.CampaignModel) (map[string]interface{}, error) {
		sv := c.FindStrategyVersion(version)
		if sv == nil {
			return nil, apperrors.NewNotFoundf("strategy version", "version %d", version)
		}
		if sv.Invalidated {
			return nil, apperrors.NewInvalidState("strategy version %d is already invalidated", version)
		}

		now := time.Now()
		sv.Invalidated = true
		sv.InvalidatedAt = &now
		sv.InvalidatedBy = actor

		note := fmt.Sprintf("strategy version %d invalidated: %s", version, reason)
		if err := cascade.Apply(tx, c, version, actor, note, now, true); err != nil {
			return nil, err
		}

		result = *sv
		return map[string]interface{}{"strategyVersion": version, "reason": reason}, nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.StrategyInvalidated(tenantID, campaignID, version, actor)
	s.notifier.CascadeApplied(tenantID, campaignID, version, actor)
	return &result, nil
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/campaigns/:id", authMW)
	g.POST("/strategy-version", h.addVersion)
	g.GET("/strategy-versions", h.list)
	g.GET("/strategy-version/latest", h.latest)
	g.POST("/strategy-version/:version/invalidate", h.invalidate)
}

func (h *Handler) addVersion(c *gin.Context) {
	var dto AddVersionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sv, err := h.svc.AddVersion(middleware.CurrentTenantID(c), c.Param("id"), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sv)
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.svc.List(middleware.CurrentTenantID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"data": items})
}

func (h *Handler) latest(c *gin.Context) {
	sv, err := h.svc.Latest(middleware.CurrentTenantID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sv)
}

func (h *Handler) invalidate(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		response.BadRequest(c, "version must be a positive integer")
		return
	}
	var dto InvalidateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sv, err := h.svc.Invalidate(middleware.CurrentTenantID(c), c.Param("id"), version, middleware.CurrentUserID(c), dto.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sv)
}
