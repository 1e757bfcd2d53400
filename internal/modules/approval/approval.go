package approval

import (
	"errors"
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

type ApproveDTO struct {
	Type              models.ApprovalType `json:"type" binding:"required"`
	Version           int                 `json:"version" binding:"required"`
	Feedback          string              `json:"feedback"`
	RequiredApprovals int                 `json:"required_approvals"`
}

type RejectDTO struct {
	Type    models.ApprovalType `json:"type" binding:"required"`
	Version int                 `json:"version" binding:"required"`
	Reason  string              `json:"reason" binding:"required"`
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

// Approve records a user's sign-off. Idempotent per user: a repeat call
// updates feedback and timestamp without double-counting. The quorum
// count is always recomputed from the approver list, never incremented.
func (s *Service) Approve(tenantID, campaignID, userID string, dto *ApproveDTO) (*models.ApprovalModel, error) {
	if !models.ValidApprovalType(dto.Type) {
		return nil, apperrors.NewValidation("invalid approval type %q", dto.Type)
	}

	var result *models.ApprovalModel
	err := s.db.Transaction(func(tx *gorm.DB) error {
		a, err := s.ensureApproval(tx, tenantID, campaignID, dto.Type, dto.Version, dto.RequiredApprovals)
		if err != nil {
			return err
		}
		if a.Status == models.ApprovalStatusRejected {
			return apperrors.NewInvalidState("cannot approve a rejected approval")
		}

		now := time.Now()
		if existing := a.FindApprover(userID); existing != nil {
			existing.Approved = true
			existing.ApprovedAt = &now
			existing.Feedback = dto.Feedback
		} else {
			a.Approvers = append(a.Approvers, models.Approver{
				UserID:     userID,
				Approved:   true,
				ApprovedAt: &now,
				Feedback:   dto.Feedback,
			})
		}

		a.RecountApprovals()
		if a.CurrentApprovals >= a.RequiredApprovals {
			a.Status = models.ApprovalStatusApproved
		} else {
			a.Status = models.ApprovalStatusPending
		}

		if err := saveApproval(tx, a); err != nil {
			return err
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.ApprovalApproved(tenantID, campaignID, result, userID)
	return result, nil
}

// Reject sets the approval to rejected unconditionally. The rejector does
// not need to be an existing approver; rejected is terminal.
func (s *Service) Reject(tenantID, campaignID, userID string, dto *RejectDTO) (*models.ApprovalModel, error) {
	if !models.ValidApprovalType(dto.Type) {
		return nil, apperrors.NewValidation("invalid approval type %q", dto.Type)
	}

	var result *models.ApprovalModel
	err := s.db.Transaction(func(tx *gorm.DB) error {
		a, err := s.ensureApproval(tx, tenantID, campaignID, dto.Type, dto.Version, 0)
		if err != nil {
			return err
		}

		a.Status = models.ApprovalStatusRejected
		a.RejectionReason = dto.Reason
		if existing := a.FindApprover(userID); existing == nil {
			a.Approvers = append(a.Approvers, models.Approver{UserID: userID, Feedback: dto.Reason})
		}
		a.RecountApprovals()

		if err := saveApproval(tx, a); err != nil {
			return err
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.ApprovalRejected(tenantID, campaignID, result, userID)
	return result, nil
}

// IsFullyApproved reports whether (type, version) has reached quorum.
func (s *Service) IsFullyApproved(tenantID, campaignID string, typ models.ApprovalType, version int) (bool, error) {
	var a models.ApprovalModel
	err := s.db.Where("tenant_id = ? AND campaign_id = ? AND type = ? AND version = ?",
		tenantID, campaignID, typ, version).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return a.FullyApproved(), nil
}

// Status lists all approval records for the campaign, newest version first.
func (s *Service) Status(tenantID, campaignID string) ([]models.ApprovalModel, error) {
	if _, err := s.store.Get(tenantID, campaignID); err != nil {
		return nil, err
	}
	var rows []models.ApprovalModel
	err := s.db.Where("tenant_id = ? AND campaign_id = ?", tenantID, campaignID).
		Order("type ASC, version DESC").Find(&rows).Error
	return rows, err
}

// NeedsReview returns the approvals pushed back by a cascade together
// with the content versions flagged for review.
func (s *Service) NeedsReview(tenantID, campaignID string) ([]models.ApprovalModel, []models.ContentVersion, error) {
	c, err := s.store.Get(tenantID, campaignID)
	if err != nil {
		return nil, nil, err
	}

	var rows []models.ApprovalModel
	err = s.db.Where("tenant_id = ? AND campaign_id = ? AND status = ?",
		tenantID, campaignID, models.ApprovalStatusNeedsReview).
		Order("type ASC, version DESC").Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}

	versions := make([]models.ContentVersion, 0)
	for _, cv := range c.ContentVersions {
		if cv.NeedsReview {
			versions = append(versions, cv)
		}
	}
	return rows, versions, nil
}

// ensureApproval loads the (type, version) record, creating it pending on
// first sign-off. The version must reference real campaign state.
func (s *Service) ensureApproval(tx *gorm.DB, tenantID, campaignID string, typ models.ApprovalType, version, requiredApprovals int) (*models.ApprovalModel, error) {
	var a models.ApprovalModel
	err := tx.Where("tenant_id = ? AND campaign_id = ? AND type = ? AND version = ?",
		tenantID, campaignID, typ, version).First(&a).Error
	if err == nil {
		return &a, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var c models.CampaignModel
	if err := tx.Where("tenant_id = ? AND id = ?", tenantID, campaignID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundf("campaign", "%s", campaignID)
		}
		return nil, err
	}

	metadata := models.ApprovalMetadata{}
	switch typ {
	case models.ApprovalTypeStrategy:
		if version < 1 || version > len(c.StrategyVersions) {
			return nil, apperrors.NewValidation("strategy version %d does not exist", version)
		}
		metadata.StrategyVersion = version
	case models.ApprovalTypeContent:
		cv := c.FindContentVersion(version)
		if cv == nil {
			return nil, apperrors.NewValidation("content version %d does not exist", version)
		}
		metadata.StrategyVersion = cv.StrategyVersion
	case models.ApprovalTypeSchedule:
		if version < 1 || version != c.ScheduleGeneration {
			return nil, apperrors.NewValidation("schedule generation %d is not current", version)
		}
		if sv := c.CurrentStrategyVersion(); sv != nil {
			metadata.StrategyVersion = sv.Version
		}
	case models.ApprovalTypeAds:
		if version < 1 || version > len(c.StrategyVersions) {
			return nil, apperrors.NewValidation("strategy version %d does not exist", version)
		}
		metadata.StrategyVersion = version
	}

	if requiredApprovals < 1 {
		requiredApprovals = 1
	}
	a = models.ApprovalModel{
		TenantID:          tenantID,
		CampaignID:        campaignID,
		Type:              typ,
		Version:           version,
		Status:            models.ApprovalStatusPending,
		RequiredApprovals: requiredApprovals,
		Approvers:         []models.Approver{},
		Metadata:          metadata,
	}
	if err := tx.Create(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func saveApproval(tx *gorm.DB, a *models.ApprovalModel) error {
	return tx.Model(&models.ApprovalModel{}).
		Where("id = ?", a.ID).
		Select("status", "current_approvals", "approvers", "rejection_reason",
			"invalidated_at", "invalidated_by", "invalidation_reason").
		Updates(a).Error
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/campaigns/:id", authMW)
	g.POST("/approve", h.approve)
	g.POST("/reject", h.reject)
	g.GET("/approval-status", h.status)
	g.GET("/needs-review", h.needsReview)
}

func (h *Handler) approve(c *gin.Context) {
	var dto ApproveDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	a, err := h.svc.Approve(middleware.CurrentTenantID(c), c.Param("id"), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, a)
}

func (h *Handler) reject(c *gin.Context) {
	var dto RejectDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	a, err := h.svc.Reject(middleware.CurrentTenantID(c), c.Param("id"), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, a)
}

func (h *Handler) status(c *gin.Context) {
	rows, err := h.svc.Status(middleware.CurrentTenantID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"data": rows})
}

func (h *Handler) needsReview(c *gin.Context) {
	rows, versions, err := h.svc.NeedsReview(middleware.CurrentTenantID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"approvals":        rows,
		"content_versions": versions,
	})
}
