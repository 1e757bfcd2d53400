package content

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"
	"gorm.io/gorm"

	"github.com/orbitreach/core/internal/config"
	"github.com/orbitreach/core/internal/middleware"
	"github.com/orbitreach/core/internal/models"
	"github.com/orbitreach/core/internal/modules/campaign"
	"github.com/orbitreach/core/internal/modules/notify"
	"github.com/orbitreach/core/internal/pkg/apperrors"
	"github.com/orbitreach/core/internal/pkg/genai"
	"github.com/orbitreach/core/internal/pkg/response"
)

type AddVersionDTO struct {
	StrategyVersion   int                          `json:"strategy_version" binding:"required"`
	Mode              models.ContentGenerationMode `json:"mode"`
	TextAssets        []string                     `json:"text_assets"`
	ImageAssets       []string                     `json:"image_assets"`
	VideoAssets       []string                     `json:"video_assets"`
	AIModel           string                       `json:"ai_model"`
	RequiredApprovals int                          `json:"required_approvals"`
}

type GenerateDTO struct {
	ProviderID        string `json:"provider_id"`
	Topic             string `json:"topic"`
	RequiredApprovals int    `json:"required_approvals"`
}

type Service struct {
	store    *campaign.Store
	cfg      *config.AppConfig
	md       goldmark.Markdown
	notifier *notify.Service
}

func NewService(store *campaign.Store, cfg *config.AppConfig) *Service {
	return &Service{store: store, cfg: cfg, md: goldmark.New()}
}

// SetNotifier wires up webhook event dispatch (optional).
func (s *Service) SetNotifier(n *notify.Service) { s.notifier = n }

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// AddVersion appends content version N+1. The referenced strategy version
// must exist; a fresh pending content approval is opened for the new
// version, pinned to that strategy version.
func (s *Service) AddVersion(tenantID, campaignID, actor string, dto *AddVersionDTO) (*models.ContentVersion, error) {
	mode := dto.Mode
	if mode == "" {
		mode = models.ContentModeManual
	}
	if !models.ValidContentGenerationMode(mode) {
		return nil, apperrors.NewValidation("invalid content mode %q", mode)
	}
	required := dto.RequiredApprovals
	if required < 1 {
		required = 1
	}

	var created models.ContentVersion
	_, err := s.store.Mutate(tenantID, campaignID, "content.add_version", actor, func(tx *gorm.DB, c *models.CampaignModel) (map[string]interface{}, error) {
		if c.FindStrategyVersion(dto.StrategyVersion) == nil {
			return nil, apperrors.NewValidation("strategy version %d does not exist", dto.StrategyVersion)
		}

		version := len(c.ContentVersions) + 1
		cv := models.ContentVersion{
			Version:         version,
			CreatedAt:       time.Now(),
			CreatedBy:       actor,
			Mode:            mode,
			TextAssets:      emptyIfNil(dto.TextAssets),
			ImageAssets:     emptyIfNil(dto.ImageAssets),
			VideoAssets:     emptyIfNil(dto.VideoAssets),
			AIModel:         dto.AIModel,
			StrategyVersion: dto.StrategyVersion,
		}
		c.ContentVersions = append(c.ContentVersions, cv)

		approval := models.ApprovalModel{
			TenantID:          tenantID,
			CampaignID:        c.ID,
			Type:              models.ApprovalTypeContent,
			Version:           version,
			Status:            models.ApprovalStatusPending,
			RequiredApprovals: required,
			Approvers:         []models.Approver{},
			Metadata:          models.ApprovalMetadata{StrategyVersion: dto.StrategyVersion},
		}
		if err := tx.Create(&approval).Error; err != nil {
			return nil, err
		}

		created = cv
		return map[string]interface{}{"contentVersion": version, "strategyVersion": dto.StrategyVersion}, nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.ContentVersionAdded(tenantID, campaignID, created.Version, created.StrategyVersion, actor)
	return &created, nil
}

// Generate drafts a content version through the configured AI provider.
// Provider failures degrade to deterministic fallback copy so campaign
// editing never hard-fails on a third-party outage.
func (s *Service) Generate(ctx context.Context, tenantID, campaignID, actor string, dto *GenerateDTO) (*models.ContentVersion, error) {
	c, err := s.store.Get(tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	sv := c.CurrentStrategyVersion()
	if sv == nil {
		return nil, apperrors.NewNotFoundf("strategy version", "no active version")
	}

	provider := s.cfg.ProviderByID(dto.ProviderID)
	if provider == nil {
		provider = s.cfg.FirstEnabledProvider()
	}

	text, aiModel := s.generateText(ctx, provider, sv, dto.Topic)

	return s.AddVersion(tenantID, campaignID, actor, &AddVersionDTO{
		StrategyVersion:   sv.Version,
		Mode:              models.ContentModeAI,
		TextAssets:        []string{text},
		AIModel:           aiModel,
		RequiredApprovals: dto.RequiredApprovals,
	})
}

func (s *Service) generateText(ctx context.Context, provider *config.AIProvider, sv *models.StrategyVersion, topic string) (string, string) {
	systemPrompt := "You are a marketing copywriter. Write one short social media post. Reply with the post text only."
	prompt := buildGenerationPrompt(sv, topic)

	if provider != nil {
		if text, err := genai.Generate(ctx, provider, systemPrompt, prompt); err == nil {
			if trimmed := strings.TrimSpace(text); trimmed != "" {
				return trimmed, provider.DefaultModel
			}
		}
	}
	return fallbackText(sv, topic), ""
}

func buildGenerationPrompt(sv *models.StrategyVersion, topic string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Platforms: %s\n", strings.Join(sv.Platforms, ", "))
	if sv.TargetAudience != "" {
		fmt.Fprintf(&b, "Audience: %s\n", sv.TargetAudience)
	}
	if len(sv.ContentPillars) > 0 {
		fmt.Fprintf(&b, "Content pillars: %s\n", strings.Join(sv.ContentPillars, ", "))
	}
	if sv.BrandTone != "" {
		fmt.Fprintf(&b, "Brand tone: %s\n", sv.BrandTone)
	}
	if sv.Constraints != "" {
		fmt.Fprintf(&b, "Constraints: %s\n", sv.Constraints)
	}
	if topic != "" {
		fmt.Fprintf(&b, "Topic: %s\n", topic)
	}
	return b.String()
}

// fallbackText produces deterministic placeholder copy from the strategy.
func fallbackText(sv *models.StrategyVersion, topic string) string {
	platform := "social media"
	if len(sv.Platforms) > 0 {
		platform = sv.Platforms[0]
	}
	subject := topic
	if subject == "" && len(sv.ContentPillars) > 0 {
		subject = sv.ContentPillars[0]
	}
	if subject == "" {
		subject = "our latest update"
	}
	if sv.TargetAudience != "" {
		return fmt.Sprintf("Draft %s post about %s for %s.", platform, subject, sv.TargetAudience)
	}
	return fmt.Sprintf("Draft %s post about %s.", platform, subject)
}

func (s *Service) List(tenantID, campaignID string) ([]models.ContentVersion, error) {
	c, err := s.store.Get(tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if c.ContentVersions == nil {
		return []models.ContentVersion{}, nil
	}
	return c.ContentVersions, nil
}

// Latest returns the highest-numbered non-invalidated content version.
func (s *Service) Latest(tenantID, campaignID string) (*models.ContentVersion, error) {
	c, err := s.store.Get(tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	cv := c.CurrentContentVersion()
	if cv == nil {
		return nil, apperrors.NewNotFoundf("content version", "no active version")
	}
	return cv, nil
}

// Preview renders the text assets of a content version as HTML.
func (s *Service) Preview(tenantID, campaignID string, version int) (string, error) {
	c, err := s.store.Get(tenantID, campaignID)
	if err != nil {
		return "", err
	}
	cv := c.FindContentVersion(version)
	if cv == nil {
		return "", apperrors.NewNotFoundf("content version", "version %d", version)
	}

	var buf bytes.Buffer
	source := strings.Join(cv.TextAssets, "\n\n---\n\n")
	if err := s.md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/campaigns/:id", authMW)
	g.POST("/content-version", h.addVersion)
	g.GET("/content-versions", h.list)
	g.GET("/content-version/latest", h.latest)
	g.GET("/content-version/:version/preview", h.preview)
	g.POST("/content/generate", h.generate)
}

func (h *Handler) addVersion(c *gin.Context) {
	var dto AddVersionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cv, err := h.svc.AddVersion(middleware.CurrentTenantID(c), c.Param("id"), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cv)
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
	cv, err := h.svc.Latest(middleware.CurrentTenantID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cv)
}

func (h *Handler) preview(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		response.BadRequest(c, "version must be a positive integer")
		return
	}
	html, err := h.svc.Preview(middleware.CurrentTenantID(c), c.Param("id"), version)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"html": html})
}

func (h *Handler) generate(c *gin.Context) {
	var dto GenerateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cv, err := h.svc.Generate(c.Request.Context(), middleware.CurrentTenantID(c), c.Param("id"), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cv)
}
