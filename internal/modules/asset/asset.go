package asset

import (
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orbitreach/core/internal/middleware"
	"github.com/orbitreach/core/internal/models"
	"github.com/orbitreach/core/internal/modules/campaign"
	"github.com/orbitreach/core/internal/modules/cascade"
	"github.com/orbitreach/core/internal/modules/notify"
	"github.com/orbitreach/core/internal/pkg/apperrors"
	"github.com/orbitreach/core/internal/pkg/blobstore"
	"github.com/orbitreach/core/internal/pkg/response"
)

const maxUploadBytes = 32 << 20

type RegisterDTO struct {
	URL  string           `json:"url" binding:"required"`
	Type models.AssetType `json:"type"`
	Tags []string         `json:"tags"`
}

type TagDTO struct {
	URL  string   `json:"url" binding:"required"`
	Tags []string `json:"tags" binding:"required,min=1"`
}

type LinkDTO struct {
	URL             string `json:"url" binding:"required"`
	ContentVersion  int    `json:"content_version"`
	StrategyVersion int    `json:"strategy_version"`
}

type ReplaceDTO struct {
	OldURL string `json:"old_url" binding:"required"`
	NewURL string `json:"new_url" binding:"required"`
}

type Service struct {
	store    *campaign.Store
	blobs    *blobstore.Store
	notifier *notify.Service
}

// SetNotifier wires up webhook event dispatch (optional).
func (s *Service) SetNotifier(n *notify.Service) { s.notifier = n }

// NewService builds the asset service. blobs may be nil when object storage
// is disabled; uploads then require registering external URLs instead.
func NewService(store *campaign.Store, blobs *blobstore.Store) *Service {
	return &Service{store: store, blobs: blobs}
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (s *Service) Register(tenantID, campaignID, actor string, dto *RegisterDTO) (*models.AssetRef, error) {
	assetType := dto.Type
	if assetType == "" {
		assetType = models.AssetOther
	}
	if !models.ValidAssetType(assetType) {
		return nil, apperrors.NewValidation("unknown asset type %q", assetType)
	}
	return s.appendAsset(tenantID, campaignID, actor, dto.URL, assetType, dto.Tags)
}

// Upload stores the file in the blob store under a per-campaign key and
// registers the resulting public URL.
func (s *Service) Upload(c *gin.Context, tenantID, campaignID, actor string, file *multipart.FileHeader, assetType models.AssetType, tags []string) (*models.AssetRef, error) {
	if s.blobs == nil {
		return nil, apperrors.NewValidation("object storage is not configured, register an external url instead")
	}
	if !models.ValidAssetType(assetType) {
		return nil, apperrors.NewValidation("unknown asset type %q", assetType)
	}
	if file.Size > maxUploadBytes {
		return nil, apperrors.NewValidation("file exceeds the %d byte upload limit", maxUploadBytes)
	}

	src, err := file.Open()
	if err != nil {
		return nil, apperrors.NewValidation("cannot read upload: %s", err.Error())
	}
	defer src.Close()
	payload, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	key := fmt.Sprintf("assets/%s/%s/%s%s", tenantID, campaignID, uuid.NewString(), strings.ToLower(path.Ext(file.Filename)))
	contentType := file.Header.Get("Content-Type")
	url, err := s.blobs.Upload(c.Request.Context(), key, payload, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload asset: %w", err)
	}

	return s.appendAsset(tenantID, campaignID, actor, url, assetType, tags)
}

func (s *Service) appendAsset(tenantID, campaignID, actor, url string, assetType models.AssetType, tags []string) (*models.AssetRef, error) {
	if tags == nil {
		tags = []string{}
	}
	var created models.AssetRef
	_, err := s.store.Mutate(tenantID, campaignID, "asset.add", actor, func(tx *gorm.DB, c *models.CampaignModel) (map[string]interface{}, error) {
		if c.FindAssetRef(url) != nil {
			return nil, apperrors.NewValidation("asset %s is already registered", url)
		}
		created = models.AssetRef{
			URL:                    url,
			Type:                   assetType,
			Tags:                   tags,
			UploadedAt:             time.Now(),
			UploadedBy:             actor,
			UsedInContentVersions:  []int{},
			UsedInStrategyVersions: []int{},
		}
		c.AssetRefs = append(c.AssetRefs, created)
		return map[string]interface{}{"url": url, "type": string(assetType)}, nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Service) List(tenantID, campaignID string) ([]models.AssetRef, error) {
	c, err := s.store.Get(tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if c.AssetRefs == nil {
		return []models.AssetRef{}, nil
	}
	return c.AssetRefs, nil
}

// Tag merges the given tags into the asset's tag set.
func (s *Service) Tag(tenantID, campaignID, actor string, dto *TagDTO) (*models.AssetRef, error) {
	var updated models.AssetRef
	_, err := s.store.Mutate(tenantID, campaignID, "asset.tag", actor, func(tx *gorm.DB, c *models.CampaignModel) (map[string]interface{}, error) {
		ref := c.FindAssetRef(dto.URL)
		if ref == nil {
			return nil, apperrors.NewNotFoundf("asset", "%s", dto.URL)
		}
		ref.Tags = mergeTags(ref.Tags, dto.Tags)
		updated = *ref
		return map[string]interface{}{"url": dto.URL, "tags": ref.Tags}, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Link records usage of an asset by a content or strategy version.
func (s *Service) Link(tenantID, campaignID, actor string, dto *LinkDTO) (*models.AssetRef, error) {
	if dto.ContentVersion == 0 && dto.StrategyVersion == 0 {
		return nil, apperrors.NewValidation("a content_version or strategy_version link target is required")
	}
	var updated models.AssetRef
	_, err := s.store.Mutate(tenantID, campaignID, "asset.link", actor, func(tx *gorm.DB, c *models.CampaignModel) (map[string]interface{}, error) {
		ref := c.FindAssetRef(dto.URL)
		if ref == nil {
			return nil, apperrors.NewNotFoundf("asset", "%s", dto.URL)
		}
		if dto.ContentVersion != 0 {
			if c.FindContentVersion(dto.ContentVersion) == nil {
				return nil, apperrors.NewValidation("content version %d does not exist", dto.ContentVersion)
			}
			ref.UsedInContentVersions = appendUnique(ref.UsedInContentVersions, dto.ContentVersion)
		}
		if dto.StrategyVersion != 0 {
			if c.FindStrategyVersion(dto.StrategyVersion) == nil {
				return nil, apperrors.NewValidation("strategy version %d does not exist", dto.StrategyVersion)
			}
			ref.UsedInStrategyVersions = appendUnique(ref.UsedInStrategyVersions, dto.StrategyVersion)
		}
		updated = *ref
		return map[string]interface{}{"url": dto.URL}, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Replace retires the old asset, registers the new URL with the old tags and
// usage links, and rewrites every occurrence of the old URL across all
// content versions. Content changed out of band still needs re-approval, so
// live content approvals drop to needs_review.
func (s *Service) Replace(tenantID, campaignID, actor string, dto *ReplaceDTO) (*models.AssetRef, error) {
	if dto.OldURL == dto.NewURL {
		return nil, apperrors.NewValidation("replacement url must differ from the original")
	}
	var created models.AssetRef
	_, err := s.store.Mutate(tenantID, campaignID, "asset.replace", actor, func(tx *gorm.DB, c *models.CampaignModel) (map[string]interface{}, error) {
		old := c.FindAssetRef(dto.OldURL)
		if old == nil {
			return nil, apperrors.NewNotFoundf("asset", "%s", dto.OldURL)
		}
		if old.ReplacedBy != "" {
			return nil, apperrors.NewInvalidState("asset %s is already replaced by %s", dto.OldURL, old.ReplacedBy)
		}
		if c.FindAssetRef(dto.NewURL) != nil {
			return nil, apperrors.NewValidation("asset %s is already registered", dto.NewURL)
		}

		now := time.Now()
		created = models.AssetRef{
			URL:                    dto.NewURL,
			Type:                   old.Type,
			Tags:                   append([]string{}, old.Tags...),
			UploadedAt:             now,
			UploadedBy:             actor,
			UsedInContentVersions:  append([]int{}, old.UsedInContentVersions...),
			UsedInStrategyVersions: append([]int{}, old.UsedInStrategyVersions...),
		}
		old.ReplacedBy = dto.NewURL
		c.AssetRefs = append(c.AssetRefs, created)

		rewritten := rewriteContentAssets(c, dto.OldURL, dto.NewURL)
		if rewritten > 0 {
			if err := reviewContentApprovals(tx, c, actor, now); err != nil {
				return nil, err
			}
		}

		return map[string]interface{}{
			"old":       dto.OldURL,
			"new":       dto.NewURL,
			"rewritten": rewritten,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.AssetReplaced(tenantID, campaignID, dto.OldURL, dto.NewURL, actor)
	return &created, nil
}

func (s *Service) ListUnused(tenantID, campaignID string) ([]models.AssetRef, error) {
	c, err := s.store.Get(tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	unused := []models.AssetRef{}
	for _, ref := range c.AssetRefs {
		if ref.Unused() {
			unused = append(unused, ref)
		}
	}
	return unused, nil
}

// CleanupUnused drops assets with no usage links. Replaced assets stay for
// the audit trail.
func (s *Service) CleanupUnused(tenantID, campaignID, actor string) (int, error) {
	removed := 0
	_, err := s.store.Mutate(tenantID, campaignID, "asset.cleanup_unused", actor, func(tx *gorm.DB, c *models.CampaignModel) (map[string]interface{}, error) {
		kept := make([]models.AssetRef, 0, len(c.AssetRefs))
		for _, ref := range c.AssetRefs {
			if !ref.Unused() {
				kept = append(kept, ref)
			}
		}
		removed = len(c.AssetRefs) - len(kept)
		c.AssetRefs = kept
		return map[string]interface{}{"removed": removed}, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// rewriteContentAssets substitutes old for new across every content
// version's asset arrays, historical versions included.
func rewriteContentAssets(c *models.CampaignModel, oldURL, newURL string) int {
	rewritten := 0
	for i := range c.ContentVersions {
		cv := &c.ContentVersions[i]
		rewritten += replaceAll(cv.TextAssets, oldURL, newURL)
		rewritten += replaceAll(cv.ImageAssets, oldURL, newURL)
		rewritten += replaceAll(cv.VideoAssets, oldURL, newURL)
	}
	return rewritten
}

func replaceAll(items []string, oldURL, newURL string) int {
	n := 0
	for i := range items {
		if strings.Contains(items[i], oldURL) {
			items[i] = strings.ReplaceAll(items[i], oldURL, newURL)
			n++
		}
	}
	return n
}

func reviewContentApprovals(tx *gorm.DB, c *models.CampaignModel, actor string, now time.Time) error {
	var approvals []models.ApprovalModel
	err := tx.Where("tenant_id = ? AND campaign_id = ? AND type = ? AND status IN ?",
		c.TenantID, c.ID, models.ApprovalTypeContent,
		[]models.ApprovalStatus{models.ApprovalStatusPending, models.ApprovalStatusApproved}).
		Find(&approvals).Error
	if err != nil {
		return err
	}
	for i := range approvals {
		cascade.MarkNeedsReview(&approvals[i], actor, "asset replaced in content", now)
		err = tx.Model(&models.ApprovalModel{}).
			Where("id = ?", approvals[i].ID).
			Select("status", "current_approvals", "approvers", "invalidated_at", "invalidated_by", "invalidation_reason").
			Updates(&approvals[i]).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func mergeTags(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	merged := append([]string{}, existing...)
	for _, tag := range existing {
		seen[tag] = true
	}
	for _, tag := range extra {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		merged = append(merged, tag)
	}
	return merged
}

func appendUnique(items []int, v int) []int {
	for _, item := range items {
		if item == v {
			return items
		}
	}
	return append(items, v)
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/campaigns/:id/assets", authMW)
	g.POST("", h.create)
	g.GET("", h.list)
	g.POST("/tag", h.tag)
	g.POST("/link", h.link)
	g.POST("/replace", h.replace)
	g.GET("/unused", h.listUnused)
	g.DELETE("/unused", h.cleanupUnused)
}

// create accepts either a multipart upload or a JSON body registering an
// external URL.
func (h *Handler) create(c *gin.Context) {
	tenantID := middleware.CurrentTenantID(c)
	actor := middleware.CurrentUserID(c)

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		file, err := c.FormFile("file")
		if err != nil {
			response.BadRequest(c, "file field is required")
			return
		}
		assetType := models.AssetType(c.PostForm("type"))
		if assetType == "" {
			assetType = models.AssetOther
		}
		tags := splitTags(c.PostForm("tags"))
		ref, err := h.svc.Upload(c, tenantID, c.Param("id"), actor, file, assetType, tags)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Created(c, ref)
		return
	}

	var dto RegisterDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ref, err := h.svc.Register(tenantID, c.Param("id"), actor, &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, ref)
}

func (h *Handler) list(c *gin.Context) {
	refs, err := h.svc.List(middleware.CurrentTenantID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"data": refs})
}

func (h *Handler) tag(c *gin.Context) {
	var dto TagDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ref, err := h.svc.Tag(middleware.CurrentTenantID(c), c.Param("id"), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ref)
}

func (h *Handler) link(c *gin.Context) {
	var dto LinkDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ref, err := h.svc.Link(middleware.CurrentTenantID(c), c.Param("id"), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ref)
}

func (h *Handler) replace(c *gin.Context) {
	var dto ReplaceDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ref, err := h.svc.Replace(middleware.CurrentTenantID(c), c.Param("id"), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ref)
}

func (h *Handler) listUnused(c *gin.Context) {
	refs, err := h.svc.ListUnused(middleware.CurrentTenantID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"data": refs})
}

func (h *Handler) cleanupUnused(c *gin.Context) {
	removed, err := h.svc.CleanupUnused(middleware.CurrentTenantID(c), c.Param("id"), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"removed": removed})
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}
