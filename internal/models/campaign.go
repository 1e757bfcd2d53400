package models

import "time"

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusPublished CampaignStatus = "published"
	CampaignStatusArchived  CampaignStatus = "archived"
)

// ValidCampaignStatus reports whether s is a known lifecycle state.
func ValidCampaignStatus(s CampaignStatus) bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusActive, CampaignStatusCompleted,
		CampaignStatusPublished, CampaignStatusArchived:
		return true
	}
	return false
}

// CampaignModel is the tenant-owned aggregate root. Versioned artifacts,
// schedule slots, and asset references are embedded JSON array columns; the
// whole row is the unit of optimistic consistency via Revision.
type CampaignModel struct {
	Base
	TenantID string         `json:"tenant_id" gorm:"index:idx_campaigns_tenant;not null"`
	Name     string         `json:"name"      gorm:"not null"`
	Status   CampaignStatus `json:"status"    gorm:"default:draft"`

	// Revision increases by exactly 1 per mutating call. Saves are guarded
	// by WHERE revision = <loaded> so concurrent writers retry instead of
	// silently overwriting each other's array columns.
	Revision int `json:"revision" gorm:"default:0"`

	StrategyVersions []StrategyVersion `json:"strategy_versions" gorm:"type:longtext;serializer:json"`
	ContentVersions  []ContentVersion  `json:"content_versions"  gorm:"type:longtext;serializer:json"`
	Schedule         []ScheduleSlot    `json:"schedule"          gorm:"type:longtext;serializer:json"`
	AssetRefs        []AssetRef        `json:"asset_refs"        gorm:"type:longtext;serializer:json"`

	// ScheduleGeneration numbers schedule regenerations; schedule approvals
	// are keyed by it the way strategy/content approvals are keyed by their
	// artifact version numbers.
	ScheduleGeneration int `json:"schedule_generation" gorm:"default:0"`

	PublishedAt *time.Time `json:"published_at"`
	CreatedBy   string     `json:"created_by"`
}

func (CampaignModel) TableName() string { return "campaigns" }

// AdsConfig is the paid-ads configuration carried by a strategy version.
type AdsConfig struct {
	Enabled     bool    `json:"enabled"`
	DailyBudget float64 `json:"daily_budget,omitempty"`
	Objective   string  `json:"objective,omitempty"`
	Platforms   []string `json:"platforms,omitempty"`
}

// StrategyVersion is an immutable, monotonically numbered strategy snapshot.
// Only the invalidated* fields may change after creation.
type StrategyVersion struct {
	Version        int        `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	CreatedBy      string     `json:"created_by"`
	Platforms      []string   `json:"platforms"`
	Goals          []string   `json:"goals"`
	TargetAudience string     `json:"target_audience"`
	ContentPillars []string   `json:"content_pillars"`
	BrandTone      string     `json:"brand_tone"`
	Constraints    string     `json:"constraints,omitempty"`
	Cadence        string     `json:"cadence"`
	AdsConfig      *AdsConfig `json:"ads_config,omitempty"`
	Invalidated    bool       `json:"invalidated"`
	InvalidatedAt  *time.Time `json:"invalidated_at,omitempty"`
	InvalidatedBy  string     `json:"invalidated_by,omitempty"`
}

// ContentGenerationMode distinguishes how a content version was produced.
type ContentGenerationMode string

const (
	ContentModeAI     ContentGenerationMode = "ai"
	ContentModeManual ContentGenerationMode = "manual"
	ContentModeHybrid ContentGenerationMode = "hybrid"
)

// ValidContentGenerationMode reports whether m is a known mode.
func ValidContentGenerationMode(m ContentGenerationMode) bool {
	switch m {
	case ContentModeAI, ContentModeManual, ContentModeHybrid:
		return true
	}
	return false
}

// ContentVersion is an immutable content snapshot derived from a strategy
// version. StrategyVersion keeps the historical linkage even after the
// referenced strategy is invalidated.
type ContentVersion struct {
	Version         int                   `json:"version"`
	CreatedAt       time.Time             `json:"created_at"`
	CreatedBy       string                `json:"created_by"`
	Mode            ContentGenerationMode `json:"mode"`
	TextAssets      []string              `json:"text_assets"`
	ImageAssets     []string              `json:"image_assets"`
	VideoAssets     []string              `json:"video_assets"`
	AIModel         string                `json:"ai_model,omitempty"`
	StrategyVersion int                   `json:"strategy_version"`
	NeedsReview     bool                  `json:"needs_review"`
	Invalidated     bool                  `json:"invalidated"`
	InvalidatedAt   *time.Time            `json:"invalidated_at,omitempty"`
	InvalidatedBy   string                `json:"invalidated_by,omitempty"`
}

// ScheduleSlot is a planned posting time on a platform. SlotID makes single
// slots addressable over the API.
type ScheduleSlot struct {
	SlotID          string     `json:"slot_id"`
	Slot            time.Time  `json:"slot"`
	Platform        string     `json:"platform"`
	Locked          bool       `json:"locked"`
	ContentVersion  int        `json:"content_version"`
	Conflict        bool       `json:"conflict"`
	ConflictReason  string     `json:"conflict_reason,omitempty"`
	Regenerated     bool       `json:"regenerated"`
	RegeneratedAt   *time.Time `json:"regenerated_at,omitempty"`
	RegeneratedBy   string     `json:"regenerated_by,omitempty"`
}

// AssetType classifies an asset reference.
type AssetType string

const (
	AssetImage AssetType = "image"
	AssetVideo AssetType = "video"
	AssetText  AssetType = "text"
	AssetOther AssetType = "other"
)

// ValidAssetType reports whether t is a known asset type.
func ValidAssetType(t AssetType) bool {
	switch t {
	case AssetImage, AssetVideo, AssetText, AssetOther:
		return true
	}
	return false
}

// AssetRef tracks an uploaded or generated asset URL, its usage links into
// versions, and its replacement chain. Replaced assets are retired but never
// deleted.
type AssetRef struct {
	URL                    string    `json:"url"`
	Type                   AssetType `json:"type"`
	Tags                   []string  `json:"tags"`
	UploadedAt             time.Time `json:"uploaded_at"`
	UploadedBy             string    `json:"uploaded_by"`
	UsedInContentVersions  []int     `json:"used_in_content_versions"`
	UsedInStrategyVersions []int     `json:"used_in_strategy_versions"`
	ReplacedBy             string    `json:"replaced_by,omitempty"`
}

// Unused reports whether the asset has no usage links and no replacement.
func (a AssetRef) Unused() bool {
	return len(a.UsedInContentVersions) == 0 &&
		len(a.UsedInStrategyVersions) == 0 &&
		a.ReplacedBy == ""
}

// CurrentStrategyVersion returns the highest-numbered non-invalidated
// strategy version, or nil if every version is invalidated.
func (c *CampaignModel) CurrentStrategyVersion() *StrategyVersion {
	for i := len(c.StrategyVersions) - 1; i >= 0; i-- {
		if !c.StrategyVersions[i].Invalidated {
			return &c.StrategyVersions[i]
		}
	}
	return nil
}

// CurrentContentVersion returns the highest-numbered non-invalidated content
// version, or nil if every version is invalidated.
func (c *CampaignModel) CurrentContentVersion() *ContentVersion {
	for i := len(c.ContentVersions) - 1; i >= 0; i-- {
		if !c.ContentVersions[i].Invalidated {
			return &c.ContentVersions[i]
		}
	}
	return nil
}

// FindStrategyVersion returns the strategy version with the given number.
func (c *CampaignModel) FindStrategyVersion(version int) *StrategyVersion {
	for i := range c.StrategyVersions {
		if c.StrategyVersions[i].Version == version {
			return &c.StrategyVersions[i]
		}
	}
	return nil
}

// FindContentVersion returns the content version with the given number.
func (c *CampaignModel) FindContentVersion(version int) *ContentVersion {
	for i := range c.ContentVersions {
		if c.ContentVersions[i].Version == version {
			return &c.ContentVersions[i]
		}
	}
	return nil
}

// FindScheduleSlot returns the slot with the given id.
func (c *CampaignModel) FindScheduleSlot(slotID string) *ScheduleSlot {
	for i := range c.Schedule {
		if c.Schedule[i].SlotID == slotID {
			return &c.Schedule[i]
		}
	}
	return nil
}

// FindAssetRef returns the asset with the given URL.
func (c *CampaignModel) FindAssetRef(url string) *AssetRef {
	for i := range c.AssetRefs {
		if c.AssetRefs[i].URL == url {
			return &c.AssetRefs[i]
		}
	}
	return nil
}
