package models

// CampaignStatusHistoryModel is the append-only log of campaign status
// transitions. Kept in its own table so the aggregate row does not grow
// without bound.
type CampaignStatusHistoryModel struct {
	Base
	TenantID   string         `json:"tenant_id"   gorm:"index:idx_status_history_campaign;not null"`
	CampaignID string         `json:"campaign_id" gorm:"index:idx_status_history_campaign;not null"`
	From       CampaignStatus `json:"from"`
	To         CampaignStatus `json:"to"          gorm:"not null"`
	Actor      string         `json:"actor"`
	Note       string         `json:"note,omitempty"`
}

func (CampaignStatusHistoryModel) TableName() string { return "campaign_status_histories" }

// CampaignRevisionModel is the append-only log of structural mutations to a
// campaign aggregate. Revision numbers are dense and never renumbered.
type CampaignRevisionModel struct {
	Base
	TenantID   string                 `json:"tenant_id"   gorm:"index:idx_revisions_campaign;not null"`
	CampaignID string                 `json:"campaign_id" gorm:"index:idx_revisions_campaign;not null"`
	Revision   int                    `json:"revision"    gorm:"not null"`
	Action     string                 `json:"action"      gorm:"not null"`
	Actor      string                 `json:"actor"`
	Detail     map[string]interface{} `json:"detail" gorm:"type:longtext;serializer:json"`
}

func (CampaignRevisionModel) TableName() string { return "campaign_revisions" }
