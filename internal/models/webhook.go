package models

import "time"

// WebhookModel defines a tenant-scoped outbound webhook endpoint.
type WebhookModel struct {
	Base
	TenantID   string   `json:"tenant_id"   gorm:"index;not null"`
	PayloadURL string   `json:"payload_url" gorm:"not null"`
	Events     []string `json:"events"      gorm:"serializer:json"`
	Enabled    bool     `json:"enabled"     gorm:"default:true"`
	Secret     string   `json:"-"           gorm:"not null"`
}

func (WebhookModel) TableName() string { return "webhooks" }

// WebhookEventModel is the audit trail of webhook deliveries.
type WebhookEventModel struct {
	Base
	HookID    string    `json:"hook_id"   gorm:"index;not null"`
	Event     string    `json:"event"     gorm:"not null"`
	Headers   string    `json:"headers"   gorm:"type:longtext"`
	Payload   string    `json:"payload"   gorm:"type:longtext"`
	Response  string    `json:"response"  gorm:"type:longtext"`
	Success   bool      `json:"success"`
	Status    int       `json:"status"`
	Timestamp time.Time `json:"timestamp" gorm:"index"`
}

func (WebhookEventModel) TableName() string { return "webhook_events" }
