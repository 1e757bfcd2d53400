package models

import "time"

// ApprovalType is the artifact scope an approval record covers.
type ApprovalType string

const (
	ApprovalTypeStrategy ApprovalType = "strategy"
	ApprovalTypeContent  ApprovalType = "content"
	ApprovalTypeSchedule ApprovalType = "schedule"
	ApprovalTypeAds      ApprovalType = "ads"
)

// ApprovalTypes lists all scopes in gate evaluation order.
var ApprovalTypes = []ApprovalType{ApprovalTypeStrategy, ApprovalTypeContent, ApprovalTypeSchedule, ApprovalTypeAds}

// ValidApprovalType reports whether t is a known scope.
func ValidApprovalType(t ApprovalType) bool {
	switch t {
	case ApprovalTypeStrategy, ApprovalTypeContent, ApprovalTypeSchedule, ApprovalTypeAds:
		return true
	}
	return false
}

// ApprovalStatus is the quorum state of an approval record.
type ApprovalStatus string

const (
	ApprovalStatusPending     ApprovalStatus = "pending"
	ApprovalStatusApproved    ApprovalStatus = "approved"
	ApprovalStatusRejected    ApprovalStatus = "rejected"
	ApprovalStatusNeedsReview ApprovalStatus = "needs_review"
)

// Approver is a single sign-off entry inside an approval record.
type Approver struct {
	UserID     string     `json:"user_id"`
	Approved   bool       `json:"approved"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	Feedback   string     `json:"feedback,omitempty"`
}

// ApprovalMetadata carries contextual linkage for cascade selectivity. A zero
// StrategyVersion means "unset" and is treated as cascade-eligible.
type ApprovalMetadata struct {
	StrategyVersion int `json:"strategy_version,omitempty"`
}

// ApprovalModel is one quorum-approval record, keyed by
// (tenant, campaign, type, version). CurrentApprovals is always recomputed
// from Approvers, never incremented in place.
type ApprovalModel struct {
	Base
	TenantID   string       `json:"tenant_id"   gorm:"uniqueIndex:idx_approvals_scope;not null"`
	CampaignID string       `json:"campaign_id" gorm:"uniqueIndex:idx_approvals_scope;not null"`
	Type       ApprovalType `json:"type"        gorm:"uniqueIndex:idx_approvals_scope;not null"`
	Version    int          `json:"version"     gorm:"uniqueIndex:idx_approvals_scope;not null"`

	Status            ApprovalStatus   `json:"status" gorm:"default:pending"`
	RequiredApprovals int              `json:"required_approvals" gorm:"default:1"`
	CurrentApprovals  int              `json:"current_approvals"  gorm:"default:0"`
	Approvers         []Approver       `json:"approvers" gorm:"type:longtext;serializer:json"`
	RejectionReason   string           `json:"rejection_reason,omitempty"`
	InvalidatedAt     *time.Time       `json:"invalidated_at,omitempty"`
	InvalidatedBy     string           `json:"invalidated_by,omitempty"`
	InvalidationReason string          `json:"invalidation_reason,omitempty"`
	PublishedAt       *time.Time       `json:"published_at,omitempty"`
	Metadata          ApprovalMetadata `json:"metadata" gorm:"serializer:json"`
}

func (ApprovalModel) TableName() string { return "approvals" }

// RecountApprovals recomputes CurrentApprovals from the approver list.
func (a *ApprovalModel) RecountApprovals() {
	count := 0
	for _, approver := range a.Approvers {
		if approver.Approved {
			count++
		}
	}
	a.CurrentApprovals = count
}

// FullyApproved reports whether quorum is reached and recorded.
func (a *ApprovalModel) FullyApproved() bool {
	return a.Status == ApprovalStatusApproved && a.CurrentApprovals >= a.RequiredApprovals
}

// FindApprover returns the approver entry for a user.
func (a *ApprovalModel) FindApprover(userID string) *Approver {
	for i := range a.Approvers {
		if a.Approvers[i].UserID == userID {
			return &a.Approvers[i]
		}
	}
	return nil
}
