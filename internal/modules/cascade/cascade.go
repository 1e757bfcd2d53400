// Package cascade implements the conservative invalidation cascade that
// runs whenever a strategy version is added or explicitly invalidated.
// Everything downstream of a strategy change (content, schedule, ads) is
// treated as suspect and pushed back to review.
package cascade

import (
	"time"

	"gorm.io/gorm"

	"github.com/orbitreach/core/internal/models"
)

// InvalidateContentVersions marks every non-invalidated content version
// as invalidated and needing review. Returns the number touched.
func InvalidateContentVersions(c *models.CampaignModel, actor string, now time.Time) int {
	touched := 0
	for i := range c.ContentVersions {
		cv := &c.ContentVersions[i]
		if cv.Invalidated {
			continue
		}
		cv.Invalidated = true
		cv.InvalidatedAt = &now
		cv.InvalidatedBy = actor
		cv.NeedsReview = true
		touched++
	}
	return touched
}

// ShouldInvalidateApproval reports whether an approval is in scope for
// the cascade triggered by changedVersion. A new strategy version puts
// every live downstream approval in scope. Selective cascades (explicit
// invalidation of one version) spare downstream approvals pinned to a
// different strategy version, and additionally demote the strategy
// approval of the invalidated version itself; an unset pin (zero) is
// always in scope.
func ShouldInvalidateApproval(a *models.ApprovalModel, changedVersion int, selective bool) bool {
	switch a.Status {
	case models.ApprovalStatusPending, models.ApprovalStatusApproved:
	default:
		return false
	}
	if a.Type == models.ApprovalTypeStrategy {
		return selective && a.Version == changedVersion
	}
	switch a.Type {
	case models.ApprovalTypeContent, models.ApprovalTypeSchedule, models.ApprovalTypeAds:
	default:
		return false
	}
	if !selective {
		return true
	}
	if a.Metadata.StrategyVersion == 0 {
		return true
	}
	return a.Metadata.StrategyVersion == changedVersion
}

// MarkNeedsReview transitions an approval to needs_review: all approver
// flags are cleared and the quorum count resets to zero.
func MarkNeedsReview(a *models.ApprovalModel, actor, reason string, now time.Time) {
	for i := range a.Approvers {
		a.Approvers[i].Approved = false
		a.Approvers[i].ApprovedAt = nil
	}
	a.Status = models.ApprovalStatusNeedsReview
	a.CurrentApprovals = 0
	a.InvalidatedAt = &now
	a.InvalidatedBy = actor
	a.InvalidationReason = reason
}

// Apply runs the full cascade for the given strategy version inside tx.
// The campaign aggregate is mutated in place; approval rows are updated
// through tx; a status history row is appended. The caller persists the
// aggregate (and the revision log entry) as part of the same transaction.
// A selective cascade is the explicit-invalidation flavor; adding a new
// version always demotes all live downstream approvals.
func Apply(tx *gorm.DB, c *models.CampaignModel, changedVersion int, actor, reason string, now time.Time, selective bool) error {
	InvalidateContentVersions(c, actor, now)

	var approvals []models.ApprovalModel
	err := tx.Where("tenant_id = ? AND campaign_id = ?", c.TenantID, c.ID).
		Find(&approvals).Error
	if err != nil {
		return err
	}
	for i := range approvals {
		a := &approvals[i]
		if !ShouldInvalidateApproval(a, changedVersion, selective) {
			continue
		}
		MarkNeedsReview(a, actor, reason, now)
		res := tx.Model(&models.ApprovalModel{}).
			Where("id = ?", a.ID).
			Select("status", "current_approvals", "approvers", "invalidated_at", "invalidated_by", "invalidation_reason").
			Updates(a)
		if res.Error != nil {
			return res.Error
		}
	}

	from := c.Status
	c.Status = models.CampaignStatusDraft
	return tx.Create(&models.CampaignStatusHistoryModel{
		TenantID:   c.TenantID,
		CampaignID: c.ID,
		From:       from,
		To:         models.CampaignStatusDraft,
		Actor:      actor,
		Note:       reason,
	}).Error
}
