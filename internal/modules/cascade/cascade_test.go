package cascade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/orbitreach/core/internal/models"
)

func TestInvalidateContentVersions(t *testing.T) {
	now := time.Now()
	already := now.Add(-time.Hour)
	c := &models.CampaignModel{
		ContentVersions: []models.ContentVersion{
			{Version: 1, Invalidated: true, InvalidatedAt: &already, InvalidatedBy: "earlier"},
			{Version: 2},
			{Version: 3},
		},
	}

	touched := InvalidateContentVersions(c, "user-1", now)
	assert.Equal(t, 2, touched)

	for _, cv := range c.ContentVersions {
		assert.True(t, cv.Invalidated)
	}
	assert.Equal(t, "earlier", c.ContentVersions[0].InvalidatedBy, "previously invalidated versions keep their stamp")
	assert.Equal(t, "user-1", c.ContentVersions[1].InvalidatedBy)
	assert.True(t, c.ContentVersions[2].NeedsReview)

	assert.Equal(t, 0, InvalidateContentVersions(c, "user-1", now), "second run is a no-op")
}

func TestShouldInvalidateApproval(t *testing.T) {
	cases := []struct {
		name      string
		approval  models.ApprovalModel
		selective bool
		want      bool
	}{
		{
			"new version demotes pending content",
			models.ApprovalModel{Type: models.ApprovalTypeContent, Status: models.ApprovalStatusPending},
			false,
			true,
		},
		{
			"new version demotes approvals pinned to older versions",
			models.ApprovalModel{Type: models.ApprovalTypeSchedule, Status: models.ApprovalStatusApproved, Metadata: models.ApprovalMetadata{StrategyVersion: 1}},
			false,
			true,
		},
		{
			"selective demotes approvals pinned to the invalidated version",
			models.ApprovalModel{Type: models.ApprovalTypeSchedule, Status: models.ApprovalStatusApproved, Metadata: models.ApprovalMetadata{StrategyVersion: 2}},
			true,
			true,
		},
		{
			"selective spares approvals pinned to an unrelated version",
			models.ApprovalModel{Type: models.ApprovalTypeAds, Status: models.ApprovalStatusApproved, Metadata: models.ApprovalMetadata{StrategyVersion: 1}},
			true,
			false,
		},
		{
			"selective demotes unpinned approvals",
			models.ApprovalModel{Type: models.ApprovalTypeContent, Status: models.ApprovalStatusApproved},
			true,
			true,
		},
		{
			"rejected content is terminal",
			models.ApprovalModel{Type: models.ApprovalTypeContent, Status: models.ApprovalStatusRejected},
			false,
			false,
		},
		{
			"already needs_review",
			models.ApprovalModel{Type: models.ApprovalTypeContent, Status: models.ApprovalStatusNeedsReview},
			false,
			false,
		},
		{
			"new version leaves old strategy approvals alone",
			models.ApprovalModel{Type: models.ApprovalTypeStrategy, Version: 1, Status: models.ApprovalStatusApproved},
			false,
			false,
		},
		{
			"selective demotes the invalidated version's strategy approval",
			models.ApprovalModel{Type: models.ApprovalTypeStrategy, Version: 2, Status: models.ApprovalStatusApproved},
			true,
			true,
		},
		{
			"selective spares other strategy approvals",
			models.ApprovalModel{Type: models.ApprovalTypeStrategy, Version: 1, Status: models.ApprovalStatusApproved},
			true,
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldInvalidateApproval(&tc.approval, 2, tc.selective))
		})
	}
}

func TestMarkNeedsReview(t *testing.T) {
	now := time.Now()
	approvedAt := now.Add(-time.Minute)
	a := &models.ApprovalModel{
		Type:              models.ApprovalTypeContent,
		Status:            models.ApprovalStatusApproved,
		RequiredApprovals: 2,
		CurrentApprovals:  2,
		Approvers: []models.Approver{
			{UserID: "u1", Approved: true, ApprovedAt: &approvedAt},
			{UserID: "u2", Approved: true, ApprovedAt: &approvedAt, Feedback: "ship it"},
		},
	}

	MarkNeedsReview(a, "u3", "strategy version 2 added", now)

	assert.Equal(t, models.ApprovalStatusNeedsReview, a.Status)
	assert.Equal(t, 0, a.CurrentApprovals)
	for _, ap := range a.Approvers {
		assert.False(t, ap.Approved)
		assert.Nil(t, ap.ApprovedAt)
	}
	assert.Equal(t, "ship it", a.Approvers[1].Feedback, "feedback is retained for the audit trail")
	assert.Equal(t, "u3", a.InvalidatedBy)
	assert.Equal(t, "strategy version 2 added", a.InvalidationReason)
}
