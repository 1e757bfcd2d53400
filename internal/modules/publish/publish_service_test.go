package publish

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/orbitreach/core/internal/database"
	"github.com/orbitreach/core/internal/models"
	"github.com/orbitreach/core/internal/modules/approval"
	"github.com/orbitreach/core/internal/modules/campaign"
	"github.com/orbitreach/core/internal/modules/content"
	"github.com/orbitreach/core/internal/modules/schedule"
	"github.com/orbitreach/core/internal/modules/strategy"
	"github.com/orbitreach/core/internal/pkg/apperrors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func approvedRow(typ models.ApprovalType, version int) models.ApprovalModel {
	return models.ApprovalModel{
		Type:              typ,
		Version:           version,
		Status:            models.ApprovalStatusApproved,
		RequiredApprovals: 1,
		CurrentApprovals:  1,
	}
}

func TestEvaluateBlockerOrdering(t *testing.T) {
	c := &models.CampaignModel{
		StrategyVersions: []models.StrategyVersion{{Version: 1}},
		ContentVersions:  []models.ContentVersion{{Version: 1, StrategyVersion: 1}},
	}

	verdict := Evaluate(c, nil)
	assert.False(t, verdict.CanPublish)
	assert.Equal(t, []string{
		"Strategy requires approval",
		"Content requires approval",
		"Schedule requires approval",
	}, verdict.Blockers)
}

func TestEvaluateAdsGateOnlyWhenEnabled(t *testing.T) {
	c := &models.CampaignModel{
		StrategyVersions:   []models.StrategyVersion{{Version: 1, AdsConfig: &models.AdsConfig{Enabled: true}}},
		ContentVersions:    []models.ContentVersion{{Version: 1, StrategyVersion: 1}},
		ScheduleGeneration: 1,
	}
	approvals := []models.ApprovalModel{
		approvedRow(models.ApprovalTypeStrategy, 1),
		approvedRow(models.ApprovalTypeContent, 1),
		approvedRow(models.ApprovalTypeSchedule, 1),
	}

	verdict := Evaluate(c, approvals)
	assert.False(t, verdict.CanPublish)
	assert.Equal(t, []string{"Ads requires approval"}, verdict.Blockers)

	approvals = append(approvals, approvedRow(models.ApprovalTypeAds, 1))
	verdict = Evaluate(c, approvals)
	assert.True(t, verdict.CanPublish)
	assert.Empty(t, verdict.Blockers)
}

func TestEvaluateChecksLatestVersionsOnly(t *testing.T) {
	// strategy moved to v2; the v1 approval no longer counts
	c := &models.CampaignModel{
		StrategyVersions:   []models.StrategyVersion{{Version: 1, Invalidated: true}, {Version: 2}},
		ContentVersions:    []models.ContentVersion{{Version: 1, StrategyVersion: 1}},
		ScheduleGeneration: 1,
	}
	approvals := []models.ApprovalModel{
		approvedRow(models.ApprovalTypeStrategy, 1),
		approvedRow(models.ApprovalTypeContent, 1),
		approvedRow(models.ApprovalTypeSchedule, 1),
	}

	verdict := Evaluate(c, approvals)
	assert.False(t, verdict.CanPublish)
	assert.Equal(t, []string{"Strategy requires approval"}, verdict.Blockers)
}

func TestPublishFullFlow(t *testing.T) {
	db := newTestDB(t)
	store := campaign.NewStore(db)
	campaignSvc := campaign.NewService(db, store)
	strategySvc := strategy.NewService(store)
	contentSvc := content.NewService(store, nil)
	scheduleSvc := schedule.NewService(store)
	approvalSvc := approval.NewService(db, store)
	publishSvc := NewService(db, store)

	c, err := campaignSvc.Create("acme", "owner", &campaign.CreateCampaignDTO{Name: "launch"})
	require.NoError(t, err)

	_, err = strategySvc.AddVersion("acme", c.ID, "owner", &strategy.AddVersionDTO{Platforms: []string{"instagram"}, Cadence: "daily"})
	require.NoError(t, err)
	_, err = contentSvc.AddVersion("acme", c.ID, "owner", &content.AddVersionDTO{StrategyVersion: 1, TextAssets: []string{"post one"}})
	require.NoError(t, err)
	_, err = scheduleSvc.Generate("acme", c.ID, "owner", &schedule.GenerateDTO{})
	require.NoError(t, err)

	// gate is closed until every artifact is signed off
	verdict, err := publishSvc.CanPublish("acme", c.ID)
	require.NoError(t, err)
	assert.False(t, verdict.CanPublish)

	_, err = publishSvc.Publish("acme", c.ID, "owner")
	var invalid *apperrors.InvalidStateError
	require.ErrorAs(t, err, &invalid)

	for _, typ := range []models.ApprovalType{models.ApprovalTypeStrategy, models.ApprovalTypeContent, models.ApprovalTypeSchedule} {
		_, err = approvalSvc.Approve("acme", c.ID, "reviewer", &approval.ApproveDTO{Type: typ, Version: 1})
		require.NoError(t, err)
	}

	verdict, err = publishSvc.CanPublish("acme", c.ID)
	require.NoError(t, err)
	assert.True(t, verdict.CanPublish)
	assert.Empty(t, verdict.Blockers)

	published, err := publishSvc.Publish("acme", c.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)

	// gate approvals get stamped with the publish time
	var a models.ApprovalModel
	require.NoError(t, db.Where("campaign_id = ? AND type = ?", c.ID, models.ApprovalTypeStrategy).First(&a).Error)
	assert.NotNil(t, a.PublishedAt)

	var history []models.CampaignStatusHistoryModel
	require.NoError(t, db.Where("campaign_id = ?", c.ID).Order("created_at ASC").Find(&history).Error)
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	assert.Equal(t, models.CampaignStatusPublished, last.To)
}

func TestAddStrategyVersionReopensGate(t *testing.T) {
	db := newTestDB(t)
	store := campaign.NewStore(db)
	campaignSvc := campaign.NewService(db, store)
	strategySvc := strategy.NewService(store)
	contentSvc := content.NewService(store, nil)
	scheduleSvc := schedule.NewService(store)
	approvalSvc := approval.NewService(db, store)
	publishSvc := NewService(db, store)

	c, err := campaignSvc.Create("acme", "owner", &campaign.CreateCampaignDTO{Name: "relaunch"})
	require.NoError(t, err)
	_, err = strategySvc.AddVersion("acme", c.ID, "owner", &strategy.AddVersionDTO{Platforms: []string{"instagram"}, Cadence: "daily"})
	require.NoError(t, err)
	_, err = contentSvc.AddVersion("acme", c.ID, "owner", &content.AddVersionDTO{StrategyVersion: 1, TextAssets: []string{"post one"}})
	require.NoError(t, err)
	_, err = scheduleSvc.Generate("acme", c.ID, "owner", &schedule.GenerateDTO{})
	require.NoError(t, err)
	for _, typ := range []models.ApprovalType{models.ApprovalTypeStrategy, models.ApprovalTypeContent, models.ApprovalTypeSchedule} {
		_, err = approvalSvc.Approve("acme", c.ID, "reviewer", &approval.ApproveDTO{Type: typ, Version: 1})
		require.NoError(t, err)
	}

	verdict, err := publishSvc.CanPublish("acme", c.ID)
	require.NoError(t, err)
	require.True(t, verdict.CanPublish)

	// a new strategy version suspects everything downstream
	_, err = strategySvc.AddVersion("acme", c.ID, "owner", &strategy.AddVersionDTO{Platforms: []string{"tiktok"}})
	require.NoError(t, err)

	verdict, err = publishSvc.CanPublish("acme", c.ID)
	require.NoError(t, err)
	assert.False(t, verdict.CanPublish)
	assert.Equal(t, []string{
		"Strategy requires approval",
		"Content requires approval",
		"Schedule requires approval",
	}, verdict.Blockers)

	var contentApproval models.ApprovalModel
	require.NoError(t, db.Where("campaign_id = ? AND type = ? AND version = ?",
		c.ID, models.ApprovalTypeContent, 1).First(&contentApproval).Error)
	assert.Equal(t, models.ApprovalStatusNeedsReview, contentApproval.Status)
	assert.Equal(t, 0, contentApproval.CurrentApprovals)

	var scheduleApproval models.ApprovalModel
	require.NoError(t, db.Where("campaign_id = ? AND type = ? AND version = ?",
		c.ID, models.ApprovalTypeSchedule, 1).First(&scheduleApproval).Error)
	assert.Equal(t, models.ApprovalStatusNeedsReview, scheduleApproval.Status)

	fresh, err := store.Get("acme", c.ID)
	require.NoError(t, err)
	require.Len(t, fresh.ContentVersions, 1)
	assert.True(t, fresh.ContentVersions[0].Invalidated)
	assert.Equal(t, models.CampaignStatusDraft, fresh.Status)
}

func TestInvalidatedStrategyCannotClearGate(t *testing.T) {
	db := newTestDB(t)
	store := campaign.NewStore(db)
	campaignSvc := campaign.NewService(db, store)
	strategySvc := strategy.NewService(store)
	contentSvc := content.NewService(store, nil)
	scheduleSvc := schedule.NewService(store)
	approvalSvc := approval.NewService(db, store)
	publishSvc := NewService(db, store)

	c, err := campaignSvc.Create("acme", "owner", &campaign.CreateCampaignDTO{Name: "sunset"})
	require.NoError(t, err)
	_, err = strategySvc.AddVersion("acme", c.ID, "owner", &strategy.AddVersionDTO{Platforms: []string{"instagram"}})
	require.NoError(t, err)
	_, err = contentSvc.AddVersion("acme", c.ID, "owner", &content.AddVersionDTO{StrategyVersion: 1, TextAssets: []string{"post one"}})
	require.NoError(t, err)
	_, err = scheduleSvc.Generate("acme", c.ID, "owner", &schedule.GenerateDTO{})
	require.NoError(t, err)
	for _, typ := range []models.ApprovalType{models.ApprovalTypeStrategy, models.ApprovalTypeContent, models.ApprovalTypeSchedule} {
		_, err = approvalSvc.Approve("acme", c.ID, "reviewer", &approval.ApproveDTO{Type: typ, Version: 1})
		require.NoError(t, err)
	}

	_, err = strategySvc.Invalidate("acme", c.ID, 1, "owner", "brand retired")
	require.NoError(t, err)

	// the invalidated version's own strategy approval is demoted
	var strategyApproval models.ApprovalModel
	require.NoError(t, db.Where("campaign_id = ? AND type = ? AND version = ?",
		c.ID, models.ApprovalTypeStrategy, 1).First(&strategyApproval).Error)
	assert.Equal(t, models.ApprovalStatusNeedsReview, strategyApproval.Status)

	verdict, err := publishSvc.CanPublish("acme", c.ID)
	require.NoError(t, err)
	assert.False(t, verdict.CanPublish)
	assert.Contains(t, verdict.Blockers, "Strategy requires approval")

	// re-approving the dead version does not reopen the gate: there is
	// no active strategy version left to check against
	_, err = approvalSvc.Approve("acme", c.ID, "reviewer", &approval.ApproveDTO{Type: models.ApprovalTypeStrategy, Version: 1})
	require.NoError(t, err)

	verdict, err = publishSvc.CanPublish("acme", c.ID)
	require.NoError(t, err)
	assert.False(t, verdict.CanPublish)
	assert.Contains(t, verdict.Blockers, "Strategy requires approval")

	_, err = publishSvc.Publish("acme", c.ID, "owner")
	var invalid *apperrors.InvalidStateError
	assert.ErrorAs(t, err, &invalid)
}

func TestDirectStatusUpdateToPublishedBlocked(t *testing.T) {
	db := newTestDB(t)
	store := campaign.NewStore(db)
	campaignSvc := campaign.NewService(db, store)

	c, err := campaignSvc.Create("acme", "owner", &campaign.CreateCampaignDTO{Name: "no shortcut"})
	require.NoError(t, err)

	_, err = campaignSvc.UpdateStatus("acme", c.ID, "owner", &campaign.UpdateStatusDTO{Status: models.CampaignStatusPublished})
	var invalid *apperrors.InvalidStateError
	assert.ErrorAs(t, err, &invalid)
}
