package strategy

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/orbitreach/core/internal/database"
	"github.com/orbitreach/core/internal/models"
	"github.com/orbitreach/core/internal/modules/campaign"
	"github.com/orbitreach/core/internal/modules/content"
	"github.com/orbitreach/core/internal/pkg/apperrors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedCampaign(t *testing.T, db *gorm.DB) *models.CampaignModel {
	t.Helper()
	svc := campaign.NewService(db, campaign.NewStore(db))
	c, err := svc.Create("acme", "owner", &campaign.CreateCampaignDTO{Name: "spring launch"})
	require.NoError(t, err)
	return c
}

func TestAddVersionNumbersAreDense(t *testing.T) {
	db := newTestDB(t)
	store := campaign.NewStore(db)
	svc := NewService(store)
	c := seedCampaign(t, db)

	v1, err := svc.AddVersion("acme", c.ID, "alice", &AddVersionDTO{Platforms: []string{"instagram"}, Cadence: "daily"})
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)

	v2, err := svc.AddVersion("acme", c.ID, "alice", &AddVersionDTO{Platforms: []string{"tiktok"}})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	// each version opens its own pending approval
	var approvals []models.ApprovalModel
	require.NoError(t, db.Where("campaign_id = ? AND type = ?", c.ID, models.ApprovalTypeStrategy).
		Order("version ASC").Find(&approvals).Error)
	require.Len(t, approvals, 2)
	assert.Equal(t, models.ApprovalStatusPending, approvals[0].Status)
	assert.Equal(t, 1, approvals[0].Metadata.StrategyVersion)
}

func TestLatestSkipsInvalidated(t *testing.T) {
	db := newTestDB(t)
	store := campaign.NewStore(db)
	svc := NewService(store)
	c := seedCampaign(t, db)

	_, err := svc.AddVersion("acme", c.ID, "alice", &AddVersionDTO{Platforms: []string{"instagram"}})
	require.NoError(t, err)
	_, err = svc.AddVersion("acme", c.ID, "alice", &AddVersionDTO{Platforms: []string{"tiktok"}})
	require.NoError(t, err)

	_, err = svc.Invalidate("acme", c.ID, 2, "bob", "audience shift")
	require.NoError(t, err)

	latest, err := svc.Latest("acme", c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Version)

	_, err = svc.Invalidate("acme", c.ID, 1, "bob", "full reset")
	require.NoError(t, err)

	_, err = svc.Latest("acme", c.ID)
	var notFound *apperrors.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestInvalidateIsNotRepeatable(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(campaign.NewStore(db))
	c := seedCampaign(t, db)

	_, err := svc.AddVersion("acme", c.ID, "alice", &AddVersionDTO{Platforms: []string{"instagram"}})
	require.NoError(t, err)
	_, err = svc.Invalidate("acme", c.ID, 1, "bob", "first")
	require.NoError(t, err)

	_, err = svc.Invalidate("acme", c.ID, 1, "bob", "second")
	var invalid *apperrors.InvalidStateError
	assert.ErrorAs(t, err, &invalid)
}

func TestInvalidateCascadesToContent(t *testing.T) {
	db := newTestDB(t)
	store := campaign.NewStore(db)
	svc := NewService(store)
	contentSvc := content.NewService(store, nil)
	c := seedCampaign(t, db)

	_, err := svc.AddVersion("acme", c.ID, "alice", &AddVersionDTO{Platforms: []string{"instagram"}})
	require.NoError(t, err)

	cv, err := contentSvc.AddVersion("acme", c.ID, "alice", &content.AddVersionDTO{
		StrategyVersion: 1,
		TextAssets:      []string{"hello world"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, cv.Version)

	// sign off the content approval so the cascade has something to revoke
	require.NoError(t, db.Model(&models.ApprovalModel{}).
		Where("campaign_id = ? AND type = ? AND version = ?", c.ID, models.ApprovalTypeContent, 1).
		Updates(map[string]interface{}{"status": string(models.ApprovalStatusApproved), "current_approvals": 1}).Error)

	_, err = svc.Invalidate("acme", c.ID, 1, "bob", "brand pivot")
	require.NoError(t, err)

	fresh, err := store.Get("acme", c.ID)
	require.NoError(t, err)
	require.Len(t, fresh.ContentVersions, 1)
	assert.True(t, fresh.ContentVersions[0].Invalidated)
	assert.True(t, fresh.ContentVersions[0].NeedsReview)
	assert.Equal(t, models.CampaignStatusDraft, fresh.Status)

	var a models.ApprovalModel
	require.NoError(t, db.Where("campaign_id = ? AND type = ? AND version = ?",
		c.ID, models.ApprovalTypeContent, 1).First(&a).Error)
	assert.Equal(t, models.ApprovalStatusNeedsReview, a.Status)
	assert.Equal(t, 0, a.CurrentApprovals)
	assert.Contains(t, a.InvalidationReason, "invalidated")
}
