package asset

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

func seedCampaign(t *testing.T, db *gorm.DB) *models.CampaignModel {
	t.Helper()
	c, err := campaign.NewService(db, campaign.NewStore(db)).Create("acme", "owner", &campaign.CreateCampaignDTO{Name: "assets"})
	require.NoError(t, err)
	return c
}

func TestRegisterAndTagAndLink(t *testing.T) {
	db := newTestDB(t)
	store := campaign.NewStore(db)
	svc := NewService(store, nil)
	c := seedCampaign(t, db)

	_, err := strategy.NewService(store).AddVersion("acme", c.ID, "owner", &strategy.AddVersionDTO{Platforms: []string{"instagram"}})
	require.NoError(t, err)

	ref, err := svc.Register("acme", c.ID, "alice", &RegisterDTO{
		URL:  "https://cdn.example.com/hero.png",
		Type: models.AssetImage,
		Tags: []string{"hero"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"hero"}, ref.Tags)

	// duplicate registration is rejected
	_, err = svc.Register("acme", c.ID, "alice", &RegisterDTO{URL: "https://cdn.example.com/hero.png"})
	var validation *apperrors.ValidationError
	assert.ErrorAs(t, err, &validation)

	ref, err = svc.Link("acme", c.ID, "alice", &LinkDTO{URL: "https://cdn.example.com/hero.png", StrategyVersion: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ref.UsedInStrategyVersions)

	// linking to a version that does not exist fails
	_, err = svc.Link("acme", c.ID, "alice", &LinkDTO{URL: "https://cdn.example.com/hero.png", ContentVersion: 5})
	assert.ErrorAs(t, err, &validation)
}

func TestReplaceRewritesContentAndRevokesApprovals(t *testing.T) {
	db := newTestDB(t)
	store := campaign.NewStore(db)
	svc := NewService(store, nil)
	contentSvc := content.NewService(store, nil)
	approvalSvc := approval.NewService(db, store)
	c := seedCampaign(t, db)

	_, err := strategy.NewService(store).AddVersion("acme", c.ID, "owner", &strategy.AddVersionDTO{Platforms: []string{"instagram"}})
	require.NoError(t, err)

	oldURL := "https://cdn.example.com/v1/banner.png"
	newURL := "https://cdn.example.com/v2/banner.png"

	_, err = svc.Register("acme", c.ID, "alice", &RegisterDTO{URL: oldURL, Type: models.AssetImage, Tags: []string{"banner", "spring"}})
	require.NoError(t, err)

	_, err = contentSvc.AddVersion("acme", c.ID, "alice", &content.AddVersionDTO{
		StrategyVersion: 1,
		ImageAssets:     []string{oldURL},
	})
	require.NoError(t, err)
	_, err = svc.Link("acme", c.ID, "alice", &LinkDTO{URL: oldURL, ContentVersion: 1})
	require.NoError(t, err)

	_, err = approvalSvc.Approve("acme", c.ID, "bob", &approval.ApproveDTO{Type: models.ApprovalTypeContent, Version: 1})
	require.NoError(t, err)

	replacement, err := svc.Replace("acme", c.ID, "alice", &ReplaceDTO{OldURL: oldURL, NewURL: newURL})
	require.NoError(t, err)
	assert.Equal(t, []string{"banner", "spring"}, replacement.Tags)
	assert.Equal(t, []int{1}, replacement.UsedInContentVersions)

	fresh, err := store.Get("acme", c.ID)
	require.NoError(t, err)

	old := fresh.FindAssetRef(oldURL)
	require.NotNil(t, old)
	assert.Equal(t, newURL, old.ReplacedBy)

	require.Len(t, fresh.ContentVersions, 1)
	assert.Equal(t, []string{newURL}, fresh.ContentVersions[0].ImageAssets)

	// the approved content sign-off no longer stands
	var a models.ApprovalModel
	require.NoError(t, db.Where("campaign_id = ? AND type = ? AND version = ?",
		c.ID, models.ApprovalTypeContent, 1).First(&a).Error)
	assert.Equal(t, models.ApprovalStatusNeedsReview, a.Status)
	assert.Equal(t, 0, a.CurrentApprovals)
}

func TestReplaceChainIsForwardOnly(t *testing.T) {
	db := newTestDB(t)
	store := campaign.NewStore(db)
	svc := NewService(store, nil)
	c := seedCampaign(t, db)

	_, err := svc.Register("acme", c.ID, "alice", &RegisterDTO{URL: "a.png"})
	require.NoError(t, err)
	_, err = svc.Replace("acme", c.ID, "alice", &ReplaceDTO{OldURL: "a.png", NewURL: "b.png"})
	require.NoError(t, err)

	// a retired asset cannot be replaced again
	_, err = svc.Replace("acme", c.ID, "alice", &ReplaceDTO{OldURL: "a.png", NewURL: "c.png"})
	var invalid *apperrors.InvalidStateError
	assert.ErrorAs(t, err, &invalid)

	// and the new url must not collide with an existing asset
	_, err = svc.Replace("acme", c.ID, "alice", &ReplaceDTO{OldURL: "b.png", NewURL: "b.png"})
	var validation *apperrors.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestCleanupUnusedKeepsReplacedAssets(t *testing.T) {
	db := newTestDB(t)
	store := campaign.NewStore(db)
	svc := NewService(store, nil)
	c := seedCampaign(t, db)

	_, err := svc.Register("acme", c.ID, "alice", &RegisterDTO{URL: "orphan.png"})
	require.NoError(t, err)
	_, err = svc.Register("acme", c.ID, "alice", &RegisterDTO{URL: "old.png"})
	require.NoError(t, err)
	_, err = svc.Replace("acme", c.ID, "alice", &ReplaceDTO{OldURL: "old.png", NewURL: "new.png"})
	require.NoError(t, err)

	removed, err := svc.CleanupUnused("acme", c.ID, "alice")
	require.NoError(t, err)
	// orphan.png and new.png go; old.png stays for the audit trail
	assert.Equal(t, 2, removed)

	fresh, err := store.Get("acme", c.ID)
	require.NoError(t, err)
	require.Len(t, fresh.AssetRefs, 1)
	assert.Equal(t, "old.png", fresh.AssetRefs[0].URL)
}
