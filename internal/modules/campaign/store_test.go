package campaign

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/orbitreach/core/internal/database"
	"github.com/orbitreach/core/internal/models"
	"github.com/orbitreach/core/internal/pkg/apperrors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedCampaign(t *testing.T, db *gorm.DB, tenantID, name string) *models.CampaignModel {
	t.Helper()
	svc := NewService(db, NewStore(db))
	c, err := svc.Create(tenantID, "owner", &CreateCampaignDTO{Name: name})
	require.NoError(t, err)
	return c
}

func TestStoreMutateBumpsRevisionAndLogs(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	c := seedCampaign(t, db, "acme", "spring launch")
	assert.Equal(t, 1, c.Revision)

	updated, err := store.Mutate("acme", c.ID, "campaign.rename", "alice", func(tx *gorm.DB, m *models.CampaignModel) (map[string]interface{}, error) {
		m.Name = "spring launch v2"
		return map[string]interface{}{"name": m.Name}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Revision)
	assert.Equal(t, "spring launch v2", updated.Name)

	var entries []models.CampaignRevisionModel
	require.NoError(t, db.Where("campaign_id = ?", c.ID).Order("revision ASC").Find(&entries).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, "campaign.create", entries[0].Action)
	assert.Equal(t, "campaign.rename", entries[1].Action)
	assert.Equal(t, 2, entries[1].Revision)
	assert.Equal(t, "alice", entries[1].Actor)
}

func TestStoreMutateRollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	c := seedCampaign(t, db, "acme", "launch")

	_, err := store.Mutate("acme", c.ID, "campaign.rename", "alice", func(tx *gorm.DB, m *models.CampaignModel) (map[string]interface{}, error) {
		m.Name = "mutated"
		return nil, apperrors.NewValidation("nope")
	})
	require.Error(t, err)

	fresh, err := store.Get("acme", c.ID)
	require.NoError(t, err)
	assert.Equal(t, "launch", fresh.Name)
	assert.Equal(t, 1, fresh.Revision)
}

func TestStoreTenantIsolation(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	c := seedCampaign(t, db, "acme", "launch")

	_, err := store.Get("globex", c.ID)
	var notFound *apperrors.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	_, err = store.Mutate("globex", c.ID, "campaign.rename", "mallory", func(tx *gorm.DB, m *models.CampaignModel) (map[string]interface{}, error) {
		return nil, nil
	})
	assert.ErrorAs(t, err, &notFound)
}

func TestUpdateStatusTransitions(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, NewStore(db))
	c := seedCampaign(t, db, "acme", "launch")

	updated, err := svc.UpdateStatus("acme", c.ID, "alice", &UpdateStatusDTO{Status: models.CampaignStatusActive})
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusActive, updated.Status)

	// published is only reachable through the publish operation
	_, err = svc.UpdateStatus("acme", c.ID, "alice", &UpdateStatusDTO{Status: models.CampaignStatusPublished})
	var invalid *apperrors.InvalidStateError
	assert.ErrorAs(t, err, &invalid)

	// draft -> completed is not an allowed move
	_, err = svc.UpdateStatus("acme", c.ID, "alice", &UpdateStatusDTO{Status: models.CampaignStatusDraft})
	require.NoError(t, err)
	_, err = svc.UpdateStatus("acme", c.ID, "alice", &UpdateStatusDTO{Status: models.CampaignStatusCompleted})
	assert.ErrorAs(t, err, &invalid)

	history, err := svc.StatusHistory("acme", c.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.CampaignStatusDraft, history[0].From)
	assert.Equal(t, models.CampaignStatusActive, history[0].To)
}
