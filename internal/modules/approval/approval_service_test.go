package approval

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/orbitreach/core/internal/database"
	"github.com/orbitreach/core/internal/models"
	"github.com/orbitreach/core/internal/modules/campaign"
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

func seedWithStrategy(t *testing.T, db *gorm.DB, required int) *models.CampaignModel {
	t.Helper()
	store := campaign.NewStore(db)
	c, err := campaign.NewService(db, store).Create("acme", "owner", &campaign.CreateCampaignDTO{Name: "quorum test"})
	require.NoError(t, err)
	_, err = strategy.NewService(store).AddVersion("acme", c.ID, "owner", &strategy.AddVersionDTO{
		Platforms:         []string{"instagram"},
		RequiredApprovals: required,
	})
	require.NoError(t, err)
	return c
}

func TestApproveReachesQuorum(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, campaign.NewStore(db))
	c := seedWithStrategy(t, db, 2)

	a, err := svc.Approve("acme", c.ID, "alice", &ApproveDTO{Type: models.ApprovalTypeStrategy, Version: 1})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusPending, a.Status)
	assert.Equal(t, 1, a.CurrentApprovals)

	a, err = svc.Approve("acme", c.ID, "bob", &ApproveDTO{Type: models.ApprovalTypeStrategy, Version: 1})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, a.Status)
	assert.Equal(t, 2, a.CurrentApprovals)
	assert.True(t, a.FullyApproved())
}

func TestApproveIsIdempotentPerUser(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, campaign.NewStore(db))
	c := seedWithStrategy(t, db, 2)

	_, err := svc.Approve("acme", c.ID, "alice", &ApproveDTO{Type: models.ApprovalTypeStrategy, Version: 1})
	require.NoError(t, err)
	a, err := svc.Approve("acme", c.ID, "alice", &ApproveDTO{Type: models.ApprovalTypeStrategy, Version: 1, Feedback: "still good"})
	require.NoError(t, err)

	assert.Equal(t, 1, a.CurrentApprovals)
	assert.Equal(t, models.ApprovalStatusPending, a.Status)
	require.Len(t, a.Approvers, 1)
	assert.Equal(t, "still good", a.Approvers[0].Feedback)
}

func TestRejectIsTerminal(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, campaign.NewStore(db))
	c := seedWithStrategy(t, db, 1)

	a, err := svc.Reject("acme", c.ID, "carol", &RejectDTO{Type: models.ApprovalTypeStrategy, Version: 1, Reason: "off brand"})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusRejected, a.Status)
	assert.Equal(t, "off brand", a.RejectionReason)
	assert.Equal(t, 0, a.CurrentApprovals)

	_, err = svc.Approve("acme", c.ID, "alice", &ApproveDTO{Type: models.ApprovalTypeStrategy, Version: 1})
	var invalid *apperrors.InvalidStateError
	assert.ErrorAs(t, err, &invalid)
}

func TestApproveUnknownVersionFails(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, campaign.NewStore(db))
	c := seedWithStrategy(t, db, 1)

	var validation *apperrors.ValidationError

	_, err := svc.Approve("acme", c.ID, "alice", &ApproveDTO{Type: models.ApprovalTypeStrategy, Version: 7})
	assert.ErrorAs(t, err, &validation)

	_, err = svc.Approve("acme", c.ID, "alice", &ApproveDTO{Type: models.ApprovalTypeContent, Version: 1})
	assert.ErrorAs(t, err, &validation)

	_, err = svc.Approve("acme", c.ID, "alice", &ApproveDTO{Type: "budget", Version: 1})
	assert.ErrorAs(t, err, &validation)
}

func TestIsFullyApproved(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, campaign.NewStore(db))
	c := seedWithStrategy(t, db, 1)

	ok, err := svc.IsFullyApproved("acme", c.ID, models.ApprovalTypeStrategy, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Approve("acme", c.ID, "alice", &ApproveDTO{Type: models.ApprovalTypeStrategy, Version: 1})
	require.NoError(t, err)

	ok, err = svc.IsFullyApproved("acme", c.ID, models.ApprovalTypeStrategy, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	// missing record is simply not approved
	ok, err = svc.IsFullyApproved("acme", c.ID, models.ApprovalTypeAds, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
