package campaign

import (
	"errors"

	"gorm.io/gorm"

	"github.com/orbitreach/core/internal/models"
	"github.com/orbitreach/core/internal/pkg/apperrors"
)

const mutateMaxAttempts = 3

var errStaleRevision = errors.New("stale campaign revision")

// MutateFunc mutates the loaded aggregate inside the transaction. It may
// write related rows (approvals, history) through tx. The returned detail
// map is recorded on the revision log entry.
type MutateFunc func(tx *gorm.DB, c *models.CampaignModel) (map[string]interface{}, error)

// Store owns campaign aggregate persistence. Every write goes through
// Mutate, which applies an optimistic revision check and retries on
// concurrent modification so no cascade step is ever half-applied.
type Store struct{ db *gorm.DB }

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) DB() *gorm.DB { return s.db }

// Get loads a campaign scoped to the tenant.
func (s *Store) Get(tenantID, id string) (*models.CampaignModel, error) {
	var c models.CampaignModel
	err := s.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundf("campaign", "%s", id)
		}
		return nil, err
	}
	return &c, nil
}

// Mutate runs fn against the campaign inside a transaction and saves the
// aggregate with a revision guard. A stale revision rolls the transaction
// back and retries from a fresh snapshot, up to mutateMaxAttempts times.
// Every successful mutation appends a revision log row.
func (s *Store) Mutate(tenantID, id, action, actor string, fn MutateFunc) (*models.CampaignModel, error) {
	for attempt := 0; attempt < mutateMaxAttempts; attempt++ {
		var saved *models.CampaignModel
		err := s.db.Transaction(func(tx *gorm.DB) error {
			var c models.CampaignModel
			if err := tx.Where("tenant_id = ? AND id = ?", tenantID, id).First(&c).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperrors.NewNotFoundf("campaign", "%s", id)
				}
				return err
			}

			loadedRevision := c.Revision
			detail, err := fn(tx, &c)
			if err != nil {
				return err
			}

			c.Revision = loadedRevision + 1
			res := tx.Model(&models.CampaignModel{}).
				Where("id = ? AND revision = ?", c.ID, loadedRevision).
				Select("name", "status", "revision", "strategy_versions", "content_versions",
					"schedule", "asset_refs", "schedule_generation", "published_at").
				Updates(&c)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errStaleRevision
			}

			entry := models.CampaignRevisionModel{
				TenantID:   tenantID,
				CampaignID: c.ID,
				Revision:   c.Revision,
				Action:     action,
				Actor:      actor,
				Detail:     detail,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}

			saved = &c
			return nil
		})
		if err == nil {
			return saved, nil
		}
		if errors.Is(err, errStaleRevision) {
			continue
		}
		return nil, err
	}
	return nil, apperrors.NewInvalidState("campaign is being modified concurrently, retry")
}

// AppendStatusHistory records a status transition inside the given
// transaction. Called from mutate funcs that change campaign status.
func AppendStatusHistory(tx *gorm.DB, tenantID, campaignID string, from, to models.CampaignStatus, actor, note string) error {
	return tx.Create(&models.CampaignStatusHistoryModel{
		TenantID:   tenantID,
		CampaignID: campaignID,
		From:       from,
		To:         to,
		Actor:      actor,
		Note:       note,
	}).Error
}
