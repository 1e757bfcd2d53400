package notify

import (
	"github.com/orbitreach/core/internal/models"
	"github.com/orbitreach/core/internal/modules/webhook"
)

// Service fans campaign lifecycle events out to the tenant's webhooks.
// A nil Service is safe to call; every method becomes a no-op.
type Service struct {
	webhookSvc *webhook.Service
}

func New(webhookSvc *webhook.Service) *Service {
	return &Service{webhookSvc: webhookSvc}
}

func (s *Service) emit(tenantID, event string, payload interface{}) {
	if s == nil || s.webhookSvc == nil {
		return
	}
	s.webhookSvc.Dispatch(tenantID, event, payload)
}

func (s *Service) CampaignCreated(tenantID string, c *models.CampaignModel) {
	s.emit(tenantID, webhook.EventCampaignCreated, map[string]interface{}{
		"campaign_id": c.ID,
		"name":        c.Name,
	})
}

func (s *Service) CampaignStatusChanged(tenantID, campaignID string, from, to models.CampaignStatus, actor string) {
	s.emit(tenantID, webhook.EventCampaignStatusChanged, map[string]interface{}{
		"campaign_id": campaignID,
		"from":        from,
		"to":          to,
		"actor":       actor,
	})
}

func (s *Service) CampaignPublished(tenantID, campaignID, actor string) {
	s.emit(tenantID, webhook.EventCampaignPublished, map[string]interface{}{
		"campaign_id": campaignID,
		"actor":       actor,
	})
}

func (s *Service) StrategyVersionAdded(tenantID, campaignID string, version int, actor string) {
	s.emit(tenantID, webhook.EventStrategyVersionAdded, map[string]interface{}{
		"campaign_id": campaignID,
		"version":     version,
		"actor":       actor,
	})
}

func (s *Service) StrategyInvalidated(tenantID, campaignID string, version int, actor string) {
	s.emit(tenantID, webhook.EventStrategyInvalidated, map[string]interface{}{
		"campaign_id": campaignID,
		"version":     version,
		"actor":       actor,
	})
}

func (s *Service) ContentVersionAdded(tenantID, campaignID string, version, strategyVersion int, actor string) {
	s.emit(tenantID, webhook.EventContentVersionAdded, map[string]interface{}{
		"campaign_id":      campaignID,
		"version":          version,
		"strategy_version": strategyVersion,
		"actor":            actor,
	})
}

func (s *Service) ScheduleGenerated(tenantID, campaignID string, generation, slots int, actor string) {
	s.emit(tenantID, webhook.EventScheduleGenerated, map[string]interface{}{
		"campaign_id": campaignID,
		"generation":  generation,
		"slots":       slots,
		"actor":       actor,
	})
}

func (s *Service) AssetReplaced(tenantID, campaignID, oldURL, newURL, actor string) {
	s.emit(tenantID, webhook.EventAssetReplaced, map[string]interface{}{
		"campaign_id": campaignID,
		"old_url":     oldURL,
		"new_url":     newURL,
		"actor":       actor,
	})
}

func (s *Service) ApprovalApproved(tenantID, campaignID string, a *models.ApprovalModel, actor string) {
	s.emit(tenantID, webhook.EventApprovalApproved, map[string]interface{}{
		"campaign_id": campaignID,
		"type":        a.Type,
		"version":     a.Version,
		"status":      a.Status,
		"approvals":   a.CurrentApprovals,
		"actor":       actor,
	})
}

func (s *Service) ApprovalRejected(tenantID, campaignID string, a *models.ApprovalModel, actor string) {
	s.emit(tenantID, webhook.EventApprovalRejected, map[string]interface{}{
		"campaign_id": campaignID,
		"type":        a.Type,
		"version":     a.Version,
		"reason":      a.RejectionReason,
		"actor":       actor,
	})
}

func (s *Service) CascadeApplied(tenantID, campaignID string, strategyVersion int, actor string) {
	s.emit(tenantID, webhook.EventCascadeApplied, map[string]interface{}{
		"campaign_id":      campaignID,
		"strategy_version": strategyVersion,
		"actor":            actor,
	})
}
