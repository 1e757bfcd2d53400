package webhook

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeWebhookEvents(t *testing.T) {
	assert.Equal(t, []string{}, normalizeWebhookEvents(nil))
	assert.Equal(t, []string{"all"}, normalizeWebhookEvents([]string{"approval.approved", "ALL"}))
	assert.Equal(t,
		[]string{EventApprovalApproved, EventCampaignPublished},
		normalizeWebhookEvents([]string{" Approval.Approved ", "approval.approved", "not.an.event", "campaign.published"}))
}

func TestWebhookContainsEvent(t *testing.T) {
	assert.True(t, webhookContainsEvent([]string{"all"}, EventCascadeApplied))
	assert.True(t, webhookContainsEvent([]string{EventApprovalRejected}, "Approval.Rejected"))
	assert.False(t, webhookContainsEvent([]string{EventApprovalRejected}, EventApprovalApproved))
}

func TestSignWithHash(t *testing.T) {
	sig := signWithHash(sha256.New, "secret", `{"ok":1}`)
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, signWithHash(sha256.New, "secret", `{"ok":1}`))
	assert.NotEqual(t, sig, signWithHash(sha256.New, "other", `{"ok":1}`))
}
