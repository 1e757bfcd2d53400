package tasks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orbitreach/core/internal/pkg/taskqueue"
)

func makeTask(t *testing.T, tenantID, groupKey string) *taskqueue.Task {
	t.Helper()
	raw, err := json.Marshal(generatePayload{TenantID: tenantID, CampaignID: groupKey})
	assert.NoError(t, err)
	return &taskqueue.Task{ID: "t-" + tenantID, Type: TaskTypeContentGenerate, Payload: raw, GroupKey: groupKey}
}

func TestBelongsToTenant(t *testing.T) {
	task := makeTask(t, "acme", "camp-1")
	assert.True(t, belongsToTenant(task, "acme"))
	assert.False(t, belongsToTenant(task, "globex"))
}

func TestBelongsToTenantBadPayload(t *testing.T) {
	task := &taskqueue.Task{Payload: json.RawMessage(`not json`)}
	assert.False(t, belongsToTenant(task, "acme"))
}

func TestFilterTenant(t *testing.T) {
	items := []*taskqueue.Task{
		makeTask(t, "acme", "camp-1"),
		makeTask(t, "globex", "camp-2"),
		makeTask(t, "acme", "camp-3"),
	}
	got := filterTenant(items, "acme")
	assert.Len(t, got, 2)
	for _, task := range got {
		assert.True(t, belongsToTenant(task, "acme"))
	}
}
