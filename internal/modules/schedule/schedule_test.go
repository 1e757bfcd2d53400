package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitreach/core/internal/models"
)

func TestParseCadence(t *testing.T) {
	cases := []struct {
		cadence string
		want    int
	}{
		{"daily", 7},
		{"3x/week", 3},
		{"5x/week", 5},
		{"1x/week", 1},
		{"", 3},
		{"whenever", 3},
		{"0x/week", 3},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseCadence(tc.cadence), "cadence %q", tc.cadence)
	}
}

func TestDetectConflictsFlagsEveryMember(t *testing.T) {
	day := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	slots := []models.ScheduleSlot{
		{SlotID: "a", Platform: "instagram", Slot: day.Add(9 * time.Hour)},
		{SlotID: "b", Platform: "instagram", Slot: day.Add(15 * time.Hour)},
		{SlotID: "c", Platform: "tiktok", Slot: day.Add(9 * time.Hour)},
	}

	DetectConflicts(slots)

	assert.True(t, slots[0].Conflict)
	assert.True(t, slots[1].Conflict)
	assert.Equal(t, ConflictReason, slots[0].ConflictReason)
	assert.Equal(t, ConflictReason, slots[1].ConflictReason)
	assert.False(t, slots[2].Conflict)
	assert.Empty(t, slots[2].ConflictReason)
}

func TestDetectConflictsClearsStaleFlags(t *testing.T) {
	day := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	slots := []models.ScheduleSlot{
		{SlotID: "a", Platform: "instagram", Slot: day.Add(9 * time.Hour), Conflict: true, ConflictReason: ConflictReason},
		{SlotID: "b", Platform: "instagram", Slot: day.AddDate(0, 0, 1).Add(9 * time.Hour), Conflict: true, ConflictReason: ConflictReason},
	}

	DetectConflicts(slots)

	assert.False(t, slots[0].Conflict)
	assert.False(t, slots[1].Conflict)
	assert.Empty(t, slots[0].ConflictReason)
}

func TestGenerateSlotsDaily(t *testing.T) {
	sv := &models.StrategyVersion{
		Version:   1,
		Cadence:   "daily",
		Platforms: []string{"instagram", "tiktok"},
	}
	now := time.Date(2025, 1, 1, 10, 30, 0, 0, time.UTC)

	slots := GenerateSlots(sv, nil, now, "planner", now)

	require.Len(t, slots, 7*horizonWeeks)
	for _, slot := range slots {
		assert.True(t, slot.Regenerated)
		assert.Equal(t, "planner", slot.RegeneratedBy)
		assert.True(t, slot.Slot.After(now))
		assert.Contains(t, bestTimes, slot.Slot.UTC().Hour())
		assert.NotEmpty(t, slot.SlotID)
	}
	// Round-robin alternates platforms.
	assert.Equal(t, "instagram", slots[0].Platform)
	assert.Equal(t, "tiktok", slots[1].Platform)
}

func TestGenerateSlotsPreservesLocked(t *testing.T) {
	sv := &models.StrategyVersion{Version: 1, Cadence: "2x/week", Platforms: []string{"linkedin"}}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pinned := time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)
	current := []models.ScheduleSlot{
		{SlotID: "keep", Platform: "linkedin", Slot: pinned, Locked: true, ContentVersion: 2},
		{SlotID: "drop", Platform: "linkedin", Slot: now.Add(24 * time.Hour)},
	}

	slots := GenerateSlots(sv, current, now, "planner", now)

	require.Len(t, slots, 1+2*horizonWeeks)
	assert.Equal(t, "keep", slots[0].SlotID)
	assert.Equal(t, pinned, slots[0].Slot)
	assert.Equal(t, 2, slots[0].ContentVersion)
	assert.True(t, slots[0].Locked)
	for _, slot := range slots[1:] {
		assert.NotEqual(t, "drop", slot.SlotID)
	}
}

func TestGenerateSlotsSpreadsAcrossWeek(t *testing.T) {
	sv := &models.StrategyVersion{Version: 1, Cadence: "7x/week", Platforms: []string{"x"}}
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	slots := GenerateSlots(sv, nil, now, "planner", now)

	days := map[string]bool{}
	for _, slot := range slots[:7] {
		days[slot.Slot.UTC().Format("2006-01-02")] = true
	}
	assert.Len(t, days, 7)
}
