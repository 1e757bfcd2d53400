package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orbitreach/core/internal/models"
)

func TestRewriteContentAssetsAcrossAllVersions(t *testing.T) {
	c := &models.CampaignModel{
		ContentVersions: []models.ContentVersion{
			{
				Version:     1,
				TextAssets:  []string{"post about https://cdn.example/a.png today"},
				ImageAssets: []string{"https://cdn.example/a.png"},
			},
			{
				Version:     2,
				ImageAssets: []string{"https://cdn.example/a.png", "https://cdn.example/b.png"},
				VideoAssets: []string{"https://cdn.example/clip.mp4"},
			},
		},
	}

	n := rewriteContentAssets(c, "https://cdn.example/a.png", "https://cdn.example/a2.png")

	assert.Equal(t, 3, n)
	assert.Equal(t, "post about https://cdn.example/a2.png today", c.ContentVersions[0].TextAssets[0])
	assert.Equal(t, "https://cdn.example/a2.png", c.ContentVersions[0].ImageAssets[0])
	assert.Equal(t, "https://cdn.example/a2.png", c.ContentVersions[1].ImageAssets[0])
	assert.Equal(t, "https://cdn.example/b.png", c.ContentVersions[1].ImageAssets[1])
	assert.Equal(t, "https://cdn.example/clip.mp4", c.ContentVersions[1].VideoAssets[0])
}

func TestRewriteContentAssetsNoMatch(t *testing.T) {
	c := &models.CampaignModel{
		ContentVersions: []models.ContentVersion{
			{Version: 1, ImageAssets: []string{"https://cdn.example/b.png"}},
		},
	}
	assert.Zero(t, rewriteContentAssets(c, "https://cdn.example/a.png", "https://cdn.example/a2.png"))
}

func TestAssetUnused(t *testing.T) {
	assert.True(t, models.AssetRef{URL: "u"}.Unused())
	assert.False(t, models.AssetRef{URL: "u", UsedInContentVersions: []int{1}}.Unused())
	assert.False(t, models.AssetRef{URL: "u", UsedInStrategyVersions: []int{2}}.Unused())
	// Replaced assets are retired, not unused.
	assert.False(t, models.AssetRef{URL: "u", ReplacedBy: "v"}.Unused())
}

func TestMergeTags(t *testing.T) {
	merged := mergeTags([]string{"hero", "q1"}, []string{"q1", " launch ", "", "hero"})
	assert.Equal(t, []string{"hero", "q1", "launch"}, merged)
}

func TestAppendUnique(t *testing.T) {
	assert.Equal(t, []int{1, 2}, appendUnique([]int{1}, 2))
	assert.Equal(t, []int{1, 2}, appendUnique([]int{1, 2}, 2))
}

func TestSplitTags(t *testing.T) {
	assert.Nil(t, splitTags(""))
	assert.Equal(t, []string{"a", "b"}, splitTags("a, b,"))
}
