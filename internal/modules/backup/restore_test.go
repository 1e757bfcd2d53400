package backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestParseBackupEntry(t *testing.T) {
	cases := []struct {
		name   string
		table  string
		format string
		ok     bool
	}{
		{"campaigns.json", "campaigns", "json", true},
		{"dump/approvals.bson", "approvals", "bson", true},
		{"campaigns.metadata.json", "", "", false},
		{"manifest.json", "", "", false},
		{"readme.txt", "", "", false},
	}
	for _, tc := range cases {
		table, format, ok := parseBackupEntry(tc.name)
		assert.Equal(t, tc.ok, ok, tc.name)
		assert.Equal(t, tc.table, table, tc.name)
		assert.Equal(t, tc.format, format, tc.name)
	}
}

func TestResolveRestoreTableName(t *testing.T) {
	assert.Equal(t, "campaigns", resolveRestoreTableName("campaigns"))
	assert.Equal(t, "campaign_revisions", resolveRestoreTableName("campaignrevisions"))
	assert.Equal(t, "campaign_status_histories", resolveRestoreTableName("statushistory"))
	assert.Empty(t, resolveRestoreTableName("users"))
}

func TestNormalizeRestoreColumnName(t *testing.T) {
	assert.Equal(t, "id", normalizeRestoreColumnName("_id"))
	assert.Equal(t, "", normalizeRestoreColumnName("__v"))
	assert.Equal(t, "strategy_versions", normalizeRestoreColumnName("strategyVersions"))
	assert.Equal(t, "tenant_id", normalizeRestoreColumnName("tenantId"))
}

func TestNormalizeRestoreRowFiltersUnknownColumns(t *testing.T) {
	columns := map[string]tableColumn{
		"id":         {DBType: "CHAR"},
		"name":       {DBType: "VARCHAR"},
		"created_at": {DBType: "DATETIME"},
	}
	row := map[string]interface{}{
		"_id":       primitive.NewObjectID(),
		"name":      "launch",
		"createdAt": primitive.NewDateTimeFromTime(time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)),
		"__v":       3,
		"unknown":   "dropped",
	}

	out := normalizeRestoreRow(row, columns)

	require.Len(t, out, 3)
	assert.Equal(t, "launch", out["name"])
	assert.Equal(t, time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC), out["created_at"])
	assert.NotContains(t, out, "unknown")
}

func TestNormalizeRestoreValueJSONColumns(t *testing.T) {
	v, ok := normalizeRestoreValue(map[string]interface{}{"enabled": true}, "LONGTEXT")
	require.True(t, ok)
	assert.JSONEq(t, `{"enabled":true}`, v.(string))

	_, ok = normalizeRestoreValue(map[string]interface{}{"x": 1}, "INT")
	assert.False(t, ok)
}

func TestDecodeBSONRows(t *testing.T) {
	doc1, err := bson.Marshal(bson.M{"name": "a"})
	require.NoError(t, err)
	doc2, err := bson.Marshal(bson.M{"name": "b"})
	require.NoError(t, err)

	rows, err := decodeBSONRows(append(doc1, doc2...))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0]["name"])
	assert.Equal(t, "b", rows[1]["name"])

	_, err = decodeBSONRows([]byte{1, 2})
	assert.Error(t, err)
}

func TestRenderBackupObjectKey(t *testing.T) {
	now := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "backups/2025/03/backup-t1-x.zip",
		renderBackupObjectKey("", "backup-t1-x.zip", now))
	assert.Equal(t, "archive/backup-t1-x.zip",
		renderBackupObjectKey("/archive//{filename}", "backup-t1-x.zip", now))
}

func TestUnixNumberToTime(t *testing.T) {
	ts, ok := unixNumberToTime(1736500000000)
	require.True(t, ok)
	assert.Equal(t, int64(1736500000), ts.Unix())

	ts, ok = unixNumberToTime(1736500000)
	require.True(t, ok)
	assert.Equal(t, int64(1736500000), ts.Unix())

	_, ok = unixNumberToTime(42)
	assert.False(t, ok)
}
