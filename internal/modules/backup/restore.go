package backup

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-sql-driver/mysql"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/gorm"
)

var backupTableNameSet = func() map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range tenantTables {
		out[t] = struct{}{}
	}
	out["webhook_events"] = struct{}{}
	return out
}()

// restoreTableAliases maps collection names from the legacy document-store
// dumps onto the relational tables.
var restoreTableAliases = map[string]string{
	"campaign":                  "campaigns",
	"approval":                  "approvals",
	"revisions":                 "campaign_revisions",
	"campaignrevisions":         "campaign_revisions",
	"campaign_revision":         "campaign_revisions",
	"statushistory":             "campaign_status_histories",
	"status_history":            "campaign_status_histories",
	"campaignstatushistories":   "campaign_status_histories",
	"campaign_status_history":   "campaign_status_histories",
	"webhook":                   "webhooks",
	"webhookevents":             "webhook_events",
	"webhook_event":             "webhook_events",
}

type backupEntryCandidate struct {
	File   *zip.File
	Format string
}

type tableColumn struct {
	DBType string
}

// RestoreFromZip replaces the tenant's rows with the archive contents.
// Accepts native JSON exports and legacy BSON dumps; when both formats
// carry the same table, BSON wins (it is the dump original).
func RestoreFromZip(db *gorm.DB, tenantID string, zr *zip.Reader) error {
	if db == nil || zr == nil {
		return fmt.Errorf("invalid restore input")
	}

	tableEntries := make(map[string]backupEntryCandidate)
	for _, file := range zr.File {
		table, format, ok := parseBackupEntry(file.Name)
		if !ok {
			continue
		}
		table = resolveRestoreTableName(table)
		if table == "" {
			continue
		}
		exist, has := tableEntries[table]
		if !has || (exist.Format != "bson" && format == "bson") {
			tableEntries[table] = backupEntryCandidate{File: file, Format: format}
		}
	}

	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	shouldRollback := true
	defer func() {
		if shouldRollback {
			_ = tx.Rollback().Error
		}
	}()

	restoreOrder := append(append([]string{}, tenantTables...), "webhook_events")
	columnCache := make(map[string]map[string]tableColumn, len(tableEntries))
	for _, table := range restoreOrder {
		entry, ok := tableEntries[table]
		if !ok {
			continue
		}
		rows, err := decodeBackupRows(entry.File, entry.Format)
		if err != nil {
			return fmt.Errorf("decode backup rows for table %s failed: %w", table, err)
		}

		columns, hasColumns := columnCache[table]
		if !hasColumns {
			columns, err = loadTableColumns(tx, table)
			if err != nil {
				return fmt.Errorf("load table columns for %s failed: %w", table, err)
			}
			columnCache[table] = columns
		}

		if err := deleteTenantRows(tx, table, tenantID); err != nil {
			return err
		}
		for idx, row := range rows {
			normalized := normalizeRestoreRow(row, columns)
			if len(normalized) == 0 {
				continue
			}
			if _, hasTenant := columns["tenant_id"]; hasTenant {
				normalized["tenant_id"] = tenantID
			}
			if err := tx.Table(table).Create(normalized).Error; err != nil {
				if isDuplicateConstraintError(err) {
					continue
				}
				return fmt.Errorf("insert row #%d into %s failed: %w", idx+1, table, err)
			}
		}
	}

	if err := tx.Commit().Error; err != nil {
		return err
	}
	shouldRollback = false
	return nil
}

func deleteTenantRows(tx *gorm.DB, table, tenantID string) error {
	if table == "webhook_events" {
		return tx.Exec(
			"DELETE FROM webhook_events WHERE hook_id IN (SELECT id FROM webhooks WHERE tenant_id = ?)",
			tenantID).Error
	}
	return tx.Table(table).Where("tenant_id = ?", tenantID).Delete(nil).Error
}

func parseBackupEntry(name string) (table string, format string, ok bool) {
	base := strings.ToLower(strings.TrimSpace(path.Base(name)))
	if base == "" {
		return "", "", false
	}
	if base == "prelude.json" || base == "manifest.json" || strings.HasSuffix(base, ".metadata.json") {
		return "", "", false
	}

	if strings.HasSuffix(base, ".bson") {
		table = strings.TrimSuffix(base, ".bson")
		if table == "" {
			return "", "", false
		}
		return table, "bson", true
	}
	if strings.HasSuffix(base, ".json") {
		table = strings.TrimSuffix(base, ".json")
		if table == "" {
			return "", "", false
		}
		return table, "json", true
	}
	return "", "", false
}

func resolveRestoreTableName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	if mapped, ok := restoreTableAliases[name]; ok {
		name = mapped
	}
	if _, ok := backupTableNameSet[name]; !ok {
		return ""
	}
	return name
}

func decodeBackupRows(file *zip.File, format string) ([]map[string]interface{}, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	switch format {
	case "bson":
		return decodeBSONRows(data)
	case "json":
		if len(bytes.TrimSpace(data)) == 0 {
			return []map[string]interface{}{}, nil
		}
		var rows []map[string]interface{}
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unsupported backup format: %s", format)
	}
}

func loadTableColumns(db *gorm.DB, table string) (map[string]tableColumn, error) {
	columnTypes, err := db.Migrator().ColumnTypes(table)
	if err != nil {
		return nil, err
	}
	result := make(map[string]tableColumn, len(columnTypes))
	for _, columnType := range columnTypes {
		name := strings.ToLower(strings.TrimSpace(columnType.Name()))
		if name == "" {
			continue
		}
		result[name] = tableColumn{
			DBType: strings.ToUpper(strings.TrimSpace(columnType.DatabaseTypeName())),
		}
	}
	return result, nil
}

func normalizeRestoreRow(row map[string]interface{}, columns map[string]tableColumn) map[string]interface{} {
	if len(row) == 0 {
		return nil
	}
	result := make(map[string]interface{}, len(row))
	for key, value := range row {
		column := normalizeRestoreColumnName(key)
		if column == "" {
			continue
		}
		columnInfo, ok := columns[column]
		if !ok {
			continue
		}
		normalizedValue, ok := normalizeRestoreValue(value, columnInfo.DBType)
		if !ok {
			continue
		}
		result[column] = normalizedValue
	}
	return result
}

func normalizeRestoreColumnName(name string) string {
	raw := strings.TrimSpace(name)
	lower := strings.ToLower(raw)
	if lower == "" || lower == "__v" {
		return ""
	}
	if lower == "_id" {
		return "id"
	}
	return strings.ToLower(camelToSnake(raw))
}

func normalizeRestoreValue(value interface{}, dbType string) (interface{}, bool) {
	value = normalizeBSONValue(value)
	if value == nil {
		return nil, true
	}

	if isTimeLikeType(dbType) {
		if ts, ok := normalizeRestoreTime(value); ok {
			return ts, true
		}
		return nil, false
	}

	switch v := value.(type) {
	case map[string]interface{}, []interface{}:
		if isJSONLikeType(dbType) || isTextLikeType(dbType) {
			data, err := json.Marshal(v)
			if err != nil {
				return nil, false
			}
			return string(data), true
		}
		return nil, false
	case []byte:
		if isJSONLikeType(dbType) || isTextLikeType(dbType) {
			return string(v), true
		}
		return v, true
	case string:
		return v, true
	default:
		return v, true
	}
}

func normalizeRestoreTime(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case primitive.DateTime:
		return v.Time(), true
	case int64:
		return unixNumberToTime(float64(v))
	case int32:
		return unixNumberToTime(float64(v))
	case int:
		return unixNumberToTime(float64(v))
	case float64:
		return unixNumberToTime(v)
	case float32:
		return unixNumberToTime(float64(v))
	case string:
		if ts, ok := parseTimeString(v); ok {
			return ts, true
		}
		if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return unixNumberToTime(n)
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func camelToSnake(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	runes := []rune(raw)
	var b strings.Builder
	b.Grow(len(runes) + 4)

	lastUnderscore := false
	for i, r := range runes {
		if r == '-' || r == ' ' || r == '_' {
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
			continue
		}

		if unicode.IsUpper(r) {
			if i > 0 && !lastUnderscore {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
			continue
		}

		b.WriteRune(r)
		lastUnderscore = false
	}
	return b.String()
}

func unixNumberToTime(value float64) (time.Time, bool) {
	abs := value
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e11:
		return time.UnixMilli(int64(value)), true
	case abs >= 1e8:
		return time.Unix(int64(value), 0), true
	default:
		return time.Time{}, false
	}
}

func parseTimeString(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	layouts := [...]string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func isJSONLikeType(dbType string) bool {
	return strings.Contains(dbType, "JSON")
}

func isTextLikeType(dbType string) bool {
	return strings.Contains(dbType, "CHAR") ||
		strings.Contains(dbType, "TEXT") ||
		strings.Contains(dbType, "CLOB")
}

func isTimeLikeType(dbType string) bool {
	return strings.Contains(dbType, "TIME") ||
		strings.Contains(dbType, "DATE")
}

func isDuplicateConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint")
}

func normalizeBSONValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case primitive.Null:
		return nil
	case primitive.Undefined:
		return nil
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time()
	case primitive.Timestamp:
		return time.Unix(int64(v.T), 0).UTC()
	case primitive.Decimal128:
		return v.String()
	case primitive.Binary:
		return string(v.Data)
	case primitive.M:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			out[key] = normalizeBSONValue(item)
		}
		return out
	case primitive.D:
		out := make(map[string]interface{}, len(v))
		for _, item := range v {
			out[item.Key] = normalizeBSONValue(item.Value)
		}
		return out
	case primitive.A:
		out := make([]interface{}, 0, len(v))
		for _, item := range v {
			out = append(out, normalizeBSONValue(item))
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			out[key] = normalizeBSONValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(v))
		for _, item := range v {
			out = append(out, normalizeBSONValue(item))
		}
		return out
	default:
		return v
	}
}

// decodeBSONRows walks a mongodump collection file, one length-prefixed
// document at a time.
func decodeBSONRows(payload []byte) ([]map[string]interface{}, error) {
	if len(payload) == 0 {
		return []map[string]interface{}{}, nil
	}
	rows := make([]map[string]interface{}, 0)
	cursor := 0
	for cursor < len(payload) {
		if cursor+4 > len(payload) {
			return nil, fmt.Errorf("invalid bson payload")
		}
		docLen := int(int32(binary.LittleEndian.Uint32(payload[cursor : cursor+4])))
		if docLen <= 0 || cursor+docLen > len(payload) {
			return nil, fmt.Errorf("invalid bson document length")
		}
		var row map[string]interface{}
		if err := bson.Unmarshal(payload[cursor:cursor+docLen], &row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
		cursor += docLen
	}
	return rows, nil
}
