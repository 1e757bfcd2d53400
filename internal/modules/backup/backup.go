package backup

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/orbitreach/core/internal/config"
	"github.com/orbitreach/core/internal/middleware"
	"github.com/orbitreach/core/internal/pkg/blobstore"
	"github.com/orbitreach/core/internal/pkg/response"
)

const defaultS3PathTemplate = "backups/{Y}/{m}/{filename}"

// tenantTables are exported per tenant, in restore order.
var tenantTables = []string{
	"campaigns", "approvals", "campaign_revisions",
	"campaign_status_histories", "webhooks",
}

// Handler serves tenant backup export, download, and restore.
type Handler struct {
	db    *gorm.DB
	cfg   *config.AppConfig
	blobs *blobstore.Store
}

func NewHandler(db *gorm.DB, cfg *config.AppConfig, blobs *blobstore.Store) *Handler {
	return &Handler{db: db, cfg: cfg, blobs: blobs}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/backups", authMW)

	g.GET("", h.list)
	g.GET("/new", h.createAndDownload)
	g.GET("/:filename", h.download)
	g.POST("", h.uploadAndRestore)
	g.POST("/rollback", h.uploadAndRestore)
	g.POST("/upload-to-s3", h.uploadToS3)
	g.PATCH("/rollback/:filename", h.rollback)
	g.PATCH("/:filename", h.rollback)
	g.DELETE("/:filename", h.deleteOne)
}

func (h *Handler) backupDir() string {
	return h.cfg.BackupDir()
}

// tenantFilename keeps each tenant's archives separated on disk.
func tenantFilename(tenantID string, now time.Time) string {
	return fmt.Sprintf("backup-%s-%s.zip", tenantID, now.Format("2006-01-02T15-04-05"))
}

type backupItem struct {
	Filename string `json:"filename"`
	Size     string `json:"size"`
}

func (h *Handler) list(c *gin.Context) {
	tenantID := middleware.CurrentTenantID(c)
	dir := h.backupDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		response.InternalError(c, err)
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	items := []backupItem{}
	prefix := "backup-" + tenantID + "-"
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".zip") || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, backupItem{Filename: e.Name(), Size: formatSize(info.Size())})
	}
	response.OK(c, gin.H{"data": items})
}

func formatSize(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}

func (h *Handler) createAndDownload(c *gin.Context) {
	tenantID := middleware.CurrentTenantID(c)
	artifact, err := h.createLocalBackupArtifact(tenantID, time.Now())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, artifact.Filename))
	c.Data(http.StatusOK, "application/zip", artifact.Buffer.Bytes())
}

func (h *Handler) download(c *gin.Context) {
	tenantID := middleware.CurrentTenantID(c)
	filename := filepath.Base(c.Param("filename"))
	if !strings.HasSuffix(filename, ".zip") || !strings.HasPrefix(filename, "backup-"+tenantID+"-") {
		response.BadRequest(c, "invalid filename")
		return
	}
	data, err := os.ReadFile(filepath.Join(h.backupDir(), filename))
	if err != nil {
		if os.IsNotExist(err) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/zip", data)
}

// uploadAndRestore accepts either a native JSON archive or a legacy BSON
// dump and replaces the tenant's rows with the archive contents.
func (h *Handler) uploadAndRestore(c *gin.Context) {
	tenantID := middleware.CurrentTenantID(c)
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file")
		return
	}
	src, err := file.Open()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	defer src.Close()

	data := &bytes.Buffer{}
	if _, err := data.ReadFrom(src); err != nil {
		response.InternalError(c, err)
		return
	}
	zr, err := zip.NewReader(bytes.NewReader(data.Bytes()), int64(data.Len()))
	if err != nil {
		response.BadRequest(c, "invalid zip file")
		return
	}
	if err := RestoreFromZip(h.db, tenantID, zr); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"message": "restore successful"})
}

func (h *Handler) rollback(c *gin.Context) {
	tenantID := middleware.CurrentTenantID(c)
	filename := filepath.Base(c.Param("filename"))
	if !strings.HasPrefix(filename, "backup-"+tenantID+"-") {
		response.BadRequest(c, "invalid filename")
		return
	}
	data, err := os.ReadFile(filepath.Join(h.backupDir(), filename))
	if err != nil {
		if os.IsNotExist(err) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		response.BadRequest(c, "invalid zip file")
		return
	}
	if err := RestoreFromZip(h.db, tenantID, zr); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"message": "rollback successful"})
}

func (h *Handler) deleteOne(c *gin.Context) {
	tenantID := middleware.CurrentTenantID(c)
	filename := strings.TrimSpace(filepath.Base(c.Param("filename")))
	if filename == "" || !strings.HasSuffix(filename, ".zip") || !strings.HasPrefix(filename, "backup-"+tenantID+"-") {
		response.BadRequest(c, "invalid filename")
		return
	}
	_ = os.Remove(filepath.Join(h.backupDir(), filename))
	response.NoContent(c)
}

// CreateLocalBackups archives every tenant with at least one campaign
// into the local backup directory. Used by the scheduled backup job.
func CreateLocalBackups(db *gorm.DB, cfg *config.AppConfig) (int, error) {
	var tenantIDs []string
	if err := db.Table("campaigns").Distinct("tenant_id").Pluck("tenant_id", &tenantIDs).Error; err != nil {
		return 0, err
	}

	h := NewHandler(db, cfg, nil)
	now := time.Now()
	created := 0
	for _, tenantID := range tenantIDs {
		if strings.TrimSpace(tenantID) == "" {
			continue
		}
		if _, err := h.createLocalBackupArtifact(tenantID, now); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

type backupArtifact struct {
	Filename string
	Path     string
	Buffer   *bytes.Buffer
}

func (h *Handler) createLocalBackupArtifact(tenantID string, now time.Time) (*backupArtifact, error) {
	buf, err := h.createBackupZip(tenantID)
	if err != nil {
		return nil, err
	}
	dir := h.backupDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	filename := tenantFilename(tenantID, now)
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, err
	}
	return &backupArtifact{Filename: filename, Path: path, Buffer: buf}, nil
}

// uploadToS3 creates a fresh archive and pushes it to the configured
// object store. Disabled blobstore means no-op.
func (h *Handler) uploadToS3(c *gin.Context) {
	if h.blobs == nil || !h.cfg.Blobstore.Enable {
		response.NoContent(c)
		return
	}

	tenantID := middleware.CurrentTenantID(c)
	now := time.Now()
	artifact, err := h.createLocalBackupArtifact(tenantID, now)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	key := renderBackupObjectKey(defaultS3PathTemplate, artifact.Filename, now)
	if _, err := h.blobs.Upload(c.Request.Context(), key, artifact.Buffer.Bytes(), "application/zip"); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func renderBackupObjectKey(template, filename string, now time.Time) string {
	tpl := strings.TrimSpace(template)
	if tpl == "" {
		tpl = defaultS3PathTemplate
	}

	replacer := strings.NewReplacer(
		"{Y}", now.Format("2006"),
		"{m}", now.Format("01"),
		"{d}", now.Format("02"),
		"{filename}", filename,
	)

	key := replacer.Replace(tpl)
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimSpace(strings.TrimPrefix(key, "/"))
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}
	if key == "" {
		return filename
	}
	return key
}

// createBackupZip exports the tenant's rows from every campaign table as
// JSON into a ZIP archive. Webhook delivery logs are included via their
// parent hooks.
func (h *Handler) createBackupZip(tenantID string) (*bytes.Buffer, error) {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)

	writeTable := func(table string, rows []map[string]interface{}) error {
		data, err := json.Marshal(rows)
		if err != nil {
			return err
		}
		f, err := w.Create(table + ".json")
		if err != nil {
			return err
		}
		_, err = f.Write(data)
		return err
	}

	for _, table := range tenantTables {
		var rows []map[string]interface{}
		if err := h.db.Table(table).Where("tenant_id = ?", tenantID).Find(&rows).Error; err != nil {
			return nil, err
		}
		if err := writeTable(table, rows); err != nil {
			return nil, err
		}
	}

	var eventRows []map[string]interface{}
	err := h.db.Table("webhook_events").
		Joins("JOIN webhooks ON webhooks.id = webhook_events.hook_id").
		Where("webhooks.tenant_id = ?", tenantID).
		Select("webhook_events.*").
		Find(&eventRows).Error
	if err != nil {
		return nil, err
	}
	if err := writeTable("webhook_events", eventRows); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}
