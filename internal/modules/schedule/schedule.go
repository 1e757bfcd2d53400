package schedule

import (
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orbitreach/core/internal/middleware"
	"github.com/orbitreach/core/internal/models"
	"github.com/orbitreach/core/internal/modules/campaign"
	"github.com/orbitreach/core/internal/modules/notify"
	"github.com/orbitreach/core/internal/pkg/apperrors"
	"github.com/orbitreach/core/internal/pkg/response"
)

const (
	horizonWeeks        = 4
	defaultSlotsPerWeek = 3

	// ConflictReason flags every slot that shares a platform and calendar
	// day with another slot.
	ConflictReason = "another slot is scheduled for the same platform on the same day"
)

// bestTimes are the posting hours round-robined across generated slots.
var bestTimes = []int{9, 12, 15, 18}

var cadencePattern = regexp.MustCompile(`^(\d+)x/week$`)

type AddSlotDTO struct {
	Slot           time.Time `json:"slot" binding:"required"`
	Platform       string    `json:"platform" binding:"required"`
	ContentVersion int       `json:"content_version"`
}

type UpdateSlotDTO struct {
	Slot           *time.Time `json:"slot"`
	Platform       *string    `json:"platform"`
	ContentVersion *int       `json:"content_version"`
}

type GenerateDTO struct {
	RequiredApprovals int `json:"required_approvals"`
}

// ParseCadence maps a strategy cadence string to slots per week:
// "daily" is 7, "Nx/week" is N, anything else falls back to 3.
func ParseCadence(cadence string) int {
	if cadence == "daily" {
		return 7
	}
	if m := cadencePattern.FindStringSubmatch(cadence); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return n
		}
	}
	return defaultSlotsPerWeek
}

// DetectConflicts recomputes conflict flags over the full slot list.
// Every member of a (platform, calendar day) group larger than one is
// flagged. Idempotent: a second run on unchanged input is a no-op.
func DetectConflicts(slots []models.ScheduleSlot) {
	type key struct {
		platform string
		day      string
	}
	counts := make(map[key]int, len(slots))
	for i := range slots {
		k := key{slots[i].Platform, slots[i].Slot.UTC().Format("2006-01-02")}
		counts[k]++
	}
	for i := range slots {
		k := key{slots[i].Platform, slots[i].Slot.UTC().Format("2006-01-02")}
		if counts[k] > 1 {
			slots[i].Conflict = true
			slots[i].ConflictReason = ConflictReason
		} else {
			slots[i].Conflict = false
			slots[i].ConflictReason = ""
		}
	}
}

// GenerateSlots plans a 4-week horizon from the strategy cadence,
// round-robining platforms and best times. Locked slots from the current
// schedule are preserved verbatim; everything unlocked is replaced.
func GenerateSlots(sv *models.StrategyVersion, current []models.ScheduleSlot, start time.Time, actor string, now time.Time) []models.ScheduleSlot {
	perWeek := ParseCadence(sv.Cadence)
	platforms := sv.Platforms
	if len(platforms) == 0 {
		platforms = []string{"social"}
	}

	slots := make([]models.ScheduleSlot, 0, perWeek*horizonWeeks)
	for _, slot := range current {
		if slot.Locked {
			slots = append(slots, slot)
		}
	}

	day0 := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	idx := 0
	for week := 0; week < horizonWeeks; week++ {
		for i := 0; i < perWeek; i++ {
			dayOffset := week*7 + (i*7)/perWeek
			hour := bestTimes[idx%len(bestTimes)]
			slots = append(slots, models.ScheduleSlot{
				SlotID:        uuid.NewString(),
				Slot:          day0.AddDate(0, 0, dayOffset).Add(time.Duration(hour) * time.Hour),
				Platform:      platforms[idx%len(platforms)],
				Regenerated:   true,
				RegeneratedAt: &now,
				RegeneratedBy: actor,
			})
			idx++
		}
	}

	DetectConflicts(slots)
	return slots
}

type Service struct {
	store    *campaign.Store
	notifier *notify.Service
}

func NewService(store *campaign.Store) *Service { return &Service{store: store} }

// SetNotifier wires up webhook event dispatch (optional).
func (s *Service) SetNotifier(n *notify.Service) { s.notifier = n }

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// Generate replaces all unlocked slots from the current strategy cadence,
// bumps the schedule generation, and opens a fresh pending schedule
// approval keyed by the new generation.
func (s *Service) Generate(tenantID, campaignID, actor string, dto *GenerateDTO) (*models.CampaignModel, error) {
	required := dto.RequiredApprovals
	if required < 1 {
		required = 1
	}

	updated, err := s.store.Mutate(tenantID, campaignID, "schedule.generate", actor, func(tx *gorm.DB, c *models.CampaignModel) (map[string]interface{}, error) {
		sv := c.CurrentStrategyVersion()
		if sv == nil {
			return nil, apperrors.NewNotFoundf("strategy version", "no active version")
		}

		now := time.Now()
		c.Schedule = GenerateSlots(sv, c.Schedule, now, actor, now)
		c.ScheduleGeneration++

		metadata := models.ApprovalMetadata{StrategyVersion: sv.Version}
		approval := models.ApprovalModel{
			TenantID:          tenantID,
			CampaignID:        c.ID,
			Type:              models.ApprovalTypeSchedule,
			Version:           c.ScheduleGeneration,
			Status:            models.ApprovalStatusPending,
			RequiredApprovals: required,
			Approvers:         []models.Approver{},
			Metadata:          metadata,
		}
		if err := tx.Create(&approval).Error; err != nil {
			return nil, err
		}

		return map[string]interface{}{
			"scheduleGeneration": c.ScheduleGeneration,
			"slots":              len(c.Schedule),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.ScheduleGenerated(tenantID, campaignID, updated.ScheduleGeneration, len(updated.Schedule), actor)
	return updated, nil
}

func (s *Service) List(tenantID, campaignID string) ([]models.ScheduleSlot, error) {
	c, err := s.store.Get(tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Schedule == nil {
		return []models.ScheduleSlot{}, nil
	}
	return c.Schedule, nil
}

func (s *Service) AddSlot(tenantID, campaignID, actor string, dto *AddSlotDTO) (*models.ScheduleSlot, error) {
	var created models.ScheduleSlot
	_, err := s.store.Mutate(tenantID, campaignID, "schedule.add_slot", actor, func(tx *gorm.DB, c *models.CampaignModel) (map[string]interface{}, error) {
		if dto.ContentVersion != 0 && c.FindContentVersion(dto.ContentVersion) == nil {
			return nil, apperrors.NewValidation("content version %d does not exist", dto.ContentVersion)
		}

		slot := models.ScheduleSlot{
			SlotID:         uuid.NewString(),
			Slot:           dto.Slot,
			Platform:       dto.Platform,
			ContentVersion: dto.ContentVersion,
		}
		c.Schedule = append(c.Schedule, slot)
		DetectConflicts(c.Schedule)
		created = c.Schedule[len(c.Schedule)-1]
		return map[string]interface{}{"slotId": slot.SlotID}, nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Service) UpdateSlot(tenantID, campaignID, slotID, actor string, dto *UpdateSlotDTO) (*models.ScheduleSlot, error) {
	var updated models.ScheduleSlot
	_, err := s.store.Mutate(tenantID, campaignID, "schedule.update_slot", actor, func(tx *gorm.DB, c *models.CampaignModel) (map[string]interface{}, error) {
		slot := c.FindScheduleSlot(slotID)
		if slot == nil {
			return nil, apperrors.NewNotFoundf("schedule slot", "%s", slotID)
		}
		if slot.Locked && dto.Slot != nil {
			return nil, apperrors.NewInvalidState("cannot move a locked slot")
		}

		if dto.Slot != nil {
			slot.Slot = *dto.Slot
		}
		if dto.Platform != nil {
			slot.Platform = *dto.Platform
		}
		if dto.ContentVersion != nil {
			if *dto.ContentVersion != 0 && c.FindContentVersion(*dto.ContentVersion) == nil {
				return nil, apperrors.NewValidation("content version %d does not exist", *dto.ContentVersion)
			}
			slot.ContentVersion = *dto.ContentVersion
		}

		DetectConflicts(c.Schedule)
		updated = *c.FindScheduleSlot(slotID)
		return map[string]interface{}{"slotId": slotID}, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ToggleLock flips the lock flag. No unlock-first requirement.
func (s *Service) ToggleLock(tenantID, campaignID, slotID, actor string) (*models.ScheduleSlot, error) {
	var updated models.ScheduleSlot
	_, err := s.store.Mutate(tenantID, campaignID, "schedule.toggle_lock", actor, func(tx *gorm.DB, c *models.CampaignModel) (map[string]interface{}, error) {
		slot := c.FindScheduleSlot(slotID)
		if slot == nil {
			return nil, apperrors.NewNotFoundf("schedule slot", "%s", slotID)
		}
		slot.Locked = !slot.Locked
		updated = *slot
		return map[string]interface{}{"slotId": slotID, "locked": slot.Locked}, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ClearUnlocked deletes every unlocked slot; locked slots survive.
func (s *Service) ClearUnlocked(tenantID, campaignID, actor string) (int, error) {
	removed := 0
	_, err := s.store.Mutate(tenantID, campaignID, "schedule.clear_unlocked", actor, func(tx *gorm.DB, c *models.CampaignModel) (map[string]interface{}, error) {
		kept := make([]models.ScheduleSlot, 0, len(c.Schedule))
		for _, slot := range c.Schedule {
			if slot.Locked {
				kept = append(kept, slot)
			}
		}
		removed = len(c.Schedule) - len(kept)
		c.Schedule = kept
		DetectConflicts(c.Schedule)
		return map[string]interface{}{"removed": removed}, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/campaigns/:id/schedule", authMW)
	g.GET("", h.list)
	g.POST("/generate", h.generate)
	g.POST("/slots", h.addSlot)
	g.PATCH("/slots/:slotId", h.updateSlot)
	g.POST("/slots/:slotId/lock", h.toggleLock)
	g.DELETE("/unlocked", h.clearUnlocked)
}

func (h *Handler) list(c *gin.Context) {
	slots, err := h.svc.List(middleware.CurrentTenantID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"data": slots})
}

func (h *Handler) generate(c *gin.Context) {
	dto := GenerateDTO{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&dto); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	result, err := h.svc.Generate(middleware.CurrentTenantID(c), c.Param("id"), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"schedule_generation": result.ScheduleGeneration,
		"slots":               result.Schedule,
	})
}

func (h *Handler) addSlot(c *gin.Context) {
	var dto AddSlotDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	slot, err := h.svc.AddSlot(middleware.CurrentTenantID(c), c.Param("id"), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

func (h *Handler) updateSlot(c *gin.Context) {
	var dto UpdateSlotDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	slot, err := h.svc.UpdateSlot(middleware.CurrentTenantID(c), c.Param("id"), c.Param("slotId"), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, slot)
}

func (h *Handler) toggleLock(c *gin.Context) {
	slot, err := h.svc.ToggleLock(middleware.CurrentTenantID(c), c.Param("id"), c.Param("slotId"), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, slot)
}

func (h *Handler) clearUnlocked(c *gin.Context) {
	removed, err := h.svc.ClearUnlocked(middleware.CurrentTenantID(c), c.Param("id"), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"removed": removed})
}
