package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

type scheduleService interface {
	ListSlots(ctx context.Context, day *int) ([]models.TimeSlot, error)
	CreateSlot(ctx context.Context, req service.TimeSlotRequest) (*models.TimeSlot, error)
	DeleteSlot(ctx context.Context, id string) error
	Assign(ctx context.Context, slotID string, req service.AssignSlotRequest) (*models.ScheduleEntry, error)
	Unassign(ctx context.Context, slotID string) error
	Grid(ctx context.Context, classID string) ([]models.ScheduleDay, error)
	LessonOn(ctx context.Context, classSubjectID string, date time.Time) (*models.Lesson, error)
}

// ScheduleHandler serves the weekly timetable.
type ScheduleHandler struct {
	schedule scheduleService
}

// NewScheduleHandler constructs a ScheduleHandler.
func NewScheduleHandler(schedule scheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedule: schedule}
}

// ListSlots godoc
// @Summary List time slots
// @Tags Schedule
// @Security BearerAuth
// @Produce json
// @Param day query int false "Weekday, 0 (Monday) to 6 (Sunday)"
// @Success 200 {object} response.Envelope{data=[]models.TimeSlot}
// @Router /schedule/slots [get]
func (h *ScheduleHandler) ListSlots(c *gin.Context) {
	day, err := queryIntPtr(c, "day")
	if err != nil {
		response.Error(c, err)
		return
	}
	slots, err := h.schedule.ListSlots(c.Request.Context(), day)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// CreateSlot godoc
// @Summary Define a time slot
// @Tags Schedule
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body service.TimeSlotRequest true "Weekday, period and HH:MM range"
// @Success 201 {object} response.Envelope{data=models.TimeSlot}
// @Failure 409 {object} response.Envelope "Period taken or time overlap"
// @Router /schedule/slots [post]
func (h *ScheduleHandler) CreateSlot(c *gin.Context) {
	var req service.TimeSlotRequest
	if !bindJSON(c, &req) {
		return
	}
	slot, err := h.schedule.CreateSlot(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// DeleteSlot godoc
// @Summary Remove a time slot and its assignment
// @Tags Schedule
// @Security BearerAuth
// @Param id path string true "Time slot ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /schedule/slots/{id} [delete]
func (h *ScheduleHandler) DeleteSlot(c *gin.Context) {
	if err := h.schedule.DeleteSlot(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Assign godoc
// @Summary Place a class subject in a slot
// @Description Replaces whatever the slot held.
// @Tags Schedule
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Time slot ID"
// @Param payload body service.AssignSlotRequest true "Class subject"
// @Success 200 {object} response.Envelope{data=models.ScheduleEntry}
// @Failure 404 {object} response.Envelope "Unknown slot or class subject"
// @Router /schedule/slots/{id}/assignment [put]
func (h *ScheduleHandler) Assign(c *gin.Context) {
	var req service.AssignSlotRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.schedule.Assign(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Unassign godoc
// @Summary Free a slot
// @Tags Schedule
// @Security BearerAuth
// @Param id path string true "Time slot ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /schedule/slots/{id}/assignment [delete]
func (h *ScheduleHandler) Unassign(c *gin.Context) {
	if err := h.schedule.Unassign(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Grid godoc
// @Summary Weekly timetable
// @Description Every slot grouped by weekday, with the class and course taught there.
// @Tags Schedule
// @Security BearerAuth
// @Produce json
// @Param class_id query string false "Only show this class's lessons"
// @Success 200 {object} response.Envelope{data=[]models.ScheduleDay}
// @Router /schedule [get]
func (h *ScheduleHandler) Grid(c *gin.Context) {
	days, err := h.schedule.Grid(c.Request.Context(), strings.TrimSpace(c.Query("class_id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, days, nil)
}

// LessonOn godoc
// @Summary Lesson recorded on a date
// @Tags Schedule
// @Security BearerAuth
// @Produce json
// @Param id path string true "Class subject ID"
// @Param date path string true "YYYY-MM-DD"
// @Success 200 {object} response.Envelope{data=models.Lesson}
// @Failure 404 {object} response.Envelope
// @Router /class-subjects/{id}/lessons/on/{date} [get]
func (h *ScheduleHandler) LessonOn(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Param("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	lesson, err := h.schedule.LessonOn(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}
