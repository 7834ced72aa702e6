package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

type lessonService interface {
	List(ctx context.Context, classSubjectID string) ([]models.Lesson, error)
	Get(ctx context.Context, id string) (*models.Lesson, error)
	Create(ctx context.Context, classSubjectID string, req service.LessonRequest) (*models.Lesson, error)
	Update(ctx context.Context, id string, req service.LessonRequest) (*models.Lesson, error)
	Delete(ctx context.Context, id string) error
	Copy(ctx context.Context, req service.CopyLessonsRequest) ([]models.Lesson, error)
	RegisterAttendance(ctx context.Context, lessonID string, req service.RegisterAttendanceRequest) (int, error)
	LessonAttendance(ctx context.Context, lessonID string) ([]models.Attendance, error)
	StudentAttendanceStats(ctx context.Context, studentID, classSubjectID string) (*models.AttendanceStats, error)
	ClassAttendanceStats(ctx context.Context, classSubjectID string) ([]models.AttendanceStats, error)
}

// LessonHandler exposes lesson plan and attendance endpoints.
type LessonHandler struct {
	lessons lessonService
}

// NewLessonHandler constructs LessonHandler.
func NewLessonHandler(lessons lessonService) *LessonHandler {
	return &LessonHandler{lessons: lessons}
}

// List godoc
// @Summary List lessons of a class subject
// @Tags Lessons
// @Produce json
// @Param id path string true "Class subject ID"
// @Success 200 {object} response.Envelope
// @Router /class-subjects/{id}/lessons [get]
func (h *LessonHandler) List(c *gin.Context) {
	lessons, err := h.lessons.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, nil)
}

// Create godoc
// @Summary Create lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Class subject ID"
// @Param payload body service.LessonRequest true "Lesson payload"
// @Success 201 {object} response.Envelope
// @Router /class-subjects/{id}/lessons [post]
func (h *LessonHandler) Create(c *gin.Context) {
	var req service.LessonRequest
	if !bindJSON(c, &req) {
		return
	}
	lesson, err := h.lessons.Create(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// Get godoc
// @Summary Get lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [get]
func (h *LessonHandler) Get(c *gin.Context) {
	lesson, err := h.lessons.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Update godoc
// @Summary Update lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body service.LessonRequest true "Lesson payload"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [put]
func (h *LessonHandler) Update(c *gin.Context) {
	var req service.LessonRequest
	if !bindJSON(c, &req) {
		return
	}
	lesson, err := h.lessons.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Delete godoc
// @Summary Delete lesson and its attendance
// @Tags Lessons
// @Param id path string true "Lesson ID"
// @Success 204
// @Router /lessons/{id} [delete]
func (h *LessonHandler) Delete(c *gin.Context) {
	if err := h.lessons.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Copy godoc
// @Summary Copy lessons to another class subject
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body service.CopyLessonsRequest true "Lessons to copy"
// @Success 201 {object} response.Envelope
// @Router /lessons/copy [post]
func (h *LessonHandler) Copy(c *gin.Context) {
	var req service.CopyLessonsRequest
	if !bindJSON(c, &req) {
		return
	}
	lessons, err := h.lessons.Copy(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lessons)
}

// RegisterAttendance godoc
// @Summary Record attendance for a lesson
// @Description Entries with an unknown status are skipped. An empty status counts as present.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body service.RegisterAttendanceRequest true "Attendance entries"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/attendance [put]
func (h *LessonHandler) RegisterAttendance(c *gin.Context) {
	var req service.RegisterAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	saved, err := h.lessons.RegisterAttendance(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"saved": saved}, nil)
}

// LessonAttendance godoc
// @Summary Attendance recorded for a lesson
// @Tags Attendance
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/attendance [get]
func (h *LessonHandler) LessonAttendance(c *gin.Context) {
	records, err := h.lessons.LessonAttendance(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// StudentStats godoc
// @Summary Attendance statistics of a student
// @Tags Attendance
// @Produce json
// @Param id path string true "Class subject ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /class-subjects/{id}/students/{studentId}/attendance [get]
func (h *LessonHandler) StudentStats(c *gin.Context) {
	stats, err := h.lessons.StudentAttendanceStats(c.Request.Context(), c.Param("studentId"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// ClassStats godoc
// @Summary Attendance statistics of every student in a class subject
// @Tags Attendance
// @Produce json
// @Param id path string true "Class subject ID"
// @Success 200 {object} response.Envelope
// @Router /class-subjects/{id}/attendance [get]
func (h *LessonHandler) ClassStats(c *gin.Context) {
	stats, err := h.lessons.ClassAttendanceStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
