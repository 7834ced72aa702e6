package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

type dashboardService interface {
	Overview(ctx context.Context) (*dto.DashboardResponse, bool, error)
	GlobalStats(ctx context.Context) (*models.GlobalStats, error)
	IncidentRanking(ctx context.Context, limit int) ([]models.ClassIncidentCount, error)
	CourseAverages(ctx context.Context, courseID string) (*models.CourseAverages, error)
	StudentPerformance(ctx context.Context, studentID, classID string) (*models.StudentPerformance, error)
	StudentsAtRisk(ctx context.Context, classID string, gradeThreshold *float64, incidentThreshold *int) ([]models.StudentAtRisk, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Overview godoc
// @Summary School dashboard
// @Description Counters, classes ranked by incidents and the pass/fail breakdown of final grades.
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope{data=dto.DashboardResponse}
// @Router /dashboard [get]
func (h *DashboardHandler) Overview(c *gin.Context) {
	start := time.Now()
	summary, cacheHit, err := h.service.Overview(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{
		"cache_hit":          cacheHit,
		"processing_time_ms": time.Since(start).Milliseconds(),
	}
	response.JSON(c, http.StatusOK, summary, nil, meta)
}

// Stats godoc
// @Summary Global counters
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope{data=models.GlobalStats}
// @Router /dashboard/stats [get]
func (h *DashboardHandler) Stats(c *gin.Context) {
	stats, err := h.service.GlobalStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// IncidentRanking godoc
// @Summary Classes with the most incidents
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Number of classes (default 5)"
// @Success 200 {object} response.Envelope{data=[]models.ClassIncidentCount}
// @Router /dashboard/incident-ranking [get]
func (h *DashboardHandler) IncidentRanking(c *gin.Context) {
	ranking, err := h.service.IncidentRanking(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ranking, nil)
}

// CourseAverages godoc
// @Summary Student averages in a course
// @Description Weighted averages of every active student taking the course, across classes.
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope{data=models.CourseAverages}
// @Router /courses/{id}/averages [get]
func (h *DashboardHandler) CourseAverages(c *gin.Context) {
	averages, err := h.service.CourseAverages(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, averages, nil)
}

// StudentPerformance godoc
// @Summary Weighted average and incidents of one student
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Param id path string true "Class ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope{data=models.StudentPerformance}
// @Router /classes/{id}/students/{studentId}/performance [get]
func (h *DashboardHandler) StudentPerformance(c *gin.Context) {
	perf, err := h.service.StudentPerformance(c.Request.Context(), c.Param("studentId"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, perf, nil)
}

// StudentsAtRisk godoc
// @Summary Students at risk in a class
// @Description Students whose average is below the grade threshold or whose incident count reaches the incident threshold.
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Param id path string true "Class ID"
// @Param grade_threshold query number false "Average below this is at risk (default 5)"
// @Param incident_threshold query int false "Incidents at or above this are at risk (default 2)"
// @Success 200 {object} response.Envelope{data=[]models.StudentAtRisk}
// @Failure 400 {object} response.Envelope
// @Router /classes/{id}/students-at-risk [get]
func (h *DashboardHandler) StudentsAtRisk(c *gin.Context) {
	grade, err := queryFloatPtr(c, "grade_threshold")
	if err != nil {
		response.Error(c, err)
		return
	}
	incidents, err := queryIntPtr(c, "incident_threshold")
	if err != nil {
		response.Error(c, err)
		return
	}
	students, err := h.service.StudentsAtRisk(c.Request.Context(), c.Param("id"), grade, incidents)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}
