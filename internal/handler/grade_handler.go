package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

type gradeService interface {
	ListAssessments(ctx context.Context, classSubjectID string) ([]models.Assessment, error)
	GetAssessment(ctx context.Context, id string) (*models.Assessment, error)
	CreateAssessment(ctx context.Context, classSubjectID string, req service.CreateAssessmentRequest) (*models.Assessment, error)
	UpdateAssessment(ctx context.Context, id string, req service.UpdateAssessmentRequest) (*models.Assessment, error)
	DeleteAssessment(ctx context.Context, id string) error
	EnsureFinalAssessment(ctx context.Context, classSubjectID string) (*models.Assessment, error)
	UpsertScores(ctx context.Context, classSubjectID string, req service.UpsertScoresRequest) ([]models.Score, error)
	SetFinalOverride(ctx context.Context, classSubjectID, studentID string, req service.FinalOverrideRequest) (*models.Score, error)
	ClearFinalOverride(ctx context.Context, classSubjectID, studentID string) error
	StudentRollup(ctx context.Context, studentID, classSubjectID string) (*models.StudentRollup, error)
	ClassRollups(ctx context.Context, classSubjectID string) (*models.ClassRollupReport, error)
}

// GradeHandler exposes assessment, score and rollup endpoints.
type GradeHandler struct {
	grades gradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades gradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// ListAssessments godoc
// @Summary List assessments of a class subject
// @Tags Grades
// @Produce json
// @Param id path string true "Class subject ID"
// @Success 200 {object} response.Envelope
// @Router /class-subjects/{id}/assessments [get]
func (h *GradeHandler) ListAssessments(c *gin.Context) {
	assessments, err := h.grades.ListAssessments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessments, nil)
}

// CreateAssessment godoc
// @Summary Create assessment
// @Description grading_period defaults to 1; period 5 is the manual final slot and only one may exist.
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Class subject ID"
// @Param payload body service.CreateAssessmentRequest true "Assessment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /class-subjects/{id}/assessments [post]
func (h *GradeHandler) CreateAssessment(c *gin.Context) {
	var req service.CreateAssessmentRequest
	if !bindJSON(c, &req) {
		return
	}
	assessment, err := h.grades.CreateAssessment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assessment)
}

// EnsureFinal godoc
// @Summary Get or create the final assessment
// @Tags Grades
// @Produce json
// @Param id path string true "Class subject ID"
// @Success 200 {object} response.Envelope
// @Router /class-subjects/{id}/assessments/final [post]
func (h *GradeHandler) EnsureFinal(c *gin.Context) {
	assessment, err := h.grades.EnsureFinalAssessment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}

// GetAssessment godoc
// @Summary Get assessment
// @Tags Grades
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id} [get]
func (h *GradeHandler) GetAssessment(c *gin.Context) {
	assessment, err := h.grades.GetAssessment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}

// UpdateAssessment godoc
// @Summary Update assessment
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param payload body service.UpdateAssessmentRequest true "Assessment payload"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id} [put]
func (h *GradeHandler) UpdateAssessment(c *gin.Context) {
	var req service.UpdateAssessmentRequest
	if !bindJSON(c, &req) {
		return
	}
	assessment, err := h.grades.UpdateAssessment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}

// DeleteAssessment godoc
// @Summary Delete assessment and its scores
// @Tags Grades
// @Param id path string true "Assessment ID"
// @Success 204
// @Router /assessments/{id} [delete]
func (h *GradeHandler) DeleteAssessment(c *gin.Context) {
	if err := h.grades.DeleteAssessment(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpsertScores godoc
// @Summary Record scores in bulk
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Class subject ID"
// @Param payload body service.UpsertScoresRequest true "Scores"
// @Success 200 {object} response.Envelope
// @Router /class-subjects/{id}/scores [put]
func (h *GradeHandler) UpsertScores(c *gin.Context) {
	var req service.UpsertScoresRequest
	if !bindJSON(c, &req) {
		return
	}
	scores, err := h.grades.UpsertScores(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scores, nil)
}

// SetFinalOverride godoc
// @Summary Set manual final grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Class subject ID"
// @Param studentId path string true "Student ID"
// @Param payload body service.FinalOverrideRequest true "Override"
// @Success 200 {object} response.Envelope
// @Router /class-subjects/{id}/students/{studentId}/final-override [put]
func (h *GradeHandler) SetFinalOverride(c *gin.Context) {
	var req service.FinalOverrideRequest
	if !bindJSON(c, &req) {
		return
	}
	score, err := h.grades.SetFinalOverride(c.Request.Context(), c.Param("id"), c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, score, nil)
}

// ClearFinalOverride godoc
// @Summary Clear manual final grade
// @Tags Grades
// @Param id path string true "Class subject ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Router /class-subjects/{id}/students/{studentId}/final-override [delete]
func (h *GradeHandler) ClearFinalOverride(c *gin.Context) {
	if err := h.grades.ClearFinalOverride(c.Request.Context(), c.Param("id"), c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// StudentRollup godoc
// @Summary Period averages for one student
// @Tags Grades
// @Produce json
// @Param id path string true "Class subject ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /class-subjects/{id}/students/{studentId}/rollup [get]
func (h *GradeHandler) StudentRollup(c *gin.Context) {
	rollup, err := h.grades.StudentRollup(c.Request.Context(), c.Param("studentId"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rollup, nil)
}

// ClassRollups godoc
// @Summary Period averages for every active student
// @Tags Grades
// @Produce json
// @Param id path string true "Class subject ID"
// @Success 200 {object} response.Envelope
// @Router /class-subjects/{id}/rollups [get]
func (h *GradeHandler) ClassRollups(c *gin.Context) {
	report, err := h.grades.ClassRollups(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
