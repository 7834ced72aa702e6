package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

type enrollmentService interface {
	ListByClass(ctx context.Context, classID string, status models.EnrollmentStatus) ([]models.EnrollmentDetail, error)
	Enroll(ctx context.Context, classID string, req service.EnrollStudentsRequest) ([]models.Enrollment, error)
	AddStudent(ctx context.Context, classID string, req service.AddEnrollmentRequest) (*models.Enrollment, error)
	NextCallNumber(ctx context.Context, classID string) (int, error)
	UpdateStatus(ctx context.Context, id string, req service.UpdateEnrollmentStatusRequest) (*models.EnrollmentDetail, error)
}

// EnrollmentHandler exposes class roster endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// List godoc
// @Summary List class roster
// @Tags Enrollments
// @Produce json
// @Param id path string true "Class ID"
// @Param status query string false "Active or Inactive"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	status := models.EnrollmentStatus(c.Query("status"))
	enrollments, err := h.enrollments.ListByClass(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// Enroll godoc
// @Summary Enroll students in bulk
// @Description Students receive sequential call numbers in request order.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.EnrollStudentsRequest true "Student IDs"
// @Success 201 {object} response.Envelope
// @Router /classes/{id}/enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req service.EnrollStudentsRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollments, err := h.enrollments.Enroll(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollments)
}

// AddStudent godoc
// @Summary Enroll a single student
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.AddEnrollmentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /classes/{id}/enrollments/student [post]
func (h *EnrollmentHandler) AddStudent(c *gin.Context) {
	var req service.AddEnrollmentRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.AddStudent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// NextCallNumber godoc
// @Summary Next free call number
// @Tags Enrollments
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/enrollments/next-call-number [get]
func (h *EnrollmentHandler) NextCallNumber(c *gin.Context) {
	next, err := h.enrollments.NextCallNumber(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"call_number": next}, nil)
}

// UpdateStatus godoc
// @Summary Activate or deactivate an enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.UpdateEnrollmentStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/status [patch]
func (h *EnrollmentHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateEnrollmentStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}
