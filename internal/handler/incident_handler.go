package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

type incidentService interface {
	Create(ctx context.Context, classID string, req service.CreateIncidentRequest) (*models.Incident, error)
	ListByClass(ctx context.Context, classID string) ([]models.IncidentDetail, error)
	ListByStudent(ctx context.Context, studentID, classID string) ([]models.IncidentDetail, error)
	Delete(ctx context.Context, id string) error
}

// IncidentHandler exposes behavioural incident endpoints.
type IncidentHandler struct {
	incidents incidentService
}

// NewIncidentHandler constructs IncidentHandler.
func NewIncidentHandler(incidents incidentService) *IncidentHandler {
	return &IncidentHandler{incidents: incidents}
}

// Create godoc
// @Summary Record an incident
// @Description date defaults to today.
// @Tags Incidents
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.CreateIncidentRequest true "Incident payload"
// @Success 201 {object} response.Envelope
// @Router /classes/{id}/incidents [post]
func (h *IncidentHandler) Create(c *gin.Context) {
	var req service.CreateIncidentRequest
	if !bindJSON(c, &req) {
		return
	}
	incident, err := h.incidents.Create(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, incident)
}

// ListByClass godoc
// @Summary List incidents of a class
// @Tags Incidents
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/incidents [get]
func (h *IncidentHandler) ListByClass(c *gin.Context) {
	incidents, err := h.incidents.ListByClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, incidents, nil)
}

// ListByStudent godoc
// @Summary List incidents of a student
// @Tags Incidents
// @Produce json
// @Param id path string true "Student ID"
// @Param classId query string false "Restrict to one class"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/incidents [get]
func (h *IncidentHandler) ListByStudent(c *gin.Context) {
	incidents, err := h.incidents.ListByStudent(c.Request.Context(), c.Param("id"), c.Query("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, incidents, nil)
}

// Delete godoc
// @Summary Delete incident
// @Tags Incidents
// @Param id path string true "Incident ID"
// @Success 204
// @Router /incidents/{id} [delete]
func (h *IncidentHandler) Delete(c *gin.Context) {
	if err := h.incidents.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
