package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

type seatingService interface {
	Create(ctx context.Context, classID string, req service.SeatingChartRequest) (*models.SeatingChart, error)
	ListByClass(ctx context.Context, classID string) ([]models.SeatingChart, error)
	Get(ctx context.Context, id string) (*models.SeatingChartDetail, error)
	UpdateLayout(ctx context.Context, id string, req service.SeatingLayoutRequest) (*models.SeatingChart, error)
	SaveAssignments(ctx context.Context, id string, req service.SaveSeatsRequest) (*models.SeatingChartDetail, error)
	Delete(ctx context.Context, id string) error
}

// SeatingHandler serves classroom seating charts.
type SeatingHandler struct {
	charts seatingService
}

func NewSeatingHandler(charts seatingService) *SeatingHandler {
	return &SeatingHandler{charts: charts}
}

// Create godoc
// @Summary Draw a seating chart
// @Tags Seating
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.SeatingChartRequest true "Chart size and layout"
// @Success 201 {object} response.Envelope{data=models.SeatingChart}
// @Router /classes/{id}/seating-charts [post]
func (h *SeatingHandler) Create(c *gin.Context) {
	var req service.SeatingChartRequest
	if !bindJSON(c, &req) {
		return
	}
	chart, err := h.charts.Create(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, chart)
}

// ListByClass godoc
// @Summary Seating charts of a class
// @Tags Seating
// @Security BearerAuth
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope{data=[]models.SeatingChart}
// @Router /classes/{id}/seating-charts [get]
func (h *SeatingHandler) ListByClass(c *gin.Context) {
	charts, err := h.charts.ListByClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, charts, nil)
}

// Get godoc
// @Summary Fetch a chart with its seats
// @Tags Seating
// @Security BearerAuth
// @Produce json
// @Param id path string true "Chart ID"
// @Success 200 {object} response.Envelope{data=models.SeatingChartDetail}
// @Failure 404 {object} response.Envelope
// @Router /seating-charts/{id} [get]
func (h *SeatingHandler) Get(c *gin.Context) {
	chart, err := h.charts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, chart, nil)
}

// UpdateLayout godoc
// @Summary Replace the cell markers of a chart
// @Tags Seating
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Chart ID"
// @Param payload body service.SeatingLayoutRequest true "Markers keyed row,col"
// @Success 200 {object} response.Envelope{data=models.SeatingChart}
// @Router /seating-charts/{id}/layout [put]
func (h *SeatingHandler) UpdateLayout(c *gin.Context) {
	var req service.SeatingLayoutRequest
	if !bindJSON(c, &req) {
		return
	}
	chart, err := h.charts.UpdateLayout(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, chart, nil)
}

// SaveAssignments godoc
// @Summary Save the seat plan
// @Description The payload replaces every seat of the chart.
// @Tags Seating
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Chart ID"
// @Param payload body service.SaveSeatsRequest true "Seats"
// @Success 200 {object} response.Envelope{data=models.SeatingChartDetail}
// @Failure 409 {object} response.Envelope "Seat or student used twice"
// @Router /seating-charts/{id}/seats [put]
func (h *SeatingHandler) SaveAssignments(c *gin.Context) {
	var req service.SaveSeatsRequest
	if !bindJSON(c, &req) {
		return
	}
	chart, err := h.charts.SaveAssignments(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, chart, nil)
}

// Delete godoc
// @Summary Delete a seating chart
// @Tags Seating
// @Security BearerAuth
// @Param id path string true "Chart ID"
// @Success 204
// @Router /seating-charts/{id} [delete]
func (h *SeatingHandler) Delete(c *gin.Context) {
	if err := h.charts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
