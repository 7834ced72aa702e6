package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

type coverageService interface {
	ForClassSubject(ctx context.Context, classSubjectID string) (*models.CoverageReport, error)
}

// CoverageHandler exposes curriculum coverage.
type CoverageHandler struct {
	coverage coverageService
}

// NewCoverageHandler constructs CoverageHandler.
func NewCoverageHandler(coverage coverageService) *CoverageHandler {
	return &CoverageHandler{coverage: coverage}
}

// Get godoc
// @Summary BNCC coverage of a class subject
// @Tags Coverage
// @Produce json
// @Param id path string true "Class subject ID"
// @Success 200 {object} response.Envelope
// @Router /class-subjects/{id}/coverage [get]
func (h *CoverageHandler) Get(c *gin.Context) {
	report, err := h.coverage.ForClassSubject(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
