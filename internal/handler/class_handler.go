package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

type classService interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassSummary, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Class, error)
	Create(ctx context.Context, req service.ClassRequest) (*models.Class, error)
	Rename(ctx context.Context, id string, req service.ClassRequest) (*models.Class, error)
	Delete(ctx context.Context, id string) error
	AddSubject(ctx context.Context, classID string, req service.AddSubjectRequest) (*models.ClassSubjectDetail, error)
	ListSubjects(ctx context.Context, classID string) ([]models.ClassSubjectDetail, error)
	GetSubject(ctx context.Context, id string) (*models.ClassSubjectDetail, error)
	RemoveSubject(ctx context.Context, id string) error
	Copy(ctx context.Context, sourceID string, req service.CopyClassRequest) (*models.ClassCopyResult, error)
}

// ClassHandler serves classes and the courses offered to them. An offering
// is addressed as a class subject under /class-subjects.
type ClassHandler struct {
	classes classService
}

func NewClassHandler(classes classService) *ClassHandler {
	return &ClassHandler{classes: classes}
}

// List godoc
// @Summary Browse classes
// @Description Each row carries its active roster size and number of offerings.
// @Tags Classes
// @Security BearerAuth
// @Produce json
// @Param search query string false "Name fragment"
// @Param sort query string false "name or created_at"
// @Param order query string false "asc or desc"
// @Param page query int false "Page number"
// @Param limit query int false "Rows per page"
// @Success 200 {object} response.Envelope{data=[]models.ClassSummary}
// @Router /classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	classes, page, err := h.classes.List(c.Request.Context(), models.ClassFilter{ListQuery: listQuery(c)})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, page)
}

// Get godoc
// @Summary Fetch one class
// @Tags Classes
// @Security BearerAuth
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope{data=models.Class}
// @Failure 404 {object} response.Envelope
// @Router /classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	class, err := h.classes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Create godoc
// @Summary Open a class
// @Tags Classes
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body service.ClassRequest true "Class name"
// @Success 201 {object} response.Envelope{data=models.Class}
// @Router /classes [post]
func (h *ClassHandler) Create(c *gin.Context) {
	var req service.ClassRequest
	if !bindJSON(c, &req) {
		return
	}
	created, err := h.classes.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Update godoc
// @Summary Rename a class
// @Tags Classes
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.ClassRequest true "New name"
// @Success 200 {object} response.Envelope{data=models.Class}
// @Failure 404 {object} response.Envelope
// @Router /classes/{id} [put]
func (h *ClassHandler) Update(c *gin.Context) {
	var req service.ClassRequest
	if !bindJSON(c, &req) {
		return
	}
	renamed, err := h.classes.Rename(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, renamed, nil)
}

// Delete godoc
// @Summary Close a class
// @Description Removes the class with its offerings and enrollments.
// @Tags Classes
// @Security BearerAuth
// @Param id path string true "Class ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /classes/{id} [delete]
func (h *ClassHandler) Delete(c *gin.Context) {
	if err := h.classes.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Copy godoc
// @Summary Duplicate a class
// @Description Creates a class under a new name, optionally copying its subjects, their assessments and its active roster. Copied students are renumbered from 1.
// @Tags Classes
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Source class ID"
// @Param payload body service.CopyClassRequest true "New name and what to copy"
// @Success 201 {object} response.Envelope{data=models.ClassCopyResult}
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Name already taken"
// @Router /classes/{id}/copy [post]
func (h *ClassHandler) Copy(c *gin.Context) {
	var req service.CopyClassRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.classes.Copy(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ListSubjects godoc
// @Summary Courses offered to a class
// @Tags Classes
// @Security BearerAuth
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope{data=[]models.ClassSubjectDetail}
// @Failure 404 {object} response.Envelope
// @Router /classes/{id}/subjects [get]
func (h *ClassHandler) ListSubjects(c *gin.Context) {
	subjects, err := h.classes.ListSubjects(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}

// AddSubject godoc
// @Summary Offer a course to a class
// @Tags Classes
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.AddSubjectRequest true "Course to offer"
// @Success 201 {object} response.Envelope{data=models.ClassSubjectDetail}
// @Failure 404 {object} response.Envelope "Unknown class or course"
// @Failure 409 {object} response.Envelope "Course already offered"
// @Router /classes/{id}/subjects [post]
func (h *ClassHandler) AddSubject(c *gin.Context) {
	var req service.AddSubjectRequest
	if !bindJSON(c, &req) {
		return
	}
	subject, err := h.classes.AddSubject(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subject)
}

// GetSubject godoc
// @Summary Fetch one offering
// @Tags Classes
// @Security BearerAuth
// @Produce json
// @Param id path string true "Class subject ID"
// @Success 200 {object} response.Envelope{data=models.ClassSubjectDetail}
// @Failure 404 {object} response.Envelope
// @Router /class-subjects/{id} [get]
func (h *ClassHandler) GetSubject(c *gin.Context) {
	subject, err := h.classes.GetSubject(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject, nil)
}

// RemoveSubject godoc
// @Summary Withdraw an offering
// @Description Assessments, scores and lessons of the offering are removed with it.
// @Tags Classes
// @Security BearerAuth
// @Param id path string true "Class subject ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /class-subjects/{id} [delete]
func (h *ClassHandler) RemoveSubject(c *gin.Context) {
	if err := h.classes.RemoveSubject(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
