package handler

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shulehub/discipline-api/internal/models"
	"github.com/shulehub/discipline-api/internal/service"
	appErrors "github.com/shulehub/discipline-api/pkg/errors"
	"github.com/shulehub/discipline-api/pkg/response"
	"github.com/shulehub/discipline-api/pkg/storage"
)

// maxUploadBytes caps multipart uploads (pictures, evidence).
const maxUploadBytes = 5 << 20

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// StudentHandler exposes the student roster endpoints.
type StudentHandler struct {
	students *service.StudentService
	uploads  *storage.LocalStorage
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students *service.StudentService, uploads *storage.LocalStorage) *StudentHandler {
	return &StudentHandler{students: students, uploads: uploads}
}

// List godoc
// @Summary List students visible to the acting user
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param search query string false "Match against name or admission number"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param sort_by query string false "Sort column"
// @Param sort_order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.StudentFilter{
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	students, pagination, err := h.students.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Fetch a single student
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	student, err := h.students.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create godoc
// @Summary Register a student
// @Tags Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.StudentRequest true "Student"
// @Success 201 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.StudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	student, err := h.students.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update a student record
// @Tags Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param payload body service.StudentRequest true "Student"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.StudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	student, err := h.students.Update(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// UploadPicture godoc
// @Summary Attach a picture to a student
// @Tags Students
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param picture formData file true "Image file"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/picture [post]
func (h *StudentHandler) UploadPicture(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	header, err := c.FormFile("picture")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "picture file is required"))
		return
	}
	if header.Size > maxUploadBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "picture exceeds the 5MB limit"))
		return
	}
	if !imageExts[strings.ToLower(filepath.Ext(header.Filename))] {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "picture must be a jpg, jpeg, png or webp file"))
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	ref, err := h.uploads.SaveStream("students", header.Filename, file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to store picture"))
		return
	}

	student, err := h.students.SetPicture(c.Request.Context(), claims, c.Param("id"), ref)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Delete a student and their reports
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 204
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.students.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
