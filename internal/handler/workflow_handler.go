package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/program-enrollment-api/internal/dto"
	"github.com/noah-isme/program-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/program-enrollment-api/pkg/errors"
	"github.com/noah-isme/program-enrollment-api/pkg/response"
)

type workflowService interface {
	Open(personUID string) (*service.WorkflowSnapshot, error)
	Snapshot(ctx context.Context, workflowID string) (*service.WorkflowSnapshot, error)
	Refresh(workflowID string) error
	Close(workflowID string) error
	BeginEnrollment(ctx context.Context, workflowID, programUID string) (*service.EnrollmentAttempt, error)
	Attempt(ctx context.Context, workflowID, attemptID string) (*service.EnrollmentAttempt, error)
	ConfirmDate(ctx context.Context, workflowID, attemptID string, date time.Time) (*service.EnrollmentAttempt, error)
	SelectOrgUnit(ctx context.Context, workflowID, attemptID, orgUnitUID string) (*service.EnrollmentAttempt, error)
	CancelEnrollment(ctx context.Context, workflowID, attemptID string) (*service.EnrollmentAttempt, error)
	ProgramColor(ctx context.Context, programUID string) (string, error)
}

// WorkflowHandler exposes program list workflows and enrollment attempts.
type WorkflowHandler struct {
	service  workflowService
	validate *validator.Validate
	location *time.Location
}

// NewWorkflowHandler builds a new handler. Dates are parsed in location (time.Local when nil).
func NewWorkflowHandler(service workflowService, validate *validator.Validate, location *time.Location) *WorkflowHandler {
	if validate == nil {
		validate = validator.New()
	}
	if location == nil {
		location = time.Local
	}
	return &WorkflowHandler{service: service, validate: validate, location: location}
}

// Open godoc
// @Summary Open a program list workflow for a person
// @Tags Workflows
// @Produce json
// @Param personId path string true "Person UID"
// @Success 201 {object} response.Envelope
// @Router /persons/{personId}/workflows [post]
func (h *WorkflowHandler) Open(c *gin.Context) {
	snapshot, err := h.service.Open(c.Param("personId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.WorkflowOpenedResponse{ID: snapshot.ID, PersonUID: snapshot.PersonUID})
}

// Get godoc
// @Summary Get the workflow snapshot
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 200 {object} response.Envelope
// @Router /workflows/{id} [get]
func (h *WorkflowHandler) Get(c *gin.Context) {
	snapshot, err := h.service.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot)
}

// Refresh godoc
// @Summary Re-run the catalog pipeline
// @Tags Workflows
// @Param id path string true "Workflow ID"
// @Success 202 {object} response.Envelope
// @Router /workflows/{id}/refresh [post]
func (h *WorkflowHandler) Refresh(c *gin.Context) {
	if err := h.service.Refresh(c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"id": c.Param("id")})
}

// Close godoc
// @Summary Close the workflow and cancel outstanding work
// @Tags Workflows
// @Param id path string true "Workflow ID"
// @Success 204
// @Router /workflows/{id} [delete]
func (h *WorkflowHandler) Close(c *gin.Context) {
	if err := h.service.Close(c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// BeginEnrollment godoc
// @Summary Start an enrollment attempt
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Workflow ID"
// @Param payload body dto.BeginEnrollmentRequest true "Program"
// @Success 201 {object} response.Envelope
// @Router /workflows/{id}/enrollments [post]
func (h *WorkflowHandler) BeginEnrollment(c *gin.Context) {
	var req dto.BeginEnrollmentRequest
	if !h.bind(c, &req) {
		return
	}
	attempt, err := h.service.BeginEnrollment(c.Request.Context(), c.Param("id"), req.ProgramUID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attempt)
}

// GetEnrollment godoc
// @Summary Get an enrollment attempt
// @Tags Enrollments
// @Produce json
// @Param id path string true "Workflow ID"
// @Param attemptId path string true "Attempt ID"
// @Success 200 {object} response.Envelope
// @Router /workflows/{id}/enrollments/{attemptId} [get]
func (h *WorkflowHandler) GetEnrollment(c *gin.Context) {
	attempt, err := h.service.Attempt(c.Request.Context(), c.Param("id"), c.Param("attemptId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attempt)
}

// ConfirmDate godoc
// @Summary Confirm the enrollment date
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Workflow ID"
// @Param attemptId path string true "Attempt ID"
// @Param payload body dto.ConfirmDateRequest true "Date"
// @Success 200 {object} response.Envelope
// @Router /workflows/{id}/enrollments/{attemptId}/date [post]
func (h *WorkflowHandler) ConfirmDate(c *gin.Context) {
	var req dto.ConfirmDateRequest
	if !h.bind(c, &req) {
		return
	}
	date, err := time.ParseInLocation(dto.DateLayout, req.Date, h.location)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date"))
		return
	}
	attempt, err := h.service.ConfirmDate(c.Request.Context(), c.Param("id"), c.Param("attemptId"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attempt)
}

// SelectOrgUnit godoc
// @Summary Choose the organisation unit
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Workflow ID"
// @Param attemptId path string true "Attempt ID"
// @Param payload body dto.SelectOrgUnitRequest true "Organisation unit"
// @Success 200 {object} response.Envelope
// @Router /workflows/{id}/enrollments/{attemptId}/org-unit [post]
func (h *WorkflowHandler) SelectOrgUnit(c *gin.Context) {
	var req dto.SelectOrgUnitRequest
	if !h.bind(c, &req) {
		return
	}
	attempt, err := h.service.SelectOrgUnit(c.Request.Context(), c.Param("id"), c.Param("attemptId"), req.OrgUnitUID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attempt)
}

// CancelEnrollment godoc
// @Summary Cancel an enrollment attempt waiting on a prompt
// @Tags Enrollments
// @Produce json
// @Param id path string true "Workflow ID"
// @Param attemptId path string true "Attempt ID"
// @Success 200 {object} response.Envelope
// @Router /workflows/{id}/enrollments/{attemptId}/cancel [post]
func (h *WorkflowHandler) CancelEnrollment(c *gin.Context) {
	attempt, err := h.service.CancelEnrollment(c.Request.Context(), c.Param("id"), c.Param("attemptId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attempt)
}

// ProgramColor godoc
// @Summary Get a program's color token
// @Tags Programs
// @Produce json
// @Param uid path string true "Program UID"
// @Success 200 {object} response.Envelope
// @Router /programs/{uid}/color [get]
func (h *WorkflowHandler) ProgramColor(c *gin.Context) {
	uid := c.Param("uid")
	color, err := h.service.ProgramColor(c.Request.Context(), uid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ProgramColorResponse{ProgramUID: uid, Color: color})
}

func (h *WorkflowHandler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return false
	}
	return true
}
