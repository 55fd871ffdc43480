package handler

import (
	"net/http"

	"salesflow/internal/middleware"
	"salesflow/internal/model"
	"salesflow/internal/service"
	"salesflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type WorkflowHandler struct {
	workflowService service.WorkflowService
	auth            *middleware.Authenticator
}

func NewWorkflowHandler(workflowService service.WorkflowService, auth *middleware.Authenticator) *WorkflowHandler {
	return &WorkflowHandler{workflowService: workflowService, auth: auth}
}

func (h *WorkflowHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/workflow")
	{
		group.GET("", h.auth.RequireRole(), h.GetConfig)
		group.PUT("", h.auth.RequireRole(model.RoleAdmin), h.UpsertConfig)
		group.POST("/validate", h.auth.RequireRole(), h.Validate)
	}
}

// GetConfig returns the company's transition rules
// @Summary      Get workflow configuration
// @Tags         workflow
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.WorkflowConfigResponse}
// @Router       /api/workflow [get]
func (h *WorkflowHandler) GetConfig(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	cfg, err := h.workflowService.GetConfig(c.Request.Context(), actor)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, cfg))
}

// UpsertConfig replaces the company's transition rules
// @Summary      Save workflow configuration
// @Description  Rule sets with repeated from/to pairs or incomplete conditions are rejected
// @Tags         workflow
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  service.UpsertWorkflowRequest  true  "Workflow configuration"
// @Success      200  {object}  response.Response{data=service.WorkflowConfigResponse}
// @Failure      400  {object}  response.Response
// @Router       /api/workflow [put]
func (h *WorkflowHandler) UpsertConfig(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req service.UpsertWorkflowRequest
	if !bindJSON(c, &req) {
		return
	}

	cfg, err := h.workflowService.UpsertConfig(c.Request.Context(), actor, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, cfg))
}

// Validate checks a hypothetical transition against the stored rules
// @Summary      Dry-run a transition
// @Tags         workflow
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  service.DryRunRequest  true  "Sale snapshot and target status"
// @Success      200  {object}  response.Response{data=workflow.Result}
// @Failure      400  {object}  response.Response
// @Router       /api/workflow/validate [post]
func (h *WorkflowHandler) Validate(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req service.DryRunRequest
	if !bindJSON(c, &req) {
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, h.workflowService.DryRun(c.Request.Context(), actor, req)))
}
