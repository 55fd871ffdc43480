package handler

import (
	"net/http"
	"strings"

	"salesflow/internal/middleware"
	"salesflow/internal/model"
	"salesflow/internal/service"
	"salesflow/pkg/pagination"
	"salesflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// ClientHandler serves client intake
type ClientHandler struct {
	clientService service.ClientService
	auth          *middleware.Authenticator
}

func NewClientHandler(clientService service.ClientService, auth *middleware.Authenticator) *ClientHandler {
	return &ClientHandler{clientService: clientService, auth: auth}
}

func (h *ClientHandler) RegisterRoutes(router *gin.RouterGroup) {
	clients := router.Group("/clients")
	{
		clients.GET("", h.auth.RequireRole(), h.ListClients)
		clients.GET("/:id", h.auth.RequireRole(), h.GetClient)
		clients.POST("", h.auth.RequireRole(salesStaff...), h.CreateClient)
		clients.PUT("/:id", h.auth.RequireRole(salesStaff...), h.UpdateClient)
	}
}

// ListClients returns paginated clients with an optional search term
// @Summary      List clients
// @Tags         clients
// @Security     BearerAuth
// @Produce      json
// @Param        page    query     int     false  "Page number (default: 1)"
// @Param        limit   query     int     false  "Items per page (default: 20)"
// @Param        search  query     string  false  "Search by name, document or email"
// @Success      200     {object}  response.Response{data=response.Page}
// @Router       /api/clients [get]
func (h *ClientHandler) ListClients(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	clients, total, err := h.clientService.ListClients(c.Request.Context(), actor, strings.TrimSpace(c.Query("search")), p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, clients, p.Page, p.Limit, total))
}

// GetClient returns one client
// @Summary      Get client
// @Tags         clients
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response{data=model.Client}
// @Failure      404  {object}  response.Response
// @Router       /api/clients/{id} [get]
func (h *ClientHandler) GetClient(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	client, err := h.clientService.GetClient(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

// CreateClient registers a new client
// @Summary      Create client
// @Tags         clients
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  service.CreateClientRequest  true  "Client payload"
// @Success      201  {object}  response.Response{data=model.Client}
// @Failure      400  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/clients [post]
func (h *ClientHandler) CreateClient(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req service.CreateClientRequest
	if !bindJSON(c, &req) {
		return
	}

	client, err := h.clientService.CreateClient(c.Request.Context(), actor, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, client))
}

// UpdateClient changes the provided fields of a client
// @Summary      Update client
// @Tags         clients
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                       true  "Client ID"
// @Param        payload  body  service.UpdateClientRequest  true  "Update payload"
// @Success      200  {object}  response.Response{data=model.Client}
// @Failure      400  {object}  response.Response
// @Router       /api/clients/{id} [put]
func (h *ClientHandler) UpdateClient(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateClientRequest
	if !bindJSON(c, &req) {
		return
	}

	client, err := h.clientService.UpdateClient(c.Request.Context(), actor, id, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

// PlanHandler serves the plan catalog
type PlanHandler struct {
	planService service.PlanService
	auth        *middleware.Authenticator
}

func NewPlanHandler(planService service.PlanService, auth *middleware.Authenticator) *PlanHandler {
	return &PlanHandler{planService: planService, auth: auth}
}

func (h *PlanHandler) RegisterRoutes(router *gin.RouterGroup) {
	plans := router.Group("/plans")
	{
		plans.GET("", h.auth.RequireRole(), h.ListPlans)
		plans.GET("/:id", h.auth.RequireRole(), h.GetPlan)
		plans.POST("", h.auth.RequireRole(model.RoleAdmin), h.CreatePlan)
		plans.PUT("/:id", h.auth.RequireRole(model.RoleAdmin), h.UpdatePlan)
	}
}

// ListPlans returns the plan catalog
// @Summary      List plans
// @Tags         plans
// @Security     BearerAuth
// @Produce      json
// @Param        active  query     bool  false  "Only active plans"
// @Success      200     {object}  response.Response{data=[]model.Plan}
// @Router       /api/plans [get]
func (h *PlanHandler) ListPlans(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	plans, err := h.planService.ListPlans(c.Request.Context(), actor, c.Query("active") == "true")
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, plans))
}

// GetPlan returns one plan
// @Summary      Get plan
// @Tags         plans
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Plan ID"
// @Success      200  {object}  response.Response{data=model.Plan}
// @Failure      404  {object}  response.Response
// @Router       /api/plans/{id} [get]
func (h *PlanHandler) GetPlan(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	plan, err := h.planService.GetPlan(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, plan))
}

// CreatePlan adds a plan to the catalog
// @Summary      Create plan
// @Tags         plans
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  service.CreatePlanRequest  true  "Plan payload"
// @Success      201  {object}  response.Response{data=model.Plan}
// @Failure      400  {object}  response.Response
// @Router       /api/plans [post]
func (h *PlanHandler) CreatePlan(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req service.CreatePlanRequest
	if !bindJSON(c, &req) {
		return
	}

	plan, err := h.planService.CreatePlan(c.Request.Context(), actor, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, plan))
}

// UpdatePlan changes the provided fields of a plan
// @Summary      Update plan
// @Tags         plans
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                     true  "Plan ID"
// @Param        payload  body  service.UpdatePlanRequest  true  "Update payload"
// @Success      200  {object}  response.Response{data=model.Plan}
// @Failure      400  {object}  response.Response
// @Router       /api/plans/{id} [put]
func (h *PlanHandler) UpdatePlan(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.UpdatePlanRequest
	if !bindJSON(c, &req) {
		return
	}

	plan, err := h.planService.UpdatePlan(c.Request.Context(), actor, id, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, plan))
}
