package handler

import (
	"errors"
	"net/http"
	"strconv"

	"salesflow/internal/middleware"
	"salesflow/internal/model"
	"salesflow/internal/service"
	"salesflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// roles allowed to edit clients, sales and signature requests
var salesStaff = []string{model.RoleAdmin, model.RoleSupervisor, model.RoleSeller}

// actorFrom builds the service actor from the identity RequireRole stored.
// It aborts with 401 when the route was mounted without authentication.
func actorFrom(c *gin.Context) (service.Actor, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User identity not found in context"))
		return service.Actor{}, false
	}
	return service.Actor{UserID: id.UserID, CompanyID: id.CompanyID, Role: id.Role}, true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid "+name+" format"))
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return false
	}
	return true
}

// writeError maps service errors onto HTTP status codes
func writeError(c *gin.Context, err error) {
	var rejected *service.TransitionRejectedError
	if errors.As(err, &rejected) {
		c.JSON(http.StatusUnprocessableEntity, response.ErrorWithData(http.StatusUnprocessableEntity, err.Error(), gin.H{
			"from":    rejected.From,
			"to":      rejected.To,
			"reasons": rejected.Reasons,
		}))
		return
	}

	var locked *service.LoginLockedError
	if errors.As(err, &locked) {
		retry := int(locked.RetryAfter.Seconds() + 0.5)
		c.Header("Retry-After", strconv.Itoa(retry))
		c.JSON(http.StatusTooManyRequests, response.ErrorWithData(http.StatusTooManyRequests, err.Error(), gin.H{
			"retry_after_seconds": retry,
		}))
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrAlreadySigned):
		status = http.StatusConflict
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrStorageDisabled):
		status = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "Internal server error"
	}
	c.JSON(status, response.Error(status, msg))
}
