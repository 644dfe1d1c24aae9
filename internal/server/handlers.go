package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/userdb/userdb/internal/users"
)

type userBody struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// bindBody decodes the JSON body and writes the error response when it cannot.
func bindBody(c *gin.Context, body *userBody) bool {
	err := c.ShouldBindJSON(body)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit),
		})
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
	return false
}

func healthCheck(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := as.UserService.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"timestamp": time.Now().Format(time.RFC3339),
				"error":     err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

func addUser(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body userBody
		if !bindBody(c, &body) {
			return
		}

		result, err := as.UserService.AddUser(c.Request.Context(), &users.AddUserRequest{
			Name:  body.Name,
			Email: body.Email,
		})
		if err != nil {
			writeError(c, as.Logger, err)
			return
		}

		if result.Outcome == users.OutcomeAlreadyExists {
			c.JSON(http.StatusOK, result)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func updateUser(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
			return
		}

		var body userBody
		if !bindBody(c, &body) {
			return
		}

		result, err := as.UserService.UpdateUser(c.Request.Context(), &users.UpdateUserRequest{
			ID:    id,
			Name:  body.Name,
			Email: body.Email,
		})
		if err != nil {
			writeError(c, as.Logger, err)
			return
		}

		if result.Outcome == users.OutcomeNotFound {
			c.JSON(http.StatusNotFound, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func deleteUser(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := c.Param("identifier")

		result, err := as.UserService.DeleteUser(c.Request.Context(), identifier)
		if err != nil {
			writeError(c, as.Logger, err)
			return
		}

		if result.Outcome == users.OutcomeNotFound {
			c.JSON(http.StatusNotFound, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func listUsers(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := as.UserService.ListUsers(c.Request.Context())
		if err != nil {
			writeError(c, as.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": list})
	}
}

func searchUsers(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := as.UserService.SearchUsers(c.Request.Context(), c.Query("q"))
		if err != nil {
			writeError(c, as.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": list})
	}
}

// writeError maps the service's typed errors onto status codes
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var ve *users.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": ve.Field})
	case errors.Is(err, users.ErrDuplicateConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Duplicate name or email", "outcome": users.StorageErrorTypeDuplicateConflict})
	case errors.Is(err, users.ErrConnection), errors.Is(err, users.ErrClosed):
		logger.Error("Store unavailable", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store unavailable"})
	default:
		logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
