package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"lending/internal/services"
)

// retryAfterSeconds is advertised on 503 responses for transactions that lost a race.
const retryAfterSeconds = "1"

// statusFor maps a service error category to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrStateConflict), errors.Is(err, services.ErrCapacity):
		return http.StatusConflict
	case errors.Is(err, services.ErrQuotaExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, services.ErrRetryable):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": ...}. Internal failures are logged and reported
// without their details.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		log.Printf("[ERROR] %s %s (request %s): %v", c.Request.Method, c.FullPath(), requestID(c), err)
		c.JSON(status, gin.H{"error": "internal server error", "request_id": requestID(c)})
		return
	case http.StatusServiceUnavailable:
		c.Header("Retry-After", retryAfterSeconds)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
