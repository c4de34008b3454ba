package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adanyl0v/go-task-manager/internal/services"
)

const (
	msgInvalidRequestBody = "Invalid request body"
	msgNotAuthorized      = "Not authorized. Please log in."
	msgInvalidToken       = "Invalid token. Please log in again."
	msgTooManyRequests    = "Too many requests, please try again later."
	msgRouteNotFound      = "Route not found"
)

type apiError struct {
	Code    int
	Message string
}

func newAPIError(code int, message string) apiError {
	return apiError{
		Code:    code,
		Message: message,
	}
}

func (e apiError) Error() string {
	return e.Message
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func abort(c *gin.Context, err apiError) {
	c.AbortWithStatusJSON(err.Code, errorResponse{
		Success: false,
		Message: err.Message,
	})
}

func newStatusTextError(status int) apiError {
	return newAPIError(status, http.StatusText(status))
}

func newBadRequestError(message string) apiError {
	return newAPIError(http.StatusBadRequest, message)
}

func newUnauthorizedError(message string) apiError {
	return newAPIError(http.StatusUnauthorized, message)
}

func newNotFoundError(message string) apiError {
	return newAPIError(http.StatusNotFound, message)
}

// newServiceError maps an error returned by the services to the response
// the client sees. Unknown errors never leak their text.
func newServiceError(err error) apiError {
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return newBadRequestError(validationErr.Error())
	case errors.Is(err, services.ErrUserAlreadyExists):
		return newBadRequestError("Email already registered")
	case errors.Is(err, services.ErrInvalidTaskID):
		return newBadRequestError("Invalid ID format")
	case errors.Is(err, services.ErrInvalidCredentials):
		return newUnauthorizedError("Invalid email or password")
	case errors.Is(err, services.ErrUnauthorized):
		return newUnauthorizedError(msgInvalidToken)
	case errors.Is(err, services.ErrTaskNotFound):
		return newNotFoundError("Task not found")
	case errors.Is(err, services.ErrUserNotFound):
		return newNotFoundError("User not found")
	default:
		return newStatusTextError(http.StatusInternalServerError)
	}
}
