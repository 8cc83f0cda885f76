package middleware

import (
	"errors"
	"fmt"

	"job-recommender/internal/logger"
	"job-recommender/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
)

type AppError struct {
	StatusCode int
	Message    string
	Data       interface{}
	Cause      error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewAppError(statusCode int, message string, data interface{}, cause error) *AppError {
	return &AppError{StatusCode: statusCode, Message: message, Data: data, Cause: cause}
}

// ErrorHandler is installed as fiber's ErrorHandler and turns any error into the response envelope.
// Details of 5xx errors are logged, never returned.
func ErrorHandler(log logger.Logger) fiber.ErrorHandler {
	log = logger.OrNop(log)
	return func(c fiber.Ctx, err error) error {
		status, msg, data := normalizeError(err)
		if status >= 500 {
			log.Error("request failed", map[string]interface{}{
				"method": c.Method(),
				"path":   c.Path(),
				"rid":    requestID(c),
				"err":    err,
			})
		}
		return response.Error(c, status, msg, data)
	}
}

// Recover converts a panic in a later handler into a 500.
func Recover(log logger.Logger) fiber.Handler {
	log = logger.OrNop(log)
	return func(c fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered", map[string]interface{}{"path": c.Path(), "panic": fmt.Sprint(r)})
				err = NewAppError(fiber.StatusInternalServerError, response.MessageInternalServerError, nil, fmt.Errorf("panic: %v", r))
			}
		}()
		return c.Next()
	}
}

func normalizeError(err error) (int, string, interface{}) {
	if err == nil {
		return fiber.StatusInternalServerError, response.MessageInternalServerError, nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.StatusCode
		if status <= 0 || status > 599 {
			return fiber.StatusInternalServerError, response.MessageInternalServerError, nil
		}
		if status >= 500 {
			return status, response.MessageForStatus(status), nil
		}
		msg := appErr.Message
		if msg == "" {
			msg = response.MessageForStatus(status)
		}
		return status, msg, appErr.Data
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		status := fiberErr.Code
		if status <= 0 || status > 599 {
			return fiber.StatusInternalServerError, response.MessageInternalServerError, nil
		}
		if status >= 500 {
			return status, response.MessageForStatus(status), nil
		}
		msg := fiberErr.Message
		if msg == "" {
			msg = response.MessageForStatus(status)
		}
		return status, msg, nil
	}

	return fiber.StatusInternalServerError, response.MessageInternalServerError, nil
}
