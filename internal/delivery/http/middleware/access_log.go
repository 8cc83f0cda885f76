package middleware

import (
	"time"

	"job-recommender/internal/logger"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"
	ctxRequestIDKey = "request_id"
)

type AccessLogMiddleware struct {
	log logger.Logger
}

func NewAccessLogMiddleware(log logger.Logger) *AccessLogMiddleware {
	return &AccessLogMiddleware{log: logger.OrNop(log)}
}

func (m *AccessLogMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		rid := c.Get(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(HeaderRequestID, rid)
		c.Locals(ctxRequestIDKey, rid)

		err := c.Next()
		if err != nil {
			// let the error handler write the status before it is logged
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		fields := map[string]interface{}{
			"rid":        rid,
			"ip":         c.IP(),
			"method":     c.Method(),
			"path":       c.OriginalURL(),
			"status":     status,
			"latency":    time.Since(start).String(),
			"req_bytes":  c.Request().Header.ContentLength(),
			"resp_bytes": len(c.Response().Body()),
			"ua":         c.Get("User-Agent"),
		}
		if uid, ok := c.Locals(CtxUserIDKey).(int64); ok {
			fields["user_id"] = uid
		}

		switch {
		case status >= 500:
			m.log.Error("http access", fields)
		case status >= 400:
			m.log.Warn("http access", fields)
		default:
			m.log.Info("http access", fields)
		}
		return nil
	}
}

func requestID(c fiber.Ctx) string {
	if rid, ok := c.Locals(ctxRequestIDKey).(string); ok {
		return rid
	}
	return c.Get(HeaderRequestID)
}
