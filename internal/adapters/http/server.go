package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
)

// NewApp builds the Fiber application serving the session API.
func NewApp(handler *SessionHandler, log logrus.FieldLogger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "lighthouse-sandbox",
		DisableStartupMessage: true,
		// Provisioning blocks until Azure finishes, which takes minutes.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"message": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(RequestLogger(log))

	handler.Register(app)
	return app
}

// RequestLogger logs one entry per request once the response is written.
func RequestLogger(log logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// Write the error response now so the logged status is the one sent.
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		entry := log.WithFields(logrus.Fields{
			"request_id":           c.GetRespHeader(fiber.HeaderXRequestID),
			"request_method":       c.Method(),
			"request_path":         c.Path(),
			"request_remote_addr":  c.IP(),
			"request_user_agent":   c.Get(fiber.HeaderUserAgent),
			"response_status_code": c.Response().StatusCode(),
			"duration":             time.Since(start).Seconds(),
		})
		if err != nil {
			entry.WithError(err).Warn("send response")
		} else {
			entry.Info("send response")
		}
		return nil
	}
}
