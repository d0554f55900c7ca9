package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"faq-rag/internal/api/handlers"
	"faq-rag/internal/embedding"
	"faq-rag/internal/llmservice"
	"faq-rag/internal/rag"
)

func SetupRouter(faqHandler *handlers.FAQHandler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))
	app.Use(requestLogger)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Post("/rebuild", faqHandler.Rebuild)
	api.Post("/ask", faqHandler.Ask)
	api.Get("/status", faqHandler.Status)

	return app
}

// StatusCode maps pipeline errors to HTTP status codes.
func StatusCode(err error) int {
	var (
		fiberErr   *fiber.Error
		timeoutErr *llmservice.TimeoutError
		genErr     *llmservice.GenerationError
		embedErr   *embedding.Error
	)
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, rag.ErrEmptyQuestion):
		return fiber.StatusBadRequest
	case errors.Is(err, rag.ErrNoIndex):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, rag.ErrBusy):
		return fiber.StatusConflict
	case errors.As(err, &timeoutErr):
		return fiber.StatusGatewayTimeout
	case errors.As(err, &genErr), errors.As(err, &embedErr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := StatusCode(err)
	if code >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Int("status", code).Msg("Request failed")
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		status = StatusCode(err)
	}
	log.Info().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Dur("latency", time.Since(start)).
		Msg("Request")
	return err
}
