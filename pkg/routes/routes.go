package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/routes/entry"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/routes/migration"
	"github.com/Ramsey-B/fern/pkg/routes/reading"
)

// Register builds the API surface: request context and logging middleware,
// the domain error handler, and every resource group under /api/v1.
func Register(e *echo.Echo, logger ectologger.Logger, checker *health.Checker) {
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	api := e.Group("/api/v1")
	reading.Register(api.Group("/readings"))
	entry.Register(api.Group("/entries"))
	migration.Register(api.Group("/migrations"))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if checker != nil {
		checker.RegisterRoutes(e)
	}
}
