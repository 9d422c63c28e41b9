package migration

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/migrations"
	"github.com/Ramsey-B/fern/internal/repositories/legacy"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Register registers migration operations routes
func Register(g *echo.Group) {
	g.GET("", Status)
	g.POST("/legacy_rebuild", RebuildLegacy)
}

// Status returns the migration records and pending names for this store
func Status(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "migration_handler.Status")
	defer span.End()

	ctx, engine, err := ectoinject.GetContext[*migrations.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get migration engine")
	}

	status, err := engine.Status(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, status)
}

// RebuildLegacy materializes the legacy per-entry reading table from the
// shared store. Operator-invoked only.
func RebuildLegacy(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "migration_handler.RebuildLegacy")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*legacy.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	written, err := repo.RebuildLegacyTable(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"rows_written": written})
}
