package entry

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/entry"
	"github.com/Ramsey-B/fern/internal/repositories/legacy"
	"github.com/Ramsey-B/fern/internal/repositories/reading"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Register registers entry routes, including the per-entry reading views
func Register(g *echo.Group) {
	g.POST("", Create)
	g.GET("", List)
	g.GET("/:id", Get)
	g.PUT("/:id/readings_enabled", SetReadingsEnabled)
	g.GET("/:id/readings", ListReadings)
	g.GET("/:id/readings/summary", SummarizeReadings)
	g.GET("/:id/readings/stats", ReadingStats)
	g.GET("/:id/legacy_readings", LegacyReadings)
}

// Create creates a new entry
func Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "entry_handler.Create")
	defer span.End()

	var req models.CreateEntryRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*entry.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	result, err := repo.Create(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, result)
}

// List returns all entries
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "entry_handler.List")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*entry.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, err := repo.List(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, items)
}

// Get returns a single entry by ID
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "entry_handler.Get")
	defer span.End()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*entry.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	result, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if result == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "entry not found")
	}

	return c.JSON(http.StatusOK, result)
}

// SetReadingsEnabled toggles whether the entry accepts new readings
func SetReadingsEnabled(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "entry_handler.SetReadingsEnabled")
	defer span.End()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, repo, err := ectoinject.GetContext[*entry.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	if err := repo.SetReadingsEnabled(ctx, id, req.Enabled); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// ListReadings returns the readings linked to the entry, newest first. An
// optional kind query param filters to one kind.
func ListReadings(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "entry_handler.ListReadings")
	defer span.End()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*reading.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	readings, err := repo.ListForEntry(ctx, id, c.QueryParam("kind"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.ReadingListResponse{EntryID: id, Readings: readings})
}

// SummarizeReadings returns the latest reading per kind for the entry
func SummarizeReadings(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "entry_handler.SummarizeReadings")
	defer span.End()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*reading.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	summary, err := repo.Summarize(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, summary)
}

// ReadingStats returns aggregate reading statistics for the entry
func ReadingStats(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "entry_handler.ReadingStats")
	defer span.End()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*reading.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	stats, err := repo.Stats(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, stats)
}

// LegacyReadings returns the entry's readings in the old duplicated row shape
func LegacyReadings(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "entry_handler.LegacyReadings")
	defer span.End()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*legacy.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	rows, err := repo.RowsForEntry(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rows)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "invalid entry id")
	}
	return id, nil
}
