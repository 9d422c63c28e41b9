package reading

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/reading"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Register registers reading routes
func Register(g *echo.Group) {
	g.POST("", Create)
	g.GET("/:id", Get)
	g.POST("/:id/links", LinkEntries)
	g.DELETE("/:id/links/:entry_id", Unlink)
	g.POST("/purge", Purge)
}

// Create stores a reading linked to one or more entries
func Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reading_handler.Create")
	defer span.End()

	var req models.CreateReadingRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// the X-Source-ID header fills source_id when the body omits it
	if req.SourceID == nil {
		if sourceID := appctx.GetSourceID(ctx); sourceID != "" {
			req.SourceID = &sourceID
		}
	}

	ctx, repo, err := ectoinject.GetContext[*reading.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	result, err := repo.Create(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, result)
}

// Get returns a single reading by ID
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reading_handler.Get")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid reading id")
	}

	ctx, repo, err := ectoinject.GetContext[*reading.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	result, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if result == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "reading not found")
	}

	return c.JSON(http.StatusOK, result)
}

// LinkEntries links an existing reading to additional entries
func LinkEntries(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reading_handler.LinkEntries")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid reading id")
	}

	var req models.LinkEntriesRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*reading.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	result, err := repo.LinkEntries(ctx, id, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Unlink removes the link between a reading and one entry. The reading stays
// stored even when this was its last link.
func Unlink(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reading_handler.Unlink")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid reading id")
	}
	entryID, err := strconv.ParseInt(c.Param("entry_id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid entry id")
	}

	ctx, repo, err := ectoinject.GetContext[*reading.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	removed, err := repo.Unlink(ctx, id, entryID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"reading_id": id,
		"entry_id":   entryID,
		"removed":    removed,
	})
}

// Purge deletes readings with no remaining entry links
func Purge(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reading_handler.Purge")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*reading.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	purged, err := repo.PurgeOrphaned(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"purged": purged})
}
