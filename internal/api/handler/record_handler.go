package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/metacode/fiches-api/internal/core/auth"
	"github.com/metacode/fiches-api/internal/core/domain"
	"github.com/metacode/fiches-api/internal/core/ports"
)

// RecordHandler handles HTTP requests for record operations. Mutating
// handlers run the access policy before reading the body, so a caller without
// a valid credential gets 401 whatever it sent.
type RecordHandler struct {
	service ports.RecordService
}

func NewRecordHandler(service ports.RecordService) *RecordHandler {
	return &RecordHandler{service: service}
}

func invalidPayload(err error) error {
	return fmt.Errorf("%w: invalid payload: %v", domain.ErrValidation, err)
}

// Create handles POST /records.
//
// @Summary      Create a record
// @Tags         records
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      recordRequest  true  "Record fields"
// @Success      201   {object}  domain.Record
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /records [post]
func (h *RecordHandler) Create(c echo.Context) error {
	if err := h.service.Authorize(caller(c), auth.ActionCreate); err != nil {
		return err
	}

	var req recordRequest
	if err := c.Bind(&req); err != nil {
		return invalidPayload(err)
	}

	rec, err := h.service.Create(reqCtx(c), caller(c), req.toFields())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

// Search handles GET /records/search?q=.
//
// @Summary      Search records by title
// @Tags         records
// @Produce      json
// @Param        q    query     string  true  "Case-insensitive title fragment"
// @Success      200  {array}   domain.Record
// @Failure      400  {object}  errorResponse
// @Router       /records/search [get]
func (h *RecordHandler) Search(c echo.Context) error {
	query, err := domain.ParseSearchQuery(c.QueryParams()["q"])
	if err != nil {
		return err
	}

	records, err := h.service.Search(reqCtx(c), caller(c), query)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, recordListResponse(records))
}

// Get handles GET /records/:id. An unknown id answers 200 with a null body.
//
// @Summary      Get a record
// @Tags         records
// @Produce      json
// @Param        id   path      string  true  "Record id"
// @Success      200  {object}  domain.Record
// @Router       /records/{id} [get]
func (h *RecordHandler) Get(c echo.Context) error {
	rec, err := h.service.Get(reqCtx(c), caller(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusOK, nil)
		}
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// List handles GET /records.
//
// @Summary      List all records
// @Tags         records
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.Record
// @Failure      401  {object}  errorResponse
// @Router       /records [get]
func (h *RecordHandler) List(c echo.Context) error {
	records, err := h.service.List(reqCtx(c), caller(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, recordListResponse(records))
}

// SetVisibility handles PATCH /records/:id/visibility.
//
// @Summary      Change record visibility
// @Tags         records
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string             true  "Record id"
// @Param        body  body      visibilityRequest  true  "New visibility"
// @Success      200   {object}  domain.Record
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /records/{id}/visibility [patch]
func (h *RecordHandler) SetVisibility(c echo.Context) error {
	if err := h.service.Authorize(caller(c), auth.ActionUpdateVisibility); err != nil {
		return err
	}

	var req visibilityRequest
	if err := c.Bind(&req); err != nil {
		return invalidPayload(err)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	rec, err := h.service.SetVisibility(reqCtx(c), caller(c), c.Param("id"), *req.Visible)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// SetDownloadable handles PATCH /records/:id/downloadable.
//
// @Summary      Change record downloadability
// @Tags         records
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string               true  "Record id"
// @Param        body  body      downloadableRequest  true  "New flag"
// @Success      200   {object}  domain.Record
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /records/{id}/downloadable [patch]
func (h *RecordHandler) SetDownloadable(c echo.Context) error {
	if err := h.service.Authorize(caller(c), auth.ActionUpdateDownloadable); err != nil {
		return err
	}

	var req downloadableRequest
	if err := c.Bind(&req); err != nil {
		return invalidPayload(err)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	rec, err := h.service.SetDownloadable(reqCtx(c), caller(c), c.Param("id"), *req.Downloadable)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// Update handles PUT /records/:id. Only the fields present in the body change.
//
// @Summary      Update a record
// @Tags         records
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string         true  "Record id"
// @Param        body  body      recordRequest  true  "Fields to change"
// @Success      200   {object}  domain.Record
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /records/{id} [put]
func (h *RecordHandler) Update(c echo.Context) error {
	if err := h.service.Authorize(caller(c), auth.ActionUpdate); err != nil {
		return err
	}

	var req recordRequest
	if err := c.Bind(&req); err != nil {
		return invalidPayload(err)
	}

	rec, err := h.service.Update(reqCtx(c), caller(c), c.Param("id"), req.toFields())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// Delete handles DELETE /records/:id. Admin only.
//
// @Summary      Delete a record
// @Tags         records
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Record id"
// @Success      200  {object}  messageResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /records/{id} [delete]
func (h *RecordHandler) Delete(c echo.Context) error {
	if err := h.service.Delete(reqCtx(c), caller(c), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Record deleted successfully."})
}

// BulkCreate handles POST /records/bulk. Entries without a title or content
// are skipped.
//
// @Summary      Create several records
// @Tags         records
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      []recordRequest  true  "Records to insert"
// @Success      201   {array}   domain.Record
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /records/bulk [post]
func (h *RecordHandler) BulkCreate(c echo.Context) error {
	if err := h.service.Authorize(caller(c), auth.ActionBulkCreate); err != nil {
		return err
	}

	var reqs []recordRequest
	if err := (&echo.DefaultBinder{}).BindBody(c, &reqs); err != nil {
		return fmt.Errorf("%w: record list is empty or invalid", domain.ErrValidation)
	}

	inserted, err := h.service.BulkCreate(reqCtx(c), caller(c), toFieldsList(reqs))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, recordListResponse(inserted))
}

// Stats handles GET /records/stats/added?period=.
//
// @Summary      Count records created per period
// @Tags         records
// @Produce      json
// @Security     BearerAuth
// @Param        period  query     string  true  "day, week, month or year"
// @Success      200     {array}   domain.StatBucket
// @Failure      400     {object}  errorResponse
// @Failure      401     {object}  errorResponse
// @Router       /records/stats/added [get]
func (h *RecordHandler) Stats(c echo.Context) error {
	buckets, err := h.service.Stats(reqCtx(c), caller(c), c.QueryParam("period"))
	if err != nil {
		return err
	}
	if buckets == nil {
		buckets = []domain.StatBucket{}
	}
	return c.JSON(http.StatusOK, buckets)
}
