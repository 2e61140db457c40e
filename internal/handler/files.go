package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/marianozunino/cloudshare/internal/assethost"
	"github.com/marianozunino/cloudshare/internal/gallery"
)

type batchDeleteRequest struct {
	PublicIDs []string `json:"publicIds"`
}

// formUpload opens the "file" part of a multipart request
func formUpload(c echo.Context) (assethost.UploadInput, func(), error) {
	header, err := c.FormFile("file")
	if err != nil {
		return assethost.UploadInput{}, nil, echo.NewHTTPError(http.StatusBadRequest, "No file provided")
	}
	if header.Size == 0 {
		return assethost.UploadInput{}, nil, echo.NewHTTPError(http.StatusBadRequest, "Empty file")
	}

	file, err := header.Open()
	if err != nil {
		return assethost.UploadInput{}, nil, fail("open upload", err)
	}

	in := assethost.UploadInput{
		Body:        file,
		Filename:    header.Filename,
		ContentType: header.Header.Get(echo.HeaderContentType),
	}
	return in, func() { file.Close() }, nil
}

// HandleListFiles returns the gallery filtered and sorted by the query
func (h *Handler) HandleListFiles(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}

	filter, err := gallery.ParseFilter(c.QueryParam("filter"))
	if err != nil {
		return fail("list files", err)
	}
	key, err := gallery.ParseSortKey(c.QueryParam("sort"))
	if err != nil {
		return fail("list files", err)
	}

	images, err := h.gallery.List(c.Request().Context(), uid)
	if err != nil {
		return fail("list files", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"files":  gallery.Apply(images, filter, key),
		"filter": filter,
		"sort":   key,
	})
}

// HandleUploadFile stores a multipart upload in the gallery
func (h *Handler) HandleUploadFile(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}

	in, done, err := formUpload(c)
	if err != nil {
		return err
	}
	defer done()

	rec, err := h.gallery.Upload(c.Request().Context(), uid, in)
	if err != nil {
		return fail("upload gallery file", err)
	}

	return c.JSON(http.StatusCreated, rec)
}

// HandleDeleteFile removes one gallery item
func (h *Handler) HandleDeleteFile(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	publicID, err := publicIDParam(c)
	if err != nil {
		return err
	}

	if err := h.gallery.Delete(c.Request().Context(), uid, publicID); err != nil {
		return fail("delete gallery file", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleBatchDelete deletes the selected items one by one. Any failure turns
// the response into 207 with the per-item errors.
func (h *Handler) HandleBatchDelete(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}

	var req batchDeleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if len(req.PublicIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "publicIds is required")
	}

	result := h.gallery.DeleteMany(c.Request().Context(), uid, req.PublicIDs)
	if len(result.Failed) > 0 {
		return c.JSON(http.StatusMultiStatus, result)
	}
	return c.JSON(http.StatusOK, result)
}

// HandleStats reports gallery usage
func (h *Handler) HandleStats(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}

	stats, err := h.gallery.Stats(c.Request().Context(), uid)
	if err != nil {
		return fail("storage stats", err)
	}
	return c.JSON(http.StatusOK, stats)
}
