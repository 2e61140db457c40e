package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/marianozunino/cloudshare/internal/assethost"
	"github.com/marianozunino/cloudshare/internal/gallery"
)

// HandleTransform returns the delivery URL of a gallery image with an
// effect applied. Nothing is uploaded; the asset host renders on request.
func (h *Handler) HandleTransform(c echo.Context) error {
	if h.transformer == nil {
		return fail("transform", assethost.ErrTransformsDisabled)
	}

	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	publicID, err := publicIDParam(c)
	if err != nil {
		return err
	}

	images, err := h.gallery.List(c.Request().Context(), uid)
	if err != nil {
		return fail("transform", err)
	}
	found := false
	for _, img := range images {
		if img.PublicID == publicID {
			found = true
			break
		}
	}
	if !found {
		return fail("transform", fmt.Errorf("%s: %w", publicID, gallery.ErrImageNotFound))
	}

	effect := c.QueryParam("effect")
	transformation, err := assethost.ParseEffect(effect, c.QueryParams())
	if err != nil {
		return fail("transform", err)
	}

	u, err := h.transformer.URL(publicID, transformation)
	if err != nil {
		return fail("transform", err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"publicId": publicID,
		"effect":   effect,
		"url":      u,
	})
}
