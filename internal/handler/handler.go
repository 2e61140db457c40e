package handler

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/marianozunino/cloudshare/internal/assethost"
	"github.com/marianozunino/cloudshare/internal/config"
	"github.com/marianozunino/cloudshare/internal/db"
	"github.com/marianozunino/cloudshare/internal/expiration"
	"github.com/marianozunino/cloudshare/internal/gallery"
	"github.com/marianozunino/cloudshare/internal/middleware"
	"github.com/marianozunino/cloudshare/internal/share"
)

// Handler handles HTTP requests
type Handler struct {
	gallery     *gallery.Service
	shares      *share.Service
	transformer *assethost.Transformer // nil when the asset host has no delivery transforms
	sweeper     *expiration.Sweeper
	cfg         *config.Config
	now         func() time.Time
}

// NewHandler creates a new handler
func NewHandler(cfg *config.Config, galleries *gallery.Service, shares *share.Service, transformer *assethost.Transformer, sweeper *expiration.Sweeper) *Handler {
	return &Handler{
		gallery:     galleries,
		shares:      shares,
		transformer: transformer,
		sweeper:     sweeper,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Register mounts the API on e. auth guards the per-user routes and admin
// the maintenance routes.
func (h *Handler) Register(e *echo.Echo, auth, admin echo.MiddlewareFunc) {
	e.GET("/healthz", h.HandleHealth)
	e.GET("/s/:id", h.HandleResolve)

	api := e.Group("/api", auth)
	api.GET("/files", h.HandleListFiles)
	api.POST("/files", h.HandleUploadFile)
	api.POST("/files/batch-delete", h.HandleBatchDelete)
	api.DELETE("/files/*", h.HandleDeleteFile)
	api.GET("/stats", h.HandleStats)

	api.GET("/shares", h.HandleListShares)
	api.POST("/shares", h.HandleUploadShare)
	api.DELETE("/shares/*", h.HandleStopSharing)

	api.GET("/links", h.HandleListLinks)
	api.POST("/links", h.HandleCreateLink)
	api.GET("/links/:id", h.HandleGetLink)

	api.GET("/transform/*", h.HandleTransform)

	e.POST("/api/admin/cleanup", h.HandleCleanup, admin)
}

// statusFor maps service errors onto HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, gallery.ErrImageNotFound),
		errors.Is(err, share.ErrFileNotFound),
		errors.Is(err, share.ErrShareNotFound):
		return http.StatusNotFound
	case errors.Is(err, assethost.ErrMissingPublicID),
		errors.Is(err, assethost.ErrInvalidTransformation),
		errors.Is(err, expiration.ErrInvalidOption),
		errors.Is(err, expiration.ErrInvalidExpiry),
		errors.Is(err, gallery.ErrInvalidView),
		errors.Is(err, share.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, share.ErrShareExpired):
		return http.StatusGone
	case errors.Is(err, share.ErrInvalidPassword):
		return http.StatusUnauthorized
	case errors.Is(err, share.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, assethost.ErrTransformsDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, db.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, assethost.ErrHostUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail converts err into an HTTP error. Server-side failures are logged and
// their details kept out of the response.
func fail(action string, err error) error {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		log.Printf("Error: %s: %v", action, err)
		return echo.NewHTTPError(status, "Server error")
	case http.StatusBadGateway:
		log.Printf("Error: %s: %v", action, err)
		return echo.NewHTTPError(status, "Asset host unavailable")
	}
	return echo.NewHTTPError(status, err.Error())
}

func currentUID(c echo.Context) (string, error) {
	user := middleware.CurrentUser(c)
	if user == nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	}
	return user.UID, nil
}

// publicIDParam reads the wildcard tail of the route. Public ids may contain
// slashes, and clients may also send them escaped.
func publicIDParam(c echo.Context) (string, error) {
	raw := strings.Trim(c.Param("*"), "/")
	id, err := url.PathUnescape(raw)
	if err != nil || id == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, assethost.ErrMissingPublicID.Error())
	}
	return id, nil
}

// HandleHealth reports liveness
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}
