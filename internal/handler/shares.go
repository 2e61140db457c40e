package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/marianozunino/cloudshare/internal/expiration"
	"github.com/marianozunino/cloudshare/internal/model"
	"github.com/marianozunino/cloudshare/internal/share"
)

const sharePasswordHeader = "X-Share-Password"

type createLinkRequest struct {
	FileID     string `json:"fileId"`
	Expiration string `json:"expiration"`
	AccessType string `json:"accessType"`
	Password   string `json:"password"`
}

// resolvedShare is what a visitor learns about a link
type resolvedShare struct {
	ID         string           `json:"id"`
	URL        string           `json:"url"`
	AccessType model.AccessType `json:"accessType"`
	ExpiresAt  *time.Time       `json:"expiresAt"`
	Views      int64            `json:"views"`
	Downloads  int64            `json:"downloads"`
}

// HandleListShares returns the live shared files. Expired ones are removed
// as a side effect and reported separately.
func (h *Handler) HandleListShares(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}

	result, err := h.shares.ListLive(c.Request().Context(), uid)
	if err != nil {
		return fail("list shared files", err)
	}
	return c.JSON(http.StatusOK, result)
}

// HandleUploadShare stores a multipart upload as a shared file. The expires
// field is required.
func (h *Handler) HandleUploadShare(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}

	expiresAt, err := expiration.ParseExpiry(c.FormValue("expires"), h.now())
	if err != nil {
		return fail("upload shared file", err)
	}

	in, done, err := formUpload(c)
	if err != nil {
		return err
	}
	defer done()
	in.Folder = h.cfg.AssetHost.Folder

	rec, err := h.shares.UploadShared(c.Request().Context(), uid, in, expiresAt)
	if err != nil {
		return fail("upload shared file", err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// HandleStopSharing deletes a shared file, its asset and its links
func (h *Handler) HandleStopSharing(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	publicID, err := publicIDParam(c)
	if err != nil {
		return err
	}

	if err := h.shares.StopSharing(c.Request().Context(), uid, publicID); err != nil {
		return fail("stop sharing", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleCreateLink creates a share link for a gallery item or shared file
func (h *Handler) HandleCreateLink(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}

	var req createLinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	link, err := h.shares.Create(c.Request().Context(), uid, req.FileID, share.CreateOptions{
		Expiration: req.Expiration,
		AccessType: req.AccessType,
		Password:   req.Password,
	})
	if err != nil {
		return fail("create share link", err)
	}
	return c.JSON(http.StatusCreated, link)
}

// HandleListLinks returns the user's live links
func (h *Handler) HandleListLinks(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}

	links, err := h.shares.Links(c.Request().Context(), uid)
	if err != nil {
		return fail("list share links", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"links": links})
}

// HandleGetLink returns one of the user's links with its counters
func (h *Handler) HandleGetLink(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}

	link, err := h.shares.Get(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return fail("get share link", err)
	}
	return c.JSON(http.StatusOK, link)
}

// HandleResolve opens a link for an anonymous visitor. With ?download the
// visitor is redirected to the asset and the download counter is used; only
// an explicit false value turns it off.
func (h *Handler) HandleResolve(c echo.Context) error {
	password := c.Request().Header.Get(sharePasswordHeader)
	if password == "" {
		password = c.QueryParam("password")
	}

	download := false
	if c.QueryParams().Has("download") {
		parsed, err := strconv.ParseBool(c.QueryParam("download"))
		download = err != nil || parsed
	}

	sh, err := h.shares.Resolve(c.Request().Context(), c.Param("id"), password, download)
	if err != nil {
		return fail("resolve share link", err)
	}

	if download {
		return c.Redirect(http.StatusFound, sh.URL)
	}

	return c.JSON(http.StatusOK, resolvedShare{
		ID:         sh.ID,
		URL:        sh.URL,
		AccessType: sh.AccessType,
		ExpiresAt:  sh.ExpiresAt,
		Views:      sh.Views,
		Downloads:  sh.Downloads,
	})
}
