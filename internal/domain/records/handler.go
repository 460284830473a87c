package records

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medchain/medchain/internal/platform/auth"
	"github.com/medchain/medchain/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires all patient record endpoints. Every route requires a
// bearer token.
func (h *Handler) RegisterRoutes(authed *echo.Group) {
	authed.GET("/patients", h.ListAll)
	authed.GET("/patients/my-patients", h.ListMine)
	authed.GET("/patients/shared-with-me", h.ListShared)
	authed.GET("/patients/count", h.Count)
	authed.GET("/patients/recent/:n", h.Recent)
	authed.POST("/patients", h.Create)
	authed.GET("/patients/:id", h.Get)

	authed.POST("/patients/:id/add-files", h.AddFiles)
	authed.POST("/patients/:id/edit-file", h.EditFile)
	authed.DELETE("/patients/:id/delete-files", h.DeleteFiles)
	authed.POST("/patients/:id/share-files", h.ShareFiles)
	authed.POST("/patients/:id/manage-access", h.ManageAccess)
	authed.POST("/patients/:id/request-access", h.RequestAccess)
	authed.POST("/patients/:id/cancel-access-request", h.CancelRequest)
	authed.POST("/patients/:id/reject-access-request", h.RejectRequest)
	authed.POST("/patients/:id/transfer-ownership", h.TransferOwnership)
}

func actor(c echo.Context) (uuid.UUID, string, error) {
	id, ok := auth.UserID(c)
	if !ok {
		return uuid.Nil, "", echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	name, _ := auth.Username(c)
	return id, name, nil
}

// httpError maps domain errors onto status codes. Anything unrecognized is
// treated as a bad request so the message reaches the caller.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotOwner):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrDuplicatePatient), errors.Is(err, ErrDuplicateRequest):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidPassword):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func (h *Handler) list(c echo.Context, scope Scope) error {
	viewerID, _, err := actor(c)
	if err != nil {
		return err
	}
	params := pagination.FromContext(c)
	patients, total, err := h.svc.List(c.Request().Context(), ListQuery{
		Scope:    scope,
		ViewerID: viewerID,
		Params:   params,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, params))
}

func (h *Handler) ListAll(c echo.Context) error    { return h.list(c, ScopeAll) }
func (h *Handler) ListMine(c echo.Context) error   { return h.list(c, ScopeMine) }
func (h *Handler) ListShared(c echo.Context) error { return h.list(c, ScopeShared) }

func (h *Handler) Count(c echo.Context) error {
	n, err := h.svc.Count(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"count": n})
}

func (h *Handler) Recent(c echo.Context) error {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "recent count must be an integer")
	}
	patients, err := h.svc.Recent(c.Request().Context(), n)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"patients": patients})
}

func (h *Handler) Create(c echo.Context) error {
	actorID, actorName, err := actor(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Create(c.Request().Context(), actorID, actorName, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"patient": p})
}

func (h *Handler) Get(c echo.Context) error {
	viewerID, _, err := actor(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Detail(c.Request().Context(), viewerID, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) AddFiles(c echo.Context) error {
	actorID, actorName, err := actor(c)
	if err != nil {
		return err
	}
	var req AddFilesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.AddFiles(c.Request().Context(), actorID, actorName, c.Param("id"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"patient": p})
}

func (h *Handler) EditFile(c echo.Context) error {
	actorID, actorName, err := actor(c)
	if err != nil {
		return err
	}
	var req EditFileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.EditFile(c.Request().Context(), actorID, actorName, c.Param("id"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"patient": p})
}

func (h *Handler) DeleteFiles(c echo.Context) error {
	actorID, actorName, err := actor(c)
	if err != nil {
		return err
	}
	var req DeleteFilesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.DeleteFiles(c.Request().Context(), actorID, actorName, c.Param("id"), req.FileIDs)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"patient": p})
}

func (h *Handler) ShareFiles(c echo.Context) error {
	actorID, actorName, err := actor(c)
	if err != nil {
		return err
	}
	var req ShareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.ShareFiles(c.Request().Context(), actorID, actorName, c.Param("id"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"patient": p})
}

func (h *Handler) ManageAccess(c echo.Context) error {
	actorID, actorName, err := actor(c)
	if err != nil {
		return err
	}
	var req ShareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.ManageAccess(c.Request().Context(), actorID, actorName, c.Param("id"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"patient": p})
}

func (h *Handler) RequestAccess(c echo.Context) error {
	actorID, actorName, err := actor(c)
	if err != nil {
		return err
	}
	p, err := h.svc.RequestAccess(c.Request().Context(), actorID, actorName, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"patient": p})
}

func (h *Handler) CancelRequest(c echo.Context) error {
	actorID, actorName, err := actor(c)
	if err != nil {
		return err
	}
	p, err := h.svc.CancelRequest(c.Request().Context(), actorID, actorName, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"patient": p})
}

func (h *Handler) RejectRequest(c echo.Context) error {
	actorID, actorName, err := actor(c)
	if err != nil {
		return err
	}
	var req RejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.RejectAccessRequest(c.Request().Context(), actorID, actorName, c.Param("id"), req.Username)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"patient": p})
}

func (h *Handler) TransferOwnership(c echo.Context) error {
	actorID, actorName, err := actor(c)
	if err != nil {
		return err
	}
	var req TransferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.TransferOwnership(c.Request().Context(), actorID, actorName, c.Param("id"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"patient": p})
}
