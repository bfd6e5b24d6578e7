package alert

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelog/carelog/internal/platform/audit"
	"github.com/carelog/carelog/internal/platform/auth"
	"github.com/carelog/carelog/pkg/pagination"
)

// Handler exposes the alert list and the resolve transition.
type Handler struct {
	svc      *Service
	recorder audit.Recorder
}

func NewHandler(svc *Service, recorder audit.Recorder) *Handler {
	return &Handler{svc: svc, recorder: recorder}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("clinician", "admin")
	api.GET("/patients/:id/alerts", h.List, role)
	api.POST("/alerts/:id/resolve", h.Resolve, role)
}

// List returns the patient's alerts, newest first. ?status=OPEN filters to
// unresolved alerts.
func (h *Handler) List(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	params := pagination.FromContext(c)
	status := Status(c.QueryParam("status"))

	ctx := c.Request().Context()
	alerts, total, err := h.svc.List(ctx, patientID, status, params.Limit, params.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load alerts")
	}

	actx := h.auditContext(c, &patientID)
	_ = h.recorder.Record(ctx, audit.NewEvent(audit.ActionRead, "Alert", "list", actx, nil))

	return c.JSON(http.StatusOK, pagination.NewResponse(alerts, total, params.Limit, params.Offset))
}

type resolveRequest struct {
	Note string `json:"note"`
}

// Resolve closes an OPEN alert. An already-resolved alert answers 409.
func (h *Handler) Resolve(c echo.Context) error {
	alertID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid alert id")
	}
	actor := auth.ActorFromEcho(c)
	if actor == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing actor")
	}

	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	a, err := h.svc.Resolve(ctx, alertID, actor.ID, req.Note)
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return echo.NewHTTPError(http.StatusConflict, conflict.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve alert")
	}

	actx := h.auditContext(c, &a.PatientID)
	_ = h.recorder.Record(ctx, audit.NewEvent(audit.ActionUpdate, "Alert", alertID.String(), actx,
		map[string]string{"status": string(a.Status)}))

	return c.JSON(http.StatusOK, a)
}

func (h *Handler) auditContext(c echo.Context, patientID *uuid.UUID) audit.Context {
	actx := audit.Context{PatientID: patientID, NetworkAddr: c.RealIP()}
	if actor := auth.ActorFromEcho(c); actor != nil {
		actx.Actor = actor.ID
		actx.ActorRole = actor.Role
		actx.Organization = actor.Organization
	}
	return actx
}
