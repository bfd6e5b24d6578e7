package audit

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelog/carelog/internal/platform/auth"
	"github.com/carelog/carelog/pkg/pagination"
)

// Handler exposes the trail for compliance review. Reading the trail is
// itself recorded.
type Handler struct {
	store    *PGStore
	recorder Recorder
}

func NewHandler(store *PGStore, recorder Recorder) *Handler {
	return &Handler{store: store, recorder: recorder}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/audit", h.ListByPatient, auth.RequireRole("admin"))
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	params := pagination.FromContext(c)

	ctx := c.Request().Context()
	events, total, err := h.store.ListByPatient(ctx, patientID.String(), params.Limit, params.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load audit trail")
	}

	actx := Context{PatientID: &patientID, NetworkAddr: c.RealIP()}
	if actor := auth.ActorFromEcho(c); actor != nil {
		actx.Actor = actor.ID
		actx.ActorRole = actor.Role
		actx.Organization = actor.Organization
	}
	_ = h.recorder.Record(ctx, NewEvent(ActionRead, "AuditEvent", "list", actx, nil))

	return c.JSON(http.StatusOK, pagination.NewResponse(events, total, params.Limit, params.Offset))
}
