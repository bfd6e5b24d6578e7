package record

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelog/carelog/internal/platform/audit"
	"github.com/carelog/carelog/internal/platform/auth"
	"github.com/carelog/carelog/internal/platform/crypto"
)

// Handler exposes clinician read access to record sections.
type Handler struct {
	svc      *Service
	recorder audit.Recorder
}

func NewHandler(svc *Service, recorder audit.Recorder) *Handler {
	return &Handler{svc: svc, recorder: recorder}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("clinician", "admin")
	api.GET("/patients/:id/record", h.GetRecord, role)
}

// GetRecord returns the patient's decrypted sections. An undecryptable value
// is a 500, not an empty field.
func (h *Handler) GetRecord(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	ctx := c.Request().Context()
	sections, err := h.svc.GetSections(ctx, patientID)
	if err != nil {
		var de *crypto.DecryptionError
		if errors.As(err, &de) {
			return echo.NewHTTPError(http.StatusInternalServerError, "record content unavailable")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load record")
	}

	actor := auth.ActorFromEcho(c)
	actx := audit.Context{PatientID: &patientID, NetworkAddr: c.RealIP()}
	if actor != nil {
		actx.Actor = actor.ID
		actx.ActorRole = actor.Role
		actx.Organization = actor.Organization
	}
	_ = h.recorder.Record(ctx, audit.NewEvent(audit.ActionRead, "RecordSection", "all", actx, nil))

	return c.JSON(http.StatusOK, sections)
}
