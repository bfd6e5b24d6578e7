package ingestion

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelog/carelog/internal/domain/record"
	"github.com/carelog/carelog/internal/domain/verification"
	"github.com/carelog/carelog/internal/platform/audit"
	"github.com/carelog/carelog/internal/platform/auth"
	"github.com/carelog/carelog/pkg/pagination"
)

// Handler exposes submission and review operations.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinical := auth.RequireRole("clinician", "admin")
	submit := auth.RequireRole("clinician", "admin", "channel")

	api.POST("/patients/:id/ingest/text", h.IngestText, submit)
	api.POST("/patients/:id/ingest/utterance", h.IngestUtterance, submit)
	api.GET("/patients/:id/verification", h.ReviewQueue, clinical)
	api.POST("/verification/:id/verify", h.Verify, clinical)
	api.POST("/verification/:id/dispute", h.Dispute, clinical)
}

type textRequest struct {
	Text   string                  `json:"text"`
	Source verification.SourceType `json:"source"`
}

func (h *Handler) IngestText(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.svc.IngestClinicalText(c.Request().Context(), patientID, req.Text, req.Source, auditContext(c))
	if err != nil {
		return submissionError(err)
	}
	return c.JSON(http.StatusOK, result)
}

type utteranceRequest struct {
	Utterance string `json:"utterance"`
}

func (h *Handler) IngestUtterance(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req utteranceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.svc.IngestUtterance(c.Request().Context(), patientID, req.Utterance, auditContext(c))
	if err != nil {
		return submissionError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ReviewQueue(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	params := pagination.FromContext(c)

	items, total, err := h.svc.ReviewQueue(c.Request().Context(), patientID, params.Limit, params.Offset, auditContext(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load review queue")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, params.Limit, params.Offset))
}

func (h *Handler) Verify(c echo.Context) error {
	return h.transition(c, verification.ActionVerify)
}

func (h *Handler) Dispute(c echo.Context) error {
	return h.transition(c, verification.ActionDispute)
}

// transition applies a reviewer verdict. A terminal item answers 409 and is
// left untouched.
func (h *Handler) transition(c echo.Context, action verification.Action) error {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}
	actor := auth.ActorFromEcho(c)
	if actor == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing actor")
	}

	item, err := h.svc.ReviewTransition(c.Request().Context(), itemID, action, actor.ID, auditContext(c))
	if err != nil {
		var conflict *verification.ConflictError
		if errors.As(err, &conflict) {
			return echo.NewHTTPError(http.StatusConflict, conflict.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to transition item")
	}
	return c.JSON(http.StatusOK, item)
}

// submissionError maps the error taxonomy onto status codes. Timeouts are
// retryable (504); other oracle failures are 502; malformed input is 400.
func submissionError(err error) error {
	var ve *record.ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	}
	var ee *ExtractionError
	if errors.As(err, &ee) {
		if ee.Retryable() {
			return echo.NewHTTPError(http.StatusGatewayTimeout, "extraction timed out, retry the submission")
		}
		return echo.NewHTTPError(http.StatusBadGateway, "extraction unavailable")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "submission failed")
}

func auditContext(c echo.Context) audit.Context {
	actx := audit.Context{NetworkAddr: c.RealIP()}
	if actor := auth.ActorFromEcho(c); actor != nil {
		actx.Actor = actor.ID
		actx.ActorRole = actor.Role
		actx.Organization = actor.Organization
	}
	return actx
}
