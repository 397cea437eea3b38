// Package handler exposes contact reconciliation over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"contactsvc/internal/contact/models"
	"contactsvc/internal/platform/metrics"
	"contactsvc/internal/platform/middleware"
	dErrors "contactsvc/pkg/domain-errors"
	"contactsvc/pkg/platform/httputil"
)

const maxBodyBytes = 1 << 16

// Service is the reconciliation surface the handler needs.
type Service interface {
	Reconcile(ctx context.Context, sub models.Submission) (*models.ConsolidatedView, error)
	ListAllViews(ctx context.Context) ([]models.ConsolidatedView, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

func New(service Service, logger *slog.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
		metrics: m,
		timeout: 30 * time.Second,
	}
}

// Register mounts the contact routes, plus the /api/contacts aliases older
// clients call.
func (h *Handler) Register(r chi.Router) {
	contactRouter := chi.NewRouter()
	contactRouter.Use(middleware.RequestID)
	contactRouter.Use(middleware.Recovery(h.logger, h.metrics))
	contactRouter.Use(middleware.Logger(h.logger, h.metrics))
	contactRouter.Use(middleware.Timeout(h.timeout))
	contactRouter.Use(middleware.ContentTypeJSON)

	contactRouter.Post("/identify", h.handleIdentify)
	contactRouter.Get("/contacts", h.handleList)
	contactRouter.Post("/api/contacts/identify", h.handleIdentify)
	contactRouter.Get("/api/contacts", h.handleList)

	r.Mount("/", contactRouter)
}

func (h *Handler) handleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, err := httputil.DecodeAndPrepare[IdentifyRequest](w, r, maxBodyBytes)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid identify request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteErrorWithRequestID(w, err, requestID)
		return
	}

	view, err := h.service.Reconcile(ctx, req.Submission())
	if err != nil {
		h.writeServiceError(ctx, w, err, "identify failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, IdentifyResponse{Contact: toResponse(*view)})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	views, err := h.service.ListAllViews(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, err, "listing contacts failed")
		return
	}
	resp := ListResponse{Contacts: make([]ContactResponse, 0, len(views))}
	for _, v := range views {
		resp.Contacts = append(resp.Contacts, toResponse(v))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	requestID := middleware.GetRequestID(ctx)
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeBadRequest:
		h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err.Error())
	default:
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err.Error())
	}
	httputil.WriteErrorWithRequestID(w, err, requestID)
}
