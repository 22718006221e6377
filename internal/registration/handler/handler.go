package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/service"
	dErrors "github.com/amaralBruno27866/member-platform-test-sub015/pkg/domain-errors"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/httputil"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/middleware/admin"
	"github.com/amaralBruno27866/member-platform-test-sub015/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the registration orchestrator as seen by the HTTP layer.
type Service interface {
	Stage(ctx context.Context, req service.StageRequest) (*models.StageResult, error)
	VerifyEmail(ctx context.Context, id models.SessionID, token string) (*models.StatusResult, error)
	ResendVerification(ctx context.Context, id models.SessionID) (*models.ResendResult, error)
	Approve(ctx context.Context, id models.SessionID, adminID, notes string) (*models.StatusResult, error)
	Reject(ctx context.Context, id models.SessionID, adminID, reason string) (*models.StatusResult, error)
	CreateEntities(ctx context.Context, id models.SessionID) (*models.CreationResult, error)
	RetryCreateEntities(ctx context.Context, id models.SessionID) (*models.CreationResult, error)
	Finalize(ctx context.Context, id models.SessionID) (*models.StatusResult, error)
	GetState(ctx context.Context, id models.SessionID) (*models.StateView, error)
	Cancel(ctx context.Context, id models.SessionID, reason string) (*models.StatusResult, error)
	Cleanup(ctx context.Context, id models.SessionID) error
}

// Handler exposes the registration workflow over HTTP.
type Handler struct {
	logger  *slog.Logger
	service Service
	tokens  admin.TokenValidator
}

func New(svc Service, tokens admin.TokenValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		service: svc,
		tokens:  tokens,
	}
}

// Register mounts the applicant routes and the admin routes. Admin routes
// require a bearer token whose subject becomes the acting admin id.
func (h *Handler) Register(r chi.Router) {
	r.Route("/registrations", func(r chi.Router) {
		r.Post("/", h.handleStage)
		r.Get("/verify", h.handleVerifyLink)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetState)
			r.Post("/verify-email", h.handleVerifyEmail)
			r.Post("/resend-verification", h.handleResend)
			r.Post("/cancel", h.handleCancel)
		})
	})

	r.Route("/admin/registrations/{id}", func(r chi.Router) {
		r.Use(admin.RequireAdmin(h.tokens, h.logger))
		r.Post("/approve", h.handleApprove)
		r.Post("/reject", h.handleReject)
		r.Post("/entities", h.handleCreateEntities)
		r.Post("/entities/retry", h.handleRetryCreateEntities)
		r.Post("/finalize", h.handleFinalize)
		r.Post("/cancel", h.handleCancel)
		r.Delete("/", h.handleCleanup)
	})
}

func (h *Handler) handleStage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[stageRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.Stage(ctx, service.StageRequest{Payload: req.Payload})
	if err != nil {
		h.fail(ctx, w, "stage", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

// handleVerifyLink serves the link embedded in the verification email.
func (h *Handler) handleVerifyLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := models.ParseSessionID(r.URL.Query().Get("session"))
	if err != nil {
		h.fail(ctx, w, "verify_email", err)
		return
	}
	res, err := h.service.VerifyEmail(ctx, id, r.URL.Query().Get("token"))
	if err != nil {
		h.fail(ctx, w, "verify_email", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[verifyRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.VerifyEmail(ctx, id, req.Token)
	if err != nil {
		h.fail(ctx, w, "verify_email", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	res, err := h.service.ResendVerification(ctx, id)
	if err != nil {
		h.fail(ctx, w, "resend_verification", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetState(ctx, id)
	if err != nil {
		h.fail(ctx, w, "get_state", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	req := &reasonRequest{}
	if r.ContentLength != 0 {
		if req, ok = httputil.DecodeAndPrepare[reasonRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx)); !ok {
			return
		}
	}
	res, err := h.service.Cancel(ctx, id, req.Reason)
	if err != nil {
		h.fail(ctx, w, "cancel", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	req := &approveRequest{}
	if r.ContentLength != 0 {
		if req, ok = httputil.DecodeAndPrepare[approveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx)); !ok {
			return
		}
	}
	res, err := h.service.Approve(ctx, id, requestcontext.AdminID(ctx), req.Notes)
	if err != nil {
		h.fail(ctx, w, "approve", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[rejectRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.Reject(ctx, id, requestcontext.AdminID(ctx), req.Reason)
	if err != nil {
		h.fail(ctx, w, "reject", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleCreateEntities(w http.ResponseWriter, r *http.Request) {
	h.runCreation(w, r, "create_entities", h.service.CreateEntities)
}

func (h *Handler) handleRetryCreateEntities(w http.ResponseWriter, r *http.Request) {
	h.runCreation(w, r, "retry_create_entities", h.service.RetryCreateEntities)
}

func (h *Handler) runCreation(w http.ResponseWriter, r *http.Request, op string, run func(context.Context, models.SessionID) (*models.CreationResult, error)) {
	ctx := r.Context()
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	res, err := run(ctx, id)
	if err != nil {
		h.fail(ctx, w, op, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, res)
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	res, err := h.service.Finalize(ctx, id)
	if err != nil {
		h.fail(ctx, w, "finalize", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if err := h.service.Cleanup(ctx, id); err != nil {
		h.fail(ctx, w, "cleanup", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (models.SessionID, bool) {
	id, err := models.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(r.Context(), w, "parse_session_id", err)
		return "", false
	}
	return id, true
}

// fail logs at a level matching the status and writes the error envelope.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status := dErrors.ToHTTPStatus(dErrors.CodeOf(err))
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, "registration request failed",
		"request_id", requestcontext.RequestID(ctx),
		"operation", op,
		"code", string(dErrors.CodeOf(err)),
		"error", err,
	)
	httputil.WriteError(w, err)
}
