package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"celebrate/internal/celebration/models"
	"celebrate/internal/celebration/service"
	"celebrate/internal/limits"
	"celebrate/internal/payment"
	"celebrate/pkg/domain"
	dErrors "celebrate/pkg/domain-errors"
	"celebrate/pkg/platform/httputil"
	"celebrate/pkg/requestcontext"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	maxWebhookBody       = 64 << 10
)

// Service is the lifecycle behaviour the handlers need.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (service.CreateResult, error)
	Get(ctx context.Context, id domain.CelebrationID) (*models.Celebration, error)
	ListByDonor(ctx context.Context, donorID domain.DonorID) ([]*models.Celebration, error)
	Pause(ctx context.Context, id domain.CelebrationID) (*models.Celebration, error)
	Resume(ctx context.Context, id domain.CelebrationID) (*models.Celebration, error)
	Limits(ctx context.Context, donorID domain.DonorID, candidateID domain.CandidateID, candidateState string) (limits.Result, error)
	ConfirmCapture(ctx context.Context, n payment.Notification) (*models.Celebration, error)
}

// Settler settles a single celebration while holding its lock.
type Settler interface {
	Resolve(ctx context.Context, id domain.CelebrationID) (*models.Celebration, error)
	MarkDefunct(ctx context.Context, id domain.CelebrationID, reason string) (*models.Celebration, error)
}

// Handler serves donor, operator and provider endpoints for celebrations.
// Authentication middleware is applied by the router that mounts each group.
type Handler struct {
	service       Service
	settler       Settler
	logger        *slog.Logger
	webhookSecret string
	tolerance     time.Duration
}

func New(svc Service, settler Settler, logger *slog.Logger, webhookSecret string) *Handler {
	return &Handler{
		service:       svc,
		settler:       settler,
		logger:        logger,
		webhookSecret: webhookSecret,
		tolerance:     payment.DefaultSignatureTolerance,
	}
}

// Register mounts the donor routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/celebrations", h.handleCreate)
	r.Get("/celebrations", h.handleList)
	r.Get("/celebrations/{id}", h.handleGet)
	r.Post("/celebrations/{id}/pause", h.handlePause)
	r.Post("/celebrations/{id}/resume", h.handleResume)
	r.Get("/limits", h.handleLimits)
}

// RegisterInternal mounts the operator routes.
func (h *Handler) RegisterInternal(r chi.Router) {
	r.Get("/internal/celebrations/{id}", h.handleInternalGet)
	r.Post("/internal/celebrations/{id}/resolve", h.handleResolve)
	r.Post("/internal/celebrations/{id}/defunct", h.handleDefunct)
}

// RegisterWebhooks mounts the provider callback, authenticated by signature.
func (h *Handler) RegisterWebhooks(r chi.Router) {
	r.Post("/webhooks/payments", h.handlePaymentWebhook)
}

type createRequest struct {
	CandidateID    string `json:"candidate_id"`
	CandidateState string `json:"candidate_state"`
	BillID         string `json:"bill_id"`
	AmountCents    int64  `json:"amount_cents"`
	TipCents       int64  `json:"tip_cents"`
}

func (req createRequest) toService(donorID domain.DonorID, rawKey string) (service.CreateRequest, error) {
	key, err := domain.ParseIdempotencyKey(rawKey)
	if err != nil {
		return service.CreateRequest{}, err
	}
	candidate, err := domain.ParseCandidateID(req.CandidateID)
	if err != nil {
		return service.CreateRequest{}, err
	}
	bill, err := domain.ParseBillID(req.BillID)
	if err != nil {
		return service.CreateRequest{}, err
	}
	return service.CreateRequest{
		DonorID:        donorID,
		CandidateID:    candidate,
		CandidateState: req.CandidateState,
		BillID:         bill,
		Amount:         domain.Money(req.AmountCents),
		Tip:            domain.Money(req.TipCents),
		IdempotencyKey: key,
	}, nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body createRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := body.toService(requestcontext.DonorID(ctx), r.Header.Get(idempotencyKeyHeader))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.Create(ctx, req)
	if err != nil {
		h.logFailure(ctx, "create celebration failed", err)
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, toResponse(res.Celebration, false))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all, err := h.service.ListByDonor(ctx, requestcontext.DonorID(ctx))
	if err != nil {
		h.logFailure(ctx, "list celebrations failed", err)
		httputil.WriteError(w, err)
		return
	}
	out := make([]celebrationResponse, 0, len(all))
	for _, c := range all {
		out = append(out, toResponse(c, false))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"celebrations": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(c, true))
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.donorTransition(w, r, h.service.Pause)
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.donorTransition(w, r, h.service.Resume)
}

func (h *Handler) donorTransition(w http.ResponseWriter, r *http.Request, op func(context.Context, domain.CelebrationID) (*models.Celebration, error)) {
	c, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	updated, err := op(ctx, c.ID)
	if err != nil {
		h.logFailure(ctx, "celebration transition failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(updated, true))
}

// loadOwned returns the celebration when it belongs to the calling donor.
// Another donor's celebration is reported as not found.
func (h *Handler) loadOwned(w http.ResponseWriter, r *http.Request) (*models.Celebration, bool) {
	ctx := r.Context()
	id, err := domain.ParseCelebrationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	c, err := h.service.Get(ctx, id)
	if err == nil && c.DonorID != requestcontext.DonorID(ctx) {
		err = dErrors.New(dErrors.CodeNotFound, "celebration not found")
	}
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	return c, true
}

type limitsResponse struct {
	Tier                string    `json:"tier"`
	LimitCents          int64     `json:"limit_cents"`
	PerDonationCents    int64     `json:"per_donation_cents"`
	CurrentTotalCents   int64     `json:"current_total_cents"`
	RemainingLimitCents int64     `json:"remaining_limit_cents"`
	ResetsAt            time.Time `json:"resets_at"`
	Bucket              string    `json:"bucket,omitempty"`
}

func (h *Handler) handleLimits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	candidate, err := domain.ParseCandidateID(r.URL.Query().Get("candidate_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.Limits(ctx, requestcontext.DonorID(ctx), candidate, r.URL.Query().Get("candidate_state"))
	if err != nil {
		h.logFailure(ctx, "limits lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, limitsResponse{
		Tier:                string(res.Tier),
		LimitCents:          res.Limit.Cents(),
		PerDonationCents:    res.PerDonation.Cents(),
		CurrentTotalCents:   res.CurrentTotal.Cents(),
		RemainingLimitCents: res.RemainingLimit.Cents(),
		ResetsAt:            res.ResetsAt.UTC(),
		Bucket:              res.Bucket,
	})
}

func (h *Handler) handleInternalGet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseCelebrationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := toResponse(c, true)
	resp.AuthorizationID = c.AuthorizationID
	resp.CaptureID = c.CaptureID
	verified := c.VerifyLedger() == nil
	resp.LedgerVerified = &verified
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseCelebrationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.settler.Resolve(ctx, id)
	if err != nil {
		h.logFailure(ctx, "resolve celebration failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(c, true))
}

type defunctRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleDefunct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseCelebrationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var body defunctRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &body); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	c, err := h.settler.MarkDefunct(ctx, id, body.Reason)
	if err != nil {
		h.logFailure(ctx, "mark celebration defunct failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(c, true))
}

func (h *Handler) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable webhook body"))
		return
	}
	n, err := payment.VerifyWebhook(h.webhookSecret, r.Header.Get(payment.SignatureHeader), body, requestcontext.Now(ctx), h.tolerance)
	if err != nil {
		h.logger.WarnContext(ctx, "rejected payment webhook",
			"request_id", requestcontext.RequestID(ctx),
			"client_ip", requestcontext.ClientIP(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	ctx = requestcontext.WithActor(ctx, "webhook")
	if _, err := h.service.ConfirmCapture(ctx, n); err != nil {
		h.logFailure(ctx, "payment webhook not applied", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// logFailure logs expected client errors at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	attrs := []any{"request_id", requestcontext.RequestID(ctx), "error", err}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
		return
	}
	h.logger.WarnContext(ctx, msg, attrs...)
}
