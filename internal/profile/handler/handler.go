package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"celebrate/internal/compliance"
	"celebrate/internal/profile"
	"celebrate/pkg/domain"
	dErrors "celebrate/pkg/domain-errors"
	"celebrate/pkg/platform/httputil"
	"celebrate/pkg/requestcontext"
)

// Service is the profile behaviour the handler needs.
type Service interface {
	Get(ctx context.Context, donorID domain.DonorID) (*profile.Profile, error)
	Update(ctx context.Context, donorID domain.DonorID, fields compliance.Profile) (*profile.Profile, error)
}

// Handler serves the authenticated donor's profile.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts GET and PUT /profile. Auth middleware is applied by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Get("/profile", h.handleGet)
	r.Put("/profile", h.handleUpdate)
}

type profileResponse struct {
	DonorID   string             `json:"donor_id"`
	Tier      string             `json:"tier"`
	Profile   compliance.Profile `json:"profile"`
	Missing   []string           `json:"missing_fields"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func toResponse(p *profile.Profile) profileResponse {
	missing := compliance.Missing(p.Fields)
	if missing == nil {
		missing = []string{}
	}
	return profileResponse{
		DonorID:   p.DonorID.String(),
		Tier:      string(p.Compliance),
		Profile:   p.Fields,
		Missing:   missing,
		UpdatedAt: p.UpdatedAt,
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	donorID := requestcontext.DonorID(ctx)
	p, err := h.service.Get(ctx, donorID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "failed to load profile",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var fields compliance.Profile
	if err := httputil.DecodeJSON(r, &fields); err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.service.Update(ctx, requestcontext.DonorID(ctx), fields)
	if err != nil {
		h.logger.WarnContext(ctx, "profile update failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(p))
}
