package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"celebrate/internal/resolution"
	"celebrate/pkg/domain"
	"celebrate/pkg/platform/httputil"
	"celebrate/pkg/requestcontext"
)

// Trigger settles the open celebrations of one bill.
type Trigger interface {
	Trigger(ctx context.Context, billID domain.BillID) (resolution.Report, error)
	Fail(ctx context.Context, billID domain.BillID) (resolution.Report, error)
}

// Handler serves the operator bill endpoints.
type Handler struct {
	trigger Trigger
	logger  *slog.Logger
}

func New(trigger Trigger, logger *slog.Logger) *Handler {
	return &Handler{trigger: trigger, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/internal/bills/{billID}/trigger", h.handleTrigger)
	r.Post("/internal/bills/{billID}/fail", h.handleFail)
}

func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, "trigger", h.trigger.Trigger)
}

func (h *Handler) handleFail(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, "fail", h.trigger.Fail)
}

func (h *Handler) runBatch(w http.ResponseWriter, r *http.Request, op string, batch func(context.Context, domain.BillID) (resolution.Report, error)) {
	ctx := requestcontext.WithActor(r.Context(), "operator")
	billID, err := domain.ParseBillID(chi.URLParam(r, "billID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := batch(ctx, billID)
	if err != nil {
		h.logger.ErrorContext(ctx, "bill batch failed",
			"operation", op,
			"bill_id", billID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, NewReportResponse(report))
}

// ReportResponse is the JSON form of a bill batch report.
type ReportResponse struct {
	BillID   string            `json:"bill_id"`
	Resolved []string          `json:"resolved"`
	Defunct  []string          `json:"defunct"`
	Skipped  []string          `json:"skipped"`
	Pending  []string          `json:"capture_pending"`
	Failed   []FailureResponse `json:"failed"`
}

type FailureResponse struct {
	CelebrationID string `json:"celebration_id"`
	Error         string `json:"error"`
	Description   string `json:"error_description,omitempty"`
	Retrying      bool   `json:"retrying"`
}

func NewReportResponse(r resolution.Report) ReportResponse {
	resp := ReportResponse{
		BillID:   r.BillID.String(),
		Resolved: idStrings(r.Resolved),
		Defunct:  idStrings(r.Defunct),
		Skipped:  idStrings(r.Skipped),
		Pending:  idStrings(r.Pending),
		Failed:   make([]FailureResponse, 0, len(r.Failed)),
	}
	for _, f := range r.Failed {
		resp.Failed = append(resp.Failed, FailureResponse{
			CelebrationID: f.CelebrationID.String(),
			Error:         string(f.Code),
			Description:   f.Message,
			Retrying:      f.Retrying,
		})
	}
	return resp
}

func idStrings(ids []domain.CelebrationID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
