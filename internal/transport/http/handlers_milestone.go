package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	milestonemodels "impactledger/internal/milestone/models"
	"impactledger/pkg/domain"
	"impactledger/pkg/platform/httputil"
)

type MilestoneService interface {
	Create(ctx context.Context, caller domain.Address, d milestonemodels.Draft) (domain.MilestoneID, error)
	Submit(ctx context.Context, caller domain.Address, id domain.MilestoneID) error
	Approve(ctx context.Context, caller domain.Address, id domain.MilestoneID) error
	Reject(ctx context.Context, caller domain.Address, id domain.MilestoneID, reason string) error
	Release(ctx context.Context, caller domain.Address, id domain.MilestoneID) error
	Resubmit(ctx context.Context, caller domain.Address, id domain.MilestoneID, deadline time.Time) (domain.MilestoneID, error)
	Get(ctx context.Context, id domain.MilestoneID) (*milestonemodels.Milestone, error)
	ListByNGO(ctx context.Context, ngoID domain.NGOID) ([]milestonemodels.Milestone, error)
}

type MilestoneHandler struct {
	milestones MilestoneService
	logger     *slog.Logger
}

func NewMilestoneHandler(milestones MilestoneService, logger *slog.Logger) *MilestoneHandler {
	return &MilestoneHandler{milestones: milestones, logger: logger}
}

func (h *MilestoneHandler) Register(r chi.Router) {
	r.Post("/milestones", h.handleCreate)
	r.Get("/milestones", h.handleListByNGO)
	r.Route("/milestones/{milestoneID}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/submit", h.transition(h.milestones.Submit))
		r.Post("/approve", h.transition(h.milestones.Approve))
		r.Post("/release", h.transition(h.milestones.Release))
		r.Post("/reject", h.handleReject)
		r.Post("/resubmit", h.handleResubmit)
	})
}

type createMilestoneRequest struct {
	NGOID        domain.NGOID   `json:"ngo_id"`
	Description  string         `json:"description"`
	TargetAmount int64          `json:"target_amount"`
	Deadline     time.Time      `json:"deadline"`
	Approver     domain.Address `json:"approver"`
}

func (h *MilestoneHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createMilestoneRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := h.milestones.Create(r.Context(), caller(r), milestonemodels.Draft{
		NGOID:        req.NGOID,
		Description:  req.Description,
		TargetAmount: req.TargetAmount,
		Deadline:     req.Deadline,
		Approver:     req.Approver,
	})
	if err != nil {
		logFailure(h.logger, r, "milestone creation failed", err)
		httputil.WriteError(w, err)
		return
	}
	writeCreated(w, id.String())
}

func (h *MilestoneHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := milestoneIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	m, err := h.milestones.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (h *MilestoneHandler) handleListByNGO(w http.ResponseWriter, r *http.Request) {
	ngoID, err := domain.ParseNGOID(r.URL.Query().Get("ngo_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.milestones.ListByNGO(r.Context(), ngoID)
	if err != nil {
		logFailure(h.logger, r, "milestone list failed", err)
		httputil.WriteError(w, err)
		return
	}
	if list == nil {
		list = []milestonemodels.Milestone{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *MilestoneHandler) transition(fn func(ctx context.Context, caller domain.Address, id domain.MilestoneID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := milestoneIDParam(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if err := fn(r.Context(), caller(r), id); err != nil {
			logFailure(h.logger, r, "milestone transition failed", err)
			httputil.WriteError(w, err)
			return
		}
		writeNoContent(w)
	}
}

type rejectMilestoneRequest struct {
	Reason string `json:"reason"`
}

func (h *MilestoneHandler) handleReject(w http.ResponseWriter, r *http.Request) {
	id, err := milestoneIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req rejectMilestoneRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.milestones.Reject(r.Context(), caller(r), id, req.Reason); err != nil {
		logFailure(h.logger, r, "milestone rejection failed", err)
		httputil.WriteError(w, err)
		return
	}
	writeNoContent(w)
}

type resubmitRequest struct {
	// Deadline zero keeps the rejected milestone's deadline.
	Deadline time.Time `json:"deadline"`
}

func (h *MilestoneHandler) handleResubmit(w http.ResponseWriter, r *http.Request) {
	id, err := milestoneIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req resubmitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	next, err := h.milestones.Resubmit(r.Context(), caller(r), id, req.Deadline)
	if err != nil {
		logFailure(h.logger, r, "milestone resubmission failed", err)
		httputil.WriteError(w, err)
		return
	}
	writeCreated(w, next.String())
}
