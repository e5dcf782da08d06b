package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	accessmodels "impactledger/internal/access/models"
	feemodels "impactledger/internal/fee/models"
	modulemodels "impactledger/internal/modules/models"
	"impactledger/pkg/domain"
	audit "impactledger/pkg/platform/audit"
	"impactledger/pkg/platform/httputil"
)

type ModuleRegistry interface {
	Register(ctx context.Context, caller domain.Address, name string, handle modulemodels.Handle) error
	Resolve(ctx context.Context, name string) (modulemodels.Handle, error)
	ListAll(ctx context.Context) ([]modulemodels.Entry, error)
}

type RoleService interface {
	Grant(ctx context.Context, caller domain.Address, role accessmodels.Role, member domain.Address) error
	Revoke(ctx context.Context, caller domain.Address, role accessmodels.Role, member domain.Address) error
	Renounce(ctx context.Context, caller domain.Address, role accessmodels.Role) error
	Members(ctx context.Context, role accessmodels.Role) ([]domain.Address, error)
}

type FeeReader interface {
	CurrentSchedule(ctx context.Context) (feemodels.Schedule, error)
}

type EventReader interface {
	List(ctx context.Context, subject string) ([]audit.Event, error)
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

// RegistryHandler serves the wiring of the ledger: modules, roles, the fee
// schedule and the event log.
type RegistryHandler struct {
	modules ModuleRegistry
	roles   RoleService
	fees    FeeReader
	events  EventReader
	logger  *slog.Logger
}

func NewRegistryHandler(modules ModuleRegistry, roles RoleService, fees FeeReader, events EventReader, logger *slog.Logger) *RegistryHandler {
	return &RegistryHandler{modules: modules, roles: roles, fees: fees, events: events, logger: logger}
}

func (h *RegistryHandler) Register(r chi.Router) {
	r.Get("/modules", h.handleListModules)
	r.Get("/modules/{name}", h.handleResolve)
	r.Put("/modules/{name}", h.handleRegisterModule)

	r.Get("/roles/{role}/members", h.handleMembers)
	r.Post("/roles/{role}/grant", h.roleChange(h.roles.Grant))
	r.Post("/roles/{role}/revoke", h.roleChange(h.roles.Revoke))
	r.Post("/roles/{role}/renounce", h.handleRenounce)

	r.Get("/fees", h.handleFees)
	r.Get("/events", h.handleEvents)
}

func (h *RegistryHandler) handleListModules(w http.ResponseWriter, r *http.Request) {
	entries, err := h.modules.ListAll(r.Context())
	if err != nil {
		logFailure(h.logger, r, "module list failed", err)
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []modulemodels.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *RegistryHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	handle, err := h.modules.Resolve(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, handle)
}

func (h *RegistryHandler) handleRegisterModule(w http.ResponseWriter, r *http.Request) {
	var handle modulemodels.Handle
	if err := httputil.DecodeJSON(r, &handle); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.modules.Register(r.Context(), caller(r), chi.URLParam(r, "name"), handle); err != nil {
		logFailure(h.logger, r, "module registration failed", err)
		httputil.WriteError(w, err)
		return
	}
	writeNoContent(w)
}

func roleParam(r *http.Request) (accessmodels.Role, error) {
	return accessmodels.ParseRole(chi.URLParam(r, "role"))
}

func (h *RegistryHandler) handleMembers(w http.ResponseWriter, r *http.Request) {
	role, err := roleParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	members, err := h.roles.Members(r.Context(), role)
	if err != nil {
		logFailure(h.logger, r, "role member list failed", err)
		httputil.WriteError(w, err)
		return
	}
	if members == nil {
		members = []domain.Address{}
	}
	httputil.WriteJSON(w, http.StatusOK, members)
}

type roleChangeRequest struct {
	Member domain.Address `json:"member"`
}

func (h *RegistryHandler) roleChange(fn func(ctx context.Context, caller domain.Address, role accessmodels.Role, member domain.Address) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, err := roleParam(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		var req roleChangeRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
		if err := fn(r.Context(), caller(r), role, req.Member); err != nil {
			logFailure(h.logger, r, "role change failed", err)
			httputil.WriteError(w, err)
			return
		}
		writeNoContent(w)
	}
}

func (h *RegistryHandler) handleRenounce(w http.ResponseWriter, r *http.Request) {
	role, err := roleParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.roles.Renounce(r.Context(), caller(r), role); err != nil {
		logFailure(h.logger, r, "role renounce failed", err)
		httputil.WriteError(w, err)
		return
	}
	writeNoContent(w)
}

func (h *RegistryHandler) handleFees(w http.ResponseWriter, r *http.Request) {
	schedule, err := h.fees.CurrentSchedule(r.Context())
	if err != nil {
		logFailure(h.logger, r, "fee schedule lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, schedule)
}

type eventResponse struct {
	ID         string            `json:"id"`
	Category   string            `json:"category"`
	Timestamp  time.Time         `json:"timestamp"`
	Action     string            `json:"action"`
	Actor      domain.Address    `json:"actor,omitempty"`
	Subject    string            `json:"subject"`
	Amount     int64             `json:"amount,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
}

const defaultEventLimit = 50

// handleEvents returns the events of ?subject= in order, or the most recent
// ?limit= events when no subject is given.
func (h *RegistryHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	var (
		events []audit.Event
		err    error
	)
	if subject := r.URL.Query().Get("subject"); subject != "" {
		events, err = h.events.List(r.Context(), subject)
	} else {
		var limit int
		if limit, err = intQuery(r, "limit", defaultEventLimit); err == nil {
			events, err = h.events.Recent(r.Context(), limit)
		}
	}
	if err != nil {
		logFailure(h.logger, r, "event lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			ID:         e.ID.String(),
			Category:   string(e.Category),
			Timestamp:  e.Timestamp,
			Action:     e.Action,
			Actor:      e.Actor,
			Subject:    e.Subject,
			Amount:     e.Amount,
			Attributes: e.Attributes,
			RequestID:  e.RequestID,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
