package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	"impactledger/pkg/platform/httputil"
	authmw "impactledger/pkg/platform/middleware/auth"
	"impactledger/pkg/platform/middleware/metadata"
	"impactledger/pkg/platform/middleware/requesttime"
	"impactledger/pkg/requestcontext"
)

// Registrar mounts one module's routes on the authenticated router.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires every ledger endpoint behind bearer authentication. Only
// /health is public. limit, when set, runs after authentication so it can key
// on the caller.
func NewRouter(logger *slog.Logger, validator authmw.JWTValidator, limit func(http.Handler) http.Handler, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requesttime.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(requesttime.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(validator, logger))
		if limit != nil {
			r.Use(limit)
		}
		for _, h := range handlers {
			h.Register(r)
		}
	})
	return r
}

// caller returns the authenticated principal. RequireAuth guarantees it is
// set on every mounted route.
func caller(r *http.Request) domain.Address {
	return requestcontext.Caller(r.Context())
}

func ngoIDParam(r *http.Request) (domain.NGOID, error) {
	return domain.ParseNGOID(chi.URLParam(r, "ngoID"))
}

func milestoneIDParam(r *http.Request) (domain.MilestoneID, error) {
	return domain.ParseMilestoneID(chi.URLParam(r, "milestoneID"))
}

func proposalIDParam(r *http.Request) (domain.ProposalID, error) {
	return domain.ParseProposalID(chi.URLParam(r, "proposalID"))
}

func addressParam(r *http.Request, name string) (domain.Address, error) {
	return domain.ParseAddress(chi.URLParam(r, name))
}

func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "%s must be a non-negative integer", name)
	}
	return n, nil
}

type idResponse struct {
	ID string `json:"id"`
}

func writeCreated(w http.ResponseWriter, id string) {
	httputil.WriteJSON(w, http.StatusCreated, idResponse{ID: id})
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// logFailure records server-side failures; client errors are only returned.
func logFailure(logger *slog.Logger, r *http.Request, msg string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeInvariantViolation, dErrors.CodeExternalDependency, dErrors.CodeTimeout:
		logger.ErrorContext(r.Context(), msg,
			"request_id", requestcontext.RequestID(r.Context()),
			"client_ip", metadata.GetClientIP(r.Context()),
			"error", err,
		)
	}
}
