package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	govmodels "impactledger/internal/governance/models"
	govservice "impactledger/internal/governance/service"
	"impactledger/internal/governance/timelock"
	"impactledger/pkg/domain"
	"impactledger/pkg/platform/httputil"
)

type GovernorService interface {
	Params(ctx context.Context) (govmodels.Params, error)
	Propose(ctx context.Context, caller domain.Address, actions []govmodels.Action, description string) (domain.ProposalID, error)
	CastVote(ctx context.Context, caller domain.Address, id domain.ProposalID, support govmodels.Support, weight int64) error
	Queue(ctx context.Context, caller domain.Address, id domain.ProposalID) (time.Time, error)
	Execute(ctx context.Context, caller domain.Address, id domain.ProposalID) error
	Cancel(ctx context.Context, caller domain.Address, id domain.ProposalID) error
	Get(ctx context.Context, id domain.ProposalID) (govservice.View, error)
	List(ctx context.Context) ([]govservice.View, error)
	Receipt(ctx context.Context, id domain.ProposalID, voter domain.Address) (*govmodels.Vote, error)
}

type TokenService interface {
	BalanceOf(ctx context.Context, holder domain.Address) (int64, error)
	Transfer(ctx context.Context, caller, to domain.Address, amount int64) error
}

type TimelockReader interface {
	Get(ctx context.Context, hash string) (*timelock.Operation, error)
}

type GovernanceHandler struct {
	governor GovernorService
	tokens   TokenService
	timelock TimelockReader
	logger   *slog.Logger
}

func NewGovernanceHandler(governor GovernorService, tokens TokenService, tl TimelockReader, logger *slog.Logger) *GovernanceHandler {
	return &GovernanceHandler{governor: governor, tokens: tokens, timelock: tl, logger: logger}
}

func (h *GovernanceHandler) Register(r chi.Router) {
	r.Get("/governance/params", h.handleParams)
	r.Get("/timelock/operations/{hash}", h.handleOperation)
	r.Get("/tokens/{holder}", h.handleBalance)
	r.Post("/tokens/transfer", h.handleTransfer)
	r.Route("/proposals", func(r chi.Router) {
		r.Post("/", h.handlePropose)
		r.Get("/", h.handleList)
		r.Route("/{proposalID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Post("/votes", h.handleVote)
			r.Get("/votes/{voter}", h.handleReceipt)
			r.Post("/queue", h.handleQueue)
			r.Post("/execute", h.lifecycle(h.governor.Execute))
			r.Post("/cancel", h.lifecycle(h.governor.Cancel))
		})
	})
}

func (h *GovernanceHandler) handleParams(w http.ResponseWriter, r *http.Request) {
	params, err := h.governor.Params(r.Context())
	if err != nil {
		logFailure(h.logger, r, "governance params lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, params)
}

type proposeRequest struct {
	Description string             `json:"description"`
	Actions     []govmodels.Action `json:"actions"`
}

func (h *GovernanceHandler) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := h.governor.Propose(r.Context(), caller(r), req.Actions, req.Description)
	if err != nil {
		logFailure(h.logger, r, "proposal failed", err)
		httputil.WriteError(w, err)
		return
	}
	writeCreated(w, id.String())
}

func (h *GovernanceHandler) handleList(w http.ResponseWriter, r *http.Request) {
	views, err := h.governor.List(r.Context())
	if err != nil {
		logFailure(h.logger, r, "proposal list failed", err)
		httputil.WriteError(w, err)
		return
	}
	if views == nil {
		views = []govservice.View{}
	}
	httputil.WriteJSON(w, http.StatusOK, views)
}

func (h *GovernanceHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := proposalIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	view, err := h.governor.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

type voteRequest struct {
	// Support is 0 (against), 1 (for) or 2 (abstain).
	Support int `json:"support"`
	// Weight 0 votes with the full snapshot power.
	Weight int64 `json:"weight,omitempty"`
}

func (h *GovernanceHandler) handleVote(w http.ResponseWriter, r *http.Request) {
	id, err := proposalIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req voteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	support, err := govmodels.ParseSupport(req.Support)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.governor.CastVote(r.Context(), caller(r), id, support, req.Weight); err != nil {
		logFailure(h.logger, r, "vote failed", err)
		httputil.WriteError(w, err)
		return
	}
	writeNoContent(w)
}

func (h *GovernanceHandler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := proposalIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	voter, err := addressParam(r, "voter")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	vote, err := h.governor.Receipt(r.Context(), id, voter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, vote)
}

type queueResponse struct {
	Eta time.Time `json:"eta"`
}

func (h *GovernanceHandler) handleQueue(w http.ResponseWriter, r *http.Request) {
	id, err := proposalIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	eta, err := h.governor.Queue(r.Context(), caller(r), id)
	if err != nil {
		logFailure(h.logger, r, "queue failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, queueResponse{Eta: eta})
}

func (h *GovernanceHandler) lifecycle(fn func(ctx context.Context, caller domain.Address, id domain.ProposalID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := proposalIDParam(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if err := fn(r.Context(), caller(r), id); err != nil {
			logFailure(h.logger, r, "proposal lifecycle call failed", err)
			httputil.WriteError(w, err)
			return
		}
		writeNoContent(w)
	}
}

func (h *GovernanceHandler) handleOperation(w http.ResponseWriter, r *http.Request) {
	op, err := h.timelock.Get(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, op)
}

type balanceResponse struct {
	Holder  domain.Address `json:"holder"`
	Balance int64          `json:"balance"`
}

func (h *GovernanceHandler) handleBalance(w http.ResponseWriter, r *http.Request) {
	holder, err := addressParam(r, "holder")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	balance, err := h.tokens.BalanceOf(r.Context(), holder)
	if err != nil {
		logFailure(h.logger, r, "balance lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, balanceResponse{Holder: holder, Balance: balance})
}

type transferRequest struct {
	To     domain.Address `json:"to"`
	Amount int64          `json:"amount"`
}

func (h *GovernanceHandler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.tokens.Transfer(r.Context(), caller(r), req.To, req.Amount); err != nil {
		logFailure(h.logger, r, "token transfer failed", err)
		httputil.WriteError(w, err)
		return
	}
	writeNoContent(w)
}
