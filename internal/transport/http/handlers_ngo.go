package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	donationmodels "impactledger/internal/donation/models"
	ngomodels "impactledger/internal/ngo/models"
	"impactledger/internal/ngo/reputation"
	payoutmodels "impactledger/internal/payout/models"
	"impactledger/pkg/domain"
	"impactledger/pkg/platform/httputil"
)

// NGOService is the NGO registry surface exposed over HTTP.
type NGOService interface {
	Register(ctx context.Context, caller, principal domain.Address, metadataRef string) (domain.NGOID, error)
	Verify(ctx context.Context, caller domain.Address, id domain.NGOID) error
	Reject(ctx context.Context, caller domain.Address, id domain.NGOID) error
	Archive(ctx context.Context, caller domain.Address, id domain.NGOID) error
	Get(ctx context.Context, id domain.NGOID) (*ngomodels.Profile, error)
	List(ctx context.Context) ([]*ngomodels.Profile, error)
	Reputation(ctx context.Context, id domain.NGOID) (reputation.Score, error)
}

// DonationService is the escrow surface exposed over HTTP.
type DonationService interface {
	Donate(ctx context.Context, donor domain.Address, ngoID domain.NGOID, amount int64, currency domain.Currency, memo string) (domain.DonationID, error)
	EscrowAccount(ctx context.Context, ngoID domain.NGOID) (donationmodels.Account, error)
	ListDonations(ctx context.Context, ngoID domain.NGOID) ([]donationmodels.Record, error)
}

// TransferLister reads the outgoing transfers recorded for an NGO.
type TransferLister interface {
	ListByNGO(ctx context.Context, ngoID domain.NGOID) ([]payoutmodels.Transfer, error)
}

type NGOHandler struct {
	ngos      NGOService
	donations DonationService
	transfers TransferLister
	logger    *slog.Logger
}

func NewNGOHandler(ngos NGOService, donations DonationService, transfers TransferLister, logger *slog.Logger) *NGOHandler {
	return &NGOHandler{ngos: ngos, donations: donations, transfers: transfers, logger: logger}
}

func (h *NGOHandler) Register(r chi.Router) {
	r.Route("/ngos", func(r chi.Router) {
		r.Post("/", h.handleRegister)
		r.Get("/", h.handleList)
		r.Route("/{ngoID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Post("/verify", h.decide(h.ngos.Verify))
			r.Post("/reject", h.decide(h.ngos.Reject))
			r.Post("/archive", h.decide(h.ngos.Archive))
			r.Get("/reputation", h.handleReputation)
			r.Post("/donations", h.handleDonate)
			r.Get("/donations", h.handleListDonations)
			r.Get("/escrow", h.handleEscrow)
			r.Get("/transfers", h.handleTransfers)
		})
	})
}

type registerNGORequest struct {
	// Principal defaults to the caller.
	Principal   domain.Address `json:"principal,omitempty"`
	MetadataRef string         `json:"metadata_ref"`
}

func (h *NGOHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerNGORequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	principal := req.Principal
	if principal.IsNil() {
		principal = caller(r)
	}
	id, err := h.ngos.Register(r.Context(), caller(r), principal, req.MetadataRef)
	if err != nil {
		logFailure(h.logger, r, "ngo registration failed", err)
		httputil.WriteError(w, err)
		return
	}
	writeCreated(w, id.String())
}

func (h *NGOHandler) handleList(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.ngos.List(r.Context())
	if err != nil {
		logFailure(h.logger, r, "ngo list failed", err)
		httputil.WriteError(w, err)
		return
	}
	if profiles == nil {
		profiles = []*ngomodels.Profile{}
	}
	httputil.WriteJSON(w, http.StatusOK, profiles)
}

func (h *NGOHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := ngoIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	profile, err := h.ngos.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

func (h *NGOHandler) decide(fn func(ctx context.Context, caller domain.Address, id domain.NGOID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := ngoIDParam(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if err := fn(r.Context(), caller(r), id); err != nil {
			logFailure(h.logger, r, "ngo status change failed", err)
			httputil.WriteError(w, err)
			return
		}
		writeNoContent(w)
	}
}

func (h *NGOHandler) handleReputation(w http.ResponseWriter, r *http.Request) {
	id, err := ngoIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	score, err := h.ngos.Reputation(r.Context(), id)
	if err != nil {
		logFailure(h.logger, r, "reputation lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, score)
}

type donateRequest struct {
	Amount   int64           `json:"amount"`
	Currency domain.Currency `json:"currency,omitempty"`
	Memo     string          `json:"memo,omitempty"`
}

func (h *NGOHandler) handleDonate(w http.ResponseWriter, r *http.Request) {
	id, err := ngoIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req donateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Currency != "" {
		if req.Currency, err = domain.ParseCurrency(string(req.Currency)); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	donationID, err := h.donations.Donate(r.Context(), caller(r), id, req.Amount, req.Currency, req.Memo)
	if err != nil {
		logFailure(h.logger, r, "donation failed", err)
		httputil.WriteError(w, err)
		return
	}
	writeCreated(w, donationID.String())
}

func (h *NGOHandler) handleListDonations(w http.ResponseWriter, r *http.Request) {
	id, err := ngoIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.donations.ListDonations(r.Context(), id)
	if err != nil {
		logFailure(h.logger, r, "donation list failed", err)
		httputil.WriteError(w, err)
		return
	}
	if records == nil {
		records = []donationmodels.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}

type escrowResponse struct {
	donationmodels.Account
	Available int64 `json:"available_balance"`
}

func (h *NGOHandler) handleEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := ngoIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	account, err := h.donations.EscrowAccount(r.Context(), id)
	if err != nil {
		logFailure(h.logger, r, "escrow lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, escrowResponse{Account: account, Available: account.Available()})
}

func (h *NGOHandler) handleTransfers(w http.ResponseWriter, r *http.Request) {
	id, err := ngoIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	transfers, err := h.transfers.ListByNGO(r.Context(), id)
	if err != nil {
		logFailure(h.logger, r, "transfer list failed", err)
		httputil.WriteError(w, err)
		return
	}
	if transfers == nil {
		transfers = []payoutmodels.Transfer{}
	}
	httputil.WriteJSON(w, http.StatusOK, transfers)
}
