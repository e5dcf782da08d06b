// Package service implements the DonationManager: per-NGO escrow, donation
// records and the single debit path by which funds leave escrow.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"impactledger/internal/donation/models"
	feemodels "impactledger/internal/fee/models"
	modulemodels "impactledger/internal/modules/models"
	modules "impactledger/internal/modules/service"
	ngomodels "impactledger/internal/ngo/models"
	payoutmodels "impactledger/internal/payout/models"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	audit "impactledger/pkg/platform/audit"
	"impactledger/pkg/platform/sentinel"
	"impactledger/pkg/platform/tx"
	"impactledger/pkg/requestcontext"
)

type Store interface {
	FindAccount(ctx context.Context, ngoID domain.NGOID) (*models.Account, error)
	SaveAccount(ctx context.Context, a *models.Account) error
	AppendDonation(ctx context.Context, r *models.Record) error
	ListDonations(ctx context.Context, ngoID domain.NGOID) ([]models.Record, error)
}

// NGORegistry is the slice of the NGO registry this module consults.
type NGORegistry interface {
	IsVerified(ctx context.Context, id domain.NGOID) (bool, error)
	Get(ctx context.Context, id domain.NGOID) (*ngomodels.Profile, error)
}

type FeeManager interface {
	CurrentSchedule(ctx context.Context) (feemodels.Schedule, error)
}

// Converter normalizes a donated amount to the base unit.
type Converter interface {
	Base() domain.Currency
	ToBase(ctx context.Context, amount int64, currency domain.Currency) (int64, error)
}

// TransferRecorder records outgoing transfers in the current unit.
type TransferRecorder interface {
	Record(ctx context.Context, kind payoutmodels.Kind, ngoID domain.NGOID, reference string, recipient domain.Address, amount int64) (domain.TransferID, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store     Store
	modules   modules.Locator
	converter Converter
	transfers TransferRecorder
	runner    tx.Runner
	events    AuditPublisher
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store Store, locator modules.Locator, converter Converter, transfers TransferRecorder, runner tx.Runner, events AuditPublisher, opts ...Option) *Service {
	s := &Service{
		store:     store,
		modules:   locator,
		converter: converter,
		transfers: transfers,
		runner:    runner,
		events:    events,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Donate credits ngoID's escrow with amount (in currency), skims the fee and
// records the donation. The whole call is one unit: a failed rate lookup or
// any later error leaves no credit, record or transfer behind.
func (s *Service) Donate(ctx context.Context, donor domain.Address, ngoID domain.NGOID, amount int64, currency domain.Currency, memo string) (domain.DonationID, error) {
	var id domain.DonationID
	err := s.runner.Run(ctx, "donation.donate", func(ctx context.Context) error {
		if donor.IsNil() {
			return dErrors.New(dErrors.CodeUnauthorized, "donor is required")
		}
		registry, err := modules.Bind[NGORegistry](ctx, s.modules, modulemodels.NameNGORegistry, modulemodels.InterfaceNGORegistry)
		if err != nil {
			return err
		}
		verified, err := registry.IsVerified(ctx, ngoID)
		if err != nil {
			return err
		}
		if !verified {
			return dErrors.Newf(dErrors.CodeForbidden, "ngo %s is not verified", ngoID)
		}
		if err := domain.ValidateAmount(amount); err != nil {
			return err
		}
		note, err := models.NormalizeMemo(memo)
		if err != nil {
			return err
		}
		if currency == "" {
			currency = s.converter.Base()
		}

		gross, err := s.converter.ToBase(ctx, amount, currency)
		if err != nil {
			return err
		}

		fees, err := modules.Bind[FeeManager](ctx, s.modules, modulemodels.NameFeeManager, modulemodels.InterfaceFeeManager)
		if err != nil {
			return err
		}
		schedule, err := fees.CurrentSchedule(ctx)
		if err != nil {
			return err
		}
		fee := schedule.Fee(gross)
		now := requestcontext.Now(ctx)

		account, err := s.loadOrOpen(ctx, ngoID)
		if err != nil {
			return err
		}
		if err := account.CanCredit(gross, fee); err != nil {
			s.haltOnViolation(ctx, err, ngoID)
			return err
		}
		account.ApplyCredit(gross, fee, now)
		if err := account.CheckInvariant(); err != nil {
			s.haltOnViolation(ctx, err, ngoID)
			return err
		}
		if err := s.store.SaveAccount(ctx, account); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write escrow")
		}

		record := &models.Record{
			ID:             domain.NewDonationID(),
			NGOID:          ngoID,
			Donor:          donor,
			Currency:       currency,
			OriginalAmount: amount,
			GrossAmount:    gross,
			FeeAmount:      fee,
			NetAmount:      gross - fee,
			Memo:           note,
			CreatedAt:      now,
		}
		if err := s.store.AppendDonation(ctx, record); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append donation")
		}

		if fee > 0 {
			if _, err := s.transfers.Record(ctx, payoutmodels.KindFee, ngoID, record.ID.String(), schedule.Recipient, fee); err != nil {
				return err
			}
			if err := s.events.Emit(ctx, audit.New(audit.EventFeeCharged, donor, ngoID.String()).
				WithAmount(fee).
				With("donation_id", record.ID.String()).
				With("fee_bps", strconv.FormatInt(schedule.FeeBps, 10)).
				With("fee_recipient", schedule.Recipient.String())); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record fee")
			}
		}
		if err := s.events.Emit(ctx, audit.New(audit.EventDonationMade, donor, ngoID.String()).
			WithAmount(gross).
			With("donation_id", record.ID.String()).
			With("net_amount", strconv.FormatInt(record.NetAmount, 10)).
			With("currency", record.Currency.String())); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record donation")
		}

		id = record.ID
		s.logger.InfoContext(ctx, "donation recorded",
			"donation_id", id, "ngo_id", ngoID, "gross", gross, "fee", fee, "available", account.Available())
		return nil
	})
	return id, err
}

// Debit releases amount from ngoID's escrow to the NGO principal. Only the
// MilestoneManager module may call it.
func (s *Service) Debit(ctx context.Context, caller domain.Address, ngoID domain.NGOID, amount int64, reference string) error {
	return s.runner.Run(ctx, "donation.debit", func(ctx context.Context) error {
		manager, err := s.modules.Address(ctx, modulemodels.NameMilestoneManager, modulemodels.InterfaceMilestoneManager)
		if err != nil {
			return err
		}
		if caller.IsNil() || caller != manager {
			return dErrors.New(dErrors.CodeForbidden, "only the milestone manager may debit escrow")
		}
		if err := domain.ValidateAmount(amount); err != nil {
			return err
		}

		account, err := s.store.FindAccount(ctx, ngoID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Newf(dErrors.CodeInsufficientBalance, "escrow %s holds 0, cannot release %d", ngoID, amount)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read escrow")
		}
		if err := account.CanDebit(amount); err != nil {
			s.haltOnViolation(ctx, err, ngoID)
			return err
		}

		registry, err := modules.Bind[NGORegistry](ctx, s.modules, modulemodels.NameNGORegistry, modulemodels.InterfaceNGORegistry)
		if err != nil {
			return err
		}
		profile, err := registry.Get(ctx, ngoID)
		if err != nil {
			return err
		}

		account.ApplyDebit(amount, requestcontext.Now(ctx))
		if err := account.CheckInvariant(); err != nil {
			s.haltOnViolation(ctx, err, ngoID)
			return err
		}
		// balance is final before the transfer leaves: the row is only picked up after commit
		if err := s.store.SaveAccount(ctx, account); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write escrow")
		}
		if _, err := s.transfers.Record(ctx, payoutmodels.KindRelease, ngoID, reference, profile.Principal, amount); err != nil {
			return err
		}
		if err := s.events.Emit(ctx, audit.New(audit.EventFundsReleased, caller, ngoID.String()).
			WithAmount(amount).
			With("reference", reference).
			With("recipient", profile.Principal.String())); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record release")
		}
		s.logger.InfoContext(ctx, "escrow debited", "ngo_id", ngoID, "amount", amount, "available", account.Available())
		return nil
	})
}

// AvailableBalance returns the releasable balance; an NGO without escrow has 0.
func (s *Service) AvailableBalance(ctx context.Context, ngoID domain.NGOID) (int64, error) {
	account, err := s.EscrowAccount(ctx, ngoID)
	if err != nil {
		return 0, err
	}
	return account.Available(), nil
}

// EscrowAccount returns the full account; an NGO without escrow reads as empty.
func (s *Service) EscrowAccount(ctx context.Context, ngoID domain.NGOID) (models.Account, error) {
	var out models.Account
	err := s.runner.Run(ctx, "donation.escrow", func(ctx context.Context) error {
		account, err := s.store.FindAccount(ctx, ngoID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				out = models.Account{NGOID: ngoID}
				return nil
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read escrow")
		}
		out = *account
		return nil
	})
	return out, err
}

// ListDonations returns ngoID's donations, oldest first.
func (s *Service) ListDonations(ctx context.Context, ngoID domain.NGOID) ([]models.Record, error) {
	var out []models.Record
	err := s.runner.Run(ctx, "donation.list", func(ctx context.Context) error {
		var err error
		out, err = s.store.ListDonations(ctx, ngoID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list donations")
		}
		return nil
	})
	return out, err
}

func (s *Service) loadOrOpen(ctx context.Context, ngoID domain.NGOID) (*models.Account, error) {
	account, err := s.store.FindAccount(ctx, ngoID)
	if err == nil {
		return account, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.NewAccount(ngoID, requestcontext.Now(ctx)), nil
	}
	return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read escrow")
}

// haltOnViolation schedules the account halt for after the failing unit has
// rolled back, so the halt itself survives.
func (s *Service) haltOnViolation(ctx context.Context, err error, ngoID domain.NGOID) {
	if !dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return
	}
	reason := err.Error()
	tx.AfterRollback(ctx, func(ctx context.Context) {
		if herr := s.halt(ctx, ngoID, reason); herr != nil {
			s.logger.ErrorContext(ctx, "failed to halt escrow", "ngo_id", ngoID, "error", herr)
		}
	})
}

func (s *Service) halt(ctx context.Context, ngoID domain.NGOID, reason string) error {
	return s.runner.Run(ctx, "donation.halt", func(ctx context.Context) error {
		account, err := s.store.FindAccount(ctx, ngoID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			return err
		}
		if account.Halted {
			return nil
		}
		account.Halted = true
		account.UpdatedAt = requestcontext.Now(ctx)
		if err := s.store.SaveAccount(ctx, account); err != nil {
			return err
		}
		s.logger.ErrorContext(ctx, "escrow halted", "ngo_id", ngoID, "reason", reason)
		return s.events.Emit(ctx, audit.New(audit.EventEscrowHalted, "", ngoID.String()).With("reason", reason))
	})
}
