package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"impactledger/internal/donation/models"
	"impactledger/internal/donation/store"
	feemodels "impactledger/internal/fee/models"
	"impactledger/internal/ledger"
	modulemodels "impactledger/internal/modules/models"
	ngomodels "impactledger/internal/ngo/models"
	payoutmodels "impactledger/internal/payout/models"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	audit "impactledger/pkg/platform/audit"
	"impactledger/pkg/platform/audit/publisher"
	auditmemory "impactledger/pkg/platform/audit/store/memory"
	"impactledger/pkg/requestcontext"
)

const (
	donor            domain.Address = "0xdonor"
	ngoPrincipal     domain.Address = "0xngo"
	milestoneManager domain.Address = "module:milestones"
)

// fakeLocator serves modules by name without a registry.
type fakeLocator struct {
	addrs map[string]domain.Address
	impls map[domain.Address]any
}

func (l *fakeLocator) Address(_ context.Context, name, _ string) (domain.Address, error) {
	addr, ok := l.addrs[name]
	if !ok {
		return "", dErrors.Newf(dErrors.CodeNotFound, "module %s not registered", name)
	}
	return addr, nil
}

func (l *fakeLocator) Implementation(addr domain.Address) (any, bool) {
	impl, ok := l.impls[addr]
	return impl, ok
}

type fakeRegistry struct {
	profiles map[domain.NGOID]*ngomodels.Profile
}

func (r *fakeRegistry) IsVerified(_ context.Context, id domain.NGOID) (bool, error) {
	p, ok := r.profiles[id]
	return ok && p.IsVerified(), nil
}

func (r *fakeRegistry) Get(_ context.Context, id domain.NGOID) (*ngomodels.Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "ngo not found")
	}
	return p, nil
}

type fakeFees struct{ bps int64 }

func (f *fakeFees) CurrentSchedule(context.Context) (feemodels.Schedule, error) {
	return feemodels.Schedule{FeeBps: f.bps, Recipient: "treasury"}, nil
}

type fakeConverter struct {
	rate int64
	err  error
}

func (c *fakeConverter) Base() domain.Currency { return "USD" }

func (c *fakeConverter) ToBase(_ context.Context, amount int64, currency domain.Currency) (int64, error) {
	if currency == "USD" {
		return amount, nil
	}
	if c.err != nil {
		return 0, c.err
	}
	return amount * c.rate, nil
}

type recordedTransfer struct {
	kind      payoutmodels.Kind
	recipient domain.Address
	amount    int64
}

type fakeTransfers struct{ recorded []recordedTransfer }

func (f *fakeTransfers) Record(_ context.Context, kind payoutmodels.Kind, _ domain.NGOID, _ string, recipient domain.Address, amount int64) (domain.TransferID, error) {
	f.recorded = append(f.recorded, recordedTransfer{kind: kind, recipient: recipient, amount: amount})
	return domain.NewTransferID(), nil
}

type DonationServiceSuite struct {
	suite.Suite
	ctx       context.Context
	events    *auditmemory.InMemoryStore
	store     *store.InMemory
	registry  *fakeRegistry
	fees      *fakeFees
	converter *fakeConverter
	transfers *fakeTransfers
	svc       *Service
	verified  domain.NGOID
	pending   domain.NGOID
}

func TestDonationServiceSuite(t *testing.T) {
	suite.Run(t, new(DonationServiceSuite))
}

func (s *DonationServiceSuite) SetupTest() {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), now)
	s.events = auditmemory.NewInMemoryStore()
	s.store = store.NewInMemory()

	s.verified = domain.NewNGOID()
	s.pending = domain.NewNGOID()
	s.registry = &fakeRegistry{profiles: map[domain.NGOID]*ngomodels.Profile{
		s.verified: {ID: s.verified, Principal: ngoPrincipal, Status: ngomodels.StatusVerified},
		s.pending:  {ID: s.pending, Principal: "0xpending", Status: ngomodels.StatusPending},
	}}
	s.fees = &fakeFees{bps: 250}
	s.converter = &fakeConverter{rate: 2}
	s.transfers = &fakeTransfers{}

	locator := &fakeLocator{
		addrs: map[string]domain.Address{
			modulemodels.NameNGORegistry:      "module:ngo",
			modulemodels.NameFeeManager:       "module:fee",
			modulemodels.NameMilestoneManager: milestoneManager,
		},
		impls: map[domain.Address]any{
			"module:ngo": s.registry,
			"module:fee": s.fees,
		},
	}
	s.svc = New(s.store, locator, s.converter, s.transfers,
		ledger.NewRunner(ledger.NewMemoryTx()), publisher.New(s.events))
}

func (s *DonationServiceSuite) TestDonate() {
	s.Run("fee is skimmed and net credited", func() {
		id, err := s.svc.Donate(s.ctx, donor, s.verified, 1_000_000, "USD", "for water")
		s.Require().NoError(err)
		s.False(id.IsNil())

		balance, err := s.svc.AvailableBalance(s.ctx, s.verified)
		s.Require().NoError(err)
		s.Equal(int64(975_000), balance)

		records, err := s.svc.ListDonations(s.ctx, s.verified)
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal(int64(1_000_000), records[0].GrossAmount)
		s.Equal(int64(25_000), records[0].FeeAmount)
		s.Equal(int64(975_000), records[0].NetAmount)
		s.Equal("for water", records[0].Memo)

		s.Require().Len(s.transfers.recorded, 1)
		s.Equal(recordedTransfer{kind: payoutmodels.KindFee, recipient: "treasury", amount: 25_000}, s.transfers.recorded[0])
		s.Len(s.events.ListByAction(s.ctx, audit.EventDonationMade), 1)
		s.Len(s.events.ListByAction(s.ctx, audit.EventFeeCharged), 1)
	})

	s.Run("foreign currency is converted first", func() {
		_, err := s.svc.Donate(s.ctx, donor, s.verified, 100, "EUR", "")
		s.Require().NoError(err)
		records, _ := s.svc.ListDonations(s.ctx, s.verified)
		last := records[len(records)-1]
		s.Equal(int64(100), last.OriginalAmount)
		s.Equal(int64(200), last.GrossAmount)
		s.Equal(int64(5), last.FeeAmount)
	})

	s.Run("empty currency means base currency", func() {
		_, err := s.svc.Donate(s.ctx, donor, s.verified, 40, "", "")
		s.Require().NoError(err)
		records, _ := s.svc.ListDonations(s.ctx, s.verified)
		s.Equal(domain.Currency("USD"), records[len(records)-1].Currency)
	})
}

func (s *DonationServiceSuite) TestDonateUnverifiedIsForbidden() {
	for _, id := range []domain.NGOID{s.pending, domain.NewNGOID()} {
		_, err := s.svc.Donate(s.ctx, donor, id, 1_000_000, "USD", "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		records, err := s.svc.ListDonations(s.ctx, id)
		s.Require().NoError(err)
		s.Empty(records)
	}
	s.Empty(s.events.ListByAction(s.ctx, audit.EventDonationMade))
}

func (s *DonationServiceSuite) TestDonateValidation() {
	for _, amount := range []int64{0, -5, domain.MaxAmount + 1} {
		_, err := s.svc.Donate(s.ctx, donor, s.verified, amount, "USD", "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation), amount)
	}
	_, err := s.svc.Donate(s.ctx, "", s.verified, 10, "USD", "")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *DonationServiceSuite) TestOracleFailureLeavesNoCredit() {
	s.converter.err = dErrors.Wrap(errors.New("feed down"), dErrors.CodeExternalDependency, "rate source unavailable")

	_, err := s.svc.Donate(s.ctx, donor, s.verified, 100, "EUR", "")
	s.True(dErrors.HasCode(err, dErrors.CodeExternalDependency))

	account, err := s.svc.EscrowAccount(s.ctx, s.verified)
	s.Require().NoError(err)
	s.Zero(account.TotalReceived)
	s.Empty(s.transfers.recorded)
}

func (s *DonationServiceSuite) TestDebit() {
	_, err := s.svc.Donate(s.ctx, donor, s.verified, 1_000_000, "USD", "")
	s.Require().NoError(err)

	s.Run("only the milestone manager may debit", func() {
		err := s.svc.Debit(s.ctx, donor, s.verified, 10, "m-1")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("over-debit is insufficient balance", func() {
		err := s.svc.Debit(s.ctx, milestoneManager, s.verified, 975_001, "m-1")
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientBalance))
		s.True(dErrors.Retryable(err))
	})

	s.Run("debit moves funds to the principal", func() {
		s.Require().NoError(s.svc.Debit(s.ctx, milestoneManager, s.verified, 500_000, "m-1"))
		account, err := s.svc.EscrowAccount(s.ctx, s.verified)
		s.Require().NoError(err)
		s.Equal(int64(475_000), account.Available())
		s.Equal(int64(500_000), account.TotalReleased)

		last := s.transfers.recorded[len(s.transfers.recorded)-1]
		s.Equal(recordedTransfer{kind: payoutmodels.KindRelease, recipient: ngoPrincipal, amount: 500_000}, last)
		s.Len(s.events.ListByAction(s.ctx, audit.EventFundsReleased), 1)
	})

	s.Run("releasing the remaining net leaves zero", func() {
		s.Require().NoError(s.svc.Debit(s.ctx, milestoneManager, s.verified, 475_000, "m-2"))
		balance, _ := s.svc.AvailableBalance(s.ctx, s.verified)
		s.Zero(balance)
	})

	s.Run("no escrow yet", func() {
		err := s.svc.Debit(s.ctx, milestoneManager, s.pending, 1, "m-3")
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientBalance))
	})
}

func (s *DonationServiceSuite) TestCorruptAccountIsHalted() {
	corrupt := &models.Account{NGOID: s.verified, TotalReceived: 10, TotalReleased: 50}
	s.Require().NoError(s.store.SaveAccount(s.ctx, corrupt))

	_, err := s.svc.Donate(s.ctx, donor, s.verified, 100, "USD", "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	account, err := s.svc.EscrowAccount(s.ctx, s.verified)
	s.Require().NoError(err)
	s.True(account.Halted, "halt survives the failed operation")
	s.Len(s.events.ListByAction(s.ctx, audit.EventEscrowHalted), 1)

	err = s.svc.Debit(s.ctx, milestoneManager, s.verified, 1, "m-1")
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	s.Len(s.events.ListByAction(s.ctx, audit.EventEscrowHalted), 1, "halting twice is a no-op")
}

func (s *DonationServiceSuite) TestEscrowOfUnknownNGOIsEmpty() {
	balance, err := s.svc.AvailableBalance(s.ctx, domain.NewNGOID())
	s.Require().NoError(err)
	s.Zero(balance)
}
