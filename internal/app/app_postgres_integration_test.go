//go:build integration

package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"impactledger/internal/app"
	"impactledger/internal/ledger"
	milestonemodels "impactledger/internal/milestone/models"
	"impactledger/internal/platform/config"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	"impactledger/pkg/requestcontext"
	"impactledger/pkg/testutil/containers"
)

type PostgresLedgerSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	t0       time.Time
	app      *app.App
}

func TestPostgresLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresLedgerSuite))
}

func (s *PostgresLedgerSuite) SetupSuite() {
	s.postgres = containers.GetManager().Postgres(s.T())
}

func (s *PostgresLedgerSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.t0.Add(offset))
}

func (s *PostgresLedgerSuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background()))
	s.t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	g := config.DefaultGenesis()
	g.Deployer = string(deployer)
	g.Fee = config.FeeGenesis{FeeBps: 250, FeeRecipient: "0xtreasury"}
	g.Roles = []config.RoleGrant{{Role: "VERIFIER", Members: []string{string(verifier)}}}
	g.Allocations = []config.Allocation{{Holder: string(alice), Amount: 600_000}, {Holder: string(bob), Amount: 400_000}}

	a, err := app.New(app.PostgresStores(s.postgres.DB), ledger.NewPostgresTx(s.postgres.DB, 0), app.Options{Genesis: g})
	s.Require().NoError(err)
	s.Require().NoError(a.Bootstrap(s.at(0)))
	s.app = a
}

func (s *PostgresLedgerSuite) count(table string) int {
	var n int
	s.Require().NoError(s.postgres.DB.QueryRowContext(context.Background(), "SELECT count(*) FROM "+table).Scan(&n))
	return n
}

func (s *PostgresLedgerSuite) TestBootstrapSurvivesRestart() {
	again, err := app.New(app.PostgresStores(s.postgres.DB), ledger.NewPostgresTx(s.postgres.DB, 0), app.Options{Genesis: s.app.Genesis()})
	s.Require().NoError(err)
	done, err := again.Bootstrapped(s.at(time.Hour))
	s.Require().NoError(err)
	s.True(done)
	s.Require().NoError(again.Bootstrap(s.at(time.Hour)))

	supply, err := again.Tokens.TotalSupplyAt(s.at(time.Hour), s.t0.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(1_000_000), supply)
	s.Equal(6, s.count("modules"))
}

func (s *PostgresLedgerSuite) TestDonateAndRelease() {
	ctx := s.at(0)
	ngo, err := s.app.NGOs.Register(ctx, principal, principal, "ipfs://ngo-profile")
	s.Require().NoError(err)

	_, err = s.app.Donations.Donate(s.at(time.Minute), donor, ngo, 1_000_000, "", "")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Equal(0, s.count("donations"), "rejected donation leaves no row")
	s.Equal(0, s.count("escrow_accounts"))

	s.Require().NoError(s.app.NGOs.Verify(ctx, verifier, ngo))
	_, err = s.app.Donations.Donate(s.at(time.Minute), donor, ngo, 1_000_000, "", "")
	s.Require().NoError(err)

	id, err := s.app.Milestones.Create(s.at(time.Hour), principal, milestonemodels.Draft{
		NGOID:        ngo,
		Description:  "Build well",
		TargetAmount: 500_000,
		Deadline:     s.t0.Add(30 * 24 * time.Hour),
		Approver:     approver,
	})
	s.Require().NoError(err)
	s.Require().NoError(s.app.Milestones.Submit(s.at(time.Hour), principal, id))
	s.Require().NoError(s.app.Milestones.Approve(s.at(2*time.Hour), approver, id))
	s.Require().NoError(s.app.Milestones.Release(s.at(3*time.Hour), donor, id))

	err = s.app.Milestones.Release(s.at(3*time.Hour), donor, id)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "released once")

	balance, err := s.app.Donations.AvailableBalance(s.at(4*time.Hour), ngo)
	s.Require().NoError(err)
	s.Equal(int64(475_000), balance)

	sent, err := s.app.Dispatcher.DispatchOnce(s.at(4 * time.Hour))
	s.Require().NoError(err)
	s.Equal(2, sent, "fee skim and release")

	m, err := s.app.Milestones.Get(s.at(4*time.Hour), id)
	s.Require().NoError(err)
	s.Equal(milestonemodels.StatusReleased, m.Status)
	s.Positive(s.count("outbox"), "events written through the outbox")
}

func (s *PostgresLedgerSuite) TestReleaseShortfallRollsBack() {
	ctx := s.at(0)
	ngo, err := s.app.NGOs.Register(ctx, principal, principal, "ipfs://ngo-profile")
	s.Require().NoError(err)
	s.Require().NoError(s.app.NGOs.Verify(ctx, verifier, ngo))
	_, err = s.app.Donations.Donate(s.at(time.Minute), donor, ngo, 100_000, "", "")
	s.Require().NoError(err)

	id, err := s.app.Milestones.Create(s.at(time.Hour), principal, milestonemodels.Draft{
		NGOID:        ngo,
		Description:  "Build school",
		TargetAmount: 500_000,
		Deadline:     s.t0.Add(30 * 24 * time.Hour),
		Approver:     approver,
	})
	s.Require().NoError(err)
	s.Require().NoError(s.app.Milestones.Submit(s.at(time.Hour), principal, id))
	s.Require().NoError(s.app.Milestones.Approve(s.at(2*time.Hour), approver, id))
	transfersBefore := s.count("transfers")

	err = s.app.Milestones.Release(s.at(3*time.Hour), donor, id)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientBalance))

	m, err := s.app.Milestones.Get(s.at(3*time.Hour), id)
	s.Require().NoError(err)
	s.Equal(milestonemodels.StatusApproved, m.Status, "milestone write rolled back with the debit")
	s.Equal(transfersBefore, s.count("transfers"))
	balance, err := s.app.Donations.AvailableBalance(s.at(3*time.Hour), ngo)
	s.Require().NoError(err)
	s.Equal(int64(97_500), balance)
}

func (s *PostgresLedgerSuite) TestAddressesAreOpaque() {
	ngo, err := s.app.NGOs.Register(s.at(0), verifier, domain.Address("acct:ngo@example.org"), "ipfs://x")
	s.Require().NoError(err)
	got, err := s.app.NGOs.Get(s.at(0), ngo)
	s.Require().NoError(err)
	s.Equal(domain.Address("acct:ngo@example.org"), got.Principal)
}
