package timelock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	accessmodels "impactledger/internal/access/models"
	accessservice "impactledger/internal/access/service"
	accessstore "impactledger/internal/access/store"
	"impactledger/internal/governance/timelock"
	"impactledger/internal/governance/timelock/store"
	"impactledger/internal/ledger"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	audit "impactledger/pkg/platform/audit"
	"impactledger/pkg/platform/audit/publisher"
	auditmemory "impactledger/pkg/platform/audit/store/memory"
	"impactledger/pkg/requestcontext"
)

const (
	governor     domain.Address = "module:governor"
	timelockAddr domain.Address = "module:timelock"
	stranger     domain.Address = "0xstranger"
)

type fixedDelay time.Duration

func (d fixedDelay) MinDelay(context.Context) (time.Duration, error) { return time.Duration(d), nil }

type fixedResolver domain.Address

func (r fixedResolver) Address(context.Context, string, string) (domain.Address, error) {
	return domain.Address(r), nil
}

type TimelockSuite struct {
	suite.Suite
	now    time.Time
	events *auditmemory.InMemoryStore
	svc    *timelock.Service
	hash   string
}

func TestTimelockSuite(t *testing.T) {
	suite.Run(t, new(TimelockSuite))
}

func (s *TimelockSuite) SetupTest() {
	s.now = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	s.events = auditmemory.NewInMemoryStore()
	runner := ledger.NewRunner(ledger.NewMemoryTx())
	pub := publisher.New(s.events)

	roles := accessservice.New(accessstore.NewInMemory(), runner, pub)
	s.Require().NoError(roles.Seed(s.at(0), accessmodels.RoleProposer, governor))
	s.Require().NoError(roles.Seed(s.at(0), accessmodels.RoleExecutor, governor))

	s.svc = timelock.New(store.NewInMemory(), roles, fixedDelay(24*time.Hour), fixedResolver(timelockAddr), runner, pub)
	s.hash = timelock.OperationHash(domain.NewProposalID(), []byte(`[{"kind":"SetFeeSchedule"}]`))
}

func (s *TimelockSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(offset))
}

func (s *TimelockSuite) schedule() {
	s.Require().NoError(s.svc.Schedule(s.at(0), governor, s.hash, domain.NewProposalID(), s.now.Add(24*time.Hour)))
}

func (s *TimelockSuite) TestSchedule() {
	s.Run("eta before min delay", func() {
		err := s.svc.Schedule(s.at(0), governor, s.hash, domain.NewProposalID(), s.now.Add(time.Hour))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("caller without PROPOSER", func() {
		err := s.svc.Schedule(s.at(0), stranger, s.hash, domain.NewProposalID(), s.now.Add(24*time.Hour))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("schedules once", func() {
		s.schedule()
		err := s.svc.Schedule(s.at(0), governor, s.hash, domain.NewProposalID(), s.now.Add(48*time.Hour))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Len(s.events.ListByAction(s.at(0), audit.EventTimelockScheduled), 1)
	})
}

func (s *TimelockSuite) TestExecuteRespectsEta() {
	s.schedule()
	var ran []domain.Address
	calls := func(_ context.Context, self domain.Address) error {
		ran = append(ran, self)
		return nil
	}

	err := s.svc.Execute(s.at(time.Hour), governor, s.hash, calls)
	s.True(dErrors.HasCode(err, dErrors.CodeTimelockNotReady))
	s.Empty(ran)
	op, err := s.svc.Get(s.at(0), s.hash)
	s.Require().NoError(err)
	s.Equal(timelock.StatusScheduled, op.Status)

	s.Require().NoError(s.svc.Execute(s.at(24*time.Hour), governor, s.hash, calls))
	s.Equal([]domain.Address{timelockAddr}, ran, "calls run as the timelock")

	op, err = s.svc.Get(s.at(0), s.hash)
	s.Require().NoError(err)
	s.Equal(timelock.StatusExecuted, op.Status)
	s.NotNil(op.ExecutedAt)

	err = s.svc.Execute(s.at(25*time.Hour), governor, s.hash, calls)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "executes once")
}

func (s *TimelockSuite) TestExecuteFailureKeepsScheduled() {
	s.schedule()
	err := s.svc.Execute(s.at(24*time.Hour), governor, s.hash, func(context.Context, domain.Address) error {
		return errors.New("action failed")
	})
	s.Require().Error(err)
	op, err := s.svc.Get(s.at(0), s.hash)
	s.Require().NoError(err)
	s.Equal(timelock.StatusScheduled, op.Status)
}

func (s *TimelockSuite) TestCancel() {
	s.schedule()
	s.True(dErrors.HasCode(s.svc.Cancel(s.at(0), stranger, s.hash), dErrors.CodeForbidden))
	s.Require().NoError(s.svc.Cancel(s.at(0), governor, s.hash))

	err := s.svc.Execute(s.at(48*time.Hour), governor, s.hash, func(context.Context, domain.Address) error { return nil })
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	s.True(dErrors.HasCode(s.svc.Cancel(s.at(0), governor, s.hash), dErrors.CodeInvalidState))
}

func (s *TimelockSuite) TestUnknownOperation() {
	_, err := s.svc.Get(s.at(0), "0xmissing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *TimelockSuite) TestOperationHashIsStable() {
	id := domain.NewProposalID()
	a := timelock.OperationHash(id, []byte("calls"))
	s.Equal(a, timelock.OperationHash(id, []byte("calls")))
	s.NotEqual(a, timelock.OperationHash(id, []byte("other")))
	s.Len(a, 66)
}
