package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"impactledger/internal/fee/store"
	"impactledger/internal/ledger"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	audit "impactledger/pkg/platform/audit"
	"impactledger/pkg/platform/audit/publisher"
	auditmemory "impactledger/pkg/platform/audit/store/memory"
	"impactledger/pkg/requestcontext"
)

const timelockAddr domain.Address = "module:timelock"

type fixedResolver struct {
	addr domain.Address
	err  error
}

func (r fixedResolver) Address(context.Context, string, string) (domain.Address, error) {
	return r.addr, r.err
}

type FeeServiceSuite struct {
	suite.Suite
	ctx    context.Context
	events *auditmemory.InMemoryStore
	svc    *Service
}

func TestFeeServiceSuite(t *testing.T) {
	suite.Run(t, new(FeeServiceSuite))
}

func (s *FeeServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	s.events = auditmemory.NewInMemoryStore()
	s.svc = New(store.NewInMemory(), fixedResolver{addr: timelockAddr},
		ledger.NewRunner(ledger.NewMemoryTx()), publisher.New(s.events))
}

func (s *FeeServiceSuite) TestUninitialized() {
	_, err := s.svc.CurrentSchedule(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *FeeServiceSuite) TestInitializeOnce() {
	s.Require().NoError(s.svc.Initialize(s.ctx, 250, "treasury"))

	sched, err := s.svc.CurrentSchedule(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(250), sched.FeeBps)
	s.Equal(domain.Address("treasury"), sched.Recipient)

	err = s.svc.Initialize(s.ctx, 100, "treasury")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *FeeServiceSuite) TestSetSchedule() {
	s.Require().NoError(s.svc.Initialize(s.ctx, 250, "treasury"))

	s.Run("only the timelock may change the schedule", func() {
		err := s.svc.SetSchedule(s.ctx, "0xadmin", 300, "treasury")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("timelock updates the schedule", func() {
		s.Require().NoError(s.svc.SetSchedule(s.ctx, timelockAddr, 300, "treasury-2"))
		sched, err := s.svc.CurrentSchedule(s.ctx)
		s.Require().NoError(err)
		s.Equal(int64(300), sched.FeeBps)
		s.Equal(timelockAddr, sched.UpdatedBy)
		s.Len(s.events.ListByAction(s.ctx, audit.EventFeeScheduleUpdated), 2)
	})

	s.Run("invalid bps leaves schedule unchanged", func() {
		err := s.svc.SetSchedule(s.ctx, timelockAddr, 20_000, "treasury")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		sched, _ := s.svc.CurrentSchedule(s.ctx)
		s.Equal(int64(300), sched.FeeBps)
	})
}

func (s *FeeServiceSuite) TestUnregisteredTimelock() {
	svc := New(store.NewInMemory(), fixedResolver{err: dErrors.New(dErrors.CodeNotFound, "module Timelock not registered")},
		ledger.NewRunner(ledger.NewMemoryTx()), publisher.New(s.events))
	err := svc.SetSchedule(s.ctx, timelockAddr, 300, "treasury")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
