package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	accessmodels "impactledger/internal/access/models"
	accessservice "impactledger/internal/access/service"
	accessstore "impactledger/internal/access/store"
	"impactledger/internal/ledger"
	"impactledger/internal/ngo/models"
	"impactledger/internal/ngo/reputation"
	"impactledger/internal/ngo/store"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	audit "impactledger/pkg/platform/audit"
	"impactledger/pkg/platform/audit/publisher"
	auditmemory "impactledger/pkg/platform/audit/store/memory"
	"impactledger/pkg/requestcontext"
)

const (
	admin     domain.Address = "0xadmin"
	verifier  domain.Address = "0xverifier"
	principal domain.Address = "0xngo"
	stranger  domain.Address = "0xstranger"
)

type stubHistory struct{ in reputation.Inputs }

func (h stubHistory) History(context.Context, domain.NGOID) (reputation.Inputs, error) {
	return h.in, nil
}

type NGOServiceSuite struct {
	suite.Suite
	ctx    context.Context
	events *auditmemory.InMemoryStore
	svc    *Service
}

func TestNGOServiceSuite(t *testing.T) {
	suite.Run(t, new(NGOServiceSuite))
}

func (s *NGOServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	s.events = auditmemory.NewInMemoryStore()
	runner := ledger.NewRunner(ledger.NewMemoryTx())
	pub := publisher.New(s.events)

	roles := accessservice.New(accessstore.NewInMemory(), runner, pub)
	s.Require().NoError(roles.Seed(s.ctx, accessmodels.RoleAdmin, admin))
	s.Require().NoError(roles.Seed(s.ctx, accessmodels.RoleVerifier, verifier))

	s.svc = New(store.NewInMemory(), roles, runner, pub,
		WithHistory(stubHistory{in: reputation.Inputs{MilestonesReleased: 3, MilestonesRejected: 1}}))
}

func (s *NGOServiceSuite) register() domain.NGOID {
	id, err := s.svc.Register(s.ctx, principal, principal, "ipfs://profile")
	s.Require().NoError(err)
	return id
}

func (s *NGOServiceSuite) TestRegister() {
	s.Run("principal registers itself as pending", func() {
		id := s.register()
		p, err := s.svc.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, p.Status)
		s.Len(s.events.ListByAction(s.ctx, audit.EventNGORegistered), 1)
	})

	s.Run("live principal cannot register twice", func() {
		_, err := s.svc.Register(s.ctx, principal, principal, "ipfs://other")
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateRegistration))
	})

	s.Run("stranger cannot register someone else", func() {
		_, err := s.svc.Register(s.ctx, stranger, "0xother", "ipfs://x")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("verifier registers on behalf of a principal", func() {
		_, err := s.svc.Register(s.ctx, verifier, "0xother", "ipfs://x")
		s.NoError(err)
	})

	s.Run("empty metadata is a validation error", func() {
		_, err := s.svc.Register(s.ctx, "0xthird", "0xthird", "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *NGOServiceSuite) TestVerifyAndReject() {
	id := s.register()

	s.Run("only verifiers decide", func() {
		err := s.svc.Verify(s.ctx, admin, id)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("pending becomes verified", func() {
		s.Require().NoError(s.svc.Verify(s.ctx, verifier, id))
		ok, err := s.svc.IsVerified(s.ctx, id)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("verification is terminal", func() {
		s.True(dErrors.HasCode(s.svc.Verify(s.ctx, verifier, id), dErrors.CodeInvalidState))
		s.True(dErrors.HasCode(s.svc.Reject(s.ctx, verifier, id), dErrors.CodeInvalidState))
	})

	s.Run("unknown id is not found", func() {
		err := s.svc.Reject(s.ctx, verifier, domain.NewNGOID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *NGOServiceSuite) TestRejectedPrincipalMayRegisterAgain() {
	id := s.register()
	s.Require().NoError(s.svc.Reject(s.ctx, verifier, id))

	again, err := s.svc.Register(s.ctx, principal, principal, "ipfs://profile-v2")
	s.Require().NoError(err)
	s.NotEqual(id, again)
}

func (s *NGOServiceSuite) TestArchive() {
	id := s.register()
	s.Require().NoError(s.svc.Verify(s.ctx, verifier, id))

	s.True(dErrors.HasCode(s.svc.Archive(s.ctx, verifier, id), dErrors.CodeForbidden))
	s.Require().NoError(s.svc.Archive(s.ctx, admin, id))

	ok, err := s.svc.IsVerified(s.ctx, id)
	s.Require().NoError(err)
	s.False(ok, "archived profiles are never verified")

	p, err := s.svc.Get(s.ctx, id)
	s.Require().NoError(err)
	s.True(p.Archived, "archived, not deleted")

	s.True(dErrors.HasCode(s.svc.Archive(s.ctx, admin, id), dErrors.CodeInvalidState))
}

func (s *NGOServiceSuite) TestIsVerifiedUnknown() {
	ok, err := s.svc.IsVerified(s.ctx, domain.NewNGOID())
	s.NoError(err)
	s.False(ok)
}

func (s *NGOServiceSuite) TestReputation() {
	id := s.register()
	s.Require().NoError(s.svc.Verify(s.ctx, verifier, id))

	score, err := s.svc.Reputation(s.ctx, id)
	s.Require().NoError(err)
	// 0.4*1 + 0.4*0.75 + 0.2*0
	s.InDelta(0.7, score.Value, 1e-9)
}

func (s *NGOServiceSuite) TestList() {
	s.register()
	_, err := s.svc.Register(s.ctx, verifier, "0xsecond", "ipfs://second")
	s.Require().NoError(err)

	all, err := s.svc.List(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
}
