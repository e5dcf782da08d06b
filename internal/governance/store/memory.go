package store

import (
	"context"
	"sync"

	"impactledger/internal/governance/models"
	"impactledger/pkg/domain"
	"impactledger/pkg/platform/sentinel"
	"impactledger/pkg/platform/tx"
)

type voteKey struct {
	proposal domain.ProposalID
	voter    domain.Address
}

type InMemory struct {
	mu        sync.RWMutex
	params    *models.Params
	proposals map[domain.ProposalID]models.Proposal
	order     []domain.ProposalID
	votes     map[voteKey]models.Vote
}

func NewInMemory() *InMemory {
	return &InMemory{
		proposals: make(map[domain.ProposalID]models.Proposal),
		votes:     make(map[voteKey]models.Vote),
	}
}

func (s *InMemory) GetParams(context.Context) (*models.Params, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.params == nil {
		return nil, sentinel.ErrNotFound
	}
	p := *s.params
	return &p, nil
}

func (s *InMemory) PutParams(ctx context.Context, p *models.Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.params
	next := *p
	s.params = &next
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.params = prev
	})
	return nil
}

func (s *InMemory) CreateProposal(ctx context.Context, p *models.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.proposals[p.ID]; ok {
		return sentinel.ErrConflict
	}
	s.proposals[p.ID] = clone(p)
	s.order = append(s.order, p.ID)
	n := len(s.order)
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.proposals, p.ID)
		s.order = s.order[:n-1]
	})
	return nil
}

func (s *InMemory) UpdateProposal(ctx context.Context, p *models.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.proposals[p.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	s.proposals[p.ID] = clone(p)
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.proposals[prev.ID] = prev
	})
	return nil
}

func (s *InMemory) FindProposal(_ context.Context, id domain.ProposalID) (*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := clone(&p)
	return &out, nil
}

// ListProposals returns proposals in creation order.
func (s *InMemory) ListProposals(context.Context) ([]models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Proposal, 0, len(s.order))
	for _, id := range s.order {
		p := s.proposals[id]
		out = append(out, clone(&p))
	}
	return out, nil
}

func (s *InMemory) CreateVote(ctx context.Context, v *models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := voteKey{proposal: v.ProposalID, voter: v.Voter}
	if _, ok := s.votes[key]; ok {
		return sentinel.ErrConflict
	}
	s.votes[key] = *v
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.votes, key)
	})
	return nil
}

func (s *InMemory) FindVote(_ context.Context, id domain.ProposalID, voter domain.Address) (*models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.votes[voteKey{proposal: id, voter: voter}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &v, nil
}

// clone copies the proposal so callers never share the actions slice or eta.
func clone(p *models.Proposal) models.Proposal {
	out := *p
	out.Actions = append([]models.Action(nil), p.Actions...)
	if p.Eta != nil {
		eta := *p.Eta
		out.Eta = &eta
	}
	return out
}
