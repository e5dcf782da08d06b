package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

var now = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func draft() Draft {
	return Draft{
		NGOID:        domain.NewNGOID(),
		Description:  "drill two wells",
		TargetAmount: 500_000,
		Deadline:     now.Add(30 * 24 * time.Hour),
		Approver:     "0xapprover",
	}
}

func TestNewMilestone_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Draft)
	}{
		{"description too long", func(d *Draft) { d.Description = strings.Repeat("w", 1025) }},
		{"zero target", func(d *Draft) { d.TargetAmount = 0 }},
		{"negative target", func(d *Draft) { d.TargetAmount = -1 }},
		{"missing approver", func(d *Draft) { d.Approver = "" }},
		{"deadline in the past", func(d *Draft) { d.Deadline = now.Add(-time.Hour) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := draft()
			tt.mutate(&d)
			_, err := NewMilestone(domain.NewMilestoneID(), d, "0xngo", now)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestNewMilestone_DescriptionIsOptional(t *testing.T) {
	d := draft()
	d.Description = "  "
	m, err := NewMilestone(domain.NewMilestoneID(), d, "0xngo", now)
	require.NoError(t, err)
	assert.Empty(t, m.Description)
	assert.Equal(t, int64(500_000), m.TargetAmount)
	assert.Equal(t, StatusPending, m.Status)
}

// TestTransitionGraph walks every operation from every state: only the edges
// of the lifecycle succeed.
func TestTransitionGraph(t *testing.T) {
	allowed := map[Status]map[string]bool{
		StatusPending:   {"submit": true},
		StatusSubmitted: {"approve": true, "reject": true},
		StatusApproved:  {"release": true},
		StatusReleased:  {},
		StatusRejected:  {},
	}
	ops := map[string]func(m *Milestone) error{
		"submit":  func(m *Milestone) error { return m.CanSubmit(now) },
		"approve": func(m *Milestone) error { return m.CanDecide("0xapprover", "approve") },
		"reject":  func(m *Milestone) error { return m.CanDecide("0xapprover", "reject") },
		"release": func(m *Milestone) error { return m.CanRelease() },
	}
	for status, edges := range allowed {
		for op, check := range ops {
			m, err := NewMilestone(domain.NewMilestoneID(), draft(), "0xngo", now)
			require.NoError(t, err)
			m.Status = status
			err = check(m)
			if edges[op] {
				assert.NoError(t, err, "%s from %s", op, status)
			} else {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState), "%s from %s", op, status)
			}
		}
	}
}

func TestCanDecide_WrongApprover(t *testing.T) {
	m, err := NewMilestone(domain.NewMilestoneID(), draft(), "0xngo", now)
	require.NoError(t, err)
	m.ApplySubmit(now)
	assert.True(t, dErrors.HasCode(m.CanDecide("0xsomeone", "approve"), dErrors.CodeForbidden))
}

func TestCanSubmit_AfterDeadline(t *testing.T) {
	m, err := NewMilestone(domain.NewMilestoneID(), draft(), "0xngo", now)
	require.NoError(t, err)
	err = m.CanSubmit(m.Deadline.Add(time.Second))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func TestResubmitPolicies(t *testing.T) {
	rejected, err := NewMilestone(domain.NewMilestoneID(), draft(), "0xngo", now)
	require.NoError(t, err)
	rejected.Status = StatusRejected

	t.Run("never refuses", func(t *testing.T) {
		_, err := Never{}.Resubmit(rejected, time.Time{}, "0xngo", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	t.Run("clone links attempts", func(t *testing.T) {
		policy := Clone{MaxAttempts: 2}
		next, err := policy.Resubmit(rejected, time.Time{}, "0xngo", now)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, next.Status)
		assert.Equal(t, 2, next.Attempt)
		require.NotNil(t, next.PreviousID)
		assert.Equal(t, rejected.ID, *next.PreviousID)
		assert.Equal(t, rejected.TargetAmount, next.TargetAmount)

		next.Status = StatusRejected
		_, err = policy.Resubmit(next, time.Time{}, "0xngo", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState), "attempts exhausted")
	})

	t.Run("clone only from rejected", func(t *testing.T) {
		pending, _ := NewMilestone(domain.NewMilestoneID(), draft(), "0xngo", now)
		_, err := Clone{MaxAttempts: 3}.Resubmit(pending, time.Time{}, "0xngo", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	t.Run("parse", func(t *testing.T) {
		p, err := ParsePolicy("", 0)
		require.NoError(t, err)
		assert.Equal(t, PolicyNever, p.Name())
		_, err = ParsePolicy("clone", 1)
		assert.Error(t, err)
		_, err = ParsePolicy("forever", 3)
		assert.Error(t, err)
	})
}
