package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"impactledger/pkg/domain"
)

// Genesis is the initial ledger state loaded from a TOML file at first boot.
// After bootstrap every parameter it sets is owned by governance.
type Genesis struct {
	BaseCurrency string            `toml:"base_currency"`
	Deployer     string            `toml:"deployer"`
	Fee          FeeGenesis        `toml:"fee"`
	Governance   GovernanceGenesis `toml:"governance"`
	Roles        []RoleGrant       `toml:"roles"`
	Allocations  []Allocation      `toml:"allocations"`
	Rates        map[string]string `toml:"rates"`
	Milestones   MilestoneGenesis  `toml:"milestones"`
	Reputation   ReputationGenesis `toml:"reputation"`
}

type FeeGenesis struct {
	FeeBps       int64  `toml:"fee_bps"`
	FeeRecipient string `toml:"fee_recipient"`
}

type GovernanceGenesis struct {
	VotingDelay       time.Duration `toml:"voting_delay"`
	VotingPeriod      time.Duration `toml:"voting_period"`
	MinDelay          time.Duration `toml:"min_delay"`
	QuorumBps         int64         `toml:"quorum_bps"`
	ProposalThreshold int64         `toml:"proposal_threshold"`
	// OpenExecution grants EXECUTOR to everyone so any principal may execute a
	// ready timelock operation.
	OpenExecution bool `toml:"open_execution"`
}

type RoleGrant struct {
	Role    string   `toml:"role"`
	Members []string `toml:"members"`
}

type Allocation struct {
	Holder string `toml:"holder"`
	Amount int64  `toml:"amount"`
}

type MilestoneGenesis struct {
	ResubmitPolicy string `toml:"resubmit_policy"` // "never" or "clone"
	MaxAttempts    int    `toml:"max_attempts"`
}

type ReputationGenesis struct {
	VerificationWeight float64 `toml:"verification_weight"`
	SuccessWeight      float64 `toml:"success_weight"`
	ImpactWeight       float64 `toml:"impact_weight"`
	ImpactTarget       int64   `toml:"impact_target"`
}

// DefaultGenesis returns the parameters used when no genesis file exists.
func DefaultGenesis() Genesis {
	return Genesis{
		BaseCurrency: "USD",
		Deployer:     "deployer",
		Fee: FeeGenesis{
			FeeBps:       250,
			FeeRecipient: "treasury",
		},
		Governance: GovernanceGenesis{
			VotingDelay:       0,
			VotingPeriod:      72 * time.Hour,
			MinDelay:          24 * time.Hour,
			QuorumBps:         400,
			ProposalThreshold: 1,
			OpenExecution:     true,
		},
		Milestones: MilestoneGenesis{ResubmitPolicy: "never", MaxAttempts: 3},
		Reputation: ReputationGenesis{
			VerificationWeight: 0.4,
			SuccessWeight:      0.4,
			ImpactWeight:       0.2,
			ImpactTarget:       10_000_000,
		},
	}
}

// LoadGenesis decodes path on top of DefaultGenesis and validates the result.
func LoadGenesis(path string) (Genesis, error) {
	g := DefaultGenesis()
	meta, err := toml.DecodeFile(path, &g)
	if err != nil {
		return Genesis{}, fmt.Errorf("decode genesis %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Genesis{}, fmt.Errorf("genesis %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := g.Validate(); err != nil {
		return Genesis{}, fmt.Errorf("genesis %s: %w", path, err)
	}
	return g, nil
}

// DecodeGenesis parses TOML text; used by tests and the `genesis check` command.
func DecodeGenesis(data string) (Genesis, error) {
	g := DefaultGenesis()
	if _, err := toml.Decode(data, &g); err != nil {
		return Genesis{}, fmt.Errorf("decode genesis: %w", err)
	}
	if err := g.Validate(); err != nil {
		return Genesis{}, err
	}
	return g, nil
}

var validRoles = map[string]bool{"ADMIN": true, "VERIFIER": true, "PROPOSER": true, "EXECUTOR": true}

// Validate checks every field against the ledger's input rules.
func (g Genesis) Validate() error {
	var errs []error
	if _, err := domain.ParseCurrency(g.BaseCurrency); err != nil {
		errs = append(errs, fmt.Errorf("base_currency: %w", err))
	}
	if _, err := domain.ParseAddress(g.Deployer); err != nil {
		errs = append(errs, fmt.Errorf("deployer: %w", err))
	}
	if err := domain.ValidateBps(g.Fee.FeeBps); err != nil {
		errs = append(errs, fmt.Errorf("fee.fee_bps: %w", err))
	}
	if _, err := domain.ParseAddress(g.Fee.FeeRecipient); err != nil {
		errs = append(errs, fmt.Errorf("fee.fee_recipient: %w", err))
	}
	if g.Governance.VotingPeriod <= 0 {
		errs = append(errs, errors.New("governance.voting_period must be positive"))
	}
	if g.Governance.VotingDelay < 0 || g.Governance.MinDelay < 0 {
		errs = append(errs, errors.New("governance delays must not be negative"))
	}
	if err := domain.ValidateBps(g.Governance.QuorumBps); err != nil {
		errs = append(errs, fmt.Errorf("governance.quorum_bps: %w", err))
	}
	if g.Governance.ProposalThreshold < 0 {
		errs = append(errs, errors.New("governance.proposal_threshold must not be negative"))
	}
	for i, r := range g.Roles {
		if !validRoles[r.Role] {
			errs = append(errs, fmt.Errorf("roles[%d]: unknown role %q", i, r.Role))
		}
		for _, m := range r.Members {
			if _, err := domain.ParseAddress(m); err != nil {
				errs = append(errs, fmt.Errorf("roles[%d]: member %q: %w", i, m, err))
			}
		}
	}
	for i, a := range g.Allocations {
		if _, err := domain.ParseAddress(a.Holder); err != nil {
			errs = append(errs, fmt.Errorf("allocations[%d].holder: %w", i, err))
		}
		if err := domain.ValidateAmount(a.Amount); err != nil {
			errs = append(errs, fmt.Errorf("allocations[%d].amount: %w", i, err))
		}
	}
	for code := range g.Rates {
		if _, err := domain.ParseCurrency(code); err != nil {
			errs = append(errs, fmt.Errorf("rates.%s: %w", code, err))
		}
	}
	switch g.Milestones.ResubmitPolicy {
	case "", "never", "clone":
	default:
		errs = append(errs, fmt.Errorf("milestones.resubmit_policy: unknown policy %q", g.Milestones.ResubmitPolicy))
	}
	if g.Reputation.VerificationWeight < 0 || g.Reputation.SuccessWeight < 0 || g.Reputation.ImpactWeight < 0 {
		errs = append(errs, errors.New("reputation weights must not be negative"))
	}
	return errors.Join(errs...)
}
