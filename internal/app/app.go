// Package app composes the ledger modules into one process-local ledger and
// applies the genesis state on first boot.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	accessmodels "impactledger/internal/access/models"
	accessservice "impactledger/internal/access/service"
	accessstore "impactledger/internal/access/store"
	donationservice "impactledger/internal/donation/service"
	donationstore "impactledger/internal/donation/store"
	feeservice "impactledger/internal/fee/service"
	feestore "impactledger/internal/fee/store"
	govmodels "impactledger/internal/governance/models"
	govservice "impactledger/internal/governance/service"
	govstore "impactledger/internal/governance/store"
	"impactledger/internal/governance/timelock"
	timelockstore "impactledger/internal/governance/timelock/store"
	"impactledger/internal/governance/token"
	tokenstore "impactledger/internal/governance/token/store"
	"impactledger/internal/ledger"
	milestonemodels "impactledger/internal/milestone/models"
	milestoneservice "impactledger/internal/milestone/service"
	milestonestore "impactledger/internal/milestone/store"
	modulemodels "impactledger/internal/modules/models"
	modules "impactledger/internal/modules/service"
	modulestore "impactledger/internal/modules/store"
	"impactledger/internal/ngo/reputation"
	ngoservice "impactledger/internal/ngo/service"
	ngostore "impactledger/internal/ngo/store"
	"impactledger/internal/oracle"
	"impactledger/internal/payout"
	payoutstore "impactledger/internal/payout/store"
	"impactledger/internal/platform/config"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	audit "impactledger/pkg/platform/audit"
	"impactledger/pkg/platform/audit/publisher"
	auditmemory "impactledger/pkg/platform/audit/store/memory"
	auditpostgres "impactledger/pkg/platform/audit/store/postgres"
	"impactledger/pkg/platform/tx"
)

// Fixed module addresses. A module acts as this principal when it calls
// another module, so role grants and the escrow debit check key on them.
const (
	AddrNGORegistry      domain.Address = "module:ngo-registry"
	AddrFeeManager       domain.Address = "module:fee-manager"
	AddrDonationManager  domain.Address = "module:donation-manager"
	AddrMilestoneManager domain.Address = "module:milestone-manager"
	AddrTimelock         domain.Address = "module:timelock"
	AddrGovernor         domain.Address = "module:governor"
)

// Stores groups one backend's persistence for every module.
type Stores struct {
	Access     accessservice.Store
	Modules    modules.Store
	NGOs       ngoservice.Store
	Fees       feeservice.Store
	Donations  donationservice.Store
	Milestones milestoneservice.Store
	Tokens     token.Store
	Governance govservice.Store
	Timelock   timelock.Store
	Transfers  payout.Store
	Events     audit.Store
}

// MemoryStores keeps the whole ledger in process memory.
func MemoryStores() Stores {
	return Stores{
		Access:     accessstore.NewInMemory(),
		Modules:    modulestore.NewInMemory(),
		NGOs:       ngostore.NewInMemory(),
		Fees:       feestore.NewInMemory(),
		Donations:  donationstore.NewInMemory(),
		Milestones: milestonestore.NewInMemory(),
		Tokens:     tokenstore.NewInMemory(),
		Governance: govstore.NewInMemory(),
		Timelock:   timelockstore.NewInMemory(),
		Transfers:  payoutstore.NewInMemory(),
		Events:     auditmemory.NewInMemoryStore(),
	}
}

// PostgresStores writes every module to db. Stores join the *sql.Tx the
// manager places in the context.
func PostgresStores(db *sql.DB) Stores {
	return Stores{
		Access:     accessstore.NewPostgres(db),
		Modules:    modulestore.NewPostgres(db),
		NGOs:       ngostore.NewPostgres(db),
		Fees:       feestore.NewPostgres(db),
		Donations:  donationstore.NewPostgres(db),
		Milestones: milestonestore.NewPostgres(db),
		Tokens:     tokenstore.NewPostgres(db),
		Governance: govstore.NewPostgres(db),
		Timelock:   timelockstore.NewPostgres(db),
		Transfers:  payoutstore.NewPostgres(db),
		Events:     auditpostgres.New(db),
	}
}

// Options configures New. Zero values fall back to development defaults.
type Options struct {
	Genesis    config.Genesis
	Rates      oracle.RateSource
	Transferor payout.Transferor
	Payout     config.PayoutConfig
	Logger     *slog.Logger
	Metrics    Metrics
}

// Metrics is every process metric the ledger reports.
type Metrics interface {
	ledger.Metrics
	oracle.Metrics
	payout.Metrics
}

// App holds the composed modules.
type App struct {
	Runner     *ledger.Runner
	Events     *publisher.Publisher
	Roles      *accessservice.Service
	Registry   *modules.Service
	Host       *modules.Host
	Binder     *modules.Binder
	NGOs       *ngoservice.Service
	Fees       *feeservice.Service
	Donations  *donationservice.Service
	Milestones *milestoneservice.Service
	Tokens     *token.Ledger
	Timelock   *timelock.Service
	Governor   *govservice.Service
	Converter  *oracle.Converter
	Transfers  *payout.Recorder
	Dispatcher *payout.Dispatcher

	genesis config.Genesis
	logger  *slog.Logger
}

// New wires the modules over stores. Nothing is written until Bootstrap.
func New(stores Stores, manager tx.Manager, opts Options) (*App, error) {
	g := opts.Genesis
	if g.BaseCurrency == "" {
		g = config.DefaultGenesis()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base, err := domain.ParseCurrency(g.BaseCurrency)
	if err != nil {
		return nil, fmt.Errorf("base currency: %w", err)
	}
	policy, err := milestonemodels.ParsePolicy(g.Milestones.ResubmitPolicy, g.Milestones.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("resubmit policy: %w", err)
	}
	rates := opts.Rates
	if rates == nil {
		if rates, err = oracle.NewStaticSource(g.Rates); err != nil {
			return nil, fmt.Errorf("static rates: %w", err)
		}
	}
	transferor := opts.Transferor
	if transferor == nil {
		transferor = payout.LogTransferor{Logger: logger}
	}

	runnerOpts := []ledger.Option{ledger.WithLogger(logger)}
	converterOpts := []oracle.Option{oracle.WithLogger(logger)}
	dispatcherOpts := []payout.Option{
		payout.WithLogger(logger),
		payout.WithInterval(opts.Payout.Interval),
		payout.WithBatchSize(opts.Payout.BatchSize),
		payout.WithConcurrency(opts.Payout.Concurrency),
		payout.WithLeaseTimeout(opts.Payout.LeaseTimeout),
	}
	if opts.Metrics != nil {
		runnerOpts = append(runnerOpts, ledger.WithMetrics(opts.Metrics))
		converterOpts = append(converterOpts, oracle.WithMetrics(opts.Metrics))
		dispatcherOpts = append(dispatcherOpts, payout.WithMetrics(opts.Metrics))
	}

	a := &App{genesis: g, logger: logger}
	a.Runner = ledger.NewRunner(manager, runnerOpts...)
	a.Events = publisher.New(stores.Events, publisher.WithLogger(logger))
	a.Roles = accessservice.New(stores.Access, a.Runner, a.Events, accessservice.WithLogger(logger))
	a.Registry = modules.New(stores.Modules, a.Roles, a.Runner, a.Events, modules.WithLogger(logger))
	a.Host = modules.NewHost()
	a.Binder = modules.NewBinder(a.Registry, a.Host)

	a.Converter = oracle.NewConverter(base, rates, converterOpts...)
	a.Transfers = payout.NewRecorder(stores.Transfers)
	a.Dispatcher = payout.NewDispatcher(stores.Transfers, transferor, a.Runner, dispatcherOpts...)
	a.Transfers.OnCommit(a.Dispatcher.Kick)

	a.Fees = feeservice.New(stores.Fees, a.Binder, a.Runner, a.Events, feeservice.WithLogger(logger))
	a.Donations = donationservice.New(stores.Donations, a.Binder, a.Converter, a.Transfers, a.Runner, a.Events,
		donationservice.WithLogger(logger))
	a.Milestones = milestoneservice.New(stores.Milestones, a.Roles, a.Binder, a.Runner, a.Events,
		milestoneservice.WithLogger(logger), milestoneservice.WithResubmitPolicy(policy))
	a.NGOs = ngoservice.New(stores.NGOs, a.Roles, a.Runner, a.Events,
		ngoservice.WithLogger(logger),
		ngoservice.WithHistory(a.Milestones),
		ngoservice.WithScorer(reputation.NewWeighted(reputation.Weights{
			Verification: g.Reputation.VerificationWeight,
			Success:      g.Reputation.SuccessWeight,
			Impact:       g.Reputation.ImpactWeight,
			ImpactTarget: g.Reputation.ImpactTarget,
		})))

	a.Tokens = token.New(stores.Tokens, a.Runner, a.Events, token.WithLogger(logger))
	var gov *govservice.Service
	a.Timelock = timelock.New(stores.Timelock, a.Roles,
		timelock.DelayFunc(func(ctx context.Context) (time.Duration, error) { return gov.MinDelay(ctx) }),
		a.Binder, a.Runner, a.Events, timelock.WithLogger(logger))
	gov = govservice.New(stores.Governance, a.Tokens, a.Timelock, a.Binder, a.Registry, a.Roles, a.Runner, a.Events,
		govservice.WithLogger(logger))
	a.Governor = gov

	a.Host.Serve(AddrNGORegistry, a.NGOs)
	a.Host.Serve(AddrFeeManager, a.Fees)
	a.Host.Serve(AddrDonationManager, a.Donations)
	a.Host.Serve(AddrMilestoneManager, a.Milestones)
	a.Host.Serve(AddrTimelock, a.Timelock)
	a.Host.Serve(AddrGovernor, a.Governor)
	return a, nil
}

// Genesis returns the parameters the app was built with.
func (a *App) Genesis() config.Genesis {
	return a.genesis
}

func moduleHandles() map[string]modulemodels.Handle {
	return map[string]modulemodels.Handle{
		modulemodels.NameNGORegistry:      {Address: AddrNGORegistry, Interface: modulemodels.InterfaceNGORegistry, Version: 1},
		modulemodels.NameFeeManager:       {Address: AddrFeeManager, Interface: modulemodels.InterfaceFeeManager, Version: 1},
		modulemodels.NameDonationManager:  {Address: AddrDonationManager, Interface: modulemodels.InterfaceDonationManager, Version: 1},
		modulemodels.NameMilestoneManager: {Address: AddrMilestoneManager, Interface: modulemodels.InterfaceMilestoneManager, Version: 1},
		modulemodels.NameTimelock:         {Address: AddrTimelock, Interface: modulemodels.InterfaceTimelock, Version: 1},
		modulemodels.NameGovernor:         {Address: AddrGovernor, Interface: modulemodels.InterfaceGovernor, Version: 1},
	}
}

// registrationOrder keeps genesis events deterministic.
var registrationOrder = []string{
	modulemodels.NameNGORegistry,
	modulemodels.NameFeeManager,
	modulemodels.NameDonationManager,
	modulemodels.NameMilestoneManager,
	modulemodels.NameTimelock,
	modulemodels.NameGovernor,
}

type roleGrant struct {
	role   accessmodels.Role
	member domain.Address
}

// Bootstrapped reports whether genesis has already been applied.
func (a *App) Bootstrapped(ctx context.Context) (bool, error) {
	_, err := a.Registry.Resolve(ctx, modulemodels.NameGovernor)
	switch {
	case err == nil:
		return true, nil
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Bootstrap applies genesis as one unit: the deployer registers the modules,
// seeds roles, mints the governance token and then hands ADMIN to the
// Timelock. A ledger that is already bootstrapped is left untouched.
func (a *App) Bootstrap(ctx context.Context) error {
	done, err := a.Bootstrapped(ctx)
	if err != nil {
		return err
	}
	if done {
		a.logger.InfoContext(ctx, "ledger already bootstrapped")
		return nil
	}

	g := a.genesis
	deployer := domain.Address(g.Deployer)
	err = a.Runner.Run(ctx, "genesis.bootstrap", func(ctx context.Context) error {
		if err := a.Roles.Seed(ctx, accessmodels.RoleAdmin, deployer); err != nil {
			return err
		}
		handles := moduleHandles()
		for _, name := range registrationOrder {
			if err := a.Registry.Register(ctx, deployer, name, handles[name]); err != nil {
				return err
			}
		}
		for _, grant := range g.Roles {
			role, err := accessmodels.ParseRole(grant.Role)
			if err != nil {
				return err
			}
			for _, m := range grant.Members {
				if err := a.Roles.Grant(ctx, deployer, role, domain.Address(m)); err != nil {
					return err
				}
			}
		}
		for _, alloc := range g.Allocations {
			if err := a.Tokens.Mint(ctx, domain.Address(alloc.Holder), alloc.Amount); err != nil {
				return err
			}
		}
		if err := a.Fees.Initialize(ctx, g.Fee.FeeBps, domain.Address(g.Fee.FeeRecipient)); err != nil {
			return err
		}
		if err := a.Governor.InitParams(ctx, govmodels.Params{
			VotingDelay:       g.Governance.VotingDelay,
			VotingPeriod:      g.Governance.VotingPeriod,
			MinDelay:          g.Governance.MinDelay,
			QuorumBps:         g.Governance.QuorumBps,
			ProposalThreshold: g.Governance.ProposalThreshold,
		}); err != nil {
			return err
		}

		grants := []roleGrant{
			{accessmodels.RoleProposer, AddrGovernor},
			{accessmodels.RoleExecutor, AddrGovernor},
			{accessmodels.RoleAdmin, AddrTimelock},
		}
		if g.Governance.OpenExecution {
			grants = append(grants, roleGrant{accessmodels.RoleExecutor, domain.AnyAddress})
		}
		for _, gr := range grants {
			if err := a.Roles.Grant(ctx, deployer, gr.role, gr.member); err != nil {
				return err
			}
		}
		return a.Roles.Renounce(ctx, deployer, accessmodels.RoleAdmin)
	})
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	a.logger.InfoContext(ctx, "genesis applied",
		"deployer", deployer,
		"modules", len(registrationOrder),
		"allocations", len(g.Allocations),
	)
	return nil
}
