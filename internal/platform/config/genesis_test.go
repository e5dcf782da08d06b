package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGenesis = `
base_currency = "USD"
deployer = "0xdeployer"

[fee]
fee_bps = 250
fee_recipient = "0xtreasury"

[governance]
voting_period = "72h"
min_delay = "24h"
quorum_bps = 400
proposal_threshold = 1000
open_execution = true

[[roles]]
role = "VERIFIER"
members = ["0xverifier"]

[[allocations]]
holder = "0xalice"
amount = 600000

[rates]
EUR = "1.08"

[milestones]
resubmit_policy = "clone"
max_attempts = 2
`

func TestDecodeGenesis(t *testing.T) {
	g, err := DecodeGenesis(sampleGenesis)
	require.NoError(t, err)

	assert.Equal(t, int64(250), g.Fee.FeeBps)
	assert.Equal(t, "0xtreasury", g.Fee.FeeRecipient)
	assert.Equal(t, 72*time.Hour, g.Governance.VotingPeriod)
	assert.Equal(t, 24*time.Hour, g.Governance.MinDelay)
	assert.True(t, g.Governance.OpenExecution)
	require.Len(t, g.Roles, 1)
	assert.Equal(t, []string{"0xverifier"}, g.Roles[0].Members)
	assert.Equal(t, "1.08", g.Rates["EUR"])
	assert.Equal(t, "clone", g.Milestones.ResubmitPolicy)
	// untouched sections keep defaults
	assert.InDelta(t, 0.4, g.Reputation.VerificationWeight, 1e-9)
}

func TestDecodeGenesis_Invalid(t *testing.T) {
	cases := map[string]string{
		"fee above denominator": "[fee]\nfee_bps = 10001\nfee_recipient = \"t\"",
		"unknown role":          "[[roles]]\nrole = \"OWNER\"\nmembers = [\"a\"]",
		"zero allocation":       "[[allocations]]\nholder = \"a\"\namount = 0",
		"bad policy":            "[milestones]\nresubmit_policy = \"sometimes\"",
		"bad rate code":         "[rates]\n\"e u\" = \"1\"",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeGenesis(data)
			require.Error(t, err)
		})
	}
}

func TestLoadGenesis_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.toml")
	require.NoError(t, os.WriteFile(path, []byte("fee_bps_typo = 3\n"), 0o600))

	_, err := LoadGenesis(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fee_bps_typo")
}

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("LEDGER_ADDR", "")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("PAYOUT_CONCURRENCY", "not-a-number")

	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 4, cfg.Payout.Concurrency)
}
