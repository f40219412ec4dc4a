package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/vesting"
)

func TestRun_Testdata(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	require.NoError(t, err)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
			assert.Len(t, result.Steps, len(scenario.Steps))
			require.NotNil(t, result.Summary)
			assert.Equal(t, "0", result.Summary.TotalAmount)
		})
	}
}

func TestRun_CoinWeeklySummary(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "coin_weekly.yaml"))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, strings.Join(result.Errors, "\n"))

	assert.Equal(t, &Summary{
		Schedules:    1,
		Revoked:      0,
		Holders:      1,
		TotalAmount:  "0",
		Withdrawable: "0",
		Pool:         "0",
	}, result.Summary)

	withdraw := result.Steps[2]
	assert.Equal(t, ActionWithdraw, withdraw.Action)
	assert.Equal(t, "InsufficientWithdrawable", withdraw.Code)
	assert.True(t, withdraw.Pass)
	assert.NotEmpty(t, withdraw.Trace)

	advance := result.Steps[5]
	assert.Equal(t, ActionAdvance, advance.Action)
	assert.Equal(t, scenario.Genesis+builtin.EpochsInWeek, advance.Epoch)
}

func TestRun_ReportsMismatches(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: mismatches
variant: coin
genesis: 100
accounts:
  - name: owner
    balance: 100
  - name: alice
owner: owner
steps:
  - action: fund
    amount: 100
  - action: create
    as: grant
    terms:
      beneficiary: alice
      duration: 100
      amount: 100
  - action: withdraw
    amount: 1
  - action: advance
    by: 50s
  - action: expect
    expect:
      releasable: {grant: 40}
      balances: {owner: 7}
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "step 2 (withdraw): expected exit Ok, got InsufficientWithdrawable")
	assert.Contains(t, result.Errors[1], "balance of owner: expected 7, got 0")
	assert.Contains(t, result.Errors[2], "releasable of grant: expected 40, got 50")

	assert.True(t, result.Steps[0].Pass)
	assert.False(t, result.Steps[2].Pass)
	assert.False(t, result.Steps[4].Pass)
}

func TestRun_RevokedIsNotZeroReleasable(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: revoked-releasable
variant: coin
genesis: 100
accounts:
  - name: owner
    balance: 200
  - name: alice
owner: owner
steps:
  - action: fund
    amount: 200
  - action: create
    as: dead
    terms:
      beneficiary: alice
      start: 10
      duration: 100
      revocable: true
      amount: 100
  - action: create
    as: live
    terms:
      beneficiary: alice
      duration: 100
      amount: 100
  - action: revoke
    schedule: dead
  - action: advance
    by: 50s
  - action: expect
    expect:
      releasable: {dead: 0, live: revoked}
  - action: expect
    expect:
      releasable: {dead: revoked, live: 50}
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2, strings.Join(result.Errors, "\n"))
	assert.Contains(t, result.Errors[0], "step 5 (expect): releasable of dead: expected 0, got ScheduleRevoked")
	assert.Contains(t, result.Errors[1], "step 5 (expect): releasable of live: expected revoked, got 50")
	assert.False(t, result.Steps[5].Pass)
	assert.True(t, result.Steps[6].Pass)
}

func TestHarness_ClockCannotMoveBack(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: clock
variant: coin
genesis: 100
accounts: [{name: owner}]
owner: owner
steps:
  - action: advance
    to: 10
  - action: advance
    to: 5
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "cannot move clock back")
	assert.Equal(t, int64(110), result.Steps[1].Epoch)
}

func TestHarness_Addresses(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "token_weekly.yaml"))
	require.NoError(t, err)

	h, err := New(context.Background(), scenario)
	require.NoError(t, err)

	tok, ok := h.Address(TokenName)
	require.True(t, ok)
	ledger, ok := h.Address(LedgerName)
	require.True(t, ok)

	var st vesting.State
	require.NoError(t, h.VM().GetState(ledger, &st))
	require.NotNil(t, st.Token)
	assert.Equal(t, tok, *st.Token)

	owner, ok := h.Address("owner")
	require.True(t, ok)
	assert.Equal(t, owner, st.Owner)

	balance, err := h.Balance("owner")
	require.NoError(t, err)
	assert.True(t, balance.Equals(scenario.Token.Supply.TokenAmount))
}
