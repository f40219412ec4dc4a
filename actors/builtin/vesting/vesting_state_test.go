package vesting_test

import (
	"context"
	"testing"

	addr "github.com/filecoin-project/go-address"
	abi "github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/vesting"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/util/adt"
	"github.com/EpiK-Protocol/go-epik-vesting/support/ipld"
	tutils "github.com/EpiK-Protocol/go-epik-vesting/support/testing"
)

const start = abi.ChainEpoch(1_622_551_248)

func TestConstruct(t *testing.T) {
	harness := constructStateHarness(t, abi.NewTokenAmount(0))
	require.True(t, harness.s.TotalAmount.IsZero())
	require.Nil(t, harness.s.Token)

	m, err := adt.AsMap(harness.store, harness.s.Schedules, builtin.DefaultHamtBitwidth)
	require.NoError(t, err)
	keys, err := m.CollectKeys()
	require.NoError(t, err)
	require.Empty(t, keys)

	count, err := harness.s.ScheduleCount(harness.store)
	require.NoError(t, err)
	require.Zero(t, count)
	harness.checkInvariants()
}

func TestCreateSchedule(t *testing.T) {
	beneficiary := tutils.NewIDAddr(t, 101)

	t.Run("records schedule and totals", func(t *testing.T) {
		harness := constructStateHarness(t, abi.NewTokenAmount(1000))

		id := harness.create(linearTerms(beneficiary, 100))
		require.Equal(t, vesting.ComputeScheduleID(beneficiary, 0), id)

		s := harness.getSchedule(id)
		assert.Equal(t, beneficiary, s.Beneficiary)
		assert.Equal(t, start, s.Start)
		assert.Equal(t, start, s.Cliff)
		assert.Equal(t, abi.ChainEpoch(1000), s.Duration)
		assert.True(t, s.Revocable)
		assert.False(t, s.Revoked)
		requireAmount(t, 100, s.AmountTotal)
		requireAmount(t, 0, s.Released)

		requireAmount(t, 100, harness.s.TotalAmount)
		requireAmount(t, 900, harness.s.WithdrawableAmount(harness.pool))
		harness.checkInvariants()
	})

	t.Run("cliff is an offset from start", func(t *testing.T) {
		harness := constructStateHarness(t, abi.NewTokenAmount(1000))
		terms := linearTerms(beneficiary, 100)
		terms.CliffOffset = 300

		s := harness.getSchedule(harness.create(terms))
		assert.Equal(t, start+300, s.Cliff)
	})

	t.Run("ids follow the beneficiary's schedule count", func(t *testing.T) {
		harness := constructStateHarness(t, abi.NewTokenAmount(1000))
		other := tutils.NewIDAddr(t, 102)

		first := harness.create(linearTerms(beneficiary, 10))
		harness.create(linearTerms(other, 10))
		second := harness.create(linearTerms(beneficiary, 10))

		assert.Equal(t, vesting.ComputeScheduleID(beneficiary, 0), first)
		assert.Equal(t, vesting.ComputeScheduleID(beneficiary, 1), second)

		count, err := harness.s.HolderScheduleCount(harness.store, beneficiary)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), count)

		ids, err := harness.s.ScheduleIDsByBeneficiary(harness.store, beneficiary)
		require.NoError(t, err)
		assert.Equal(t, []vesting.ScheduleID{first, second}, ids)

		next, err := harness.s.NextScheduleID(harness.store, beneficiary)
		require.NoError(t, err)
		assert.Equal(t, vesting.ComputeScheduleID(beneficiary, 2), next)

		all, err := harness.s.AllScheduleIDs(harness.store)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, first, all[0])
		assert.Equal(t, vesting.ComputeScheduleID(other, 0), all[1])
		assert.Equal(t, second, all[2])

		at, err := harness.s.ScheduleIDAt(harness.store, 2)
		require.NoError(t, err)
		assert.Equal(t, second, at)

		_, err = harness.s.ScheduleIDAt(harness.store, 3)
		requireCode(t, exitcode.ErrIllegalArgument, err)
		harness.checkInvariants()
	})

	t.Run("preconditions are reported in order", func(t *testing.T) {
		harness := constructStateHarness(t, abi.NewTokenAmount(50))

		terms := linearTerms(beneficiary, 0)
		terms.Duration = 0
		terms.SlicePeriodSeconds = 0
		terms.CliffOffset = 10
		harness.createFails(terms, vesting.ErrInvalidDuration)

		terms.Duration = 5
		harness.createFails(terms, vesting.ErrInvalidSliceGranularity)

		terms.SlicePeriodSeconds = 1
		harness.createFails(terms, vesting.ErrCliffExceedsDuration)

		terms.Duration = 10
		harness.createFails(terms, vesting.ErrInvalidAmount)

		terms.Amount = abi.NewTokenAmount(-1)
		harness.createFails(terms, vesting.ErrInvalidAmount)

		terms.Amount = abi.NewTokenAmount(51)
		harness.createFails(terms, vesting.ErrInsufficientUnallocatedFunds)

		terms.Amount = abi.NewTokenAmount(50)
		harness.create(terms)
		harness.checkInvariants()
	})

	t.Run("rejects negative epochs and overflowing ends", func(t *testing.T) {
		harness := constructStateHarness(t, abi.NewTokenAmount(50))

		terms := linearTerms(beneficiary, 10)
		terms.CliffOffset = -1
		harness.createFails(terms, exitcode.ErrIllegalArgument)

		terms = linearTerms(beneficiary, 10)
		terms.Start = vesting.MaxScheduleEpoch
		harness.createFails(terms, exitcode.ErrIllegalArgument)
	})

	t.Run("range checks follow the ordered preconditions", func(t *testing.T) {
		harness := constructStateHarness(t, abi.NewTokenAmount(50))

		terms := linearTerms(beneficiary, 10)
		terms.Duration = 0
		terms.CliffOffset = -1
		harness.createFails(terms, vesting.ErrInvalidDuration)

		terms = linearTerms(beneficiary, 0)
		terms.Start = vesting.MaxScheduleEpoch
		harness.createFails(terms, vesting.ErrInvalidAmount)

		// Range checks still run before the funds check.
		terms = linearTerms(beneficiary, 100)
		terms.CliffOffset = -1
		harness.createFails(terms, exitcode.ErrIllegalArgument)
	})

	t.Run("allocation is bounded by unallocated funds", func(t *testing.T) {
		harness := constructStateHarness(t, abi.NewTokenAmount(150))

		harness.create(linearTerms(beneficiary, 100))
		harness.createFails(linearTerms(beneficiary, 60), vesting.ErrInsufficientUnallocatedFunds)
		requireAmount(t, 50, harness.s.WithdrawableAmount(harness.pool))

		harness.create(linearTerms(beneficiary, 50))
		requireAmount(t, 0, harness.s.WithdrawableAmount(harness.pool))
		harness.checkInvariants()
	})

	t.Run("put never overwrites", func(t *testing.T) {
		harness := constructStateHarness(t, abi.NewTokenAmount(150))
		id := harness.create(linearTerms(beneficiary, 100))

		s := harness.getSchedule(id)
		err := harness.s.PutSchedule(harness.store, id, s)
		requireCode(t, vesting.ErrAlreadyExists, err)
	})
}

func TestReleaseVested(t *testing.T) {
	beneficiary := tutils.NewIDAddr(t, 101)

	t.Run("linear release over 1000 seconds", func(t *testing.T) {
		harness := constructStateHarness(t, abi.NewTokenAmount(1000))
		id := harness.create(linearTerms(beneficiary, 100))

		requireAmount(t, 0, harness.releasable(id, start-1))
		requireAmount(t, 0, harness.releasable(id, start))
		requireAmount(t, 50, harness.releasable(id, start+500))

		harness.release(id, 10, start+500)
		requireAmount(t, 40, harness.releasable(id, start+500))
		requireAmount(t, 90, harness.s.TotalAmount)

		harness.releaseFails(id, 41, start+500, vesting.ErrInsufficientVestedAmount)

		requireAmount(t, 90, harness.releasable(id, start+1000))
		requireAmount(t, 90, harness.releasable(id, start+5000))
		harness.release(id, 90, start+1000)

		s := harness.getSchedule(id)
		requireAmount(t, 100, s.Released)
		requireAmount(t, 0, harness.s.TotalAmount)
		requireAmount(t, 0, harness.releasable(id, start+1000))
		harness.pool = abi.NewTokenAmount(900)
		harness.checkInvariants()
	})

	t.Run("zero release is accepted", func(t *testing.T) {
		harness := constructStateHarness(t, abi.NewTokenAmount(1000))
		id := harness.create(linearTerms(beneficiary, 100))

		harness.release(id, 0, start-10)
		requireAmount(t, 0, harness.getSchedule(id).Released)
		requireAmount(t, 100, harness.s.TotalAmount)
	})

	t.Run("negative release is rejected", func(t *testing.T) {
		harness := constructStateHarness(t, abi.NewTokenAmount(1000))
		id := harness.create(linearTerms(beneficiary, 100))

		harness.releaseFails(id, -1, start+500, exitcode.ErrIllegalArgument)
	})

	t.Run("unknown schedule", func(t *testing.T) {
		harness := constructStateHarness(t, abi.NewTokenAmount(1000))
		id := vesting.ComputeScheduleID(beneficiary, 0)

		harness.releaseFails(id, 0, start, vesting.ErrNotInitialized)
		_, err := harness.s.ComputeReleasableAmount(harness.store, id, start)
		requireCode(t, vesting.ErrNotInitialized, err)
	})
}

func TestRevokeSchedule(t *testing.T) {
	beneficiary := tutils.NewIDAddr(t, 101)

	t.Run("revoke at half time releases vested part", func(t *testing.T) {
		harness := constructStateHarness(t, abi.NewTokenAmount(1000))
		id := harness.create(linearTerms(beneficiary, 100))
		harness.release(id, 20, start+200)

		released := harness.revoke(id, start+500)
		requireAmount(t, 30, released)

		s := harness.getSchedule(id)
		assert.True(t, s.Revoked)
		requireAmount(t, 50, s.Released)
		requireAmount(t, 0, harness.s.TotalAmount)

		_, err := harness.s.ComputeReleasableAmount(harness.store, id, start+500)
		requireCode(t, vesting.ErrScheduleRevoked, err)
		harness.releaseFails(id, 0, start+600, vesting.ErrScheduleRevoked)

		_, _, err = harness.s.RevokeSchedule(harness.store, id, start+600)
		requireCode(t, vesting.ErrScheduleRevoked, err)

		harness.pool = abi.NewTokenAmount(950)
		harness.checkInvariants()
	})

	t.Run("revocable and non-revocable schedules", func(t *testing.T) {
		harness := constructStateHarness(t, abi.NewTokenAmount(175))

		first := harness.create(linearTerms(beneficiary, 100))
		terms := linearTerms(beneficiary, 75)
		terms.Revocable = false
		second := harness.create(terms)
		requireAmount(t, 175, harness.s.TotalAmount)

		released := harness.revoke(first, start)
		requireAmount(t, 0, released)
		requireAmount(t, 75, harness.s.TotalAmount)

		_, _, err := harness.s.RevokeSchedule(harness.store, second, start)
		requireCode(t, vesting.ErrNotRevocable, err)

		_, _, err = harness.s.RevokeSchedule(harness.store, vesting.ComputeScheduleID(beneficiary, 2), start)
		requireCode(t, vesting.ErrNotInitialized, err)

		requireAmount(t, 100, harness.s.WithdrawableAmount(harness.pool))
		harness.checkInvariants()
	})

	t.Run("revoke half-vested grant beside a fixed one", func(t *testing.T) {
		harness := constructStateHarness(t, abi.NewTokenAmount(175))

		first := harness.create(linearTerms(beneficiary, 100))
		terms := linearTerms(beneficiary, 75)
		terms.Revocable = false
		second := harness.create(terms)

		released := harness.revoke(first, start+500)
		requireAmount(t, 50, released)
		requireAmount(t, 50, harness.getSchedule(first).Released)

		// 50 paid out and 50 unvested dropped: only the fixed grant is outstanding.
		requireAmount(t, 75, harness.s.TotalAmount)
		harness.pool = abi.NewTokenAmount(125)
		requireAmount(t, 50, harness.s.WithdrawableAmount(harness.pool))
		requireAmount(t, 37, harness.releasable(second, start+500))
		harness.checkInvariants()
	})
}

func TestCheckStateInvariants(t *testing.T) {
	beneficiary := tutils.NewIDAddr(t, 101)
	harness := constructStateHarness(t, abi.NewTokenAmount(1000))
	harness.create(linearTerms(beneficiary, 100))

	sum, msgs := vesting.CheckStateInvariants(harness.s, harness.store, harness.pool)
	require.True(t, msgs.IsEmpty(), msgs.Messages())
	assert.Equal(t, 1, sum.SchedulesCount)
	assert.Equal(t, 1, sum.HoldersCount)

	harness.s.TotalAmount = abi.NewTokenAmount(99)
	_, msgs = vesting.CheckStateInvariants(harness.s, harness.store, harness.pool)
	require.False(t, msgs.IsEmpty())

	harness.s.TotalAmount = abi.NewTokenAmount(100)
	_, msgs = vesting.CheckStateInvariants(harness.s, harness.store, abi.NewTokenAmount(99))
	require.False(t, msgs.IsEmpty())
}

type stateHarness struct {
	t testing.TB

	s     *vesting.State
	store adt.Store
	pool  abi.TokenAmount
}

func constructStateHarness(t *testing.T, pool abi.TokenAmount) *stateHarness {
	store := ipld.NewADTStore(context.Background())
	owner := tutils.NewIDAddr(t, 100)
	st, err := vesting.ConstructState(store, owner, nil)
	require.NoError(t, err)

	return &stateHarness{
		t:     t,
		s:     st,
		store: store,
		pool:  pool,
	}
}

func (h *stateHarness) create(terms *vesting.CreateVestingScheduleParams) vesting.ScheduleID {
	id, err := h.s.CreateSchedule(h.store, terms, h.pool)
	require.NoError(h.t, err)
	return id
}

func (h *stateHarness) createFails(terms *vesting.CreateVestingScheduleParams, code exitcode.ExitCode) {
	before := *h.s
	_, err := h.s.CreateSchedule(h.store, terms, h.pool)
	requireCode(h.t, code, err)
	require.Equal(h.t, before, *h.s)
}

func (h *stateHarness) getSchedule(id vesting.ScheduleID) *vesting.VestingSchedule {
	s, err := h.s.GetSchedule(h.store, id)
	require.NoError(h.t, err)
	return s
}

func (h *stateHarness) releasable(id vesting.ScheduleID, now abi.ChainEpoch) abi.TokenAmount {
	amount, err := h.s.ComputeReleasableAmount(h.store, id, now)
	require.NoError(h.t, err)
	return amount
}

func (h *stateHarness) release(id vesting.ScheduleID, amount int64, now abi.ChainEpoch) {
	_, err := h.s.ReleaseVested(h.store, id, abi.NewTokenAmount(amount), now)
	require.NoError(h.t, err)
}

func (h *stateHarness) releaseFails(id vesting.ScheduleID, amount int64, now abi.ChainEpoch, code exitcode.ExitCode) {
	_, err := h.s.ReleaseVested(h.store, id, abi.NewTokenAmount(amount), now)
	requireCode(h.t, code, err)
}

func (h *stateHarness) revoke(id vesting.ScheduleID, now abi.ChainEpoch) abi.TokenAmount {
	released, _, err := h.s.RevokeSchedule(h.store, id, now)
	require.NoError(h.t, err)
	return released
}

func (h *stateHarness) checkInvariants() {
	_, msgs := vesting.CheckStateInvariants(h.s, h.store, h.pool)
	require.True(h.t, msgs.IsEmpty(), msgs.Messages())
}

func linearTerms(beneficiary addr.Address, amount int64) *vesting.CreateVestingScheduleParams {
	return &vesting.CreateVestingScheduleParams{
		Beneficiary:        beneficiary,
		Start:              start,
		CliffOffset:        0,
		Duration:           1000,
		SlicePeriodSeconds: 1,
		Revocable:          true,
		Amount:             abi.NewTokenAmount(amount),
	}
}

func requireCode(t testing.TB, code exitcode.ExitCode, err error) {
	require.Error(t, err)
	require.Equal(t, code, exitcode.Unwrap(err, exitcode.Ok), err.Error())
}

func requireAmount(t testing.TB, expected int64, actual abi.TokenAmount) {
	require.Truef(t, big.NewInt(expected).Equals(actual), "expected %d, got %v", expected, actual)
}
