package tokenvesting_test

import (
	"context"
	"testing"

	address "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/token"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/tokenvesting"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/vesting"
	"github.com/EpiK-Protocol/go-epik-vesting/support/mock"
	tutil "github.com/EpiK-Protocol/go-epik-vesting/support/testing"
)

const start = abi.ChainEpoch(1000)

func TestExports(t *testing.T) {
	mock.CheckActorExports(t, tokenvesting.Actor{})
}

func TestConstruction(t *testing.T) {
	actor := newHarness(t)

	t.Run("records token", func(t *testing.T) {
		rt := actor.builder.Build(t)
		actor.constructAndVerify(rt)

		st := getState(rt)
		assert.Equal(t, actor.owner, st.Owner)
		require.NotNil(t, st.Token)
		assert.Equal(t, actor.token, *st.Token)

		rt.ExpectValidateCallerAny()
		tok := rt.Call(actor.GetToken, nil).(*address.Address)
		rt.Verify()
		assert.Equal(t, actor.token, *tok)
	})

	t.Run("rejects non-token collaborator", func(t *testing.T) {
		rt := actor.builder.Build(t)
		rt.ExpectValidateCallerAddr(builtin.SystemActorAddr)
		rt.ExpectAbort(exitcode.ErrIllegalArgument, func() {
			rt.Call(actor.Constructor, &tokenvesting.ConstructorParams{Owner: actor.owner, Token: actor.beneficiary})
		})
	})
}

func TestVestingWithTokens(t *testing.T) {
	actor := newHarness(t)

	t.Run("create queries token balance", func(t *testing.T) {
		rt := actor.builder.Build(t)
		actor.constructAndVerify(rt)

		id := actor.create(rt, 1000, actor.linear(100))
		assert.Equal(t, vesting.ComputeScheduleID(actor.beneficiary, 0), id)
		assert.Equal(t, int64(900), actor.withdrawable(rt, 1000).Int64())
	})

	t.Run("over allocation", func(t *testing.T) {
		rt := actor.builder.Build(t)
		actor.constructAndVerify(rt)
		actor.create(rt, 150, actor.linear(100))

		rt.SetCaller(actor.owner, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(actor.owner)
		actor.expectBalanceQuery(rt, 150)
		rt.ExpectAbort(vesting.ErrInsufficientUnallocatedFunds, func() {
			rt.Call(actor.CreateVestingSchedule, actor.linear(60))
		})
		rt.Verify()
	})

	t.Run("release transfers tokens to beneficiary", func(t *testing.T) {
		rt := actor.builder.Build(t)
		actor.constructAndVerify(rt)
		id := actor.create(rt, 1000, actor.linear(100))

		rt.SetEpoch(start + 500)
		rt.SetCaller(actor.beneficiary, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(actor.beneficiary, actor.owner)
		actor.expectTransfer(rt, actor.beneficiary, 50, exitcode.Ok)
		rt.Call(actor.Release, &vesting.ReleaseParams{ID: id, Amount: abi.NewTokenAmount(50)})
		rt.Verify()

		st := getState(rt)
		assert.Equal(t, abi.NewTokenAmount(50), st.TotalAmount)
		// native balance never moves
		{
			val := rt.Balance()
			assert.True(t, val.IsZero())
		}
	})

	t.Run("rejected token transfer rolls back", func(t *testing.T) {
		rt := actor.builder.Build(t)
		actor.constructAndVerify(rt)
		id := actor.create(rt, 1000, actor.linear(100))
		before := rt.StateRoot()

		rt.SetEpoch(start + 500)
		rt.SetCaller(actor.beneficiary, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(actor.beneficiary, actor.owner)
		actor.expectTransfer(rt, actor.beneficiary, 50, exitcode.ErrInsufficientFunds)
		rt.ExpectAbort(vesting.ErrTransferFailed, func() {
			rt.Call(actor.Release, &vesting.ReleaseParams{ID: id, Amount: abi.NewTokenAmount(50)})
		})
		rt.Verify()
		assert.Equal(t, before, rt.StateRoot())
	})

	t.Run("revoke transfers vested tokens", func(t *testing.T) {
		rt := actor.builder.Build(t)
		actor.constructAndVerify(rt)
		id := actor.create(rt, 1000, actor.linear(100))

		rt.SetEpoch(start + 250)
		rt.SetCaller(actor.owner, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(actor.owner)
		actor.expectTransfer(rt, actor.beneficiary, 25, exitcode.Ok)
		rt.Call(actor.Revoke, &id)
		rt.Verify()

		assert.True(t, getState(rt).TotalAmount.IsZero())
	})

	t.Run("withdraw unallocated tokens", func(t *testing.T) {
		rt := actor.builder.Build(t)
		actor.constructAndVerify(rt)
		actor.create(rt, 150, actor.linear(100))

		rt.SetCaller(actor.owner, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerAddr(actor.owner)
		actor.expectBalanceQuery(rt, 150)
		rt.ExpectAbort(vesting.ErrInsufficientWithdrawable, func() {
			rt.Call(actor.Withdraw, &vesting.WithdrawParams{Amount: abi.NewTokenAmount(55)})
		})
		rt.Verify()

		rt.ExpectValidateCallerAddr(actor.owner)
		actor.expectBalanceQuery(rt, 150)
		actor.expectTransfer(rt, actor.owner, 50, exitcode.Ok)
		rt.Call(actor.Withdraw, &vesting.WithdrawParams{Amount: abi.NewTokenAmount(50)})
		rt.Verify()
	})
}

type actorHarness struct {
	tokenvesting.Actor
	t testing.TB

	builder     *mock.RuntimeBuilder
	receiver    address.Address
	token       address.Address
	owner       address.Address
	beneficiary address.Address
}

func newHarness(t *testing.T) *actorHarness {
	receiver := tutil.NewIDAddr(t, 100)
	tokenAddr := tutil.NewIDAddr(t, 99)
	return &actorHarness{
		Actor: tokenvesting.Actor{},
		t:     t,
		builder: mock.NewBuilder(context.Background(), receiver).
			WithCaller(builtin.SystemActorAddr, builtin.SystemActorCodeID).
			WithActorType(tokenAddr, builtin.TokenActorCodeID),
		receiver:    receiver,
		token:       tokenAddr,
		owner:       tutil.NewIDAddr(t, 101),
		beneficiary: tutil.NewIDAddr(t, 102),
	}
}

func getState(rt *mock.Runtime) *vesting.State {
	var st vesting.State
	rt.GetState(&st)
	return &st
}

func (h *actorHarness) linear(amount int64) *vesting.CreateVestingScheduleParams {
	return &vesting.CreateVestingScheduleParams{
		Beneficiary:        h.beneficiary,
		Start:              start,
		Duration:           1000,
		SlicePeriodSeconds: 1,
		Revocable:          true,
		Amount:             abi.NewTokenAmount(amount),
	}
}

func (h *actorHarness) constructAndVerify(rt *mock.Runtime) {
	rt.SetCaller(builtin.SystemActorAddr, builtin.SystemActorCodeID)
	rt.ExpectValidateCallerAddr(builtin.SystemActorAddr)
	ret := rt.Call(h.Constructor, &tokenvesting.ConstructorParams{Owner: h.owner, Token: h.token})
	require.Nil(h.t, ret)
	rt.Verify()
}

func (h *actorHarness) expectBalanceQuery(rt *mock.Runtime, balance int64) {
	ret := abi.NewTokenAmount(balance)
	rt.ExpectSend(h.token, builtin.MethodsToken.BalanceOf, &h.receiver, big.Zero(), &ret, exitcode.Ok)
}

func (h *actorHarness) expectTransfer(rt *mock.Runtime, to address.Address, amount int64, code exitcode.ExitCode) {
	rt.ExpectSend(h.token, builtin.MethodsToken.Transfer, &token.TransferParams{To: to, Amount: abi.NewTokenAmount(amount)}, big.Zero(), nil, code)
}

func (h *actorHarness) create(rt *mock.Runtime, tokenBalance int64, params *vesting.CreateVestingScheduleParams) vesting.ScheduleID {
	rt.SetCaller(h.owner, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerAddr(h.owner)
	h.expectBalanceQuery(rt, tokenBalance)
	ret := rt.Call(h.CreateVestingSchedule, params).(*vesting.ScheduleID)
	rt.Verify()
	return *ret
}

func (h *actorHarness) withdrawable(rt *mock.Runtime, tokenBalance int64) abi.TokenAmount {
	rt.ExpectValidateCallerAny()
	h.expectBalanceQuery(rt, tokenBalance)
	ret := rt.Call(h.GetWithdrawableAmount, nil).(*abi.TokenAmount)
	rt.Verify()
	return *ret
}
