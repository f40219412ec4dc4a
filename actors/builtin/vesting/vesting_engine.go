package vesting

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/runtime"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/util/adt"
)

type Runtime = runtime.Runtime

// Treasury holds the pool a ledger pays out of.
type Treasury interface {
	// Balance is the amount currently held by the ledger actor.
	Balance(rt Runtime) abi.TokenAmount
	// Transfer moves amount from the ledger actor to an address.
	Transfer(rt Runtime, to addr.Address, amount abi.TokenAmount) exitcode.ExitCode
}

type ReleaseParams struct {
	ID     ScheduleID
	Amount abi.TokenAmount
}

type WithdrawParams struct {
	Amount abi.TokenAmount
}

type AddressIndexParams struct {
	Beneficiary addr.Address
	Index       uint64
}

type IndexParams struct {
	Index uint64
}

// Engine implements the ledger methods shared by every vesting actor. Actors differ
// only in the Treasury they hand it.
type Engine struct {
	treasury Treasury
}

func NewEngine(t Treasury) Engine {
	return Engine{treasury: t}
}

// Construct creates the ledger state. The caller is expected to have validated its own caller.
func (e Engine) Construct(rt Runtime, owner addr.Address, token *addr.Address) {
	ownerID, ok := rt.ResolveAddress(owner)
	builtin.RequireParam(rt, ok, "unable to resolve owner %v to ID address", owner)

	st, err := ConstructState(adt.AsStore(rt), ownerID, token)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to construct state")
	rt.StateCreate(st)
}

func (e Engine) CreateVestingSchedule(rt Runtime, params *CreateVestingScheduleParams) *ScheduleID {
	var st State
	rt.StateReadonly(&st)
	rt.ValidateImmediateCallerIs(st.Owner)

	beneficiary, err := builtin.ResolveToIDAddr(rt, params.Beneficiary)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalArgument, "failed to resolve beneficiary %v", params.Beneficiary)

	poolBalance := e.treasury.Balance(rt)

	terms := *params
	terms.Beneficiary = beneficiary

	var id ScheduleID
	rt.StateTransaction(&st, func() {
		id, err = st.CreateSchedule(adt.AsStore(rt), &terms, poolBalance)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to create vesting schedule")
	})

	rt.Log(runtime.INFO, "created vesting schedule %s for %v: %v over %d epochs", id, beneficiary, terms.Amount, terms.Duration)
	return &id
}

// Release pays amount of a schedule's vested funds to its beneficiary.
// Accounting commits before the transfer, so a nested call triggered by the transfer
// observes the reduced releasable amount.
func (e Engine) Release(rt Runtime, params *ReleaseParams) *abi.EmptyValue {
	var schedule *VestingSchedule
	var st State
	rt.StateTransaction(&st, func() {
		store := adt.AsStore(rt)

		current, err := st.GetSchedule(store, params.ID)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load vesting schedule")
		if current.Revoked {
			rt.Abortf(ErrScheduleRevoked, "vesting schedule %s revoked", params.ID)
		}
		rt.ValidateImmediateCallerIs(current.Beneficiary, st.Owner)

		schedule, err = st.ReleaseVested(store, params.ID, params.Amount, rt.CurrEpoch())
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to release from vesting schedule")
	})

	e.pay(rt, schedule.Beneficiary, params.Amount)
	return nil
}

// Revoke ends a revocable schedule, paying out what has vested and returning the rest to the pool.
func (e Engine) Revoke(rt Runtime, params *ScheduleID) *abi.EmptyValue {
	var releasable abi.TokenAmount
	var schedule *VestingSchedule
	var st State
	rt.StateTransaction(&st, func() {
		store := adt.AsStore(rt)

		_, err := st.GetSchedule(store, *params)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load vesting schedule")
		rt.ValidateImmediateCallerIs(st.Owner)

		releasable, schedule, err = st.RevokeSchedule(store, *params, rt.CurrEpoch())
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to revoke vesting schedule")
	})

	rt.Log(runtime.INFO, "revoked vesting schedule %s, releasing %v", *params, releasable)
	e.pay(rt, schedule.Beneficiary, releasable)
	return nil
}

// Withdraw returns unallocated funds to the owner.
func (e Engine) Withdraw(rt Runtime, params *WithdrawParams) *abi.EmptyValue {
	var st State
	rt.StateReadonly(&st)
	rt.ValidateImmediateCallerIs(st.Owner)
	builtin.RequireParam(rt, !params.Amount.Nil() && params.Amount.Sign() >= 0, "negative withdrawal %v", params.Amount)

	withdrawable := st.WithdrawableAmount(e.treasury.Balance(rt))
	if params.Amount.GreaterThan(withdrawable) {
		rt.Abortf(ErrInsufficientWithdrawable, "cannot withdraw %v, only %v withdrawable", params.Amount, withdrawable)
	}

	e.pay(rt, st.Owner, params.Amount)
	return nil
}

func (e Engine) pay(rt Runtime, to addr.Address, amount abi.TokenAmount) {
	if amount.IsZero() {
		return
	}
	code := e.treasury.Transfer(rt, to, amount)
	if !code.IsSuccess() {
		rt.Abortf(ErrTransferFailed, "failed to transfer %v to %v: exit code %v", amount, to, code)
	}
}

func (e Engine) ComputeReleasableAmount(rt Runtime, params *ScheduleID) *abi.TokenAmount {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.StateReadonly(&st)
	amount, err := st.ComputeReleasableAmount(adt.AsStore(rt), *params, rt.CurrEpoch())
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to compute releasable amount")
	return &amount
}

func (e Engine) GetVestingSchedulesCount(rt Runtime, _ *abi.EmptyValue) *cbg.CborInt {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.StateReadonly(&st)
	count, err := st.ScheduleCount(adt.AsStore(rt))
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to count vesting schedules")
	ret := cbg.CborInt(count)
	return &ret
}

func (e Engine) GetVestingSchedulesCountByBeneficiary(rt Runtime, params *addr.Address) *cbg.CborInt {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.StateReadonly(&st)
	count, err := st.HolderScheduleCount(adt.AsStore(rt), e.resolve(rt, *params))
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to count vesting schedules of %v", *params)
	ret := cbg.CborInt(count)
	return &ret
}

func (e Engine) GetVestingSchedulesTotalAmount(rt Runtime, _ *abi.EmptyValue) *abi.TokenAmount {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.StateReadonly(&st)
	return &st.TotalAmount
}

func (e Engine) GetWithdrawableAmount(rt Runtime, _ *abi.EmptyValue) *abi.TokenAmount {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.StateReadonly(&st)
	ret := st.WithdrawableAmount(e.treasury.Balance(rt))
	return &ret
}

func (e Engine) GetVestingSchedule(rt Runtime, params *ScheduleID) *VestingSchedule {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.StateReadonly(&st)
	schedule, err := st.GetSchedule(adt.AsStore(rt), *params)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load vesting schedule")
	return schedule
}

func (e Engine) GetVestingScheduleByAddressAndIndex(rt Runtime, params *AddressIndexParams) *VestingSchedule {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.StateReadonly(&st)
	schedule, err := st.GetScheduleByAddressAndIndex(adt.AsStore(rt), e.resolve(rt, params.Beneficiary), params.Index)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load vesting schedule")
	return schedule
}

func (e Engine) GetVestingIdAtIndex(rt Runtime, params *IndexParams) *ScheduleID {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.StateReadonly(&st)
	id, err := st.ScheduleIDAt(adt.AsStore(rt), params.Index)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to get vesting schedule id")
	return &id
}

func (e Engine) ComputeVestingScheduleIdForAddressAndIndex(rt Runtime, params *AddressIndexParams) *ScheduleID {
	rt.ValidateImmediateCallerAcceptAny()

	id := ComputeScheduleID(e.resolve(rt, params.Beneficiary), params.Index)
	return &id
}

func (e Engine) ComputeNextVestingScheduleIdForHolder(rt Runtime, params *addr.Address) *ScheduleID {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.StateReadonly(&st)
	id, err := st.NextScheduleID(adt.AsStore(rt), e.resolve(rt, *params))
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to compute next vesting schedule id")
	return &id
}

func (e Engine) GetOwner(rt Runtime, _ *abi.EmptyValue) *addr.Address {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.StateReadonly(&st)
	return &st.Owner
}

// Schedules are keyed by ID address; other forms are resolved when known.
func (e Engine) resolve(rt Runtime, a addr.Address) addr.Address {
	if id, ok := rt.ResolveAddress(a); ok {
		return id
	}
	return a
}
