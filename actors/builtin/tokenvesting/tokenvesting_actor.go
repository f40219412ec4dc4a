package tokenvesting

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/token"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/vesting"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/runtime"
)

type Runtime = runtime.Runtime

// Actor is a vesting ledger paying out of its balance in a token actor.
// It is funded by token transfers to its address.
type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.CreateVestingSchedule,
		3:                         a.Release,
		4:                         a.Revoke,
		5:                         a.Withdraw,
		6:                         a.ComputeReleasableAmount,
		7:                         a.GetVestingSchedulesCount,
		8:                         a.GetVestingSchedulesCountByBeneficiary,
		9:                         a.GetVestingSchedulesTotalAmount,
		10:                        a.GetWithdrawableAmount,
		11:                        a.GetVestingSchedule,
		12:                        a.GetVestingScheduleByAddressAndIndex,
		13:                        a.GetVestingIdAtIndex,
		14:                        a.ComputeVestingScheduleIdForAddressAndIndex,
		15:                        a.ComputeNextVestingScheduleIdForHolder,
		16:                        a.GetOwner,
		17:                        a.GetToken,
	}
}

func (a Actor) Code() cid.Cid {
	return builtin.TokenVestingActorCodeID
}

func (a Actor) IsSingleton() bool {
	return false
}

func (a Actor) State() cbor.Er { return new(vesting.State) }

var _ runtime.VMActor = Actor{}

type treasury struct {
	token addr.Address
}

func (t treasury) Balance(rt vesting.Runtime) abi.TokenAmount {
	self := rt.Receiver()
	var balance abi.TokenAmount
	code := rt.Send(t.token, builtin.MethodsToken.BalanceOf, &self, big.Zero(), &balance)
	builtin.RequireSuccess(rt, code, "failed to query balance of %v in token %v", self, t.token)
	return balance
}

func (t treasury) Transfer(rt vesting.Runtime, to addr.Address, amount abi.TokenAmount) exitcode.ExitCode {
	return rt.Send(t.token, builtin.MethodsToken.Transfer, &token.TransferParams{To: to, Amount: amount}, big.Zero(), &builtin.Discard{})
}

func engine(rt Runtime) vesting.Engine {
	var st vesting.State
	rt.StateReadonly(&st)
	builtin.RequireState(rt, st.Token != nil, "token vesting state has no token")
	return vesting.NewEngine(treasury{token: *st.Token})
}

type ConstructorParams struct {
	Owner addr.Address
	Token addr.Address
}

func (a Actor) Constructor(rt Runtime, params *ConstructorParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)

	tokenID, ok := rt.ResolveAddress(params.Token)
	builtin.RequireParam(rt, ok, "unable to resolve token %v to ID address", params.Token)
	code, ok := rt.GetActorCodeCID(tokenID)
	builtin.RequireParam(rt, ok && code.Equals(builtin.TokenActorCodeID), "%v is not a token actor", params.Token)

	vesting.NewEngine(treasury{token: tokenID}).Construct(rt, params.Owner, &tokenID)
	return nil
}

func (a Actor) CreateVestingSchedule(rt Runtime, params *vesting.CreateVestingScheduleParams) *vesting.ScheduleID {
	return engine(rt).CreateVestingSchedule(rt, params)
}

func (a Actor) Release(rt Runtime, params *vesting.ReleaseParams) *abi.EmptyValue {
	return engine(rt).Release(rt, params)
}

func (a Actor) Revoke(rt Runtime, params *vesting.ScheduleID) *abi.EmptyValue {
	return engine(rt).Revoke(rt, params)
}

func (a Actor) Withdraw(rt Runtime, params *vesting.WithdrawParams) *abi.EmptyValue {
	return engine(rt).Withdraw(rt, params)
}

func (a Actor) ComputeReleasableAmount(rt Runtime, params *vesting.ScheduleID) *abi.TokenAmount {
	return engine(rt).ComputeReleasableAmount(rt, params)
}

func (a Actor) GetVestingSchedulesCount(rt Runtime, params *abi.EmptyValue) *cbg.CborInt {
	return engine(rt).GetVestingSchedulesCount(rt, params)
}

func (a Actor) GetVestingSchedulesCountByBeneficiary(rt Runtime, params *addr.Address) *cbg.CborInt {
	return engine(rt).GetVestingSchedulesCountByBeneficiary(rt, params)
}

func (a Actor) GetVestingSchedulesTotalAmount(rt Runtime, params *abi.EmptyValue) *abi.TokenAmount {
	return engine(rt).GetVestingSchedulesTotalAmount(rt, params)
}

func (a Actor) GetWithdrawableAmount(rt Runtime, params *abi.EmptyValue) *abi.TokenAmount {
	return engine(rt).GetWithdrawableAmount(rt, params)
}

func (a Actor) GetVestingSchedule(rt Runtime, params *vesting.ScheduleID) *vesting.VestingSchedule {
	return engine(rt).GetVestingSchedule(rt, params)
}

func (a Actor) GetVestingScheduleByAddressAndIndex(rt Runtime, params *vesting.AddressIndexParams) *vesting.VestingSchedule {
	return engine(rt).GetVestingScheduleByAddressAndIndex(rt, params)
}

func (a Actor) GetVestingIdAtIndex(rt Runtime, params *vesting.IndexParams) *vesting.ScheduleID {
	return engine(rt).GetVestingIdAtIndex(rt, params)
}

func (a Actor) ComputeVestingScheduleIdForAddressAndIndex(rt Runtime, params *vesting.AddressIndexParams) *vesting.ScheduleID {
	return engine(rt).ComputeVestingScheduleIdForAddressAndIndex(rt, params)
}

func (a Actor) ComputeNextVestingScheduleIdForHolder(rt Runtime, params *addr.Address) *vesting.ScheduleID {
	return engine(rt).ComputeNextVestingScheduleIdForHolder(rt, params)
}

func (a Actor) GetOwner(rt Runtime, params *abi.EmptyValue) *addr.Address {
	return engine(rt).GetOwner(rt, params)
}

func (a Actor) GetToken(rt Runtime, _ *abi.EmptyValue) *addr.Address {
	rt.ValidateImmediateCallerAcceptAny()

	var st vesting.State
	rt.StateReadonly(&st)
	return st.Token
}
