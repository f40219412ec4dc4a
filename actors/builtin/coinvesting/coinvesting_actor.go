package coinvesting

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/vesting"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/runtime"
)

type Runtime = runtime.Runtime

// Actor is a vesting ledger paying out of its own native balance.
// It is funded by plain value sends.
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
	}
}

func (a Actor) Code() cid.Cid {
	return builtin.CoinVestingActorCodeID
}

func (a Actor) IsSingleton() bool {
	return false
}

func (a Actor) State() cbor.Er { return new(vesting.State) }

var _ runtime.VMActor = Actor{}

type treasury struct{}

func (treasury) Balance(rt vesting.Runtime) abi.TokenAmount {
	return rt.CurrentBalance()
}

func (treasury) Transfer(rt vesting.Runtime, to addr.Address, amount abi.TokenAmount) exitcode.ExitCode {
	return rt.Send(to, builtin.MethodSend, nil, amount, &builtin.Discard{})
}

var engine = vesting.NewEngine(treasury{})

func (a Actor) Constructor(rt Runtime, owner *addr.Address) *abi.EmptyValue {
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)
	engine.Construct(rt, *owner, nil)
	return nil
}

func (a Actor) CreateVestingSchedule(rt Runtime, params *vesting.CreateVestingScheduleParams) *vesting.ScheduleID {
	return engine.CreateVestingSchedule(rt, params)
}

func (a Actor) Release(rt Runtime, params *vesting.ReleaseParams) *abi.EmptyValue {
	return engine.Release(rt, params)
}

func (a Actor) Revoke(rt Runtime, params *vesting.ScheduleID) *abi.EmptyValue {
	return engine.Revoke(rt, params)
}

func (a Actor) Withdraw(rt Runtime, params *vesting.WithdrawParams) *abi.EmptyValue {
	return engine.Withdraw(rt, params)
}

func (a Actor) ComputeReleasableAmount(rt Runtime, params *vesting.ScheduleID) *abi.TokenAmount {
	return engine.ComputeReleasableAmount(rt, params)
}

func (a Actor) GetVestingSchedulesCount(rt Runtime, params *abi.EmptyValue) *cbg.CborInt {
	return engine.GetVestingSchedulesCount(rt, params)
}

func (a Actor) GetVestingSchedulesCountByBeneficiary(rt Runtime, params *addr.Address) *cbg.CborInt {
	return engine.GetVestingSchedulesCountByBeneficiary(rt, params)
}

func (a Actor) GetVestingSchedulesTotalAmount(rt Runtime, params *abi.EmptyValue) *abi.TokenAmount {
	return engine.GetVestingSchedulesTotalAmount(rt, params)
}

func (a Actor) GetWithdrawableAmount(rt Runtime, params *abi.EmptyValue) *abi.TokenAmount {
	return engine.GetWithdrawableAmount(rt, params)
}

func (a Actor) GetVestingSchedule(rt Runtime, params *vesting.ScheduleID) *vesting.VestingSchedule {
	return engine.GetVestingSchedule(rt, params)
}

func (a Actor) GetVestingScheduleByAddressAndIndex(rt Runtime, params *vesting.AddressIndexParams) *vesting.VestingSchedule {
	return engine.GetVestingScheduleByAddressAndIndex(rt, params)
}

func (a Actor) GetVestingIdAtIndex(rt Runtime, params *vesting.IndexParams) *vesting.ScheduleID {
	return engine.GetVestingIdAtIndex(rt, params)
}

func (a Actor) ComputeVestingScheduleIdForAddressAndIndex(rt Runtime, params *vesting.AddressIndexParams) *vesting.ScheduleID {
	return engine.ComputeVestingScheduleIdForAddressAndIndex(rt, params)
}

func (a Actor) ComputeNextVestingScheduleIdForHolder(rt Runtime, params *addr.Address) *vesting.ScheduleID {
	return engine.ComputeNextVestingScheduleIdForHolder(rt, params)
}

func (a Actor) GetOwner(rt Runtime, params *abi.EmptyValue) *addr.Address {
	return engine.GetOwner(rt, params)
}
