package token

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/runtime"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/util/adt"
)

type Runtime = runtime.Runtime

// Actor is a fungible token with a fixed supply minted to a single holder at construction.
type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.Transfer,
		3:                         a.BalanceOf,
		4:                         a.TotalSupply,
		5:                         a.GetMetadata,
	}
}

func (a Actor) Code() cid.Cid {
	return builtin.TokenActorCodeID
}

func (a Actor) IsSingleton() bool {
	return false
}

func (a Actor) State() cbor.Er { return new(State) }

var _ runtime.VMActor = Actor{}

type ConstructorParams struct {
	Name          string
	Symbol        string
	InitialSupply abi.TokenAmount
	Holder        addr.Address
}

func (a Actor) Constructor(rt Runtime, params *ConstructorParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)

	holder, ok := rt.ResolveAddress(params.Holder)
	builtin.RequireParam(rt, ok, "unable to resolve holder %v to ID address", params.Holder)
	builtin.RequireParam(rt, params.InitialSupply.Sign() >= 0, "negative initial supply %v", params.InitialSupply)

	st, err := ConstructState(adt.AsStore(rt), params.Name, params.Symbol, holder, params.InitialSupply)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to construct state")
	rt.StateCreate(st)
	return nil
}

type TransferParams struct {
	To     addr.Address
	Amount abi.TokenAmount
}

// Transfer moves tokens from the caller to another address.
func (a Actor) Transfer(rt Runtime, params *TransferParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	builtin.RequireParam(rt, params.Amount.Sign() >= 0, "negative transfer amount %v", params.Amount)

	to, err := builtin.ResolveToIDAddr(rt, params.To)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalArgument, "failed to resolve recipient %v", params.To)

	var st State
	rt.StateTransaction(&st, func() {
		err := st.Transfer(adt.AsStore(rt), rt.Caller(), to, params.Amount)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to transfer %v from %v to %v", params.Amount, rt.Caller(), to)
	})
	return nil
}

func (a Actor) BalanceOf(rt Runtime, params *addr.Address) *abi.TokenAmount {
	rt.ValidateImmediateCallerAcceptAny()

	owner := *params
	if resolved, ok := rt.ResolveAddress(owner); ok {
		owner = resolved
	}

	var st State
	rt.StateReadonly(&st)
	balance, err := st.BalanceOf(adt.AsStore(rt), owner)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to get balance of %v", owner)
	return &balance
}

func (a Actor) TotalSupply(rt Runtime, _ *abi.EmptyValue) *abi.TokenAmount {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.StateReadonly(&st)
	return &st.TotalSupply
}

type Metadata struct {
	Name   string
	Symbol string
}

func (a Actor) GetMetadata(rt Runtime, _ *abi.EmptyValue) *Metadata {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.StateReadonly(&st)
	return &Metadata{Name: st.Name, Symbol: st.Symbol}
}
