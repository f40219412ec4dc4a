package vm

import (
	"bytes"
	"context"
	"fmt"
	"reflect"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	rtt "github.com/filecoin-project/go-state-types/rt"
	"github.com/ipfs/go-cid"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/runtime"
)

var typeOfRuntimeInterface = reflect.TypeOf((*runtime.Runtime)(nil)).Elem()
var typeOfCborUnmarshaler = reflect.TypeOf((*cbor.Unmarshaler)(nil)).Elem()
var typeOfCborMarshaler = reflect.TypeOf((*cbor.Marshaler)(nil)).Elem()

// invocationContext is the runtime seen by one actor method call.
type invocationContext struct {
	vm     *VM
	trace  string
	epoch  abi.ChainEpoch
	depth  int
	from   addr.Address
	to     addr.Address
	value  abi.TokenAmount
	method abi.MethodNum
	params cbor.Marshaler

	allowSideEffects bool
	callerValidated  bool
}

var _ runtime.Runtime = (*invocationContext)(nil)

type abort struct {
	code exitcode.ExitCode
	msg  string
}

func (a abort) String() string {
	return fmt.Sprintf("abort(%v): %s", a.code, a.msg)
}

type returnWrapper struct {
	inner cbor.Marshaler
}

func (r returnWrapper) into(out cbor.Unmarshaler) error {
	if r.inner == nil || out == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := r.inner.MarshalCBOR(&buf); err != nil {
		return err
	}
	return out.UnmarshalCBOR(&buf)
}

func newInvocationContext(vm *VM, trace string, epoch abi.ChainEpoch, depth int, from, to addr.Address, value abi.TokenAmount,
	method abi.MethodNum, params cbor.Marshaler) *invocationContext {
	if value.Nil() {
		value = big.Zero()
	}
	return &invocationContext{
		vm:               vm,
		trace:            trace,
		epoch:            epoch,
		depth:            depth,
		from:             from,
		to:               to,
		value:            value,
		method:           method,
		params:           params,
		allowSideEffects: true,
	}
}

// invoke moves the message value and runs the target method. A plain value send runs the
// receiver's hook at method 0, if it exports one.
func (ic *invocationContext) invoke() (ret returnWrapper, code exitcode.ExitCode) {
	defer func() {
		if r := recover(); r != nil {
			a, ok := r.(abort)
			if !ok {
				panic(r)
			}
			actorLog.Debugw("aborted", "trace", ic.trace, "actor", ic.to, "method", ic.method, "code", a.code, "msg", a.msg)
			ret = returnWrapper{}
			code = a.code
		}
	}()

	if ic.depth > MaxCallDepth {
		ic.Abortf(exitcode.SysErrForbidden, "message execution exceeds call depth %d", MaxCallDepth)
	}

	ic.resolveTarget()
	act := ic.vm.actors[ic.to]

	if transferCode := ic.vm.transfer(ic.from, ic.to, ic.value); !transferCode.IsSuccess() {
		ic.Abortf(transferCode, "cannot send %v from %v to %v", ic.value, ic.from, ic.to)
	}

	impl, ok := ic.vm.actorImpls[act.Code]
	if !ok {
		ic.Abortf(exitcode.SysErrorIllegalActor, "no implementation for actor code %v", act.Code)
	}
	exports := impl.Exports()
	if ic.method == builtin.MethodSend && (len(exports) == 0 || exports[0] == nil) {
		return returnWrapper{}, exitcode.Ok
	}
	if int(ic.method) >= len(exports) || exports[ic.method] == nil {
		ic.Abortf(exitcode.SysErrInvalidMethod, "actor %s has no method %d", builtin.ActorNameByCode(act.Code), ic.method)
	}

	meth := reflect.ValueOf(exports[ic.method])
	ic.checkMethodType(meth)
	arg := ic.decodeParams(meth.Type().In(1))
	out := meth.Call([]reflect.Value{reflect.ValueOf(ic), arg})

	if !ic.callerValidated {
		ic.Abortf(exitcode.SysErrorIllegalActor, "method %d of %s did not validate its caller", ic.method, builtin.ActorNameByCode(act.Code))
	}
	if out[0].Kind() == reflect.Ptr && out[0].IsNil() {
		return returnWrapper{}, exitcode.Ok
	}
	return returnWrapper{out[0].Interface().(cbor.Marshaler)}, exitcode.Ok
}

// resolveTarget normalizes the receiver to an ID address, creating an account for an unknown
// pubkey address.
func (ic *invocationContext) resolveTarget() {
	if id, found := ic.vm.normalizeAddress(ic.to); found {
		ic.to = id
		return
	}
	switch ic.to.Protocol() {
	case addr.BLS, addr.SECP256K1:
		id, code := ic.vm.createAccount(ic.to, ic.trace)
		if !code.IsSuccess() {
			ic.Abortf(code, "failed to create account for %v", ic.to)
		}
		ic.to = id
	default:
		ic.Abortf(exitcode.SysErrInvalidReceiver, "actor %v does not exist", ic.to)
	}
}

func (ic *invocationContext) checkMethodType(meth reflect.Value) {
	t := meth.Type()
	if t.Kind() != reflect.Func || t.NumIn() != 2 || t.NumOut() != 1 ||
		t.In(0) != typeOfRuntimeInterface ||
		t.In(1).Kind() != reflect.Ptr || !t.In(1).Implements(typeOfCborUnmarshaler) ||
		!t.Out(0).Implements(typeOfCborMarshaler) {
		ic.Abortf(exitcode.SysErrorIllegalActor, "method %d has invalid signature %v", ic.method, t)
	}
}

// decodeParams round-trips the sent params through CBOR into the method's parameter type.
func (ic *invocationContext) decodeParams(paramType reflect.Type) reflect.Value {
	arg := reflect.New(paramType.Elem())
	if ic.params == nil {
		return arg
	}
	var buf bytes.Buffer
	if err := ic.params.MarshalCBOR(&buf); err != nil {
		ic.Abortf(exitcode.ErrSerialization, "failed to serialize params: %s", err)
	}
	if err := arg.Interface().(cbor.Unmarshaler).UnmarshalCBOR(&buf); err != nil {
		ic.Abortf(exitcode.ErrSerialization, "failed to decode params as %v: %s", paramType, err)
	}
	return arg
}

///
/// Message
///

func (ic *invocationContext) Caller() addr.Address {
	return ic.from
}

func (ic *invocationContext) Receiver() addr.Address {
	return ic.to
}

func (ic *invocationContext) ValueReceived() abi.TokenAmount {
	return ic.value
}

///
/// Runtime
///

func (ic *invocationContext) CurrEpoch() abi.ChainEpoch {
	return ic.epoch
}

func (ic *invocationContext) ValidateImmediateCallerAcceptAny() {
	ic.assertf(!ic.callerValidated, exitcode.SysErrorIllegalActor, "caller validated twice")
	ic.callerValidated = true
}

func (ic *invocationContext) ValidateImmediateCallerIs(addrs ...addr.Address) {
	ic.assertf(!ic.callerValidated, exitcode.SysErrorIllegalActor, "caller validated twice")
	ic.callerValidated = true
	for _, a := range addrs {
		if a == ic.from {
			return
		}
	}
	ic.Abortf(exitcode.ErrForbidden, "caller %v is not one of %v", ic.from, addrs)
}

func (ic *invocationContext) ValidateImmediateCallerType(types ...cid.Cid) {
	ic.assertf(!ic.callerValidated, exitcode.SysErrorIllegalActor, "caller validated twice")
	ic.callerValidated = true
	caller := ic.vm.actors[ic.from]
	for _, t := range types {
		if t.Equals(caller.Code) {
			return
		}
	}
	ic.Abortf(exitcode.ErrForbidden, "caller type %v is not one of %v", caller.Code, types)
}

func (ic *invocationContext) CurrentBalance() abi.TokenAmount {
	return ic.vm.actors[ic.to].Balance
}

func (ic *invocationContext) ResolveAddress(address addr.Address) (addr.Address, bool) {
	return ic.vm.normalizeAddress(address)
}

func (ic *invocationContext) GetActorCodeCID(a addr.Address) (cid.Cid, bool) {
	act, found := ic.vm.getActor(a)
	if !found {
		return cid.Undef, false
	}
	return act.Code, true
}

func (ic *invocationContext) Send(toAddr addr.Address, methodNum abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount, out cbor.Er) exitcode.ExitCode {
	if !ic.allowSideEffects {
		ic.Abortf(exitcode.SysErrorIllegalActor, "side-effect within transaction")
	}

	snap := ic.vm.checkpoint()
	callee := newInvocationContext(ic.vm, ic.trace, ic.epoch, ic.depth+1, ic.to, toAddr, value, methodNum, params)
	ret, code := callee.invoke()
	if !code.IsSuccess() {
		ic.vm.rollback(snap)
		return code
	}
	if out != nil {
		if err := ret.into(out); err != nil {
			ic.Abortf(exitcode.ErrSerialization, "failed to decode return value of method %d on %v: %s", methodNum, toAddr, err)
		}
	}
	return code
}

func (ic *invocationContext) Abortf(errExitCode exitcode.ExitCode, msg string, args ...interface{}) {
	panic(abort{errExitCode, fmt.Sprintf(msg, args...)})
}

func (ic *invocationContext) Context() context.Context {
	return ic.vm.ctx
}

func (ic *invocationContext) Log(level rtt.LogLevel, msg string, args ...interface{}) {
	text := fmt.Sprintf(msg, args...)
	fields := []interface{}{"trace", ic.trace, "epoch", ic.epoch, "actor", ic.to, "method", ic.method}
	switch level {
	case rtt.DEBUG:
		actorLog.Debugw(text, fields...)
	case rtt.INFO:
		actorLog.Infow(text, fields...)
	case rtt.WARN:
		actorLog.Warnw(text, fields...)
	case rtt.ERROR:
		actorLog.Errorw(text, fields...)
	}
}

///
/// Store
///

func (ic *invocationContext) StoreGet(c cid.Cid, o cbor.Unmarshaler) bool {
	if !ic.vm.blocks.Has(c) {
		return false
	}
	if err := ic.vm.store.Get(ic.vm.ctx, c, o); err != nil {
		ic.Abortf(exitcode.ErrSerialization, "failed to load %v: %s", c, err)
	}
	return true
}

func (ic *invocationContext) StorePut(x cbor.Marshaler) cid.Cid {
	c, err := ic.vm.store.Put(ic.vm.ctx, x)
	if err != nil {
		ic.Abortf(exitcode.ErrSerialization, "failed to store object: %s", err)
	}
	return c
}

///
/// State
///

func (ic *invocationContext) StateCreate(obj cbor.Marshaler) {
	act := ic.vm.actors[ic.to]
	ic.assertf(!act.Head.Defined(), exitcode.SysErrorIllegalActor, "state already constructed")
	ic.vm.setHead(ic.to, ic.StorePut(obj))
}

func (ic *invocationContext) StateReadonly(obj cbor.Unmarshaler) {
	act := ic.vm.actors[ic.to]
	ic.assertf(act.Head.Defined(), exitcode.ErrIllegalState, "actor %v has no state", ic.to)
	if !ic.StoreGet(act.Head, obj) {
		ic.Abortf(exitcode.ErrIllegalState, "state %v not found", act.Head)
	}
}

func (ic *invocationContext) StateTransaction(obj cbor.Er, f func()) {
	ic.assertf(ic.allowSideEffects, exitcode.SysErrorIllegalActor, "nested transaction")
	ic.StateReadonly(obj)

	ic.allowSideEffects = false
	f()
	ic.allowSideEffects = true

	ic.vm.setHead(ic.to, ic.StorePut(obj))
}

func (ic *invocationContext) assertf(predicate bool, code exitcode.ExitCode, msg string, args ...interface{}) {
	if !predicate {
		ic.Abortf(code, msg, args...)
	}
}
