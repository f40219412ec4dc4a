package mock

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"testing"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	rtt "github.com/filecoin-project/go-state-types/rt"
	block "github.com/ipfs/go-block-format"
	cid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/runtime"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/util/adt"
	"github.com/EpiK-Protocol/go-epik-vesting/support/ipld"
)

// Runtime runs one actor in isolation. Tests set the caller, balance and epoch directly.
// Caller validations and outbound sends must be announced before the call and are checked by Verify.
type Runtime struct {
	t   testing.TB
	ctx context.Context

	epoch      abi.ChainEpoch
	receiver   addr.Address
	caller     addr.Address
	callerType cid.Cid
	received   abi.TokenAmount
	balance    abi.TokenAmount
	ids        map[addr.Address]addr.Address
	codes      map[addr.Address]cid.Cid

	state  cid.Cid
	blocks *ipld.BlockStoreInMemory

	inCall        bool
	inTransaction bool

	expectCallerAny   bool
	expectCallerAddrs []addr.Address
	expectSends       []*expectedSend
}

// An outbound message the actor is expected to send, with the canned outcome.
type expectedSend struct {
	to     addr.Address
	method abi.MethodNum
	params []byte
	value  abi.TokenAmount

	ret  cbor.Marshaler
	code exitcode.ExitCode
}

func (s *expectedSend) matches(to addr.Address, method abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount) bool {
	return s.to == to && s.method == method && s.value.Equals(value) && bytes.Equal(s.params, serialize(params))
}

func (s *expectedSend) String() string {
	return fmt.Sprintf("to %v method %d value %v params %x (exit %v)", s.to, s.method, s.value, s.params, s.code)
}

var _ runtime.Runtime = &Runtime{}

var cidBuilder = cid.V1Builder{Codec: cid.DagCBOR, MhType: mh.SHA2_256}

///// Runtime /////

func (rt *Runtime) CurrEpoch() abi.ChainEpoch {
	rt.requireInCall()
	return rt.epoch
}

func (rt *Runtime) ValidateImmediateCallerAcceptAny() {
	rt.requireInCall()
	if !rt.expectCallerAny {
		rt.fail("unexpected ValidateImmediateCallerAcceptAny")
	}
	rt.expectCallerAny = false
}

func (rt *Runtime) ValidateImmediateCallerIs(addrs ...addr.Address) {
	rt.requireInCall()
	if len(addrs) == 0 {
		rt.Abortf(exitcode.SysErrorIllegalArgument, "addrs must be non-empty")
	}
	expected := rt.expectCallerAddrs
	rt.expectCallerAddrs = nil
	if !reflect.DeepEqual(expected, addrs) {
		rt.fail("unexpected ValidateImmediateCallerIs %v, expected %v", addrs, expected)
	}
	for _, a := range addrs {
		if rt.caller == a {
			return
		}
	}
	rt.Abortf(exitcode.ErrForbidden, "caller %v forbidden, allowed: %v", rt.caller, addrs)
}

// No ledger actor validates by code, so this checks the caller type without an expectation.
func (rt *Runtime) ValidateImmediateCallerType(types ...cid.Cid) {
	rt.requireInCall()
	for _, c := range types {
		if rt.callerType.Equals(c) {
			return
		}
	}
	rt.Abortf(exitcode.ErrForbidden, "caller type %v forbidden, allowed: %v", rt.callerType, types)
}

func (rt *Runtime) CurrentBalance() abi.TokenAmount {
	rt.requireInCall()
	return rt.balance
}

func (rt *Runtime) ResolveAddress(a addr.Address) (addr.Address, bool) {
	rt.requireInCall()
	if a.Protocol() == addr.ID {
		return a, true
	}
	id, ok := rt.ids[a]
	return id, ok
}

func (rt *Runtime) GetActorCodeCID(a addr.Address) (cid.Cid, bool) {
	rt.requireInCall()
	c, ok := rt.codes[a]
	return c, ok
}

// Send pops the next expected send. A successful send debits the value from the balance and
// decodes the canned return into out.
func (rt *Runtime) Send(to addr.Address, method abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount, out cbor.Er) exitcode.ExitCode {
	rt.requireInCall()
	if rt.inTransaction {
		rt.Abortf(exitcode.SysErrorIllegalActor, "side-effect within transaction")
	}
	if len(rt.expectSends) == 0 {
		rt.failNow("unexpected send to %v method %d value %v", to, method, value)
	}
	next := rt.expectSends[0]
	rt.expectSends = rt.expectSends[1:]
	if !next.matches(to, method, params, value) {
		rt.fail("send to %v method %d value %v params %x does not match expected %v", to, method, value, serialize(params), next)
	}
	if value.GreaterThan(rt.balance) {
		rt.Abortf(exitcode.SysErrSenderStateInvalid, "cannot send %v, balance is %v", value, rt.balance)
	}
	if !next.code.IsSuccess() {
		return next.code
	}
	rt.balance = big.Sub(rt.balance, value)
	if next.ret != nil && out != nil {
		if err := out.UnmarshalCBOR(bytes.NewReader(serialize(next.ret))); err != nil {
			rt.failNow("failed to decode send return %v: %v", next.ret, err)
		}
	}
	return next.code
}

func (rt *Runtime) Abortf(code exitcode.ExitCode, msg string, args ...interface{}) {
	rt.requireInCall()
	a := abort{code, fmt.Sprintf(msg, args...)}
	rt.t.Logf("mock runtime %v", a)
	panic(a)
}

// Context and the store methods work outside a call so the runtime doubles as a state store.
func (rt *Runtime) Context() context.Context {
	return rt.ctx
}

func (rt *Runtime) Log(level rtt.LogLevel, msg string, args ...interface{}) {
	rt.t.Logf("mock runtime log (%d): %s", level, fmt.Sprintf(msg, args...))
}

func (rt *Runtime) StoreGet(c cid.Cid, o cbor.Unmarshaler) bool {
	blk, err := rt.blocks.Get(c)
	if err != nil {
		return false
	}
	if err := o.UnmarshalCBOR(bytes.NewReader(blk.RawData())); err != nil {
		rt.Abortf(exitcode.ErrSerialization, err.Error())
	}
	return true
}

func (rt *Runtime) StorePut(o cbor.Marshaler) cid.Cid {
	data := serialize(o)
	key, err := cidBuilder.Sum(data)
	if err != nil {
		rt.Abortf(exitcode.ErrSerialization, err.Error())
	}
	blk, err := block.NewBlockWithCid(data, key)
	if err != nil {
		rt.Abortf(exitcode.ErrSerialization, err.Error())
	}
	_ = rt.blocks.Put(blk)
	return key
}

func (rt *Runtime) Caller() addr.Address {
	return rt.caller
}

func (rt *Runtime) Receiver() addr.Address {
	return rt.receiver
}

func (rt *Runtime) ValueReceived() abi.TokenAmount {
	return rt.received
}

func (rt *Runtime) StateCreate(obj cbor.Marshaler) {
	if rt.state.Defined() {
		rt.Abortf(exitcode.SysErrorIllegalActor, "state already constructed")
	}
	rt.state = rt.StorePut(obj)
}

func (rt *Runtime) StateReadonly(st cbor.Unmarshaler) {
	if !rt.StoreGet(rt.state, st) {
		rt.Abortf(exitcode.ErrIllegalState, "actor state not found: %v", rt.state)
	}
}

func (rt *Runtime) StateTransaction(st cbor.Er, f func()) {
	if rt.inTransaction {
		rt.Abortf(exitcode.SysErrorIllegalActor, "nested transaction")
	}
	rt.StateReadonly(st)
	rt.inTransaction = true
	defer func() { rt.inTransaction = false }()
	f()
	rt.state = rt.StorePut(st)
}

type abort struct {
	code exitcode.ExitCode
	msg  string
}

func (a abort) String() string {
	return fmt.Sprintf("abort(%v): %s", a.code, a.msg)
}

///// Inspection /////

func (rt *Runtime) StateRoot() cid.Cid {
	return rt.state
}

func (rt *Runtime) GetState(o cbor.Unmarshaler) {
	blk, err := rt.blocks.Get(rt.state)
	if err != nil {
		rt.failNow("no state at root %v: %v", rt.state, err)
	}
	if err := o.UnmarshalCBOR(bytes.NewReader(blk.RawData())); err != nil {
		rt.failNow("error loading state: %v", err)
	}
}

// AdtStore exposes the runtime's blocks for reading ledger state outside a call.
func (rt *Runtime) AdtStore() adt.Store {
	return adt.AsStore(rt)
}

func (rt *Runtime) Balance() abi.TokenAmount {
	return rt.balance
}

///// Mocking /////

// SetCaller also records the caller's code, so GetActorCodeCID resolves it.
func (rt *Runtime) SetCaller(a addr.Address, code cid.Cid) {
	rt.caller = a
	rt.callerType = code
	rt.codes[a] = code
}

func (rt *Runtime) SetBalance(amt abi.TokenAmount) {
	rt.balance = amt
}

func (rt *Runtime) SetEpoch(epoch abi.ChainEpoch) {
	rt.epoch = epoch
}

func (rt *Runtime) AddIDAddress(src addr.Address, target addr.Address) {
	if target.Protocol() != addr.ID {
		rt.failNow("target %v is not an ID address", target)
	}
	rt.ids[src] = target
}

func (rt *Runtime) ExpectValidateCallerAny() {
	rt.expectCallerAny = true
}

func (rt *Runtime) ExpectValidateCallerAddr(addrs ...addr.Address) {
	if len(addrs) == 0 {
		rt.failNow("addrs must be non-empty")
	}
	rt.expectCallerAddrs = addrs
}

// ExpectSend queues a send. Params are compared by their CBOR encoding.
func (rt *Runtime) ExpectSend(to addr.Address, method abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount, ret cbor.Marshaler, code exitcode.ExitCode) {
	rt.expectSends = append(rt.expectSends, &expectedSend{
		to:     to,
		method: method,
		params: serialize(params),
		value:  value,
		ret:    ret,
		code:   code,
	})
}

// Verify fails the test for any announced validation or send that did not happen, then clears them.
func (rt *Runtime) Verify() {
	if rt.expectCallerAny {
		rt.fail("expected ValidateImmediateCallerAcceptAny, not received")
	}
	if len(rt.expectCallerAddrs) > 0 {
		rt.fail("expected ValidateImmediateCallerIs %v, not received", rt.expectCallerAddrs)
	}
	if len(rt.expectSends) > 0 {
		rt.fail("expected sends not made: %v", rt.expectSends)
	}
	rt.expectCallerAny = false
	rt.expectCallerAddrs = nil
	rt.expectSends = nil
}

// ExpectAbort runs f expecting an abort with the given code. State and balance are rolled back
// to their values before f, as the VM would do for the aborted message.
func (rt *Runtime) ExpectAbort(expected exitcode.ExitCode, f func()) {
	state, balance := rt.state, rt.balance
	defer func() {
		r := recover()
		if r == nil {
			rt.fail("expected abort with code %v but call succeeded", expected)
			return
		}
		a, ok := r.(abort)
		if !ok {
			panic(r)
		}
		if a.code != expected {
			rt.fail("expected abort with code %v, got %v", expected, a)
		}
		rt.state, rt.balance = state, balance
		rt.inCall, rt.inTransaction = false, false
	}()
	f()
}

// Call invokes an exported method with rt as its runtime. A nil params passes a typed nil.
// Aborts escape as panics unless the call runs inside ExpectAbort.
func (rt *Runtime) Call(method interface{}, params interface{}) interface{} {
	fn := reflect.ValueOf(method)
	if msg := methodShapeError(fn.Type()); msg != "" {
		rt.failNow("cannot call %v: %s", fn, msg)
	}
	arg := reflect.Zero(fn.Type().In(1))
	if params != nil {
		arg = reflect.ValueOf(params)
	}
	rt.inCall = true
	defer func() { rt.inCall = false }()
	return fn.Call([]reflect.Value{reflect.ValueOf(rt), arg})[0].Interface()
}

func (rt *Runtime) requireInCall() {
	if !rt.inCall {
		rt.failNow("runtime used outside of a method call")
	}
}

func (rt *Runtime) fail(msg string, args ...interface{}) {
	rt.t.Logf(msg, args...)
	rt.t.Logf("%s", debug.Stack())
	rt.t.Fail()
}

func (rt *Runtime) failNow(msg string, args ...interface{}) {
	rt.t.Logf(msg, args...)
	rt.t.Logf("%s", debug.Stack())
	rt.t.FailNow()
}

func serialize(o cbor.Marshaler) []byte {
	if o == nil || (reflect.ValueOf(o).Kind() == reflect.Ptr && reflect.ValueOf(o).IsNil()) {
		return nil
	}
	var b bytes.Buffer
	if err := o.MarshalCBOR(&b); err != nil {
		panic(fmt.Sprintf("failed to serialize %v: %v", o, err))
	}
	return b.Bytes()
}
