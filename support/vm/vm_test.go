package vm_test

import (
	"testing"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/system"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/token"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/tokenvesting"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/vesting"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/runtime"
	tutil "github.com/EpiK-Protocol/go-epik-vesting/support/testing"
	"github.com/EpiK-Protocol/go-epik-vesting/support/vm"
)

const genesis = abi.ChainEpoch(1_622_551_248)

var initialBalance = abi.NewTokenAmount(1000)

func TestAccounts(t *testing.T) {
	v, _ := vm.NewVMForTest(t, genesis)

	t.Run("created accounts hold balance", func(t *testing.T) {
		accts := vm.CreateAccounts(t, v, 2, initialBalance, 7)
		assert.Equal(t, initialBalance, v.GetBalance(accts[0]))

		act, found := v.GetActor(accts[1])
		require.True(t, found)
		assert.Equal(t, builtin.AccountActorCodeID, act.Code)
	})

	t.Run("value send to unknown pubkey creates account", func(t *testing.T) {
		sender := vm.CreateAccounts(t, v, 1, initialBalance, 11)[0]
		pubkey := tutil.NewSECP256K1Addr(t, "fresh")

		v.ApplyOk(t, sender, pubkey, abi.NewTokenAmount(10), builtin.MethodSend, nil)

		id, found := v.NormalizeAddress(pubkey)
		require.True(t, found)
		assert.Equal(t, abi.NewTokenAmount(10), v.GetBalance(id))
		assert.Equal(t, abi.NewTokenAmount(990), v.GetBalance(sender))
	})

	t.Run("insufficient funds leave balances unchanged", func(t *testing.T) {
		accts := vm.CreateAccounts(t, v, 2, initialBalance, 13)
		v.ApplyCode(t, exitcode.SysErrInsufficientFunds, accts[0], accts[1], abi.NewTokenAmount(1001), builtin.MethodSend, nil)
		assert.Equal(t, initialBalance, v.GetBalance(accts[0]))
		assert.Equal(t, initialBalance, v.GetBalance(accts[1]))
	})

	t.Run("unknown sender", func(t *testing.T) {
		to := vm.CreateAccounts(t, v, 1, initialBalance, 17)[0]
		result := v.ApplyMessage(tutil.NewIDAddr(t, 9999), to, big.Zero(), builtin.MethodSend, nil)
		assert.Equal(t, exitcode.SysErrSenderInvalid, result.Code)
	})

	t.Run("unknown method", func(t *testing.T) {
		accts := vm.CreateAccounts(t, v, 2, initialBalance, 19)
		v.ApplyCode(t, exitcode.SysErrInvalidMethod, accts[0], accts[1], big.Zero(), abi.MethodNum(99), nil)
	})
}

func TestManualClock(t *testing.T) {
	clock := vm.NewManualClock(10)
	now, err := clock.Advance(5)
	require.NoError(t, err)
	assert.Equal(t, abi.ChainEpoch(15), now)

	_, err = clock.Advance(-1)
	assert.Error(t, err)
	assert.Error(t, clock.Set(14))
	require.NoError(t, clock.Set(20))
	assert.Equal(t, abi.ChainEpoch(20), clock.Now())
}

func TestCoinVestingScenario(t *testing.T) {
	v, clock := vm.NewVMForTest(t, genesis)
	accts := vm.CreateAccounts(t, v, 2, initialBalance, 100)
	owner, beneficiary := accts[0], accts[1]

	ledger, err := v.CreateActor(builtin.CoinVestingActorCodeID, big.Zero(), &owner)
	require.NoError(t, err)
	methods := builtin.MethodsCoinVesting

	v.ApplyOk(t, owner, ledger, abi.NewTokenAmount(150), builtin.MethodSend, nil)

	id := createWeekly(t, v, owner, ledger, methods.CreateVestingSchedule, beneficiary)
	assert.Equal(t, vesting.ComputeScheduleID(beneficiary, 0), id)

	v.ApplyCode(t, vesting.ErrInsufficientWithdrawable, owner, ledger, big.Zero(), methods.Withdraw,
		&vesting.WithdrawParams{Amount: abi.NewTokenAmount(55)})
	v.ApplyOk(t, owner, ledger, big.Zero(), methods.Withdraw, &vesting.WithdrawParams{Amount: abi.NewTokenAmount(50)})
	assert.Equal(t, abi.NewTokenAmount(900), v.GetBalance(owner))
	assert.Equal(t, abi.NewTokenAmount(100), v.GetBalance(ledger))

	for week, expected := range []int64{10, 20, 30} {
		require.NoError(t, clock.Set(genesis+abi.ChainEpoch(week+1)*builtin.EpochsInWeek))
		assert.Equal(t, abi.NewTokenAmount(expected), releasable(t, v, beneficiary, ledger, methods.ComputeReleasableAmount, id))
	}

	v.ApplyOk(t, beneficiary, ledger, big.Zero(), methods.Release, &vesting.ReleaseParams{ID: id, Amount: abi.NewTokenAmount(30)})
	assert.Equal(t, abi.NewTokenAmount(1030), v.GetBalance(beneficiary))

	require.NoError(t, clock.Set(genesis+10*builtin.EpochsInWeek))
	assert.Equal(t, abi.NewTokenAmount(70), releasable(t, v, owner, ledger, methods.ComputeReleasableAmount, id))
	v.ApplyOk(t, owner, ledger, big.Zero(), methods.Release, &vesting.ReleaseParams{ID: id, Amount: abi.NewTokenAmount(70)})

	assert.Equal(t, abi.NewTokenAmount(1100), v.GetBalance(beneficiary))
	{
		val := v.GetBalance(ledger)
		assert.True(t, val.IsZero())
	}

	total := v.ApplyOk(t, owner, ledger, big.Zero(), methods.GetVestingSchedulesTotalAmount, nil).(*abi.TokenAmount)
	assert.True(t, total.IsZero())
	count := v.ApplyOk(t, owner, ledger, big.Zero(), methods.GetVestingSchedulesCountByBeneficiary, &beneficiary).(*cbg.CborInt)
	assert.Equal(t, cbg.CborInt(1), *count)

	checkLedger(t, v, ledger)
}

func TestCoinVestingRevokeAndAuthorization(t *testing.T) {
	v, clock := vm.NewVMForTest(t, genesis)
	accts := vm.CreateAccounts(t, v, 3, initialBalance, 200)
	owner, beneficiary, stranger := accts[0], accts[1], accts[2]

	ledger, err := v.CreateActor(builtin.CoinVestingActorCodeID, abi.NewTokenAmount(1000), &owner)
	require.NoError(t, err)
	methods := builtin.MethodsCoinVesting

	terms := linearTerms(beneficiary, 1000, 100)
	v.ApplyCode(t, exitcode.ErrForbidden, stranger, ledger, big.Zero(), methods.CreateVestingSchedule, terms)
	id := *v.ApplyOk(t, owner, ledger, big.Zero(), methods.CreateVestingSchedule, terms).(*vesting.ScheduleID)

	require.NoError(t, clock.Set(genesis+500))
	v.ApplyCode(t, exitcode.ErrForbidden, stranger, ledger, big.Zero(), methods.Release, &vesting.ReleaseParams{ID: id, Amount: abi.NewTokenAmount(1)})
	v.ApplyCode(t, exitcode.ErrForbidden, beneficiary, ledger, big.Zero(), methods.Revoke, &id)
	v.ApplyCode(t, vesting.ErrInsufficientVestedAmount, beneficiary, ledger, big.Zero(), methods.Release, &vesting.ReleaseParams{ID: id, Amount: abi.NewTokenAmount(51)})

	v.ApplyOk(t, owner, ledger, big.Zero(), methods.Revoke, &id)
	assert.Equal(t, abi.NewTokenAmount(1050), v.GetBalance(beneficiary))
	assert.Equal(t, abi.NewTokenAmount(950), v.GetBalance(ledger))

	v.ApplyCode(t, vesting.ErrScheduleRevoked, owner, ledger, big.Zero(), methods.Revoke, &id)
	v.ApplyCode(t, vesting.ErrScheduleRevoked, beneficiary, ledger, big.Zero(), methods.Release, &vesting.ReleaseParams{ID: id, Amount: big.Zero()})

	withdrawable := v.ApplyOk(t, stranger, ledger, big.Zero(), methods.GetWithdrawableAmount, nil).(*abi.TokenAmount)
	assert.Equal(t, abi.NewTokenAmount(950), *withdrawable)

	checkLedger(t, v, ledger)
}

func TestTokenVestingScenario(t *testing.T) {
	v, clock := vm.NewVMForTest(t, genesis)
	accts := vm.CreateAccounts(t, v, 2, big.Zero(), 300)
	owner, beneficiary := accts[0], accts[1]

	tok, err := v.CreateActor(builtin.TokenActorCodeID, big.Zero(), &token.ConstructorParams{
		Name:          "TestToken",
		Symbol:        "TT",
		InitialSupply: abi.NewTokenAmount(1000),
		Holder:        owner,
	})
	require.NoError(t, err)

	ledger, err := v.CreateActor(builtin.TokenVestingActorCodeID, big.Zero(), &tokenvesting.ConstructorParams{Owner: owner, Token: tok})
	require.NoError(t, err)
	methods := builtin.MethodsTokenVesting

	got := v.ApplyOk(t, owner, ledger, big.Zero(), methods.GetToken, nil).(*addr.Address)
	assert.Equal(t, tok, *got)

	v.ApplyOk(t, owner, tok, big.Zero(), builtin.MethodsToken.Transfer, &token.TransferParams{To: ledger, Amount: abi.NewTokenAmount(150)})

	id := createWeekly(t, v, owner, ledger, methods.CreateVestingSchedule, beneficiary)

	v.ApplyCode(t, vesting.ErrInsufficientWithdrawable, owner, ledger, big.Zero(), methods.Withdraw,
		&vesting.WithdrawParams{Amount: abi.NewTokenAmount(55)})
	v.ApplyOk(t, owner, ledger, big.Zero(), methods.Withdraw, &vesting.WithdrawParams{Amount: abi.NewTokenAmount(50)})
	assert.Equal(t, abi.NewTokenAmount(900), tokenBalance(t, v, tok, owner))

	require.NoError(t, clock.Set(genesis+3*builtin.EpochsInWeek))
	v.ApplyOk(t, beneficiary, ledger, big.Zero(), methods.Release, &vesting.ReleaseParams{ID: id, Amount: abi.NewTokenAmount(30)})
	assert.Equal(t, abi.NewTokenAmount(30), tokenBalance(t, v, tok, beneficiary))
	assert.Equal(t, abi.NewTokenAmount(70), tokenBalance(t, v, tok, ledger))

	require.NoError(t, clock.Set(genesis+10*builtin.EpochsInWeek))
	v.ApplyOk(t, beneficiary, ledger, big.Zero(), methods.Release, &vesting.ReleaseParams{ID: id, Amount: abi.NewTokenAmount(70)})
	assert.Equal(t, abi.NewTokenAmount(100), tokenBalance(t, v, tok, beneficiary))
	{
		val := tokenBalance(t, v, tok, ledger)
		assert.True(t, val.IsZero())
	}

	// Native balances never move in the token variant.
	{
		val := v.GetBalance(beneficiary)
		assert.True(t, val.IsZero())
	}
	{
		val := v.GetBalance(ledger)
		assert.True(t, val.IsZero())
	}

	var st vesting.State
	require.NoError(t, v.GetState(ledger, &st))
	_, msgs := vesting.CheckStateInvariants(&st, v.Store(), tokenBalance(t, v, tok, ledger))
	assert.True(t, msgs.IsEmpty(), msgs.Messages())
}

func TestReentrantBeneficiary(t *testing.T) {
	hook := &receiveHook{}
	v, clock := vm.NewVMForTest(t, genesis, hookActor{hook})
	owner := vm.CreateAccounts(t, v, 1, initialBalance, 400)[0]

	ledger, err := v.CreateActor(builtin.CoinVestingActorCodeID, abi.NewTokenAmount(150), &owner)
	require.NoError(t, err)
	beneficiary, err := v.CreateActor(hookActorCodeID, big.Zero(), nil)
	require.NoError(t, err)
	methods := builtin.MethodsCoinVesting

	id := *v.ApplyOk(t, owner, ledger, big.Zero(), methods.CreateVestingSchedule, linearTerms(beneficiary, 1000, 100)).(*vesting.ScheduleID)
	require.NoError(t, clock.Set(genesis+500))

	t.Run("nested release observes committed accounting", func(t *testing.T) {
		hook.ledger = ledger
		hook.release = &vesting.ReleaseParams{ID: id, Amount: abi.NewTokenAmount(50)}

		v.ApplyOk(t, owner, ledger, big.Zero(), methods.Release, &vesting.ReleaseParams{ID: id, Amount: abi.NewTokenAmount(50)})

		assert.Equal(t, 1, hook.calls)
		assert.Equal(t, vesting.ErrInsufficientVestedAmount, hook.nested)
		assert.Equal(t, abi.NewTokenAmount(50), v.GetBalance(beneficiary))
		assert.Equal(t, abi.NewTokenAmount(100), v.GetBalance(ledger))
		checkLedger(t, v, ledger)
	})

	t.Run("rejected transfer rolls back release", func(t *testing.T) {
		hook.release = nil
		hook.reject = true
		require.NoError(t, clock.Set(genesis+1000))

		v.ApplyCode(t, vesting.ErrTransferFailed, owner, ledger, big.Zero(), methods.Release,
			&vesting.ReleaseParams{ID: id, Amount: abi.NewTokenAmount(50)})

		assert.Equal(t, abi.NewTokenAmount(50), v.GetBalance(beneficiary))
		assert.Equal(t, abi.NewTokenAmount(100), v.GetBalance(ledger))
		assert.Equal(t, abi.NewTokenAmount(50), releasable(t, v, owner, ledger, methods.ComputeReleasableAmount, id))
		checkLedger(t, v, ledger)
	})
}

//
// Helpers
//

func linearTerms(beneficiary addr.Address, duration, amount int64) *vesting.CreateVestingScheduleParams {
	return &vesting.CreateVestingScheduleParams{
		Beneficiary:        beneficiary,
		Start:              genesis,
		CliffOffset:        0,
		Duration:           abi.ChainEpoch(duration),
		SlicePeriodSeconds: 1,
		Revocable:          true,
		Amount:             abi.NewTokenAmount(amount),
	}
}

// createWeekly allocates 100 over ten weekly slices.
func createWeekly(t *testing.T, v *vm.VM, owner, ledger addr.Address, method abi.MethodNum, beneficiary addr.Address) vesting.ScheduleID {
	ret := v.ApplyOk(t, owner, ledger, big.Zero(), method, &vesting.CreateVestingScheduleParams{
		Beneficiary:        beneficiary,
		Start:              genesis,
		CliffOffset:        0,
		Duration:           10 * builtin.EpochsInWeek,
		SlicePeriodSeconds: builtin.EpochsInWeek,
		Revocable:          true,
		Amount:             abi.NewTokenAmount(100),
	})
	return *ret.(*vesting.ScheduleID)
}

func releasable(t *testing.T, v *vm.VM, from, ledger addr.Address, method abi.MethodNum, id vesting.ScheduleID) abi.TokenAmount {
	return *v.ApplyOk(t, from, ledger, big.Zero(), method, &id).(*abi.TokenAmount)
}

func tokenBalance(t *testing.T, v *vm.VM, tok, holder addr.Address) abi.TokenAmount {
	var st token.State
	require.NoError(t, v.GetState(tok, &st))
	balance, err := st.BalanceOf(v.Store(), holder)
	require.NoError(t, err)
	return balance
}

func checkLedger(t *testing.T, v *vm.VM, ledger addr.Address) {
	var st vesting.State
	require.NoError(t, v.GetState(ledger, &st))
	_, msgs := vesting.CheckStateInvariants(&st, v.Store(), v.GetBalance(ledger))
	assert.True(t, msgs.IsEmpty(), msgs.Messages())
}

var hookActorCodeID = func() cid.Cid {
	c, err := cid.V1Builder{Codec: cid.Raw, MhType: mh.IDENTITY}.Sum([]byte("epik/test/receivehook"))
	if err != nil {
		panic(err)
	}
	return c
}()

// receiveHook configures hookActor. When release is set, the hook calls back into ledger
// on every value it receives. When reject is set, it refuses the value.
type receiveHook struct {
	ledger  addr.Address
	release *vesting.ReleaseParams
	reject  bool

	calls  int
	nested exitcode.ExitCode
}

type hookActor struct {
	hook *receiveHook
}

var _ runtime.VMActor = hookActor{}

func (a hookActor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodSend:        a.Receive,
		builtin.MethodConstructor: a.Constructor,
	}
}

func (a hookActor) Code() cid.Cid     { return hookActorCodeID }
func (a hookActor) State() cbor.Er    { return new(system.State) }
func (a hookActor) IsSingleton() bool { return false }

func (a hookActor) Constructor(rt runtime.Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)
	rt.StateCreate(&system.State{})
	return nil
}

func (a hookActor) Receive(rt runtime.Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	if a.hook.reject {
		rt.Abortf(exitcode.ErrForbidden, "refusing %v", rt.ValueReceived())
	}
	if a.hook.release != nil {
		a.hook.calls++
		a.hook.nested = rt.Send(a.hook.ledger, builtin.MethodsCoinVesting.Release, a.hook.release, big.Zero(), &builtin.Discard{})
	}
	return nil
}
