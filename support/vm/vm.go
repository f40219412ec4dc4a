package vm

import (
	"context"
	"sync"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/exported"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/runtime"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/util/adt"
	"github.com/EpiK-Protocol/go-epik-vesting/support/ipld"
)

var log = logging.Logger("vm")
var actorLog = logging.Logger("actors")

// Nested sends deeper than this fail without invoking the receiver.
const MaxCallDepth = 64

// TestActor is an entry in the VM's actor table.
type TestActor struct {
	Head    cid.Cid
	Code    cid.Cid
	Balance abi.TokenAmount
}

// VM is an in-memory machine that applies messages to built-in actors one at a time.
// A message that fails leaves no trace in the actor table.
type VM struct {
	ctx        context.Context
	blocks     *ipld.BlockStoreInMemory
	store      adt.Store
	clock      Clock
	actorImpls map[cid.Cid]runtime.VMActor

	// mu serializes messages.
	mu        sync.Mutex
	actors    map[addr.Address]TestActor
	addresses map[addr.Address]addr.Address
	nextID    uint64
}

// MessageResult is the outcome of a top-level message.
type MessageResult struct {
	Ret   cbor.Marshaler
	Code  exitcode.ExitCode
	Trace string
}

type snapshot struct {
	actors    map[addr.Address]TestActor
	addresses map[addr.Address]addr.Address
	nextID    uint64
}

// NewVM creates an empty VM able to host the given actors.
func NewVM(ctx context.Context, actorImpls []runtime.VMActor, clock Clock) *VM {
	blocks := ipld.NewBlockStoreInMemory()
	impls := make(map[cid.Cid]runtime.VMActor, len(actorImpls))
	for _, a := range actorImpls {
		impls[a.Code()] = a
	}
	return &VM{
		ctx:        ctx,
		blocks:     blocks,
		store:      adt.WrapBlockStore(ctx, blocks),
		clock:      clock,
		actorImpls: impls,
		actors:     make(map[addr.Address]TestActor),
		addresses:  make(map[addr.Address]addr.Address),
		nextID:     builtin.FirstNonSingletonActorId,
	}
}

// NewVMWithSingletons creates a VM hosting every built-in actor plus any extras, with the
// system actor constructed.
func NewVMWithSingletons(ctx context.Context, clock Clock, extra ...runtime.VMActor) (*VM, error) {
	vm := NewVM(ctx, append(exported.BuiltinActors(), extra...), clock)

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if err := vm.installActor(builtin.SystemActorAddr, builtin.SystemActorCodeID, big.Zero(), nil); err != nil {
		return nil, xerrors.Errorf("failed to construct system actor: %w", err)
	}
	return vm, nil
}

func (vm *VM) Store() adt.Store {
	return vm.store
}

func (vm *VM) Clock() Clock {
	return vm.clock
}

// CreateActor allocates the next ID address, sets the new actor's balance and runs its
// constructor from the system actor. Addresses are assigned in creation order.
func (vm *VM) CreateActor(code cid.Cid, balance abi.TokenAmount, params cbor.Marshaler) (addr.Address, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	id, err := addr.NewIDAddress(vm.nextID)
	if err != nil {
		return addr.Undef, err
	}
	if err := vm.installActor(id, code, balance, params); err != nil {
		return addr.Undef, err
	}
	vm.nextID++
	return id, nil
}

// CreateAccount creates an account for a BLS or SECP address with the given balance and
// returns its ID address.
func (vm *VM) CreateAccount(pubkey addr.Address, balance abi.TokenAmount) (addr.Address, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if _, found := vm.addresses[pubkey]; found {
		return addr.Undef, xerrors.Errorf("account %v already exists", pubkey)
	}
	snap := vm.checkpoint()
	id, code := vm.createAccount(pubkey, "")
	if !code.IsSuccess() {
		vm.rollback(snap)
		return addr.Undef, code.Wrapf("failed to create account %v", pubkey)
	}
	act := vm.actors[id]
	act.Balance = big.Add(act.Balance, balance)
	vm.actors[id] = act
	return id, nil
}

// installActor places an actor at an ID address and constructs it. Caller holds mu.
func (vm *VM) installActor(id addr.Address, code cid.Cid, balance abi.TokenAmount, params cbor.Marshaler) error {
	if _, ok := vm.actorImpls[code]; !ok {
		return xerrors.Errorf("no actor implementation for code %v", code)
	}
	if _, exists := vm.actors[id]; exists {
		return xerrors.Errorf("actor %v already exists", id)
	}

	snap := vm.checkpoint()
	vm.actors[id] = TestActor{Code: code, Balance: balance}

	ic := newInvocationContext(vm, "genesis", vm.clock.Now(), 0, builtin.SystemActorAddr, id, big.Zero(), builtin.MethodConstructor, params)
	if _, exit := ic.invoke(); !exit.IsSuccess() {
		vm.rollback(snap)
		return exit.Wrapf("failed to construct %s at %v", builtin.ActorNameByCode(code), id)
	}
	return nil
}

// createAccount allocates an ID for pubkey and runs the account constructor. Caller holds mu.
func (vm *VM) createAccount(pubkey addr.Address, trace string) (addr.Address, exitcode.ExitCode) {
	id, err := addr.NewIDAddress(vm.nextID)
	if err != nil {
		return addr.Undef, exitcode.SysErrorIllegalArgument
	}
	vm.nextID++
	vm.addresses[pubkey] = id
	vm.actors[id] = TestActor{Code: builtin.AccountActorCodeID, Balance: big.Zero()}

	ic := newInvocationContext(vm, trace, vm.clock.Now(), 1, builtin.SystemActorAddr, id, big.Zero(), builtin.MethodConstructor, &pubkey)
	_, code := ic.invoke()
	log.Debugw("created account", "trace", trace, "pubkey", pubkey, "id", id, "code", code)
	return id, code
}

// ApplyMessage executes a message from an account. On failure every change the message made
// is discarded.
func (vm *VM) ApplyMessage(from, to addr.Address, value abi.TokenAmount, method abi.MethodNum, params cbor.Marshaler) MessageResult {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	trace := uuid.New().String()
	result := MessageResult{Trace: trace}

	fromID, ok := vm.normalizeAddress(from)
	if !ok {
		result.Code = exitcode.SysErrSenderInvalid
		log.Warnw("message from unknown sender", "trace", trace, "from", from)
		return result
	}

	epoch := vm.clock.Now()
	snap := vm.checkpoint()
	ic := newInvocationContext(vm, trace, epoch, 0, fromID, to, value, method, params)
	ret, code := ic.invoke()
	if !code.IsSuccess() {
		vm.rollback(snap)
		log.Infow("message failed", "trace", trace, "epoch", epoch, "from", fromID, "to", to, "method", method, "code", code)
		result.Code = code
		return result
	}

	log.Debugw("message applied", "trace", trace, "epoch", epoch, "from", fromID, "to", to, "method", method)
	result.Ret = ret.inner
	return result
}

// GetActor looks up an actor by any address form.
func (vm *VM) GetActor(a addr.Address) (TestActor, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.getActor(a)
}

// GetBalance returns an actor's balance, or zero if it does not exist.
func (vm *VM) GetBalance(a addr.Address) abi.TokenAmount {
	act, found := vm.GetActor(a)
	if !found {
		return big.Zero()
	}
	return act.Balance
}

// GetState loads an actor's state into out.
func (vm *VM) GetState(a addr.Address, out cbor.Unmarshaler) error {
	act, found := vm.GetActor(a)
	if !found {
		return xerrors.Errorf("actor %v not found", a)
	}
	if !act.Head.Defined() {
		return xerrors.Errorf("actor %v has no state", a)
	}
	return vm.store.Get(vm.ctx, act.Head, out)
}

// NormalizeAddress resolves an address to its ID form.
func (vm *VM) NormalizeAddress(a addr.Address) (addr.Address, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.normalizeAddress(a)
}

func (vm *VM) normalizeAddress(a addr.Address) (addr.Address, bool) {
	if a.Protocol() == addr.ID {
		_, found := vm.actors[a]
		return a, found
	}
	id, found := vm.addresses[a]
	return id, found
}

func (vm *VM) getActor(a addr.Address) (TestActor, bool) {
	id, found := vm.normalizeAddress(a)
	if !found {
		return TestActor{}, false
	}
	act, found := vm.actors[id]
	return act, found
}

func (vm *VM) setHead(id addr.Address, head cid.Cid) {
	act := vm.actors[id]
	act.Head = head
	vm.actors[id] = act
}

func (vm *VM) transfer(from, to addr.Address, amount abi.TokenAmount) exitcode.ExitCode {
	if amount.Sign() < 0 {
		return exitcode.SysErrForbidden
	}
	if amount.IsZero() || from == to {
		return exitcode.Ok
	}
	src := vm.actors[from]
	if src.Balance.LessThan(amount) {
		return exitcode.SysErrInsufficientFunds
	}
	dst := vm.actors[to]
	src.Balance = big.Sub(src.Balance, amount)
	dst.Balance = big.Add(dst.Balance, amount)
	vm.actors[from] = src
	vm.actors[to] = dst
	return exitcode.Ok
}

func (vm *VM) checkpoint() snapshot {
	actors := make(map[addr.Address]TestActor, len(vm.actors))
	for k, v := range vm.actors {
		actors[k] = v
	}
	addresses := make(map[addr.Address]addr.Address, len(vm.addresses))
	for k, v := range vm.addresses {
		addresses[k] = v
	}
	return snapshot{actors: actors, addresses: addresses, nextID: vm.nextID}
}

func (vm *VM) rollback(s snapshot) {
	vm.actors = s.actors
	vm.addresses = s.addresses
	vm.nextID = s.nextID
}
