package mock

import (
	"context"
	"testing"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/big"
	cid "github.com/ipfs/go-cid"

	"github.com/EpiK-Protocol/go-epik-vesting/support/ipld"
)

// RuntimeBuilder holds the starting context shared by the runtimes of one test.
type RuntimeBuilder struct {
	ctx        context.Context
	receiver   addr.Address
	caller     addr.Address
	callerType cid.Cid
	codes      map[addr.Address]cid.Cid
}

// NewBuilder starts a builder for the actor at receiver.
func NewBuilder(ctx context.Context, receiver addr.Address) *RuntimeBuilder {
	return &RuntimeBuilder{
		ctx:      ctx,
		receiver: receiver,
		codes:    make(map[addr.Address]cid.Cid),
	}
}

func (b *RuntimeBuilder) WithCaller(a addr.Address, code cid.Cid) *RuntimeBuilder {
	b.caller = a
	b.callerType = code
	return b
}

// WithActorType registers the code of another actor, as seen by GetActorCodeCID.
func (b *RuntimeBuilder) WithActorType(a addr.Address, code cid.Cid) *RuntimeBuilder {
	b.codes[a] = code
	return b
}

// Build returns a fresh runtime with an empty store and zero balance. Runtimes built from the
// same builder share nothing.
func (b *RuntimeBuilder) Build(t testing.TB) *Runtime {
	codes := make(map[addr.Address]cid.Cid, len(b.codes))
	for a, c := range b.codes {
		codes[a] = c
	}
	return &Runtime{
		t:          t,
		ctx:        b.ctx,
		receiver:   b.receiver,
		caller:     b.caller,
		callerType: b.callerType,
		received:   big.Zero(),
		balance:    big.Zero(),
		ids:        make(map[addr.Address]addr.Address),
		codes:      codes,
		state:      cid.Undef,
		blocks:     ipld.NewBlockStoreInMemory(),
	}
}
