package builtin

import (
	addr "github.com/filecoin-project/go-address"
)

// Addresses for singleton system actors.
var (
	SystemActorAddr = mustMakeAddress(0)
)

// Actor IDs below this are reserved for singletons. The VM allocates IDs for
// accounts and deployed ledgers from here.
const FirstNonSingletonActorId = 100

func mustMakeAddress(id uint64) addr.Address {
	address, err := addr.NewIDAddress(id)
	if err != nil {
		panic(err)
	}
	return address
}
