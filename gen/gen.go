package main

import (
	gen "github.com/whyrusleeping/cbor-gen"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/account"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/system"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/token"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/tokenvesting"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/vesting"
)

func main() {
	if err := gen.WriteTupleEncodersToFile("./actors/builtin/system/cbor_gen.go", "system",
		// actor state
		system.State{},
	); err != nil {
		panic(err)
	}

	if err := gen.WriteTupleEncodersToFile("./actors/builtin/account/cbor_gen.go", "account",
		// actor state
		account.State{},
	); err != nil {
		panic(err)
	}

	if err := gen.WriteTupleEncodersToFile("./actors/builtin/token/cbor_gen.go", "token",
		// actor state
		token.State{},
		// method params and returns
		token.ConstructorParams{},
		token.TransferParams{},
		token.Metadata{},
	); err != nil {
		panic(err)
	}

	if err := gen.WriteTupleEncodersToFile("./actors/builtin/vesting/cbor_gen.go", "vesting",
		// actor state
		vesting.State{},
		vesting.VestingSchedule{},
		// method params and returns
		vesting.CreateVestingScheduleParams{},
		vesting.ReleaseParams{},
		vesting.WithdrawParams{},
		vesting.AddressIndexParams{},
		vesting.IndexParams{},
	); err != nil {
		panic(err)
	}

	if err := gen.WriteTupleEncodersToFile("./actors/builtin/tokenvesting/cbor_gen.go", "tokenvesting",
		// method params and returns
		tokenvesting.ConstructorParams{},
	); err != nil {
		panic(err)
	}
}
