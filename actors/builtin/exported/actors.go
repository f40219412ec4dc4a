package exported

import (
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/account"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/coinvesting"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/system"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/token"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/tokenvesting"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/runtime"
)

// BuiltinActors returns every actor a VM can host.
func BuiltinActors() []runtime.VMActor {
	return []runtime.VMActor{
		system.Actor{},
		account.Actor{},
		token.Actor{},
		coinvesting.Actor{},
		tokenvesting.Actor{},
	}
}
