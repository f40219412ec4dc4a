package system_test

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/require"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/system"
	"github.com/EpiK-Protocol/go-epik-vesting/support/mock"
	tutil "github.com/EpiK-Protocol/go-epik-vesting/support/testing"
)

func TestExports(t *testing.T) {
	mock.CheckActorExports(t, system.Actor{})
}

func TestConstruction(t *testing.T) {
	a := system.Actor{}

	t.Run("from system", func(t *testing.T) {
		rt := mock.NewBuilder(context.Background(), builtin.SystemActorAddr).Build(t)
		rt.ExpectValidateCallerAddr(builtin.SystemActorAddr)
		rt.SetCaller(builtin.SystemActorAddr, builtin.SystemActorCodeID)
		rt.Call(a.Constructor, nil)
		rt.Verify()

		var st system.State
		rt.GetState(&st)
		require.Equal(t, system.State{}, st)
	})

	t.Run("rejects other callers", func(t *testing.T) {
		rt := mock.NewBuilder(context.Background(), builtin.SystemActorAddr).Build(t)
		rt.ExpectValidateCallerAddr(builtin.SystemActorAddr)
		rt.SetCaller(tutil.NewIDAddr(t, 101), builtin.AccountActorCodeID)
		rt.ExpectAbort(exitcode.ErrForbidden, func() {
			rt.Call(a.Constructor, nil)
		})
		rt.Verify()
	})
}
