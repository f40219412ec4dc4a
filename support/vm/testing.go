package vm

import (
	"context"
	"testing"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/require"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/runtime"
	tutil "github.com/EpiK-Protocol/go-epik-vesting/support/testing"
)

// NewVMForTest creates a VM with singletons on a manual clock starting at epoch.
func NewVMForTest(t testing.TB, epoch abi.ChainEpoch, extra ...runtime.VMActor) (*VM, *ManualClock) {
	clock := NewManualClock(epoch)
	v, err := NewVMWithSingletons(context.Background(), clock, extra...)
	require.NoError(t, err)
	return v, clock
}

// CreateAccounts creates n BLS accounts, each holding balance, and returns their ID addresses.
func CreateAccounts(t testing.TB, vm *VM, n int, balance abi.TokenAmount, seed int64) []addr.Address {
	ids := make([]addr.Address, n)
	for i := 0; i < n; i++ {
		id, err := vm.CreateAccount(tutil.NewBLSAddr(t, seed+int64(i)), balance)
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

// ApplyOk applies a message and requires it to succeed.
func (vm *VM) ApplyOk(t testing.TB, from, to addr.Address, value abi.TokenAmount, method abi.MethodNum, params cbor.Marshaler) cbor.Marshaler {
	result := vm.ApplyMessage(from, to, value, method, params)
	require.Equal(t, exitcode.Ok, result.Code, "message to %v method %d failed: %v", to, method, result.Code)
	return result.Ret
}

// ApplyCode applies a message and requires it to exit with code.
func (vm *VM) ApplyCode(t testing.TB, code exitcode.ExitCode, from, to addr.Address, value abi.TokenAmount, method abi.MethodNum, params cbor.Marshaler) {
	result := vm.ApplyMessage(from, to, value, method, params)
	require.Equal(t, code, result.Code, "message to %v method %d", to, method)
}
