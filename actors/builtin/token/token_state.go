package token

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	xerrors "golang.org/x/xerrors"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/util/adt"
)

type State struct {
	Name        string
	Symbol      string
	TotalSupply abi.TokenAmount
	Balances    cid.Cid // BalanceTable, HAMT[address]TokenAmount
}

func ConstructState(store adt.Store, name, symbol string, holder addr.Address, supply abi.TokenAmount) (*State, error) {
	emptyBalancesCid, err := adt.StoreEmptyMap(store, adt.BalanceTableBitwidth)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty balance table: %w", err)
	}

	st := &State{
		Name:        name,
		Symbol:      symbol,
		TotalSupply: big.Zero(),
		Balances:    emptyBalancesCid,
	}
	if err := st.Mint(store, holder, supply); err != nil {
		return nil, err
	}
	return st, nil
}

func (st *State) BalanceOf(store adt.Store, owner addr.Address) (abi.TokenAmount, error) {
	balances, err := adt.AsBalanceTable(store, st.Balances)
	if err != nil {
		return big.Zero(), xerrors.Errorf("failed to load balances: %w", err)
	}
	return balances.Get(owner)
}

func (st *State) Mint(store adt.Store, to addr.Address, amount abi.TokenAmount) error {
	if amount.Sign() < 0 {
		return exitcode.ErrIllegalArgument.Wrapf("negative mint amount %v", amount)
	}
	balances, err := adt.AsBalanceTable(store, st.Balances)
	if err != nil {
		return xerrors.Errorf("failed to load balances: %w", err)
	}
	if err := balances.Add(to, amount); err != nil {
		return xerrors.Errorf("failed to credit %v: %w", to, err)
	}
	if st.Balances, err = balances.Root(); err != nil {
		return xerrors.Errorf("failed to flush balances: %w", err)
	}
	st.TotalSupply = big.Add(st.TotalSupply, amount)
	return nil
}

// Transfer moves amount between two balances, failing with ErrInsufficientFunds when
// the sender's balance does not cover it.
func (st *State) Transfer(store adt.Store, from, to addr.Address, amount abi.TokenAmount) error {
	if amount.Sign() < 0 {
		return exitcode.ErrIllegalArgument.Wrapf("negative transfer amount %v", amount)
	}
	balances, err := adt.AsBalanceTable(store, st.Balances)
	if err != nil {
		return xerrors.Errorf("failed to load balances: %w", err)
	}
	if err := balances.MustSubtract(from, amount); err != nil {
		return xerrors.Errorf("failed to debit %v: %w", from, err)
	}
	if err := balances.Add(to, amount); err != nil {
		return xerrors.Errorf("failed to credit %v: %w", to, err)
	}
	if st.Balances, err = balances.Root(); err != nil {
		return xerrors.Errorf("failed to flush balances: %w", err)
	}
	return nil
}
