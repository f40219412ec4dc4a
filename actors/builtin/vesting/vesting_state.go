package vesting

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
	xerrors "golang.org/x/xerrors"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/util/adt"
)

type State struct {
	Owner        addr.Address
	Token        *addr.Address   // nil when the ledger pays out of the native balance
	Schedules    cid.Cid         // Map, HAMT[ScheduleID]VestingSchedule
	HolderCounts cid.Cid         // Map, HAMT[beneficiary]CborInt
	ScheduleIDs  cid.Cid         // Array, AMT[index]ScheduleID in creation order
	TotalAmount  abi.TokenAmount // sum of unreleased amounts over non-revoked schedules
}

func ConstructState(store adt.Store, owner addr.Address, token *addr.Address) (*State, error) {
	emptySchedulesCid, err := adt.StoreEmptyMap(store, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty map: %w", err)
	}

	emptyCountsCid, err := adt.StoreEmptyMap(store, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty map: %w", err)
	}

	emptyIDsCid, err := adt.StoreEmptyArray(store, builtin.DefaultAmtBitwidth)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty array: %w", err)
	}

	return &State{
		Owner:        owner,
		Token:        token,
		Schedules:    emptySchedulesCid,
		HolderCounts: emptyCountsCid,
		ScheduleIDs:  emptyIDsCid,
		TotalAmount:  abi.NewTokenAmount(0),
	}, nil
}

//
// Schedule store
//

func (st *State) FindSchedule(store adt.Store, id ScheduleID) (*VestingSchedule, bool, error) {
	schedules, err := adt.AsMap(store, st.Schedules, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, false, xerrors.Errorf("failed to load schedules: %w", err)
	}

	var out VestingSchedule
	found, err := schedules.Get(id, &out)
	if err != nil {
		return nil, false, xerrors.Errorf("failed to get schedule %s: %w", id, err)
	}
	if !found {
		return nil, false, nil
	}
	return &out, true, nil
}

// GetSchedule returns the schedule or an ErrNotInitialized error.
func (st *State) GetSchedule(store adt.Store, id ScheduleID) (*VestingSchedule, error) {
	s, found, err := st.FindSchedule(store, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotInitialized.Wrapf("vesting schedule %s not initialized", id)
	}
	return s, nil
}

// PutSchedule stores a new schedule. It never overwrites.
func (st *State) PutSchedule(store adt.Store, id ScheduleID, s *VestingSchedule) error {
	_, found, err := st.FindSchedule(store, id)
	if err != nil {
		return err
	}
	if found {
		return ErrAlreadyExists.Wrapf("vesting schedule %s already exists", id)
	}
	return st.saveSchedule(store, id, s)
}

// MutateSchedule loads an existing schedule, applies f and writes it back if f succeeds.
func (st *State) MutateSchedule(store adt.Store, id ScheduleID, f func(s *VestingSchedule) error) error {
	s, err := st.GetSchedule(store, id)
	if err != nil {
		return err
	}
	if err := f(s); err != nil {
		return err
	}
	return st.saveSchedule(store, id, s)
}

func (st *State) saveSchedule(store adt.Store, id ScheduleID, s *VestingSchedule) error {
	schedules, err := adt.AsMap(store, st.Schedules, builtin.DefaultHamtBitwidth)
	if err != nil {
		return xerrors.Errorf("failed to load schedules: %w", err)
	}
	if err := schedules.Put(id, s); err != nil {
		return xerrors.Errorf("failed to put schedule %s: %w", id, err)
	}
	st.Schedules, err = schedules.Root()
	if err != nil {
		return xerrors.Errorf("failed to flush schedules: %w", err)
	}
	return nil
}

func (st *State) HolderScheduleCount(store adt.Store, beneficiary addr.Address) (uint64, error) {
	counts, err := adt.AsMap(store, st.HolderCounts, builtin.DefaultHamtBitwidth)
	if err != nil {
		return 0, xerrors.Errorf("failed to load holder counts: %w", err)
	}
	var count cbg.CborInt
	found, err := counts.Get(abi.AddrKey(beneficiary), &count)
	if err != nil {
		return 0, xerrors.Errorf("failed to get holder count of %s: %w", beneficiary, err)
	}
	if !found {
		return 0, nil
	}
	return uint64(count), nil
}

func (st *State) setHolderScheduleCount(store adt.Store, beneficiary addr.Address, count uint64) error {
	counts, err := adt.AsMap(store, st.HolderCounts, builtin.DefaultHamtBitwidth)
	if err != nil {
		return xerrors.Errorf("failed to load holder counts: %w", err)
	}
	value := cbg.CborInt(count)
	if err := counts.Put(abi.AddrKey(beneficiary), &value); err != nil {
		return xerrors.Errorf("failed to put holder count of %s: %w", beneficiary, err)
	}
	st.HolderCounts, err = counts.Root()
	if err != nil {
		return xerrors.Errorf("failed to flush holder counts: %w", err)
	}
	return nil
}

func (st *State) ScheduleCount(store adt.Store) (uint64, error) {
	ids, err := adt.AsArray(store, st.ScheduleIDs, builtin.DefaultAmtBitwidth)
	if err != nil {
		return 0, xerrors.Errorf("failed to load schedule ids: %w", err)
	}
	return ids.Length(), nil
}

// ScheduleIDAt returns the id of the index'th schedule created, or an ErrIllegalArgument
// error when index is out of range.
func (st *State) ScheduleIDAt(store adt.Store, index uint64) (ScheduleID, error) {
	ids, err := adt.AsArray(store, st.ScheduleIDs, builtin.DefaultAmtBitwidth)
	if err != nil {
		return ScheduleID{}, xerrors.Errorf("failed to load schedule ids: %w", err)
	}
	if index >= ids.Length() {
		return ScheduleID{}, exitcode.ErrIllegalArgument.Wrapf("index %d out of bounds, %d schedules", index, ids.Length())
	}
	var id ScheduleID
	found, err := ids.Get(index, &id)
	if err != nil {
		return ScheduleID{}, xerrors.Errorf("failed to get schedule id %d: %w", index, err)
	}
	if !found {
		return ScheduleID{}, xerrors.Errorf("schedule id %d missing below length %d", index, ids.Length())
	}
	return id, nil
}

func (st *State) appendScheduleID(store adt.Store, id ScheduleID) error {
	ids, err := adt.AsArray(store, st.ScheduleIDs, builtin.DefaultAmtBitwidth)
	if err != nil {
		return xerrors.Errorf("failed to load schedule ids: %w", err)
	}
	if err := ids.AppendContinuous(&id); err != nil {
		return xerrors.Errorf("failed to append schedule id %s: %w", id, err)
	}
	st.ScheduleIDs, err = ids.Root()
	if err != nil {
		return xerrors.Errorf("failed to flush schedule ids: %w", err)
	}
	return nil
}

// AllScheduleIDs returns every schedule id in creation order.
func (st *State) AllScheduleIDs(store adt.Store) ([]ScheduleID, error) {
	ids, err := adt.AsArray(store, st.ScheduleIDs, builtin.DefaultAmtBitwidth)
	if err != nil {
		return nil, xerrors.Errorf("failed to load schedule ids: %w", err)
	}
	out := make([]ScheduleID, 0, ids.Length())
	var id ScheduleID
	err = ids.ForEach(&id, func(_ int64) error {
		out = append(out, id)
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to iterate schedule ids: %w", err)
	}
	return out, nil
}

// ScheduleIDsByBeneficiary derives the ids of every schedule held by a beneficiary.
func (st *State) ScheduleIDsByBeneficiary(store adt.Store, beneficiary addr.Address) ([]ScheduleID, error) {
	count, err := st.HolderScheduleCount(store, beneficiary)
	if err != nil {
		return nil, err
	}
	out := make([]ScheduleID, count)
	for i := uint64(0); i < count; i++ {
		out[i] = ComputeScheduleID(beneficiary, i)
	}
	return out, nil
}

// NextScheduleID is the id the next schedule created for the beneficiary will take.
func (st *State) NextScheduleID(store adt.Store, beneficiary addr.Address) (ScheduleID, error) {
	count, err := st.HolderScheduleCount(store, beneficiary)
	if err != nil {
		return ScheduleID{}, err
	}
	return ComputeScheduleID(beneficiary, count), nil
}

func (st *State) GetScheduleByAddressAndIndex(store adt.Store, beneficiary addr.Address, index uint64) (*VestingSchedule, error) {
	return st.GetSchedule(store, ComputeScheduleID(beneficiary, index))
}

//
// Ledger
//

// WithdrawableAmount is the part of the pool not committed to any schedule.
func (st *State) WithdrawableAmount(poolBalance abi.TokenAmount) abi.TokenAmount {
	return big.Max(big.Sub(poolBalance, st.TotalAmount), big.Zero())
}

type CreateVestingScheduleParams struct {
	Beneficiary        addr.Address
	Start              abi.ChainEpoch
	CliffOffset        abi.ChainEpoch
	Duration           abi.ChainEpoch
	SlicePeriodSeconds abi.ChainEpoch
	Revocable          bool
	Amount             abi.TokenAmount
}

// ValidateTerms reports the first violated precondition of a new schedule. Range checks on
// start and cliff follow the amount check and precede the funds check.
func (st *State) ValidateTerms(terms *CreateVestingScheduleParams, poolBalance abi.TokenAmount) error {
	if terms.Duration <= 0 {
		return ErrInvalidDuration.Wrapf("duration must be > 0, was %d", terms.Duration)
	}
	if terms.SlicePeriodSeconds < MinSlicePeriod {
		return ErrInvalidSliceGranularity.Wrapf("slice period must be >= %d, was %d", MinSlicePeriod, terms.SlicePeriodSeconds)
	}
	if terms.Duration < terms.CliffOffset {
		return ErrCliffExceedsDuration.Wrapf("duration %d must be >= cliff offset %d", terms.Duration, terms.CliffOffset)
	}
	if terms.Amount.Nil() || terms.Amount.Sign() <= 0 {
		return ErrInvalidAmount.Wrapf("amount must be > 0, was %v", terms.Amount)
	}
	if terms.Start < 0 || terms.CliffOffset < 0 {
		return exitcode.ErrIllegalArgument.Wrapf("negative start %d or cliff offset %d", terms.Start, terms.CliffOffset)
	}
	if terms.Start > MaxScheduleEpoch-terms.Duration {
		return exitcode.ErrIllegalArgument.Wrapf("schedule end %d+%d exceeds %d", terms.Start, terms.Duration, MaxScheduleEpoch)
	}
	if withdrawable := st.WithdrawableAmount(poolBalance); withdrawable.LessThan(terms.Amount) {
		return ErrInsufficientUnallocatedFunds.Wrapf("cannot allocate %v, only %v unallocated", terms.Amount, withdrawable)
	}
	return nil
}

// CreateSchedule validates and records a new schedule for the beneficiary's next index.
func (st *State) CreateSchedule(store adt.Store, terms *CreateVestingScheduleParams, poolBalance abi.TokenAmount) (ScheduleID, error) {
	if err := st.ValidateTerms(terms, poolBalance); err != nil {
		return ScheduleID{}, err
	}

	index, err := st.HolderScheduleCount(store, terms.Beneficiary)
	if err != nil {
		return ScheduleID{}, err
	}
	id := ComputeScheduleID(terms.Beneficiary, index)

	err = st.PutSchedule(store, id, &VestingSchedule{
		Beneficiary:        terms.Beneficiary,
		Cliff:              terms.Start + terms.CliffOffset,
		Start:              terms.Start,
		Duration:           terms.Duration,
		SlicePeriodSeconds: terms.SlicePeriodSeconds,
		Revocable:          terms.Revocable,
		AmountTotal:        terms.Amount,
		Released:           big.Zero(),
		Revoked:            false,
	})
	if err != nil {
		return ScheduleID{}, xerrors.Errorf("failed to store schedule: %w", err)
	}
	if err := st.setHolderScheduleCount(store, terms.Beneficiary, index+1); err != nil {
		return ScheduleID{}, err
	}
	if err := st.appendScheduleID(store, id); err != nil {
		return ScheduleID{}, err
	}
	st.TotalAmount = big.Add(st.TotalAmount, terms.Amount)
	return id, nil
}

// ComputeReleasableAmount fails for unknown or revoked schedules.
func (st *State) ComputeReleasableAmount(store adt.Store, id ScheduleID, now abi.ChainEpoch) (abi.TokenAmount, error) {
	s, err := st.GetSchedule(store, id)
	if err != nil {
		return big.Zero(), err
	}
	if s.Revoked {
		return big.Zero(), ErrScheduleRevoked.Wrapf("vesting schedule %s revoked", id)
	}
	return s.ReleasableAmount(now), nil
}

// ReleaseVested records the release of amount from a schedule. It does not move value.
func (st *State) ReleaseVested(store adt.Store, id ScheduleID, amount abi.TokenAmount, now abi.ChainEpoch) (*VestingSchedule, error) {
	if amount.Nil() || amount.Sign() < 0 {
		return nil, exitcode.ErrIllegalArgument.Wrapf("negative release amount %v", amount)
	}
	var released *VestingSchedule
	err := st.MutateSchedule(store, id, func(s *VestingSchedule) error {
		if s.Revoked {
			return ErrScheduleRevoked.Wrapf("vesting schedule %s revoked", id)
		}
		releasable := s.ReleasableAmount(now)
		if amount.GreaterThan(releasable) {
			return ErrInsufficientVestedAmount.Wrapf("cannot release %v, only %v vested", amount, releasable)
		}
		s.Released = big.Add(s.Released, amount)
		released = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	st.TotalAmount = big.Sub(st.TotalAmount, amount)
	return released, nil
}

// RevokeSchedule releases whatever has vested, returns the unvested remainder to the
// pool and marks the schedule revoked. The returned amount is owed to the beneficiary.
func (st *State) RevokeSchedule(store adt.Store, id ScheduleID, now abi.ChainEpoch) (abi.TokenAmount, *VestingSchedule, error) {
	releasable := big.Zero()
	var revoked *VestingSchedule
	err := st.MutateSchedule(store, id, func(s *VestingSchedule) error {
		if s.Revoked {
			return ErrScheduleRevoked.Wrapf("vesting schedule %s revoked", id)
		}
		if !s.Revocable {
			return ErrNotRevocable.Wrapf("vesting schedule %s is not revocable", id)
		}
		releasable = s.ReleasableAmount(now)
		s.Released = big.Add(s.Released, releasable)
		s.Revoked = true
		revoked = s
		return nil
	})
	if err != nil {
		return big.Zero(), nil, err
	}
	// The releasable part leaves as a release, the rest is no longer committed.
	remainder := revoked.Unreleased()
	st.TotalAmount = big.Sub(st.TotalAmount, big.Add(releasable, remainder))
	return releasable, revoked, nil
}
