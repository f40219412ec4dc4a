package vesting

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/util/adt"
)

type StateSummary struct {
	SchedulesCount int
	RevokedCount   int
	HoldersCount   int
	TotalAmount    abi.TokenAmount
	Withdrawable   abi.TokenAmount
}

// Checks internal invariants of vesting state against the pool balance backing it.
func CheckStateInvariants(st *State, store adt.Store, poolBalance abi.TokenAmount) (*StateSummary, *builtin.MessageAccumulator) {
	acc := &builtin.MessageAccumulator{}
	sum := &StateSummary{
		TotalAmount:  st.TotalAmount,
		Withdrawable: st.WithdrawableAmount(poolBalance),
	}

	acc.Require(st.Owner.Protocol() == addr.ID, "owner %v is not an ID address", st.Owner)
	acc.Require(st.Token == nil || st.Token.Protocol() == addr.ID, "token %v is not an ID address", st.Token)
	acc.Require(!st.TotalAmount.LessThan(big.Zero()), "total amount %v is negative", st.TotalAmount)
	acc.Require(!st.TotalAmount.GreaterThan(poolBalance), "total amount %v exceeds pool balance %v", st.TotalAmount, poolBalance)

	// Schedules
	unreleased := big.Zero()
	schedulesByID := map[string]*VestingSchedule{}
	if schedules, err := adt.AsMap(store, st.Schedules, builtin.DefaultHamtBitwidth); err != nil {
		acc.Addf("failed to load schedules: %v", err)
	} else {
		var s VestingSchedule
		err = schedules.ForEach(&s, func(k string) error {
			var id ScheduleID
			copy(id[:], k)
			sacc := acc.WithPrefix("schedule %s: ", id)

			sum.SchedulesCount++
			sacc.Require(s.Duration > 0, "duration %d not positive", s.Duration)
			sacc.Require(s.SlicePeriodSeconds >= MinSlicePeriod, "slice period %d below minimum", s.SlicePeriodSeconds)
			sacc.Require(s.Cliff >= s.Start && s.Cliff <= s.End(), "cliff %d outside [%d, %d]", s.Cliff, s.Start, s.End())
			sacc.Require(s.AmountTotal.GreaterThan(big.Zero()), "amount total %v not positive", s.AmountTotal)
			sacc.Require(!s.Released.LessThan(big.Zero()), "released %v is negative", s.Released)
			sacc.Require(!s.Released.GreaterThan(s.AmountTotal), "released %v exceeds total %v", s.Released, s.AmountTotal)
			sacc.Require(s.Beneficiary.Protocol() == addr.ID, "beneficiary %v is not an ID address", s.Beneficiary)

			if s.Revoked {
				sum.RevokedCount++
			} else {
				unreleased = big.Add(unreleased, s.Unreleased())
			}
			copied := s
			schedulesByID[k] = &copied
			return nil
		})
		acc.RequireNoError(err, "failed to iterate schedules")
	}
	acc.Require(unreleased.Equals(st.TotalAmount), "total amount %v != sum of unreleased amounts %v", st.TotalAmount, unreleased)

	// ScheduleIDs
	listed := map[string]bool{}
	if ids, err := adt.AsArray(store, st.ScheduleIDs, builtin.DefaultAmtBitwidth); err != nil {
		acc.Addf("failed to load schedule ids: %v", err)
	} else {
		acc.Require(ids.Length() == uint64(sum.SchedulesCount), "%d schedule ids listed for %d schedules", ids.Length(), sum.SchedulesCount)
		var id ScheduleID
		err = ids.ForEach(&id, func(i int64) error {
			acc.Require(!listed[id.Key()], "schedule id %s listed twice", id)
			listed[id.Key()] = true
			_, found := schedulesByID[id.Key()]
			acc.Require(found, "listed schedule id %s at %d has no schedule", id, i)
			return nil
		})
		acc.RequireNoError(err, "failed to iterate schedule ids")
	}

	// HolderCounts
	holderTotal := uint64(0)
	if counts, err := adt.AsMap(store, st.HolderCounts, builtin.DefaultHamtBitwidth); err != nil {
		acc.Addf("failed to load holder counts: %v", err)
	} else {
		var count cbg.CborInt
		err = counts.ForEach(&count, func(k string) error {
			holder, err := addr.NewFromBytes([]byte(k))
			if err != nil {
				return err
			}
			sum.HoldersCount++
			holderTotal += uint64(count)
			for i := uint64(0); i < uint64(count); i++ {
				id := ComputeScheduleID(holder, i)
				s, found := schedulesByID[id.Key()]
				acc.Require(found, "holder %v schedule %d (%s) missing", holder, i, id)
				if found {
					acc.Require(s.Beneficiary == holder, "schedule %s derived for %v belongs to %v", id, holder, s.Beneficiary)
				}
			}
			return nil
		})
		acc.RequireNoError(err, "failed to iterate holder counts")
	}
	acc.Require(holderTotal == uint64(sum.SchedulesCount), "holder counts sum to %d for %d schedules", holderTotal, sum.SchedulesCount)

	return sum, acc
}
