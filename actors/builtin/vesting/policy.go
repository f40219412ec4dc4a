package vesting

import (
	"math"

	abi "github.com/filecoin-project/go-state-types/abi"
)

// Length in bytes of a schedule identifier.
const ScheduleIDLength = 32

// Schedules may not end beyond this epoch, which keeps Start+Duration representable.
const MaxScheduleEpoch = abi.ChainEpoch(math.MaxInt64 / 2)

// Minimum granularity of a release slice.
const MinSlicePeriod = abi.ChainEpoch(1)
