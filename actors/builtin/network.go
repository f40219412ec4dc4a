package builtin

import (
	"fmt"

	"github.com/filecoin-project/go-state-types/big"
)

// The duration of a ledger epoch.
// Vesting parameters (start, cliff, duration, slice period) are expressed in epochs and are read
// as seconds by callers, so this must stay 1.
const EpochDurationSeconds = 1
const SecondsInHour = 3600
const SecondsInDay = 86400
const SecondsInWeek = 7 * SecondsInDay
const EpochsInHour = SecondsInHour / EpochDurationSeconds
const EpochsInDay = SecondsInDay / EpochDurationSeconds
const EpochsInWeek = SecondsInWeek / EpochDurationSeconds

// Number of token units (attoEPK) in one whole token.
var TokenPrecision = big.NewIntUnsigned(1_000_000_000_000_000_000)

func init() {
	//noinspection GoBoolExpressions
	if SecondsInHour%EpochDurationSeconds != 0 {
		panic(fmt.Sprintf("epoch duration %d does not evenly divide one hour (%d)", EpochDurationSeconds, SecondsInHour))
	}
}
