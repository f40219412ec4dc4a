package vesting

import (
	"github.com/filecoin-project/go-state-types/exitcode"
)

// Exit codes for vesting ledger failures.
const (
	ErrInvalidDuration = exitcode.FirstActorSpecificExitCode + iota
	ErrInvalidSliceGranularity
	ErrCliffExceedsDuration
	ErrInvalidAmount
	ErrInsufficientUnallocatedFunds
	ErrScheduleRevoked
	ErrNotRevocable
	ErrInsufficientVestedAmount
	ErrInsufficientWithdrawable
	ErrTransferFailed
	ErrAlreadyExists
)

const (
	ErrUnauthorized   = exitcode.ErrForbidden
	ErrNotInitialized = exitcode.ErrNotFound
)

var exitCodeNames = map[exitcode.ExitCode]string{
	exitcode.Ok:                     "Ok",
	ErrUnauthorized:                 "Unauthorized",
	ErrNotInitialized:               "NotInitialized",
	ErrInvalidDuration:              "InvalidDuration",
	ErrInvalidSliceGranularity:      "InvalidSliceGranularity",
	ErrCliffExceedsDuration:         "CliffExceedsDuration",
	ErrInvalidAmount:                "InvalidAmount",
	ErrInsufficientUnallocatedFunds: "InsufficientUnallocatedFunds",
	ErrScheduleRevoked:              "ScheduleRevoked",
	ErrNotRevocable:                 "NotRevocable",
	ErrInsufficientVestedAmount:     "InsufficientVestedAmount",
	ErrInsufficientWithdrawable:     "InsufficientWithdrawable",
	ErrTransferFailed:               "TransferFailed",
	ErrAlreadyExists:                "AlreadyExists",
	exitcode.ErrIllegalArgument:     "IllegalArgument",
	exitcode.ErrIllegalState:        "IllegalState",
	exitcode.ErrInsufficientFunds:   "InsufficientFunds",
}

// ExitCodeName returns the symbolic name of a ledger exit code, falling back to the
// exit code's own string form for anything the ledger does not define.
func ExitCodeName(code exitcode.ExitCode) string {
	if name, ok := exitCodeNames[code]; ok {
		return name
	}
	return code.String()
}

// ParseExitCodeName is the inverse of ExitCodeName for ledger-defined names.
func ParseExitCodeName(name string) (exitcode.ExitCode, bool) {
	for code, n := range exitCodeNames {
		if n == name {
			return code, true
		}
	}
	return 0, false
}
