package builtin

import (
	"github.com/filecoin-project/go-state-types/abi"
)

const (
	MethodSend        = abi.MethodNum(0)
	MethodConstructor = abi.MethodNum(1)
)

var MethodsAccount = struct {
	Constructor   abi.MethodNum
	PubkeyAddress abi.MethodNum
}{MethodConstructor, 2}

var MethodsToken = struct {
	Constructor abi.MethodNum
	Transfer    abi.MethodNum
	BalanceOf   abi.MethodNum
	TotalSupply abi.MethodNum
	GetMetadata abi.MethodNum
}{MethodConstructor, 2, 3, 4, 5}

var MethodsCoinVesting = struct {
	Constructor                                abi.MethodNum
	CreateVestingSchedule                      abi.MethodNum
	Release                                    abi.MethodNum
	Revoke                                     abi.MethodNum
	Withdraw                                   abi.MethodNum
	ComputeReleasableAmount                    abi.MethodNum
	GetVestingSchedulesCount                   abi.MethodNum
	GetVestingSchedulesCountByBeneficiary      abi.MethodNum
	GetVestingSchedulesTotalAmount             abi.MethodNum
	GetWithdrawableAmount                      abi.MethodNum
	GetVestingSchedule                         abi.MethodNum
	GetVestingScheduleByAddressAndIndex        abi.MethodNum
	GetVestingIdAtIndex                        abi.MethodNum
	ComputeVestingScheduleIdForAddressAndIndex abi.MethodNum
	ComputeNextVestingScheduleIdForHolder      abi.MethodNum
	GetOwner                                   abi.MethodNum
}{MethodConstructor, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

var MethodsTokenVesting = struct {
	Constructor                                abi.MethodNum
	CreateVestingSchedule                      abi.MethodNum
	Release                                    abi.MethodNum
	Revoke                                     abi.MethodNum
	Withdraw                                   abi.MethodNum
	ComputeReleasableAmount                    abi.MethodNum
	GetVestingSchedulesCount                   abi.MethodNum
	GetVestingSchedulesCountByBeneficiary      abi.MethodNum
	GetVestingSchedulesTotalAmount             abi.MethodNum
	GetWithdrawableAmount                      abi.MethodNum
	GetVestingSchedule                         abi.MethodNum
	GetVestingScheduleByAddressAndIndex        abi.MethodNum
	GetVestingIdAtIndex                        abi.MethodNum
	ComputeVestingScheduleIdForAddressAndIndex abi.MethodNum
	ComputeNextVestingScheduleIdForHolder      abi.MethodNum
	GetOwner                                   abi.MethodNum
	GetToken                                   abi.MethodNum
}{MethodConstructor, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17}
