package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	addr "github.com/filecoin-project/go-address"
	"github.com/spf13/cobra"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/vesting"
)

// MaxIDCount bounds the count argument of the ids command.
const MaxIDCount = 1 << 16

// ScheduleIDEntry is one derived schedule identifier.
type ScheduleIDEntry struct {
	Index uint64 `json:"index"`
	ID    string `json:"id"`
}

// NewIdsCommand creates the ids command.
func NewIdsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ids <beneficiary> [count]",
		Short: "Print the schedule identifiers of a beneficiary",
		Long: `Print the identifiers the ledger assigns to a beneficiary's first
count schedules (default 1), in creation order.

Examples:
  vesting ids f01001
  vesting ids f01001 3 --format json`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			beneficiary, err := addr.NewFromString(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid beneficiary address", err)
			}
			count := uint64(1)
			if len(args) == 2 {
				count, err = strconv.ParseUint(args[1], 10, 64)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid count", err)
				}
				if count > MaxIDCount {
					return NewExitError(ExitCommandError, fmt.Sprintf("count %d exceeds %d", count, MaxIDCount))
				}
			}

			entries := make([]ScheduleIDEntry, 0, count)
			for i := uint64(0); i < count; i++ {
				entries = append(entries, ScheduleIDEntry{
					Index: i,
					ID:    vesting.ComputeScheduleID(beneficiary, i).String(),
				})
			}

			w := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return json.NewEncoder(w).Encode(Response{Status: "ok", Data: entries})
			}
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\n", e.Index, e.ID)
			}
			return nil
		},
	}
	return cmd
}
