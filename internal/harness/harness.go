package harness

import (
	"context"
	"fmt"
	"sort"
	"time"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/token"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/tokenvesting"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/vesting"
	"github.com/EpiK-Protocol/go-epik-vesting/support/vm"
)

// Harness applies the steps of one scenario to its own VM.
type Harness struct {
	scenario *Scenario
	vm       *vm.VM
	clock    *vm.ManualClock

	names     map[string]addr.Address
	ledger    addr.Address
	token     addr.Address
	schedules map[string]vesting.ScheduleID

	// Last observed state of each labelled schedule, for monotonicity checks.
	seen map[string]vesting.VestingSchedule
}

// Ledger method numbers are the same for both variants.
var methods = builtin.MethodsCoinVesting

// Run deploys a scenario on a fresh VM and applies its steps.
//
// Steps that do not behave as the scenario expects are reported in the result and do not
// stop the run. An error is returned only when the scenario cannot be executed at all.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	h, err := New(ctx, s)
	if err != nil {
		return nil, err
	}

	result := NewResult(s)
	for i := range s.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sr, err := h.apply(i, &s.Steps[i], result)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, s.Steps[i].Action, err)
		}
		result.Steps = append(result.Steps, sr)
		if err := h.checkLedger(i, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, s.Steps[i].Action, err)
		}
	}

	summary, err := h.Summary()
	if err != nil {
		return nil, err
	}
	result.Summary = summary
	return result, nil
}

// New creates the scenario's accounts, token and ledger on a fresh VM.
func New(ctx context.Context, s *Scenario) (*Harness, error) {
	if err := validateScenario(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	clock := vm.NewManualClock(abi.ChainEpoch(s.Genesis))
	v, err := vm.NewVMWithSingletons(ctx, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create VM: %w", err)
	}

	h := &Harness{
		scenario:  s,
		vm:        v,
		clock:     clock,
		names:     make(map[string]addr.Address, len(s.Accounts)+2),
		schedules: map[string]vesting.ScheduleID{},
		seen:      map[string]vesting.VestingSchedule{},
	}

	for _, a := range s.Accounts {
		pubkey, err := addr.NewSecp256k1Address([]byte(a.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to derive address for %s: %w", a.Name, err)
		}
		balance := a.Balance.TokenAmount
		if balance.Nil() {
			balance = big.Zero()
		}
		id, err := v.CreateAccount(pubkey, balance)
		if err != nil {
			return nil, fmt.Errorf("failed to create account %s: %w", a.Name, err)
		}
		h.names[a.Name] = id
	}
	owner := h.names[s.Owner]

	switch s.Variant {
	case "coin":
		h.ledger, err = v.CreateActor(builtin.CoinVestingActorCodeID, big.Zero(), &owner)
		if err != nil {
			return nil, fmt.Errorf("failed to deploy coin ledger: %w", err)
		}
	case "token":
		h.token, err = v.CreateActor(builtin.TokenActorCodeID, big.Zero(), &token.ConstructorParams{
			Name:          s.Token.Name,
			Symbol:        s.Token.Symbol,
			InitialSupply: s.Token.Supply.TokenAmount,
			Holder:        h.names[s.Token.Holder],
		})
		if err != nil {
			return nil, fmt.Errorf("failed to deploy token: %w", err)
		}
		h.names[TokenName] = h.token
		h.ledger, err = v.CreateActor(builtin.TokenVestingActorCodeID, big.Zero(), &tokenvesting.ConstructorParams{
			Owner: owner,
			Token: h.token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to deploy token ledger: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown variant %q", s.Variant)
	}
	h.names[LedgerName] = h.ledger
	return h, nil
}

func (h *Harness) VM() *vm.VM {
	return h.vm
}

// Address returns the ID address of a named account, the ledger or the token.
func (h *Harness) Address(name string) (addr.Address, bool) {
	a, ok := h.names[name]
	return a, ok
}

// ScheduleID returns the id of a labelled schedule.
func (h *Harness) ScheduleID(label string) (vesting.ScheduleID, bool) {
	id, ok := h.schedules[label]
	return id, ok
}

func (h *Harness) apply(i int, step *Step, result *Result) (StepResult, error) {
	sr := StepResult{Index: i, Action: step.Action, Epoch: int64(h.clock.Now()), Pass: true}
	fail := func(format string, args ...interface{}) {
		sr.Pass = false
		result.AddError(fmt.Sprintf("step %d (%s): ", i, step.Action) + fmt.Sprintf(format, args...))
	}

	from := h.names[h.scenario.Owner]
	if step.From != "" {
		from = h.names[step.From]
	}

	var msg vm.MessageResult
	switch step.Action {
	case ActionCreate:
		terms := step.Terms
		slice := terms.Slice
		if slice == 0 {
			slice = 1
		}
		msg = h.vm.ApplyMessage(from, h.ledger, big.Zero(), methods.CreateVestingSchedule, &vesting.CreateVestingScheduleParams{
			Beneficiary:        h.names[terms.Beneficiary],
			Start:              abi.ChainEpoch(h.scenario.Genesis + terms.Start),
			CliffOffset:        abi.ChainEpoch(terms.Cliff),
			Duration:           abi.ChainEpoch(terms.Duration),
			SlicePeriodSeconds: abi.ChainEpoch(slice),
			Revocable:          terms.Revocable,
			Amount:             terms.Amount.TokenAmount,
		})
		if msg.Code.IsSuccess() && step.As != "" {
			h.schedules[step.As] = *msg.Ret.(*vesting.ScheduleID)
		}
	case ActionRelease:
		msg = h.vm.ApplyMessage(from, h.ledger, big.Zero(), methods.Release, &vesting.ReleaseParams{
			ID:     h.schedules[step.Schedule],
			Amount: step.Amount.TokenAmount,
		})
	case ActionRevoke:
		id := h.schedules[step.Schedule]
		msg = h.vm.ApplyMessage(from, h.ledger, big.Zero(), methods.Revoke, &id)
	case ActionWithdraw:
		msg = h.vm.ApplyMessage(from, h.ledger, big.Zero(), methods.Withdraw, &vesting.WithdrawParams{Amount: step.Amount.TokenAmount})
	case ActionFund:
		msg = h.fund(from, step.Amount.TokenAmount)
	case ActionAdvance:
		if err := h.advance(step); err != nil {
			fail("%s", err)
		}
		sr.Epoch = int64(h.clock.Now())
		return sr, nil
	case ActionExpect:
		failures, err := h.Check(step.Expect)
		if err != nil {
			return sr, err
		}
		for _, f := range failures {
			fail("%s", f)
		}
		return sr, nil
	default:
		return sr, fmt.Errorf("unknown action %q", step.Action)
	}

	sr.Code = vesting.ExitCodeName(msg.Code)
	sr.Trace = msg.Trace
	expected := exitcode.Ok
	if step.Fail != "" {
		expected, _ = parseFailure(step.Fail)
	}
	if msg.Code != expected {
		fail("expected exit %s, got %s", vesting.ExitCodeName(expected), vesting.ExitCodeName(msg.Code))
	}
	return sr, nil
}

func (h *Harness) fund(from addr.Address, amount abi.TokenAmount) vm.MessageResult {
	if h.scenario.Variant == "token" {
		return h.vm.ApplyMessage(from, h.token, big.Zero(), builtin.MethodsToken.Transfer, &token.TransferParams{To: h.ledger, Amount: amount})
	}
	return h.vm.ApplyMessage(from, h.ledger, amount, builtin.MethodSend, nil)
}

func (h *Harness) advance(step *Step) error {
	if step.To != nil {
		return h.clock.Set(abi.ChainEpoch(h.scenario.Genesis + *step.To))
	}
	d, err := time.ParseDuration(step.By)
	if err != nil {
		return err
	}
	_, err = h.clock.Advance(abi.ChainEpoch(d / time.Second))
	return err
}

// Balance returns the amount a named holder has in the ledger's currency.
func (h *Harness) Balance(name string) (abi.TokenAmount, error) {
	a, ok := h.names[name]
	if !ok {
		return big.Zero(), fmt.Errorf("unknown holder %q", name)
	}
	return h.balanceOf(a)
}

func (h *Harness) balanceOf(a addr.Address) (abi.TokenAmount, error) {
	if h.scenario.Variant != "token" {
		return h.vm.GetBalance(a), nil
	}
	var st token.State
	if err := h.vm.GetState(h.token, &st); err != nil {
		return big.Zero(), fmt.Errorf("failed to load token state: %w", err)
	}
	return st.BalanceOf(h.vm.Store(), a)
}

func (h *Harness) ledgerState() (*vesting.State, error) {
	var st vesting.State
	if err := h.vm.GetState(h.ledger, &st); err != nil {
		return nil, fmt.Errorf("failed to load ledger state: %w", err)
	}
	return &st, nil
}

// Check evaluates an expectation against the current state, returning a description of
// each mismatch.
func (h *Harness) Check(exp *Expectation) ([]string, error) {
	var failures []string
	mismatch := func(what string, expected, actual interface{}) {
		failures = append(failures, fmt.Sprintf("%s: expected %v, got %v", what, expected, actual))
	}

	st, err := h.ledgerState()
	if err != nil {
		return nil, err
	}
	pool, err := h.balanceOf(h.ledger)
	if err != nil {
		return nil, err
	}
	now := h.clock.Now()

	lookup := func(label string) (*vesting.VestingSchedule, error) {
		id, ok := h.schedules[label]
		if !ok {
			failures = append(failures, fmt.Sprintf("schedule %s was never created", label))
			return nil, nil
		}
		return st.GetSchedule(h.vm.Store(), id)
	}

	for _, name := range sortedAmountKeys(exp.Balances) {
		actual, err := h.Balance(name)
		if err != nil {
			return nil, err
		}
		if expected := exp.Balances[name]; !actual.Equals(expected.TokenAmount) {
			mismatch("balance of "+name, expected, actual)
		}
	}
	for _, label := range sortedReleasableKeys(exp.Releasable) {
		id, ok := h.schedules[label]
		if !ok {
			failures = append(failures, fmt.Sprintf("schedule %s was never created", label))
			continue
		}
		expected := exp.Releasable[label]
		actual, err := st.ComputeReleasableAmount(h.vm.Store(), id, now)
		switch {
		case exitcode.Unwrap(err, exitcode.Ok) == vesting.ErrScheduleRevoked:
			if !expected.Revoked {
				mismatch("releasable of "+label, expected, vesting.ExitCodeName(vesting.ErrScheduleRevoked))
			}
		case err != nil:
			return nil, err
		case expected.Revoked || !actual.Equals(expected.TokenAmount):
			mismatch("releasable of "+label, expected, actual)
		}
	}
	for _, label := range sortedAmountKeys(exp.Released) {
		s, err := lookup(label)
		if err != nil {
			return nil, err
		}
		if s == nil {
			continue
		}
		if expected := exp.Released[label]; !s.Released.Equals(expected.TokenAmount) {
			mismatch("released of "+label, expected, s.Released)
		}
	}
	for _, label := range sortedBoolKeys(exp.Revoked) {
		s, err := lookup(label)
		if err != nil {
			return nil, err
		}
		if s == nil {
			continue
		}
		if expected := exp.Revoked[label]; s.Revoked != expected {
			mismatch("revoked of "+label, expected, s.Revoked)
		}
	}
	if exp.TotalAmount != nil && !st.TotalAmount.Equals(exp.TotalAmount.TokenAmount) {
		mismatch("total amount", exp.TotalAmount, st.TotalAmount)
	}
	if exp.Withdrawable != nil {
		if actual := st.WithdrawableAmount(pool); !actual.Equals(exp.Withdrawable.TokenAmount) {
			mismatch("withdrawable", exp.Withdrawable, actual)
		}
	}
	if exp.Schedules != nil {
		count, err := st.ScheduleCount(h.vm.Store())
		if err != nil {
			return nil, err
		}
		if count != uint64(*exp.Schedules) {
			mismatch("schedule count", *exp.Schedules, count)
		}
	}
	return failures, nil
}

// checkLedger verifies state invariants after a step, and that no labelled schedule has
// released less or been un-revoked since the previous step.
func (h *Harness) checkLedger(i int, result *Result) error {
	st, err := h.ledgerState()
	if err != nil {
		return err
	}
	pool, err := h.balanceOf(h.ledger)
	if err != nil {
		return err
	}

	_, msgs := vesting.CheckStateInvariants(st, h.vm.Store(), pool)
	for _, m := range msgs.Messages() {
		result.AddError(fmt.Sprintf("after step %d: invariant violated: %s", i, m))
	}

	for label, id := range h.schedules {
		s, err := st.GetSchedule(h.vm.Store(), id)
		if err != nil {
			return err
		}
		if prev, ok := h.seen[label]; ok {
			if s.Released.LessThan(prev.Released) {
				result.AddError(fmt.Sprintf("after step %d: released of %s decreased from %v to %v", i, label, prev.Released, s.Released))
			}
			if prev.Revoked && !s.Revoked {
				result.AddError(fmt.Sprintf("after step %d: schedule %s is no longer revoked", i, label))
			}
		}
		h.seen[label] = *s
	}
	return nil
}

// Summary describes the ledger's current state.
func (h *Harness) Summary() (*Summary, error) {
	st, err := h.ledgerState()
	if err != nil {
		return nil, err
	}
	pool, err := h.balanceOf(h.ledger)
	if err != nil {
		return nil, err
	}
	sum, _ := vesting.CheckStateInvariants(st, h.vm.Store(), pool)
	return &Summary{
		Schedules:    sum.SchedulesCount,
		Revoked:      sum.RevokedCount,
		Holders:      sum.HoldersCount,
		TotalAmount:  sum.TotalAmount.String(),
		Withdrawable: sum.Withdrawable.String(),
		Pool:         pool.String(),
	}, nil
}

func sortedAmountKeys(m map[string]Amount) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedReleasableKeys(m map[string]Releasable) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedBoolKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
