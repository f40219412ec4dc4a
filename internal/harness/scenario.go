package harness

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"gopkg.in/yaml.v3"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin"
	"github.com/EpiK-Protocol/go-epik-vesting/actors/builtin/vesting"
)

// Scenario describes a ledger deployment and an ordered list of steps to apply to it.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description,omitempty"`

	// Variant selects the pool the ledger pays from: "coin" or "token".
	Variant string `yaml:"variant"`

	// Genesis is the epoch (unix seconds) the clock starts at. Schedule starts are relative to it.
	Genesis int64 `yaml:"genesis,omitempty"`

	// Accounts are created at genesis with native balances.
	Accounts []Account `yaml:"accounts"`

	// Owner names the account that controls the ledger.
	Owner string `yaml:"owner"`

	// Token is required for the token variant.
	Token *TokenConfig `yaml:"token,omitempty"`

	// Steps are applied in order.
	Steps []Step `yaml:"steps"`
}

type Account struct {
	Name    string `yaml:"name"`
	Balance Amount `yaml:"balance"`
}

type TokenConfig struct {
	Name   string `yaml:"name"`
	Symbol string `yaml:"symbol"`
	Supply Amount `yaml:"supply"`
	// Holder names the account receiving the whole supply.
	Holder string `yaml:"holder"`
}

// Step actions.
const (
	ActionCreate   = "create"
	ActionRelease  = "release"
	ActionRevoke   = "revoke"
	ActionWithdraw = "withdraw"
	ActionAdvance  = "advance"
	ActionFund     = "fund"
	ActionExpect   = "expect"
)

// Reserved names usable wherever an account name is expected.
const (
	LedgerName = "ledger"
	TokenName  = "token"
)

type Step struct {
	Action string `yaml:"action"`

	// From names the sender. Defaults to the owner.
	From string `yaml:"from,omitempty"`

	// Terms of a new schedule (create).
	Terms *Terms `yaml:"terms,omitempty"`

	// As labels the schedule a create step makes, for later steps to refer to.
	As string `yaml:"as,omitempty"`

	// Schedule is the label of the schedule a release or revoke step acts on.
	Schedule string `yaml:"schedule,omitempty"`

	// Amount for release, withdraw and fund.
	Amount *Amount `yaml:"amount,omitempty"`

	// By moves the clock forward (advance), e.g. "168h".
	By string `yaml:"by,omitempty"`

	// To moves the clock to genesis plus this many seconds (advance).
	To *int64 `yaml:"to,omitempty"`

	// Fail names the exit code the step must fail with, e.g. "InsufficientWithdrawable".
	Fail string `yaml:"fail,omitempty"`

	// Expect holds the checks of an expect step.
	Expect *Expectation `yaml:"expect,omitempty"`
}

type Terms struct {
	Beneficiary string `yaml:"beneficiary"`
	// Start is an offset in seconds from genesis.
	Start     int64  `yaml:"start,omitempty"`
	Cliff     int64  `yaml:"cliff,omitempty"`
	Duration  int64  `yaml:"duration"`
	Slice     int64  `yaml:"slice,omitempty"`
	Revocable bool   `yaml:"revocable,omitempty"`
	Amount    Amount `yaml:"amount"`
}

// Expectation checks ledger and balance values. Balances are native for the coin variant
// and token balances for the token variant.
type Expectation struct {
	Balances     map[string]Amount     `yaml:"balances,omitempty"`
	Releasable   map[string]Releasable `yaml:"releasable,omitempty"`
	Released     map[string]Amount     `yaml:"released,omitempty"`
	Revoked      map[string]bool       `yaml:"revoked,omitempty"`
	TotalAmount  *Amount               `yaml:"total_amount,omitempty"`
	Withdrawable *Amount               `yaml:"withdrawable,omitempty"`
	Schedules    *int                  `yaml:"schedules,omitempty"`
}

// Amount is a token quantity in base units. A value suffixed with " EPK" counts whole tokens.
type Amount struct {
	abi.TokenAmount
}

func NewAmount(v int64) Amount {
	return Amount{abi.NewTokenAmount(v)}
}

func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: amount must be a scalar", value.Line)
	}
	amt, err := ParseAmount(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	a.TokenAmount = amt
	return nil
}

func (a Amount) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}

// RevokedReleasable is the releasable value of a revoked schedule, which has no amount.
const RevokedReleasable = "revoked"

// Releasable is an expected releasable amount, or "revoked" for a schedule whose releasable
// amount is refused because it was revoked.
type Releasable struct {
	Amount
	Revoked bool
}

func (r *Releasable) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode && strings.TrimSpace(value.Value) == RevokedReleasable {
		r.Revoked = true
		return nil
	}
	return r.Amount.UnmarshalYAML(value)
}

func (r Releasable) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}

func (r Releasable) String() string {
	if r.Revoked {
		return RevokedReleasable
	}
	return r.Amount.String()
}

// ParseAmount reads a decimal integer amount, optionally suffixed with "EPK".
func ParseAmount(s string) (abi.TokenAmount, error) {
	s = strings.TrimSpace(s)
	whole := false
	if strings.HasSuffix(s, "EPK") {
		whole = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "EPK"))
	}
	v, err := big.FromString(strings.ReplaceAll(s, "_", ""))
	if err != nil {
		return big.Zero(), fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if whole {
		v = big.Mul(v, builtin.TokenPrecision)
	}
	return v, nil
}

// LoadScenario reads and validates a scenario YAML file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and that every name and label a step uses is
// defined before it.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch s.Variant {
	case "coin":
		if s.Token != nil {
			return fmt.Errorf("token is only valid for the token variant")
		}
	case "token":
		if s.Token == nil {
			return fmt.Errorf("token is required for the token variant")
		}
	default:
		return fmt.Errorf("variant must be \"coin\" or \"token\", got %q", s.Variant)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	accounts := make(map[string]bool, len(s.Accounts))
	for i, a := range s.Accounts {
		if a.Name == "" {
			return fmt.Errorf("accounts[%d]: name is required", i)
		}
		if a.Name == LedgerName || a.Name == TokenName {
			return fmt.Errorf("accounts[%d]: name %q is reserved", i, a.Name)
		}
		if accounts[a.Name] {
			return fmt.Errorf("accounts[%d]: duplicate name %q", i, a.Name)
		}
		if !a.Balance.Nil() && a.Balance.Sign() < 0 {
			return fmt.Errorf("accounts[%d]: negative balance", i)
		}
		accounts[a.Name] = true
	}
	if !accounts[s.Owner] {
		return fmt.Errorf("owner %q is not a declared account", s.Owner)
	}
	if s.Token != nil {
		if !accounts[s.Token.Holder] {
			return fmt.Errorf("token holder %q is not a declared account", s.Token.Holder)
		}
		if s.Token.Supply.Nil() || s.Token.Supply.Sign() < 0 {
			return fmt.Errorf("token supply must be non-negative")
		}
	}

	holder := func(name string) bool {
		return accounts[name] || name == LedgerName || name == TokenName && s.Variant == "token"
	}
	labels := map[string]bool{}
	for i, step := range s.Steps {
		if step.From != "" && !accounts[step.From] {
			return fmt.Errorf("steps[%d]: from %q is not a declared account", i, step.From)
		}
		if step.Fail != "" {
			if _, ok := parseFailure(step.Fail); !ok {
				return fmt.Errorf("steps[%d]: unknown failure %q", i, step.Fail)
			}
		}

		switch step.Action {
		case ActionCreate:
			if step.Terms == nil {
				return fmt.Errorf("steps[%d]: terms are required for create", i)
			}
			if !accounts[step.Terms.Beneficiary] {
				return fmt.Errorf("steps[%d]: beneficiary %q is not a declared account", i, step.Terms.Beneficiary)
			}
			if step.As != "" {
				if labels[step.As] {
					return fmt.Errorf("steps[%d]: duplicate schedule label %q", i, step.As)
				}
				if step.Fail == "" {
					labels[step.As] = true
				}
			}
		case ActionRelease, ActionRevoke:
			if !labels[step.Schedule] {
				return fmt.Errorf("steps[%d]: unknown schedule %q", i, step.Schedule)
			}
			if step.Action == ActionRelease && step.Amount == nil {
				return fmt.Errorf("steps[%d]: amount is required for release", i)
			}
		case ActionWithdraw, ActionFund:
			if step.Amount == nil {
				return fmt.Errorf("steps[%d]: amount is required for %s", i, step.Action)
			}
		case ActionAdvance:
			if (step.By == "") == (step.To == nil) {
				return fmt.Errorf("steps[%d]: advance needs exactly one of by or to", i)
			}
			if step.By != "" {
				if _, err := time.ParseDuration(step.By); err != nil {
					return fmt.Errorf("steps[%d]: invalid duration: %w", i, err)
				}
			}
		case ActionExpect:
			if step.Expect == nil {
				return fmt.Errorf("steps[%d]: expect is required for expect steps", i)
			}
			for name := range step.Expect.Balances {
				if !holder(name) {
					return fmt.Errorf("steps[%d]: unknown balance holder %q", i, name)
				}
			}
			for label := range step.Expect.Releasable {
				if !labels[label] {
					return fmt.Errorf("steps[%d]: unknown schedule %q", i, label)
				}
			}
			for label := range step.Expect.Released {
				if !labels[label] {
					return fmt.Errorf("steps[%d]: unknown schedule %q", i, label)
				}
			}
			for label := range step.Expect.Revoked {
				if !labels[label] {
					return fmt.Errorf("steps[%d]: unknown schedule %q", i, label)
				}
			}
		case "":
			return fmt.Errorf("steps[%d]: action is required", i)
		default:
			return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
		}
	}
	return nil
}

// parseFailure resolves a failure name to an exit code. Ledger names are accepted, as are
// raw exit code numbers.
func parseFailure(name string) (exitcode.ExitCode, bool) {
	if code, ok := vesting.ParseExitCodeName(name); ok {
		return code, true
	}
	if n, err := strconv.ParseInt(name, 10, 64); err == nil && n > 0 {
		return exitcode.ExitCode(n), true
	}
	return 0, false
}
