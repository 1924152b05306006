package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/loyalty/internal/ledger"
)

// Scenario is a ledger test scenario.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Setup steps establish state. A failing setup step aborts the run.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow steps are traced and checked against their expect clauses.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final ledger.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step performs exactly one of enroll, set_status or award.
type Step struct {
	Enroll    *EnrollStep          `yaml:"enroll,omitempty"`
	SetStatus *StatusStep          `yaml:"set_status,omitempty"`
	Award     *ledger.AwardRequest `yaml:"award,omitempty"`

	// Expect checks an award's outcome. Only valid on award steps.
	Expect *Expect `yaml:"expect,omitempty"`
}

// EnrollStep enrolls a customer in a program.
type EnrollStep struct {
	Customer string `yaml:"customer"`
	Business string `yaml:"business"`
	Program  string `yaml:"program"`
}

// StatusStep activates or deactivates an enrollment.
type StatusStep struct {
	Customer string `yaml:"customer"`
	Program  string `yaml:"program"`
	Status   string `yaml:"status"`
}

// Expect describes the expected outcome of an award step. Unset fields are
// not checked.
type Expect struct {
	// Error is the expected award error code, e.g. "InvalidAmount".
	// When set the award must fail with that code.
	Error string `yaml:"error,omitempty"`

	Balance   *int64 `yaml:"balance,omitempty"`
	Duplicate *bool  `yaml:"duplicate,omitempty"`
	Card      string `yaml:"card,omitempty"`
}

// Assertion validates the final ledger.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Customer string `yaml:"customer,omitempty"`
	Program  string `yaml:"program,omitempty"`

	// Points is the expected balance (balance).
	Points *int64 `yaml:"points,omitempty"`

	// Count is the expected number of cards, activities or events.
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertBalance       = "balance"
	AssertNoCard        = "no_card"
	AssertCardCount     = "card_count"
	AssertActivityCount = "activity_count"
	AssertEventCount    = "event_count"
	AssertAuditClean    = "audit_clean"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
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

	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return &scenario, nil
}

// Validate checks required fields and step shapes.
func (s *Scenario) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("missing required field: name"))
	}
	if s.Description == "" {
		errs = append(errs, errors.New("missing required field: description"))
	}
	if len(s.Flow) == 0 {
		errs = append(errs, errors.New("missing required field: flow (must have at least one step)"))
	}

	for i, step := range s.Setup {
		if err := step.validate(); err != nil {
			errs = append(errs, fmt.Errorf("setup[%d]: %w", i, err))
		}
		if step.Expect != nil {
			errs = append(errs, fmt.Errorf("setup[%d]: expect is not allowed in setup", i))
		}
	}
	for i, step := range s.Flow {
		if err := step.validate(); err != nil {
			errs = append(errs, fmt.Errorf("flow[%d]: %w", i, err))
		}
	}
	for i, a := range s.Assertions {
		if err := a.validate(); err != nil {
			errs = append(errs, fmt.Errorf("assertions[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (st Step) validate() error {
	n := 0
	if st.Enroll != nil {
		n++
	}
	if st.SetStatus != nil {
		n++
	}
	if st.Award != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("step must have exactly one of enroll, set_status, award (has %d)", n)
	}
	if st.Expect != nil && st.Award == nil {
		return errors.New("expect is only valid on award steps")
	}
	if st.SetStatus != nil {
		status := ledger.EnrollmentStatus(st.SetStatus.Status)
		if status != ledger.EnrollmentActive && status != ledger.EnrollmentInactive {
			return fmt.Errorf("set_status: invalid status %q", st.SetStatus.Status)
		}
	}
	return nil
}

func (a Assertion) validate() error {
	needsPair := func() error {
		if a.Customer == "" || a.Program == "" {
			return fmt.Errorf("%s requires customer and program", a.Type)
		}
		return nil
	}
	needsCount := func() error {
		if a.Count == nil {
			return fmt.Errorf("%s requires count", a.Type)
		}
		return nil
	}

	switch a.Type {
	case AssertBalance:
		if a.Points == nil {
			return errors.New("balance requires points")
		}
		return needsPair()
	case AssertNoCard:
		return needsPair()
	case AssertCardCount, AssertActivityCount:
		if err := needsPair(); err != nil {
			return err
		}
		return needsCount()
	case AssertEventCount:
		return needsCount()
	case AssertAuditClean:
		return nil
	case "":
		return errors.New("missing assertion type")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}
