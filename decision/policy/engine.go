// Package policy provides the risk and governance engine.
// Risk policies describe implementation hazards of a planting plan;
// budget policies gate the recommendation with a pass/warn/deny decision.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"urban-greenery/decision/climate"
	"urban-greenery/pkg/units"
)

// PolicyType defines the type of policy
type PolicyType string

const (
	PolicyTypeHeatMortality        PolicyType = "heat_mortality"
	PolicyTypeIrrigationDependency PolicyType = "irrigation_dependency"
	PolicyTypeProjectScale         PolicyType = "project_scale"
	PolicyTypeCostLimit            PolicyType = "cost_limit"
	PolicyTypeCarbonFloor          PolicyType = "carbon_floor"
	PolicyTypeResilienceFloor      PolicyType = "resilience_floor"
)

// Severity defines policy violation severity
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Decision is the policy evaluation outcome
type Decision string

const (
	DecisionPass Decision = "pass"
	DecisionWarn Decision = "warn"
	DecisionDeny Decision = "deny"
)

// LowRisk is reported when no risk policy fires.
const LowRisk = "Low risk - favorable conditions for implementation"

// Policy defines a rule. Risk policies ignore Severity.
type Policy struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description"`
	Type        PolicyType `json:"type" yaml:"type"`
	Severity    Severity   `json:"severity" yaml:"severity"`
	Threshold   float64    `json:"threshold" yaml:"threshold"`
	Message     string     `json:"message,omitempty" yaml:"message"`
	Enabled     bool       `json:"enabled" yaml:"-"`
}

// Violation represents a policy violation
type Violation struct {
	PolicyID   string `json:"policy_id"`
	PolicyName string `json:"policy_name"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
}

// Warning represents a policy warning
type Warning struct {
	PolicyID string `json:"policy_id"`
	Message  string `json:"message"`
}

// Input is what the policies are evaluated against.
type Input struct {
	HeatStress      climate.Level
	WaterStress     climate.Level
	TreesToPlant    int
	TotalCost       decimal.Decimal
	CarbonKgPerYear float64
	ResilienceScore float64
}

// Result contains the policy evaluation outcome. It carries no timestamp
// so identical inputs produce identical results.
type Result struct {
	Decision    Decision    `json:"decision"`
	Risks       []string    `json:"-"`
	Violations  []Violation `json:"violations"`
	Warnings    []Warning   `json:"warnings"`
	PoliciesRan int         `json:"policies_ran"`
}

// Engine evaluates policies in registration order.
type Engine struct {
	policies []Policy
}

// NewEngine creates an engine with the built-in risk policies.
func NewEngine() *Engine {
	return &Engine{policies: defaultPolicies()}
}

// AddPolicy adds a custom policy
func (e *Engine) AddPolicy(p Policy) {
	e.policies = append(e.policies, p)
}

// Policies returns a copy of the registered policies.
func (e *Engine) Policies() []Policy {
	return append([]Policy(nil), e.policies...)
}

// Evaluate runs all enabled policies against in.
func (e *Engine) Evaluate(ctx context.Context, in Input) (*Result, error) {
	result := &Result{
		Decision:   DecisionPass,
		Risks:      make([]string, 0, 3),
		Violations: make([]Violation, 0),
		Warnings:   make([]Warning, 0),
	}

	for _, p := range e.policies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !p.Enabled {
			continue
		}
		result.PoliciesRan++

		if isRisk(p.Type) {
			if msg, fired := evaluateRisk(p, in); fired {
				result.Risks = append(result.Risks, msg)
			}
			continue
		}

		violation, warning := evaluateBudget(p, in)
		if violation != nil {
			result.Violations = append(result.Violations, *violation)
			if p.Severity == SeverityError {
				result.Decision = DecisionDeny
			} else if result.Decision != DecisionDeny {
				result.Decision = DecisionWarn
			}
		}
		if warning != nil {
			result.Warnings = append(result.Warnings, *warning)
			if result.Decision == DecisionPass {
				result.Decision = DecisionWarn
			}
		}
	}

	if len(result.Risks) == 0 {
		result.Risks = append(result.Risks, LowRisk)
	}
	return result, nil
}

func isRisk(t PolicyType) bool {
	switch t {
	case PolicyTypeHeatMortality, PolicyTypeIrrigationDependency, PolicyTypeProjectScale:
		return true
	}
	return false
}

func evaluateRisk(p Policy, in Input) (string, bool) {
	var fired bool
	switch p.Type {
	case PolicyTypeHeatMortality:
		fired = in.HeatStress == climate.High
	case PolicyTypeIrrigationDependency:
		fired = in.WaterStress == climate.High
	case PolicyTypeProjectScale:
		fired = float64(in.TreesToPlant) > p.Threshold
	}
	if !fired {
		return "", false
	}
	if p.Message != "" {
		return p.Message, true
	}
	return p.Name, true
}

func evaluateBudget(p Policy, in Input) (*Violation, *Warning) {
	var msg string
	switch p.Type {
	case PolicyTypeCostLimit:
		limit := decimal.NewFromFloat(p.Threshold)
		if in.TotalCost.GreaterThan(limit) {
			msg = fmt.Sprintf("Estimated cost (%s) exceeds budget (%s)",
				units.FormatRupees(in.TotalCost), units.FormatRupees(limit))
		}

	case PolicyTypeCarbonFloor:
		if in.CarbonKgPerYear < p.Threshold {
			msg = fmt.Sprintf("Carbon sequestration (%.0f %s) below target (%.0f kg)", in.CarbonKgPerYear, units.UnitKgCO2PerYear, p.Threshold)
		}

	case PolicyTypeResilienceFloor:
		if in.ResilienceScore < p.Threshold {
			msg = fmt.Sprintf("Green Resilience Score (%.1f) below required (%.1f)", in.ResilienceScore, p.Threshold)
		}
	}
	if msg == "" {
		return nil, nil
	}

	if p.Severity == SeverityInfo {
		return nil, &Warning{PolicyID: p.ID, Message: msg}
	}
	return &Violation{
		PolicyID:   p.ID,
		PolicyName: p.Name,
		Message:    msg,
		Severity:   string(p.Severity),
	}, nil
}

func defaultPolicies() []Policy {
	return []Policy{
		{
			ID:      "risk-heat",
			Name:    "Sapling heat mortality",
			Type:    PolicyTypeHeatMortality,
			Message: "High sapling mortality due to extreme heat",
			Enabled: true,
		},
		{
			ID:      "risk-irrigation",
			Name:    "Irrigation dependency",
			Type:    PolicyTypeIrrigationDependency,
			Message: "Irrigation system dependency - water shortage risk",
			Enabled: true,
		},
		{
			ID:        "risk-scale",
			Name:      "Project scale",
			Type:      PolicyTypeProjectScale,
			Threshold: 500,
			Message:   "Large scale project - resource management challenges",
			Enabled:   true,
		},
	}
}

type policyFile struct {
	Policies []filePolicy `yaml:"policies"`
}

type filePolicy struct {
	Policy  `yaml:",inline"`
	Enabled *bool `yaml:"enabled"`
}

// LoadFile reads custom policies from YAML. Policies are enabled unless
// they say otherwise.
//
//	policies:
//	  - id: city-budget
//	    name: Municipal budget
//	    type: cost_limit
//	    severity: error
//	    threshold: 1000000
func LoadFile(path string) ([]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}

	out := make([]Policy, 0, len(f.Policies))
	for i, fp := range f.Policies {
		p := fp.Policy
		p.Enabled = fp.Enabled == nil || *fp.Enabled
		if p.ID == "" {
			p.ID = fmt.Sprintf("custom-%d", i+1)
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		if p.Severity == "" {
			p.Severity = SeverityWarning
		}
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("policy %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func validate(p Policy) error {
	switch p.Type {
	case PolicyTypeHeatMortality, PolicyTypeIrrigationDependency, PolicyTypeProjectScale,
		PolicyTypeCostLimit, PolicyTypeCarbonFloor, PolicyTypeResilienceFloor:
	default:
		return fmt.Errorf("unknown policy type %q", p.Type)
	}
	switch p.Severity {
	case SeverityError, SeverityWarning, SeverityInfo:
	default:
		return fmt.Errorf("unknown severity %q", p.Severity)
	}
	return nil
}
