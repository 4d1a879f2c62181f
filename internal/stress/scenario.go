package stress

import (
	"grimm.is/warden/internal/errors"
)

// Scenario is a predefined generation profile.
type Scenario string

const (
	// ScenarioMinimal is 10 rules with basic coverage of all variants.
	ScenarioMinimal Scenario = "minimal"
	// ScenarioTypical is 50 rules, a realistic home or small-office setup.
	ScenarioTypical Scenario = "typical"
	// ScenarioEnterprise is 200 rules with many tags and interfaces plus
	// a light sprinkle of edge cases.
	ScenarioEnterprise Scenario = "enterprise"
	// ScenarioChaos is 1000 rules with heavy edge cases and semantic
	// mismatches.
	ScenarioChaos Scenario = "chaos"
)

// ParseScenario resolves a scenario name from the command line.
func ParseScenario(s string) (Scenario, error) {
	switch Scenario(s) {
	case ScenarioMinimal, ScenarioTypical, ScenarioEnterprise, ScenarioChaos:
		return Scenario(s), nil
	}
	return "", errors.Errorf(errors.KindValidation,
		"unknown scenario %q (minimal, typical, enterprise, chaos)", s)
}

// Count is the number of rules the scenario generates.
func (s Scenario) Count() int {
	switch s {
	case ScenarioMinimal:
		return 10
	case ScenarioTypical:
		return 50
	case ScenarioEnterprise:
		return 200
	case ScenarioChaos:
		return 1000
	}
	return 100
}

// EdgeCases reports whether the scenario mixes in edge-case rules.
func (s Scenario) EdgeCases() bool {
	return s == ScenarioEnterprise || s == ScenarioChaos
}

// EdgeCaseProbability is the chance any given random-phase rule is an
// edge case.
func (s Scenario) EdgeCaseProbability() float64 {
	switch s {
	case ScenarioEnterprise:
		return 0.10
	case ScenarioChaos:
		return 0.40
	}
	return 0
}
