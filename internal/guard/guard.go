// Package guard enforces the per-session budget: how many turns a chat may
// run and how many backend tokens it may spend.
package guard

import "fmt"

// Policy defines the limits for a chat session. A zero limit means unlimited.
type Policy struct {
	MaxTurns        int `json:"max_turns" yaml:"max_turns"`
	MaxPromptTokens int `json:"max_prompt_tokens" yaml:"max_prompt_tokens"`
	MaxOutputTokens int `json:"max_output_tokens" yaml:"max_output_tokens"`
}

// DefaultPolicy places no limit on a session.
var DefaultPolicy = Policy{}

// Violation represents a specific breach of policy.
type Violation struct {
	Rule    string
	Message string
	Fatal   bool
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Message)
}

// Guard enforces the policy.
type Guard struct {
	policy Policy
}

func New(p Policy) *Guard {
	return &Guard{policy: p}
}

// Policy returns the guard's current policy configuration.
func (g *Guard) Policy() Policy {
	return g.policy
}

// CheckBudget verifies that the usage so far is within limits.
func (g *Guard) CheckBudget(turns, promptTokens, outputTokens int) *Violation {
	if exceeded(turns, g.policy.MaxTurns) {
		return &Violation{Rule: "max_turns", Message: fmt.Sprintf("Turn limit of %d reached", g.policy.MaxTurns), Fatal: true}
	}
	if exceeded(promptTokens, g.policy.MaxPromptTokens) {
		return &Violation{Rule: "max_prompt_tokens", Message: "Prompt token budget exceeded", Fatal: true}
	}
	if exceeded(outputTokens, g.policy.MaxOutputTokens) {
		return &Violation{Rule: "max_output_tokens", Message: "Output token budget exceeded", Fatal: true}
	}
	return nil
}

func exceeded(used, limit int) bool {
	return limit > 0 && used >= limit
}
