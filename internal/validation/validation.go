// Package validation evaluates answer-quality rules against completed
// turns. Rules are expressions over the final answer and turn shape;
// failures are surfaced to the operator, never to the end user.
package validation

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Rule describes a declared answer-quality rule.
type Rule struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
	Message    string `yaml:"message"`
}

// TurnContext holds the variables available to rule expressions.
type TurnContext struct {
	Answer          string `expr:"answer"`
	ToolCalls       int    `expr:"tool_calls"`
	Rounds          int    `expr:"rounds"`
	BudgetExhausted bool   `expr:"budget_exhausted"`
}

// RuleResult is the outcome of evaluating a single rule.
type RuleResult struct {
	RuleName string `json:"rule_name"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result is the outcome of evaluating all rules against one turn.
type Result struct {
	Passed  bool         `json:"passed"`
	Results []RuleResult `json:"results"`
}

type compiledRule struct {
	def     Rule
	program *vm.Program
}

// Validator evaluates answer-quality rules. Rules are compiled once at
// construction so a malformed expression fails at startup, not
// mid-conversation.
type Validator struct {
	rules []compiledRule
}

// NewValidator compiles the given rules.
func NewValidator(rules []Rule) (*Validator, error) {
	v := &Validator{}
	for _, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("validation rule with empty name")
		}
		if r.Expression == "" {
			return nil, fmt.Errorf("validation rule %q has empty expression", r.Name)
		}
		program, err := expr.Compile(r.Expression, expr.Env(TurnContext{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("validation rule %q: %w", r.Name, err)
		}
		v.rules = append(v.rules, compiledRule{def: r, program: program})
	}
	return v, nil
}

// DefaultRules returns the built-in answer-quality rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "non_empty_answer",
			Expression: `len(answer) > 0`,
			Message:    "the final answer is empty",
		},
		{
			Name:       "evidence_backed",
			Expression: `tool_calls > 0 || !(answer contains "# Final Answer")`,
			Message:    "a diagnostic answer was produced without consulting the cluster",
		},
		{
			Name:       "completed_within_budget",
			Expression: `!budget_exhausted`,
			Message:    "the answer is a best-effort result after the iteration budget ran out",
		},
	}
}

// Validate runs all rules against the turn context.
func (v *Validator) Validate(ctx TurnContext) *Result {
	result := &Result{Passed: true}

	for _, rule := range v.rules {
		rr := RuleResult{RuleName: rule.def.Name}

		out, err := expr.Run(rule.program, ctx)
		if err != nil {
			rr.Error = err.Error()
			rr.Message = fmt.Sprintf("rule %q: evaluation failed: %v", rule.def.Name, err)
			result.Passed = false
			result.Results = append(result.Results, rr)
			continue
		}

		passed, _ := out.(bool)
		rr.Passed = passed
		if !passed {
			rr.Message = rule.def.Message
			if rr.Message == "" {
				rr.Message = fmt.Sprintf("rule %q failed", rule.def.Name)
			}
			result.Passed = false
		}
		result.Results = append(result.Results, rr)
	}

	return result
}

// Failures returns the messages of every failed rule.
func (r *Result) Failures() []string {
	var msgs []string
	for _, rr := range r.Results {
		if !rr.Passed {
			msgs = append(msgs, rr.Message)
		}
	}
	return msgs
}
