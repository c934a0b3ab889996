package validation

import (
	"strings"
	"testing"
)

func TestNewValidator_RejectsBadRules(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"empty name", Rule{Expression: "true"}},
		{"empty expression", Rule{Name: "r"}},
		{"syntax error", Rule{Name: "r", Expression: "answer >"}},
		{"non-boolean", Rule{Name: "r", Expression: "len(answer)"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewValidator([]Rule{tc.rule}); err == nil {
				t.Error("NewValidator accepted an invalid rule")
			}
		})
	}
}

func TestValidate_DefaultRules(t *testing.T) {
	v, err := NewValidator(DefaultRules())
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	tests := []struct {
		name       string
		ctx        TurnContext
		wantPassed bool
		wantIssue  string
	}{
		{
			name:       "clean evidence-backed answer",
			ctx:        TurnContext{Answer: "# Final Answer: healthy", ToolCalls: 3, Rounds: 4},
			wantPassed: true,
		},
		{
			name:       "empty answer",
			ctx:        TurnContext{Answer: "", ToolCalls: 1, Rounds: 2},
			wantPassed: false,
			wantIssue:  "empty",
		},
		{
			name:       "diagnosis without evidence",
			ctx:        TurnContext{Answer: "# Final Answer: looks fine", ToolCalls: 0, Rounds: 1},
			wantPassed: false,
			wantIssue:  "without consulting",
		},
		{
			name:       "budget exhausted",
			ctx:        TurnContext{Answer: "partial findings", ToolCalls: 5, Rounds: 15, BudgetExhausted: true},
			wantPassed: false,
			wantIssue:  "best-effort",
		},
		{
			name:       "plain answer without tools is fine",
			ctx:        TurnContext{Answer: "Please upload a kubeconfig first.", ToolCalls: 0, Rounds: 1},
			wantPassed: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := v.Validate(tc.ctx)
			if result.Passed != tc.wantPassed {
				t.Fatalf("Passed = %v, want %v (failures: %v)", result.Passed, tc.wantPassed, result.Failures())
			}
			if tc.wantIssue != "" {
				found := false
				for _, msg := range result.Failures() {
					if strings.Contains(msg, tc.wantIssue) {
						found = true
					}
				}
				if !found {
					t.Errorf("failures %v missing %q", result.Failures(), tc.wantIssue)
				}
			}
		})
	}
}

func TestValidate_CustomRuleMessage(t *testing.T) {
	v, err := NewValidator([]Rule{
		{Name: "short", Expression: "len(answer) < 10", Message: "answer too long"},
	})
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	result := v.Validate(TurnContext{Answer: "this is a long diagnostic answer"})
	if result.Passed {
		t.Fatal("Passed = true, want false")
	}
	if got := result.Failures(); len(got) != 1 || got[0] != "answer too long" {
		t.Errorf("Failures = %v", got)
	}
}
