package agent

import (
	"errors"
	"strings"
	"testing"
)

func TestParseVerdictPlainJSON(t *testing.T) {
	out := `{"findings": [], "overall_correctness": "patch is correct",
		"overall_explanation": "all good", "overall_confidence_score": 0.9}`

	v, err := ParseVerdict(out)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if len(v.Findings) != 0 {
		t.Errorf("findings = %v, want empty", v.Findings)
	}
	if v.OverallCorrectness != "patch is correct" {
		t.Errorf("overall_correctness = %q", v.OverallCorrectness)
	}
	if v.OverallConfidenceScore != 0.9 {
		t.Errorf("confidence = %v, want 0.9", v.OverallConfidenceScore)
	}
	if !v.Approves() {
		t.Error("verdict with no findings and correct wording must approve")
	}
}

func TestParseVerdictFencedBlock(t *testing.T) {
	out := "Here is my assessment:\n```json\n" +
		`{"findings": [{"title": "bug", "description": "off by one", "file": "a.go"}],` +
		`"overall_correctness": "incorrect"}` + "\n```\nThanks!"

	v, err := ParseVerdict(out)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if len(v.Findings) != 1 || v.Findings[0].Title != "bug" {
		t.Errorf("findings = %+v", v.Findings)
	}
	if v.Approves() {
		t.Error("verdict with findings must not approve")
	}
}

func TestParseVerdictEmbeddedInProse(t *testing.T) {
	out := `I looked carefully. {"findings": [], "overall_correctness": "looks good to me"} Done.`

	v, err := ParseVerdict(out)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if !v.Approves() {
		t.Error("embedded verdict should approve")
	}
}

func TestParseVerdictStringFindings(t *testing.T) {
	out := `{"findings": ["missing error check", "typo in comment"], "overall_correctness": "incorrect"}`

	v, err := ParseVerdict(out)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if len(v.Findings) != 2 {
		t.Fatalf("findings = %+v, want 2", v.Findings)
	}
	if v.Findings[0].Description != "missing error check" {
		t.Errorf("finding[0] = %+v", v.Findings[0])
	}
}

func TestParseVerdictFailures(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want error
	}{
		{"empty", "", ErrNoVerdict},
		{"prose only", "everything looks fine to me!", ErrNoVerdict},
		{"unrelated json", `{"temperature": 22}`, ErrInvalidVerdict},
		{"truncated json", `{"findings": [`, ErrNoVerdict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseVerdict(tt.out)
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseVerdict(%q) error = %v, want %v", tt.out, err, tt.want)
			}
		})
	}
}

func TestParseVerdictClampsConfidence(t *testing.T) {
	v, err := ParseVerdict(`{"findings": [], "overall_correctness": "correct", "overall_confidence_score": 3.5}`)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v.OverallConfidenceScore != 1 {
		t.Errorf("confidence = %v, want clamped to 1", v.OverallConfidenceScore)
	}
}

func TestApprovesWording(t *testing.T) {
	tests := []struct {
		correctness string
		want        bool
	}{
		{"patch is correct", true},
		{"correct", true},
		{"approved", true},
		{"LGTM", true},
		{"passes review", true},
		{"not correct", false},
		{"incorrect", false},
		{"rejected", false},
		{"the change is wrong", false},
		{"", false},
		{"   ", false},
		{"unclear", false},
	}
	for _, tt := range tests {
		t.Run(tt.correctness, func(t *testing.T) {
			v := Verdict{OverallCorrectness: tt.correctness}
			if got := v.Approves(); got != tt.want {
				t.Errorf("Approves(%q) = %v, want %v", tt.correctness, got, tt.want)
			}
		})
	}
}

func TestApprovesRequiresEmptyFindings(t *testing.T) {
	v := Verdict{
		Findings:           []Finding{{Description: "minor nit"}},
		OverallCorrectness: "correct",
	}
	if v.Approves() {
		t.Error("verdict with findings approved despite correct wording")
	}
}

func TestCorrectionPromptIncludesFindings(t *testing.T) {
	v := Verdict{
		Findings: []Finding{
			{Title: "bug", Description: "nil deref", File: "x.go", Severity: "major"},
		},
		OverallCorrectness: "incorrect",
		OverallExplanation: "crashes on empty input",
	}
	prompt := v.CorrectionPrompt()
	for _, want := range []string{"nil deref", "x.go", "crashes on empty input", "incorrect"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("correction prompt missing %q:\n%s", want, prompt)
		}
	}
}
