package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Verdict parsing errors
var (
	ErrNoVerdict      = errors.New("no verdict JSON found in reviewer output")
	ErrInvalidVerdict = errors.New("invalid verdict JSON")
)

// Finding is a single issue raised by the reviewer.
type Finding struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	File        string `json:"file,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// UnmarshalJSON accepts either a structured finding object or a bare
// string; reviewers are not reliable about which they produce.
func (f *Finding) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.Description = s
		return nil
	}

	type alias Finding
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = Finding(a)
	return nil
}

// String renders the finding for inclusion in a correction prompt.
func (f Finding) String() string {
	var sb strings.Builder
	if f.Severity != "" {
		sb.WriteString("[")
		sb.WriteString(f.Severity)
		sb.WriteString("] ")
	}
	if f.Title != "" {
		sb.WriteString(f.Title)
		if f.Description != "" {
			sb.WriteString(": ")
		}
	}
	sb.WriteString(f.Description)
	if f.File != "" {
		sb.WriteString(" (")
		sb.WriteString(f.File)
		sb.WriteString(")")
	}
	return sb.String()
}

// Verdict is the structured judgment returned by a review sub-agent.
type Verdict struct {
	Findings               []Finding `json:"findings"`
	OverallCorrectness     string    `json:"overall_correctness"`
	OverallExplanation     string    `json:"overall_explanation"`
	OverallConfidenceScore float64   `json:"overall_confidence_score"`
}

// negations are checked before the positive markers so "not correct"
// does not read as approval.
var negations = []string{
	"not correct", "incorrect", "not approved", "unapproved",
	"fail", "reject", "wrong", "broken",
}

var affirmations = []string{"correct", "approve", "pass", "lgtm", "looks good"}

// Approves reports whether the verdict accepts the work: no findings and
// a correctness string that reads as approval. An empty correctness
// string is not approval.
func (v Verdict) Approves() bool {
	if len(v.Findings) > 0 {
		return false
	}
	s := strings.ToLower(v.OverallCorrectness)
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, neg := range negations {
		if strings.Contains(s, neg) {
			return false
		}
	}
	for _, aff := range affirmations {
		if strings.Contains(s, aff) {
			return true
		}
	}
	return false
}

// fencedJSONRegex matches ```json ... ``` (and bare ```) fenced blocks.
var fencedJSONRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParseVerdict extracts a Verdict from raw reviewer output. The decoder
// is tolerant about placement: it tries the whole output, then each
// fenced code block, then every balanced top-level JSON object found by
// brace scanning. Any failure is an error; callers must map errors to
// non-approval, never to acceptance.
func ParseVerdict(output string) (Verdict, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return Verdict{}, ErrNoVerdict
	}

	if v, ok := tryDecodeVerdict(trimmed); ok {
		return v, nil
	}

	for _, match := range fencedJSONRegex.FindAllStringSubmatch(trimmed, -1) {
		if v, ok := tryDecodeVerdict(match[1]); ok {
			return v, nil
		}
	}

	found := false
	for _, candidate := range balancedObjects(trimmed) {
		found = true
		if v, ok := tryDecodeVerdict(candidate); ok {
			return v, nil
		}
	}
	if found {
		return Verdict{}, ErrInvalidVerdict
	}
	return Verdict{}, ErrNoVerdict
}

// tryDecodeVerdict attempts a strict decode and sanity-checks the result.
// An object with none of the verdict keys decodes "successfully" to a
// zero value; reject it so unrelated JSON is not mistaken for a verdict.
func tryDecodeVerdict(s string) (Verdict, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &probe); err != nil {
		return Verdict{}, false
	}
	if _, hasCorrectness := probe["overall_correctness"]; !hasCorrectness {
		if _, hasFindings := probe["findings"]; !hasFindings {
			return Verdict{}, false
		}
	}

	var v Verdict
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return Verdict{}, false
	}
	if v.OverallConfidenceScore < 0 {
		v.OverallConfidenceScore = 0
	}
	if v.OverallConfidenceScore > 1 {
		v.OverallConfidenceScore = 1
	}
	return v, true
}

// balancedObjects returns every top-level {...} span in the content,
// found by brace counting.
func balancedObjects(content string) []string {
	var objects []string
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i, ch := range content {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				objects = append(objects, content[start:i+1])
				start = -1
			}
		}
	}
	return objects
}

// CorrectionPrompt renders a rejected verdict into the correction input
// fed to the next implementation pass.
func (v Verdict) CorrectionPrompt() string {
	var sb strings.Builder
	sb.WriteString("The previous implementation pass was rejected by review.\n")
	if v.OverallExplanation != "" {
		sb.WriteString("\nReviewer explanation:\n")
		sb.WriteString(v.OverallExplanation)
		sb.WriteString("\n")
	}
	if len(v.Findings) > 0 {
		sb.WriteString("\nFindings to address:\n")
		for _, f := range v.Findings {
			sb.WriteString("- ")
			sb.WriteString(f.String())
			sb.WriteString("\n")
		}
	}
	sb.WriteString(fmt.Sprintf("\nVerdict: %s\n", v.OverallCorrectness))
	return sb.String()
}
