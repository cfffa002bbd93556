package task

import "testing"

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"bare number", "1", "#1", true},
		{"single hash", "#1", "#1", true},
		{"double hash", "##1", "#1", true},
		{"many hashes", "####42", "#42", true},
		{"alpha id", "setup", "#setup", true},
		{"surrounding whitespace", "  #3  ", "#3", true},
		{"whitespace between hash and id", "# 7", "#7", true},
		{"empty", "", "", false},
		{"whitespace only", "   ", "", false},
		{"hashes only", "###", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeID(tt.raw)
			if got != tt.want || ok != tt.ok {
				t.Errorf("NormalizeID(%q) = (%q, %v), want (%q, %v)",
					tt.raw, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestNormalizeBlockers(t *testing.T) {
	got := normalizeBlockers([]string{"1", "#1", "##2", "", "  ", "#2", "3"})
	want := []string{"#1", "#2", "#3"}
	if len(got) != len(want) {
		t.Fatalf("normalizeBlockers returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("normalizeBlockers[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNormalizeBlockersEmpty(t *testing.T) {
	if got := normalizeBlockers(nil); got != nil {
		t.Errorf("normalizeBlockers(nil) = %v, want nil", got)
	}
	if got := normalizeBlockers([]string{"", "##"}); got != nil {
		t.Errorf("normalizeBlockers of unusable ids = %v, want nil", got)
	}
}
