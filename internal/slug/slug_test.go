package slug

import (
	"testing"
	"time"
)

// TestGenerate exercises the slug generator with typical titles, special
// characters and edge cases.
func TestGenerate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple two words", input: "Hello World", want: "hello-world"},
		{name: "title with year", input: "Battle of Plassey 1757", want: "battle-of-plassey-1757"},
		{name: "punctuation marks", input: "Who was Chanakya? A Primer!", want: "who-was-chanakya-a-primer"},
		{name: "ampersand", input: "Art & Architecture", want: "art-architecture"},
		{name: "existing hyphens", input: "Indo-Greek  kingdoms", want: "indo-greek-kingdoms"},
		{name: "repeated hyphens", input: "Vijayanagara -- the city", want: "vijayanagara-the-city"},
		{name: "tabs and newlines", input: "Maurya\tEmpire\nRise", want: "maurya-empire-rise"},
		{name: "leading and trailing junk", input: "  --Hampi--  ", want: "hampi"},
		{name: "non-latin stripped", input: "Kalinga कलिंग War", want: "kalinga-war"},
		{name: "only symbols", input: "!!!", want: ""},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Generate(tt.input); got != tt.want {
				t.Errorf("Generate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestUnique(t *testing.T) {
	ts := time.UnixMilli(1_767_225_600_042)

	if got, want := Unique("The Cholas at Sea", ts), "the-cholas-at-sea-600042"; got != want {
		t.Errorf("Unique() = %q, want %q", got, want)
	}
	if got, want := Unique("???", ts), "600042"; got != want {
		t.Errorf("Unique() with empty base = %q, want %q", got, want)
	}

	small := time.UnixMilli(7)
	if got, want := Unique("Hampi", small), "hampi-000007"; got != want {
		t.Errorf("Unique() = %q, want zero-padded %q", got, want)
	}
}
