package domain

import (
	"strings"
	"testing"
)

func TestNewJoinCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		code := NewJoinCode()
		if len(code) != CodeLength {
			t.Fatalf("expected %d chars, got %q", CodeLength, code)
		}
		for _, c := range code {
			if !strings.ContainsRune(codeAlphabet, c) {
				t.Fatalf("character %q outside alphabet in %q", c, code)
			}
		}
		seen[code] = true
	}
	// 31^6 codes; a thousand draws colliding down to a handful would mean
	// the generator is broken.
	if len(seen) < 990 {
		t.Fatalf("suspiciously many collisions: %d distinct of 1000", len(seen))
	}
}

func TestNewJoinCodeDrawsEveryGlyph(t *testing.T) {
	counts := make(map[byte]int, len(codeAlphabet))
	const draws = 5000
	for i := 0; i < draws; i++ {
		for _, c := range []byte(NewJoinCode()) {
			counts[c]++
		}
	}
	// 30000 characters over a 31-glyph alphabet averages ~968 per glyph;
	// anything under half of that points at a skewed sampler.
	expect := draws * CodeLength / len(codeAlphabet)
	for i := 0; i < len(codeAlphabet); i++ {
		c := codeAlphabet[i]
		if counts[c] < expect/2 {
			t.Fatalf("glyph %q drawn %d times, expected around %d", c, counts[c], expect)
		}
	}
}

func TestCodeAlphabetOmitsAmbiguousGlyphs(t *testing.T) {
	for _, c := range "0O1IL" {
		if strings.ContainsRune(codeAlphabet, c) {
			t.Fatalf("ambiguous character %q in alphabet", c)
		}
	}
}
