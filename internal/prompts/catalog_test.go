package prompts

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
)

// --- Catalog integrity ---

func TestAllCategoriesHavePrompts(t *testing.T) {
	for _, c := range Categories {
		if len(c.Prompts) == 0 {
			t.Errorf("Category %q has no prompts", c.Name)
		}
	}
}

func TestPromptTextsAreUnique(t *testing.T) {
	seen := make(map[string]string)
	for _, c := range Categories {
		for _, p := range c.Prompts {
			key := strings.ToLower(p.Text)
			if prev, ok := seen[key]; ok {
				t.Errorf("Prompt %q appears in both %q and %q", p.Text, prev, c.Name)
			}
			seen[key] = c.Name
		}
	}
}

func TestColorsAreHex(t *testing.T) {
	for _, c := range Categories {
		for _, p := range c.Prompts {
			if len(p.Color) != 7 || p.Color[0] != '#' {
				t.Errorf("Prompt %q has bad colour %q", p.Text, p.Color)
			}
		}
	}
}

func TestCatalogSize(t *testing.T) {
	if got := len(Categories); got != 5 {
		t.Errorf("Expected 5 categories, got %d", got)
	}
	if got := len(Texts()); got != 49 {
		t.Errorf("Expected 49 prompts, got %d", got)
	}
}

// --- IsKnown ---

func TestIsKnown(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Techno", true},
		{"bossa nova", true}, // case insensitive
		{"Drum and Bass", true},
		{"Polka", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsKnown(tt.text); got != tt.want {
			t.Errorf("IsKnown(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

// --- BuildInitial ---

func TestBuildInitialIdsFollowCatalogOrder(t *testing.T) {
	m := BuildInitial(rand.New(rand.NewPCG(1, 2)))
	texts := Texts()
	if len(m) != len(texts) {
		t.Fatalf("BuildInitial returned %d prompts, want %d", len(m), len(texts))
	}
	for i, text := range texts {
		id := fmt.Sprintf("prompt-%d", i)
		p, ok := m[id]
		if !ok {
			t.Fatalf("Missing %s", id)
		}
		if p.Text != text || p.CC != i || p.ID != id {
			t.Errorf("%s = %+v, want text %q cc %d", id, p, text, i)
		}
		if p.Category == "" || p.Color == "" {
			t.Errorf("%s missing category or colour: %+v", id, p)
		}
	}
}

func TestBuildInitialActivatesThree(t *testing.T) {
	for seed := uint64(0); seed < 20; seed++ {
		m := BuildInitial(rand.New(rand.NewPCG(seed, seed)))
		on := 0
		for _, p := range m {
			switch p.Weight {
			case 1:
				on++
			case 0:
			default:
				t.Fatalf("seed %d: unexpected weight %v on %q", seed, p.Weight, p.Text)
			}
		}
		if on != InitialActive {
			t.Errorf("seed %d: %d prompts on, want %d", seed, on, InitialActive)
		}
	}
}

func TestBuildInitialDeterministic(t *testing.T) {
	a := BuildInitial(rand.New(rand.NewPCG(7, 7)))
	b := BuildInitial(rand.New(rand.NewPCG(7, 7)))
	for id, p := range a {
		if b[id] != p {
			t.Errorf("BuildInitial not deterministic for %s: %+v != %+v", id, p, b[id])
		}
	}
}
