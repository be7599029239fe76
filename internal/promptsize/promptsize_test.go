package promptsize

import (
	"strings"
	"testing"

	"github.com/jungjaehoon-lifegamez/mama-sub/internal/content"
)

func layer(name string, priority, chars int) content.PromptLayer {
	return content.PromptLayer{Name: name, Priority: priority, Content: strings.Repeat("x", chars)}
}

func TestCheckBoundaries(t *testing.T) {
	at := func(n int) CheckResult { return Check([]content.PromptLayer{layer("a", 1, n)}) }

	if at(WarnChars).Warn {
		t.Fatalf("exactly at warn threshold should not warn")
	}
	if !at(WarnChars + 1).Warn {
		t.Fatalf("one over warn threshold should warn")
	}
	if at(TruncateChars).Truncate {
		t.Fatalf("exactly at truncate threshold should not trip truncate")
	}
	if !at(TruncateChars + 1).Truncate {
		t.Fatalf("one over truncate threshold should trip truncate")
	}
	if at(HardChars).Hard {
		t.Fatalf("exactly at hard threshold should not trip hard")
	}
	if !at(HardChars + 1).Hard {
		t.Fatalf("one over hard threshold should trip hard")
	}
}

func TestEnforceUnderLimitUnchanged(t *testing.T) {
	layers := []content.PromptLayer{layer("a", 1, 100), layer("b", 3, 100)}
	res := Enforce(layers, 1000)
	if res.TotalChars != 200 {
		t.Fatalf("expected unchanged total, got %d", res.TotalChars)
	}
	if len(res.Touched) != 0 {
		t.Fatalf("expected no touched layers under limit")
	}
}

func TestEnforceNeverTouchesPriorityOne(t *testing.T) {
	layers := []content.PromptLayer{
		layer("base", 1, 100),
		layer("expendable", 5, 1000),
	}
	res := Enforce(layers, 150)

	for _, l := range res.Layers {
		if l.Name == "base" && l.Content != strings.Repeat("x", 100) {
			t.Fatalf("priority-1 layer must be byte-identical to input, got len %d", len(l.Content))
		}
	}
}

func TestEnforcePrefersHigherPriorityThenLongerFirst(t *testing.T) {
	layers := []content.PromptLayer{
		layer("keep", 1, 50),
		layer("low-pri-short", 2, 50),
		layer("high-pri-long", 6, 500),
	}
	res := Enforce(layers, 100)

	var touchedHighPriLong bool
	for _, name := range res.Touched {
		if name == "high-pri-long" {
			touchedHighPriLong = true
		}
	}
	if !touchedHighPriLong {
		t.Fatalf("expected the highest-priority-number (most expendable) layer to be touched first, touched=%v", res.Touched)
	}
}

func TestEnforceZeroesOutThenDrops(t *testing.T) {
	layers := []content.PromptLayer{
		layer("keep", 1, 10),
		layer("drop-me", 4, 20),
	}
	res := Enforce(layers, 15)

	for _, l := range res.Layers {
		if l.Name == "drop-me" {
			t.Fatalf("expected zero-length layer to be removed from output")
		}
	}
}

func TestEnforceAppendsTruncationMarker(t *testing.T) {
	layers := []content.PromptLayer{
		layer("keep", 1, 10),
		layer("big", 5, 1000),
	}
	res := Enforce(layers, 100)

	var found bool
	for _, l := range res.Layers {
		if l.Name == "big" {
			found = true
			if !strings.Contains(l.Content, "truncated") {
				t.Fatalf("expected truncation marker in shrunk layer content")
			}
		}
	}
	if !found {
		t.Fatalf("expected big layer to remain (partially truncated) in output")
	}
}

func TestEnforceDeterministic(t *testing.T) {
	layers := []content.PromptLayer{
		layer("a", 1, 10),
		layer("b", 3, 200),
		layer("c", 4, 200),
	}
	r1 := Enforce(layers, 50)
	r2 := Enforce(layers, 50)
	if r1.TotalChars != r2.TotalChars || len(r1.Layers) != len(r2.Layers) {
		t.Fatalf("expected deterministic output across repeated calls")
	}
}
