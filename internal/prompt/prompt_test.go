package prompt

import (
	"testing"
)

func TestComposeDropsEmptyLayers(t *testing.T) {
	in := Input{
		LayerSystemIdentity: "you are an assistant",
		LayerActiveRules:    "",
		LayerUserMessage:    "hello",
	}
	result := Compose(in, 999999)
	if len(result.Layers) != 2 {
		t.Fatalf("expected 2 non-empty layers, got %d", len(result.Layers))
	}
}

func TestComposePreservesPriorityOrder(t *testing.T) {
	in := Input{
		LayerUserMessage:    "hello",
		LayerSystemIdentity: "identity",
		LayerRecentHistory:  "history",
	}
	result := Compose(in, 999999)
	if result.Layers[0].Name != LayerSystemIdentity {
		t.Fatalf("expected system identity first, got %s", result.Layers[0].Name)
	}
	if result.Layers[len(result.Layers)-1].Name != LayerUserMessage {
		t.Fatalf("expected user message last, got %s", result.Layers[len(result.Layers)-1].Name)
	}
}

func TestRenderJoinsLayersWithBlankLine(t *testing.T) {
	in := Input{LayerSystemIdentity: "A", LayerUserMessage: "B"}
	result := Compose(in, 999999)
	rendered := Render(result)
	if rendered != "A\n\nB" {
		t.Fatalf("unexpected render: %q", rendered)
	}
}

func TestDetectFindsMultilingualVariants(t *testing.T) {
	d := NewDetector(DefaultKeywords)

	cases := []string{"please remember this", "기억해 주세요", "请记住这个"}
	for _, text := range cases {
		found := d.Detect(text)
		if !contains(found, "remember") {
			t.Fatalf("expected %q to trigger remember, got %v", text, found)
		}
	}
}

func TestDetectIgnoresKeywordsInsideCodeFences(t *testing.T) {
	d := NewDetector(DefaultKeywords)
	text := "no request here\n```\nremember this comment in code\n```"
	found := d.Detect(text)
	if contains(found, "remember") {
		t.Fatalf("expected code-fenced text to be excluded from scanning")
	}
}

func TestDetectWordBoundaryAvoidsSubstringFalsePositive(t *testing.T) {
	d := NewDetector(DefaultKeywords)
	found := d.Detect("I misremembered the name")
	if contains(found, "remember") {
		t.Fatalf("expected word-boundary match to avoid substring false positive")
	}
}

func TestOnceGateFiresOnlyOncePerKey(t *testing.T) {
	g := NewOnceGate()
	if !g.Fire("discord:1:summary") {
		t.Fatalf("expected first fire to succeed")
	}
	if g.Fire("discord:1:summary") {
		t.Fatalf("expected second fire on same key to be suppressed")
	}
	g.Reset("discord:1:summary")
	if !g.Fire("discord:1:summary") {
		t.Fatalf("expected fire to succeed again after reset")
	}
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
