package rules

import "testing"

func TestParseValidHeaderSeparatesBody(t *testing.T) {
	raw := "---\n{\"applies_to\": {\"channel\": [\"discord\"]}}\n---\nThe actual body text.\n"
	frag := Parse(raw)
	if frag.Header == nil {
		t.Fatalf("expected header to be parsed")
	}
	if frag.Header.AppliesTo == nil || len(frag.Header.AppliesTo.Channel) != 1 || frag.Header.AppliesTo.Channel[0] != "discord" {
		t.Fatalf("expected applies_to.channel=[discord], got %+v", frag.Header.AppliesTo)
	}
	if frag.Body != "The actual body text.\n" {
		t.Fatalf("unexpected body: %q", frag.Body)
	}
}

func TestParseNoHeaderReturnsFullTextAsBody(t *testing.T) {
	raw := "Just plain text, no header at all."
	frag := Parse(raw)
	if frag.Header != nil {
		t.Fatalf("expected no header")
	}
	if frag.Body != raw {
		t.Fatalf("expected body to equal full input")
	}
}

func TestParseMalformedHeaderTreatsAsUniversal(t *testing.T) {
	raw := "---\nnot json and no closing delimiter"
	frag := Parse(raw)
	if frag.Header != nil {
		t.Fatalf("expected malformed header to be reported as nil (universal)")
	}
	if frag.Body != raw {
		t.Fatalf("expected full original text as body on malformed header")
	}
	var appliesTo *AppliesTo
	if frag.Header != nil {
		appliesTo = frag.Header.AppliesTo
	}
	if !MatchesContext(appliesTo, Context{}) {
		t.Fatalf("expected malformed/universal header to match any context")
	}
}

func TestMatchesContextNilAlwaysMatches(t *testing.T) {
	if !MatchesContext(nil, Context{Channel: "telegram"}) {
		t.Fatalf("nil applies_to should always match")
	}
}

func TestMatchesContextOrWithinFieldAndAcrossFields(t *testing.T) {
	at := &AppliesTo{
		Channel: []string{"discord", "telegram"},
		Tier:    []string{"pro"},
	}

	if !MatchesContext(at, Context{Channel: "telegram", Tier: "pro"}) {
		t.Fatalf("expected match: channel OR-matches telegram, tier matches pro")
	}
	if MatchesContext(at, Context{Channel: "telegram", Tier: "free"}) {
		t.Fatalf("expected no match: tier does not match despite channel matching")
	}
	if MatchesContext(at, Context{Channel: "slack", Tier: "pro"}) {
		t.Fatalf("expected no match: channel not in OR set")
	}
}

func TestMatchesContextKeywordsOrMatch(t *testing.T) {
	at := &AppliesTo{Keywords: []string{"code", "debug"}}
	if !MatchesContext(at, Context{ActiveKeywords: []string{"debug"}}) {
		t.Fatalf("expected keyword OR match")
	}
	if MatchesContext(at, Context{ActiveKeywords: []string{"chat"}}) {
		t.Fatalf("expected no match when no keyword overlaps")
	}
}
