package sessions

import (
	"testing"
	"time"

	"github.com/jungjaehoon-lifegamez/mama-sub/internal/content"
)

func TestGetSessionCreatesNewOnFirstUse(t *testing.T) {
	m := NewManager("")
	defer m.Close()

	id, isNew := m.GetSession("discord:1")
	if !isNew {
		t.Fatalf("expected is_new=true on first use")
	}
	if id == "" {
		t.Fatalf("expected non-empty session id")
	}
}

func TestGetSessionReturnsExistingWhenNotInUse(t *testing.T) {
	m := NewManager("")
	defer m.Close()

	id1, _ := m.GetSession("discord:1")
	m.ReleaseSession("discord:1")

	id2, isNew := m.GetSession("discord:1")
	if isNew {
		t.Fatalf("expected is_new=false for existing released session")
	}
	if id1 != id2 {
		t.Fatalf("expected same session id to be reused, got %s vs %s", id1, id2)
	}
}

func TestGetSessionVendsTempWhenInUse(t *testing.T) {
	m := NewManager("")
	defer m.Close()

	primaryID, _ := m.GetSession("discord:1") // leaves InUse=true, not released

	tempID, isNew := m.GetSession("discord:1")
	if !isNew {
		t.Fatalf("expected temp session to report is_new=true")
	}
	if tempID == primaryID {
		t.Fatalf("expected a distinct temp session id")
	}

	// Primary must remain untouched and still retrievable once released... but
	// a second concurrent GetSession must never overwrite it.
	m.mu.RLock()
	primary, ok := m.sessions["discord:1"]
	m.mu.RUnlock()
	if !ok || primary.SessionID != primaryID {
		t.Fatalf("primary session must not be overwritten by temp vend")
	}
}

func TestGetSessionContextThresholdForcesFreshSession(t *testing.T) {
	m := NewManager("")
	defer m.Close()

	id1, _ := m.GetSession("discord:1")
	m.ReleaseSession("discord:1")
	m.UpdateTokens("discord:1", ContextThresholdTokens)

	id2, isNew := m.GetSession("discord:1")
	if !isNew {
		t.Fatalf("expected fresh session once context threshold reached")
	}
	if id1 == id2 {
		t.Fatalf("expected a new session id after context-threshold reset")
	}
}

func TestUpdateTokensUsesMaxNotSum(t *testing.T) {
	m := NewManager("")
	defer m.Close()

	m.GetSession("discord:1")
	m.UpdateTokens("discord:1", 1000)
	m.UpdateTokens("discord:1", 400) // lower cumulative report must not decrease total
	m.UpdateTokens("discord:1", 1500)

	m.mu.RLock()
	total := m.sessions["discord:1"].TotalInputTokens
	m.mu.RUnlock()

	if total != 1500 {
		t.Fatalf("expected max() accounting to settle at 1500, got %d", total)
	}
}

func TestUpdateTokensWarningAtNinetyPercent(t *testing.T) {
	m := NewManager("")
	defer m.Close()

	m.GetSession("discord:1")
	warn := m.UpdateTokens("discord:1", int(0.9*ContextThresholdTokens)-1)
	if warn {
		t.Fatalf("expected no warning just under 90%% threshold")
	}
	warn = m.UpdateTokens("discord:1", int(0.9 * ContextThresholdTokens))
	if !warn {
		t.Fatalf("expected warning at exactly 90%% threshold")
	}
}

func TestResetSessionCreatesFreshID(t *testing.T) {
	m := NewManager("")
	defer m.Close()

	id1, _ := m.GetSession("discord:1")
	id2, isNew := m.ResetSession("discord:1")
	if !isNew {
		t.Fatalf("expected reset to report is_new=true")
	}
	if id1 == id2 {
		t.Fatalf("expected reset to mint a different session id")
	}
}

func TestLRUEvictionAtCapacity(t *testing.T) {
	m := NewManager("", WithMaxSessions(2))
	defer m.Close()

	m.GetSession("a")
	m.ReleaseSession("a")
	time.Sleep(2 * time.Millisecond)
	m.GetSession("b")
	m.ReleaseSession("b")
	time.Sleep(2 * time.Millisecond)
	m.GetSession("c") // should evict "a", the LRU primary

	m.mu.RLock()
	_, hasA := m.sessions["a"]
	_, hasC := m.sessions["c"]
	m.mu.RUnlock()

	if hasA {
		t.Fatalf("expected oldest primary session to be evicted at capacity")
	}
	if !hasC {
		t.Fatalf("expected newly created session to be present")
	}
}

func TestAddMessageAndGetHistory(t *testing.T) {
	m := NewManager("")
	defer m.Close()

	m.AddMessage("discord:1", content.Message{Role: content.RoleUser, Text: "hello"})
	m.AddMessage("discord:1", content.Message{Role: content.RoleAssistant, Text: "hi"})

	hist := m.GetHistory("discord:1")
	if len(hist) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(hist))
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	id, _ := m.GetSession("discord:1")
	m.AddMessage("discord:1", content.Message{Role: content.RoleUser, Text: "hi"})
	m.Close()

	m2 := NewManager(dir)
	defer m2.Close()
	hist := m2.GetHistory("discord:1")
	if len(hist) != 1 {
		t.Fatalf("expected history to survive reload, got %d entries", len(hist))
	}

	m2.mu.RLock()
	reloaded, ok := m2.sessions["discord:1"]
	m2.mu.RUnlock()
	if !ok || reloaded.SessionID != id {
		t.Fatalf("expected session id to survive reload")
	}
	if reloaded.InUse {
		t.Fatalf("expected in_use to be cleared on reload (crash recovery)")
	}
}
