// Package sessions implements the session pool (C6): per-channel-key
// session identifier management with locking, token accounting,
// context-window auto-reset, idle eviction, and temp-session fallback
// under contention — plus the conversation history/metadata a session
// accumulates across turns, so the agent loop has one place to look up
// both "what id do I use" and "what has this channel said so far".
package sessions

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jungjaehoon-lifegamez/mama-sub/internal/content"
)

const (
	DefaultSessionTimeout  = 30 * time.Minute
	DefaultMaxSessions     = 100
	DefaultCleanupInterval = 5 * time.Minute
	ContextThresholdTokens = 160000
	ContextWarningFraction = 0.9
)

// Session is per-channel state: identifier, lock/eviction bookkeeping, and
// the conversation history/metadata accumulated over its lifetime.
type Session struct {
	Key          string           `json:"key"`
	SessionID    string           `json:"session_id"`
	Messages     []content.Message `json:"messages"`
	Summary      string           `json:"summary,omitempty"`
	Created      time.Time        `json:"created"`
	Updated      time.Time        `json:"updated"`
	LastActive   time.Time        `json:"last_active"`
	MessageCount int              `json:"message_count"`
	InUse        bool             `json:"in_use"`
	IsTemp       bool             `json:"is_temp"`

	TotalInputTokens int `json:"total_input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CompactionCount  int `json:"compaction_count,omitempty"`

	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`
	Channel  string `json:"channel,omitempty"`
	Label    string `json:"label,omitempty"`
}

// Manager is the session pool. All mutations go through its mutex; per
// spec.md's concurrency model nothing actually suspends inside it.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session // channel_key (and temp compound keys) -> Session
	storage  string

	sessionTimeout  time.Duration
	maxSessions     int
	cleanupInterval time.Duration

	stopCleanup chan struct{}
}

// Option configures a Manager at construction.
type Option func(*Manager)

func WithSessionTimeout(d time.Duration) Option  { return func(m *Manager) { m.sessionTimeout = d } }
func WithMaxSessions(n int) Option               { return func(m *Manager) { m.maxSessions = n } }
func WithCleanupInterval(d time.Duration) Option { return func(m *Manager) { m.cleanupInterval = d } }

// NewManager constructs a Manager rooted at storage (empty = in-memory
// only) and starts its periodic TTL cleanup goroutine.
func NewManager(storage string, opts ...Option) *Manager {
	m := &Manager{
		sessions:        make(map[string]*Session),
		storage:         storage,
		sessionTimeout:  DefaultSessionTimeout,
		maxSessions:      DefaultMaxSessions,
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	if storage != "" {
		os.MkdirAll(storage, 0755)
		m.loadAll()
	}
	go m.cleanupLoop()
	return m
}

// Close stops the periodic cleanup goroutine.
func (m *Manager) Close() { close(m.stopCleanup) }

// SessionKey builds a composite session key: agent:{agentId}:{scopeKey}
func SessionKey(agentID, scopeKey string) string {
	return fmt.Sprintf("agent:%s:%s", agentID, scopeKey)
}

// GetSession implements C6's get_session(channel_key) -> (session_id, is_new).
func (m *Manager) GetSession(channelKey string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[channelKey]
	if ok && time.Since(s.LastActive) <= m.sessionTimeout {
		if s.TotalInputTokens >= ContextThresholdTokens {
			slog.Info("sessions.context_full_fresh_session", "channel", channelKey)
			delete(m.sessions, channelKey)
			return m.createPrimaryLocked(channelKey)
		}
		if s.InUse {
			tempID := uuid.NewString()
			tempKey := channelKey + ":temp:" + tempID
			m.sessions[tempKey] = &Session{
				Key:          tempKey,
				SessionID:    tempID,
				Messages:     []content.Message{},
				Created:      time.Now(),
				Updated:      time.Now(),
				LastActive:   time.Now(),
				InUse:        true,
				IsTemp:       true,
				MessageCount: 1,
			}
			return tempID, true
		}
		s.LastActive = time.Now()
		s.MessageCount++
		s.InUse = true
		m.persistLocked(channelKey, s)
		return s.SessionID, false
	}

	delete(m.sessions, channelKey)
	return m.createPrimaryLocked(channelKey)
}

func (m *Manager) createPrimaryLocked(channelKey string) (string, bool) {
	if m.primaryCountLocked() >= m.maxSessions {
		m.evictLRULocked()
	}
	id := uuid.NewString()
	s := &Session{
		Key:          channelKey,
		SessionID:    id,
		Messages:     []content.Message{},
		Created:      time.Now(),
		Updated:      time.Now(),
		LastActive:   time.Now(),
		InUse:        true,
		MessageCount: 1,
	}
	m.sessions[channelKey] = s
	m.persistLocked(channelKey, s)
	return id, true
}

func (m *Manager) primaryCountLocked() int {
	n := 0
	for _, s := range m.sessions {
		if !s.IsTemp {
			n++
		}
	}
	return n
}

func (m *Manager) evictLRULocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, s := range m.sessions {
		if s.IsTemp {
			continue
		}
		if first || s.LastActive.Before(oldestTime) {
			oldestKey, oldestTime, first = k, s.LastActive, false
		}
	}
	if oldestKey != "" {
		delete(m.sessions, oldestKey)
		m.removePersisted(oldestKey)
		slog.Info("sessions.evicted_lru", "channel", oldestKey)
	}
}

// UpdateTokens sets total_input_tokens to max(current, inputTokens);
// returns whether the session is now within the warning fraction of the
// context threshold.
func (m *Manager) UpdateTokens(channelKey string, inputTokens int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[channelKey]
	if !ok {
		return false
	}
	if inputTokens > s.TotalInputTokens {
		s.TotalInputTokens = inputTokens
	}
	m.persistLocked(channelKey, s)
	return float64(s.TotalInputTokens) >= ContextWarningFraction*float64(ContextThresholdTokens)
}

// ReleaseSession clears in_use on the primary entry (never on temp entries).
func (m *Manager) ReleaseSession(channelKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[channelKey]; ok && !s.IsTemp {
		s.InUse = false
		m.persistLocked(channelKey, s)
	}
}

// ResetSession drops the entry for channelKey and creates a fresh one.
func (m *Manager) ResetSession(channelKey string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, channelKey)
	m.removePersisted(channelKey)
	return m.createPrimaryLocked(channelKey)
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCleanup:
			return
		case <-ticker.C:
			m.sweepExpired()
		}
	}
}

func (m *Manager) sweepExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for k, s := range m.sessions {
		if now.Sub(s.LastActive) > m.sessionTimeout {
			delete(m.sessions, k)
			m.removePersisted(k)
			slog.Info("sessions.evicted_ttl", "channel", k)
		}
	}
}

// --- conversation history/metadata, generalized from the teacher's
// GetOrCreate/AddMessage/GetHistory family onto the same Session type. ---

// AddMessage appends a message to a session's history, creating it if
// absent (used for sessions addressed directly by session id rather than
// through GetSession, e.g. subagent/cron scopes).
func (m *Manager) AddMessage(key string, msg content.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		s = &Session{Key: key, SessionID: uuid.NewString(), Messages: []content.Message{}, Created: time.Now()}
		m.sessions[key] = s
	}
	s.Messages = append(s.Messages, msg)
	s.Updated = time.Now()
	m.persistLocked(key, s)
}

// GetHistory returns a copy of the message history.
func (m *Manager) GetHistory(key string) []content.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil
	}
	out := make([]content.Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

func (m *Manager) GetSummary(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[key]; ok {
		return s.Summary
	}
	return ""
}

func (m *Manager) SetSummary(key, summary string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.Summary = summary
		s.Updated = time.Now()
	}
}

func (m *Manager) IncrementCompaction(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.CompactionCount++
	}
}

func (m *Manager) GetCompactionCount(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[key]; ok {
		return s.CompactionCount
	}
	return 0
}

// TruncateHistory keeps only the last N messages (used after compaction).
func (m *Manager) TruncateHistory(key string, keepLast int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return
	}
	if keepLast <= 0 {
		s.Messages = []content.Message{}
	} else if len(s.Messages) > keepLast {
		s.Messages = s.Messages[len(s.Messages)-keepLast:]
	}
	s.Updated = time.Now()
}

// Delete removes a session entirely, including its on-disk record.
func (m *Manager) Delete(key string) error {
	m.mu.Lock()
	delete(m.sessions, key)
	m.mu.Unlock()
	m.removePersisted(key)
	return nil
}

// SessionInfo is a lightweight descriptor for listing sessions.
type SessionInfo struct {
	Key          string    `json:"key"`
	MessageCount int       `json:"message_count"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
}

func (m *Manager) List(prefix string) []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SessionInfo
	for key, s := range m.sessions {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, SessionInfo{Key: key, MessageCount: len(s.Messages), Created: s.Created, Updated: s.Updated})
	}
	return out
}

// --- persistence: atomic file-write per session, grounded directly on
// the teacher's sessions.Manager.Save (os.CreateTemp + Sync + os.Rename). ---

func (m *Manager) persistLocked(channelKey string, s *Session) {
	if m.storage == "" {
		return
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return
	}

	filename := sanitizeFilename(channelKey)
	if filename == "." || !filepath.IsLocal(filename) || strings.ContainsAny(filename, `/\`) {
		return
	}
	path := filepath.Join(m.storage, filename+".json")

	tmp, err := os.CreateTemp(m.storage, "session-*.tmp")
	if err != nil {
		return
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return
	}
	tmp.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
	}
}

func (m *Manager) removePersisted(channelKey string) {
	if m.storage == "" {
		return
	}
	_ = os.Remove(filepath.Join(m.storage, sanitizeFilename(channelKey)+".json"))
}

func (m *Manager) loadAll() {
	files, err := os.ReadDir(m.storage)
	if err != nil {
		return
	}
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.storage, f.Name()))
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		s.InUse = false // crash recovery: never resume holding a stale lock
		m.sessions[s.Key] = &s
	}
}

func sanitizeFilename(key string) string {
	return strings.ReplaceAll(key, ":", "_")
}
