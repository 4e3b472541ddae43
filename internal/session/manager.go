package session

import (
	"fmt"
	"sort"
	"sync"
)

// Scope selects how connections map to ledgers.
type Scope string

const (
	// ScopeShared gives every connection the same ledger. Two clients
	// connected at once take part in one conversation.
	ScopeShared Scope = "shared"

	// ScopeConnection gives every session identifier its own ledger.
	ScopeConnection Scope = "connection"
)

// SharedID is the identifier reported for the single ledger in ScopeShared.
const SharedID = "shared"

// IsValid reports whether s is a known scope.
func (s Scope) IsValid() bool {
	return s == ScopeShared || s == ScopeConnection
}

// Manager maps session identifiers to ledgers. A ledger taken with Acquire
// lives until its last holder releases it. Ledgers reached only through Get,
// such as those of the chat endpoint, live until they are dropped or the
// process exits.
//
// All methods are safe for concurrent use.
type Manager struct {
	scope         Scope
	assistantName string

	mu      sync.Mutex
	ledgers map[string]*Ledger
	holders map[string]int
}

// NewManager creates a Manager. An invalid scope is an error.
func NewManager(scope Scope, assistantName string) (*Manager, error) {
	if scope == "" {
		scope = ScopeShared
	}
	if !scope.IsValid() {
		return nil, fmt.Errorf("session: unknown scope %q", scope)
	}
	return &Manager{
		scope:         scope,
		assistantName: assistantName,
		ledgers:       make(map[string]*Ledger),
		holders:       make(map[string]int),
	}, nil
}

// Scope returns the configured scope.
func (m *Manager) Scope() Scope { return m.scope }

// Resolve returns the identifier of the ledger id would be served from.
func (m *Manager) Resolve(id string) string {
	if m.scope == ScopeShared || id == "" {
		return SharedID
	}
	return id
}

// Get returns the ledger for id, creating it on first use.
func (m *Manager) Get(id string) *Ledger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(m.Resolve(id))
}

// Acquire returns the ledger for id and registers the caller as a holder.
// The ledger is dropped once every holder has called release. Calling release
// more than once has no further effect. In ScopeShared the ledger is never
// dropped.
func (m *Manager) Acquire(id string) (l *Ledger, release func()) {
	key := m.Resolve(id)

	m.mu.Lock()
	defer m.mu.Unlock()
	l = m.getLocked(key)
	m.holders[key]++

	var once sync.Once
	return l, func() {
		once.Do(func() { m.release(key) })
	}
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holders[key]--
	if m.holders[key] > 0 {
		return
	}
	delete(m.holders, key)
	if m.scope != ScopeShared {
		delete(m.ledgers, key)
	}
}

func (m *Manager) getLocked(key string) *Ledger {
	l, ok := m.ledgers[key]
	if !ok {
		l = NewLedger(m.assistantName)
		m.ledgers[key] = l
	}
	return l
}

// Lookup returns the ledger for id without creating one.
func (m *Manager) Lookup(id string) (*Ledger, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.ledgers[m.Resolve(id)]
	return l, ok
}

// Drop forgets the ledger for id regardless of its holders. In ScopeShared
// the shared ledger is kept.
func (m *Manager) Drop(id string) {
	if m.scope == ScopeShared {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ledgers, m.Resolve(id))
}

// IDs returns the known session identifiers in sorted order.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.ledgers))
	for id := range m.ledgers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
