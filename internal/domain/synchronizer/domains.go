package synchronizer

import (
	"fmt"
	"sync"
	"time"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
)

// DomainEntry is the per-domain sync state. LastResourceUpdate is the
// high-water mark: the newest meta.lastUpdated seen when a sync pass
// registered at least one new referral.
type DomainEntry struct {
	LastResourceUpdate *time.Time `json:"last_resource_update"`
}

// DomainsMap holds one entry per configured data domain. It is shared
// between request handlers and the scheduler worker, so every access runs
// under its lock. Domains keep their configured order.
type DomainsMap struct {
	mu      sync.RWMutex
	order   []identity.DataDomain
	entries map[identity.DataDomain]DomainEntry
}

func NewDomainsMap(domains []identity.DataDomain) *DomainsMap {
	m := &DomainsMap{entries: make(map[identity.DataDomain]DomainEntry, len(domains))}
	for _, domain := range domains {
		if _, exists := m.entries[domain]; exists {
			continue
		}
		m.entries[domain] = DomainEntry{}
		m.order = append(m.order, domain)
	}
	return m
}

// Domains returns the configured domains in configuration order.
func (m *DomainsMap) Domains() []identity.DataDomain {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]identity.DataDomain, len(m.order))
	copy(out, m.order)
	return out
}

func (m *DomainsMap) Entry(domain identity.DataDomain) (DomainEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[domain]
	if !ok {
		return DomainEntry{}, fmt.Errorf("%s is not a configured data domain", domain)
	}
	return entry, nil
}

// Advance moves the domain's high-water mark to ts.
func (m *DomainsMap) Advance(domain identity.DataDomain, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[domain]; !ok {
		return fmt.Errorf("%s is not a configured data domain", domain)
	}
	m.entries[domain] = DomainEntry{LastResourceUpdate: &ts}
	return nil
}

// ClearEntry resets one domain's high-water mark and returns the resulting
// map snapshot.
func (m *DomainsMap) ClearEntry(domain identity.DataDomain) (map[string]DomainEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[domain]; !ok {
		return nil, fmt.Errorf("%s is not a configured data domain", domain)
	}
	m.entries[domain] = DomainEntry{}
	return m.snapshotLocked(), nil
}

// ClearAll resets every domain's high-water mark and returns the resulting
// map snapshot.
func (m *DomainsMap) ClearAll() map[string]DomainEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for domain := range m.entries {
		m.entries[domain] = DomainEntry{}
	}
	return m.snapshotLocked()
}

// Snapshot returns a copy of the map keyed by domain name.
func (m *DomainsMap) Snapshot() map[string]DomainEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *DomainsMap) snapshotLocked() map[string]DomainEntry {
	out := make(map[string]DomainEntry, len(m.entries))
	for domain, entry := range m.entries {
		out[domain.String()] = entry
	}
	return out
}
