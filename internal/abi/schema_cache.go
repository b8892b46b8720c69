package abi

import "sync"

// SchemaCache keeps parsed contract schemas per account for its whole
// lifetime. An account can also be marked unresolvable, meaning it has no
// usable schema and should not be asked again.
type SchemaCache struct {
	mu      sync.RWMutex
	entries map[string]*Contract
}

// NewSchemaCache creates an empty cache.
func NewSchemaCache() *SchemaCache {
	return &SchemaCache{entries: make(map[string]*Contract)}
}

// Lookup returns the cached schema for account. known is false when the
// account was never resolved; a known account with a nil contract is
// unresolvable.
func (s *SchemaCache) Lookup(account string) (contract *Contract, known bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contract, known = s.entries[account]
	return contract, known
}

// Store caches the schema of account.
func (s *SchemaCache) Store(account string, contract *Contract) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[account] = contract
}

// MarkUnresolvable records that account has no usable schema.
func (s *SchemaCache) MarkUnresolvable(account string) {
	s.Store(account, nil)
}

// Len returns the number of known accounts.
func (s *SchemaCache) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
